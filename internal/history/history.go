package history

import (
	"fmt"
	"time"
)

// Query limits shared by both repositories.
const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// timeLayout is fixed width so recorded timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// Logger is the logging interface used by the sink.
type Logger interface {
	Error(msg string, keysAndValues ...any)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(timeLayout, value)
	if err == nil {
		return t, nil
	}
	if fallback, ferr := time.Parse(time.RFC3339Nano, value); ferr == nil {
		return fallback, nil
	}
	return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", value, err)
}
