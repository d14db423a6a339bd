package history

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-charger/internal/bridges/sbrc"
)

// BayEntry is one recorded bay transition.
type BayEntry struct {
	ID        string `json:"id"`
	ChargerID string `json:"charger_id"`
	Bay       int    `json:"bay"`
	// Variable is the changed variable, e.g. "bay_3_state".
	Variable string `json:"variable"`
	Value    string `json:"value"`
	// State and Error are the bay's state and error label after the change.
	State      string    `json:"state"`
	Error      string    `json:"error"`
	RecordedAt time.Time `json:"recorded_at"`
}

// BayFilter selects bay history rows. Zero values mean "any".
type BayFilter struct {
	Bay   int
	Since time.Time
	Limit int
}

// BayHistory records bay detection, state and error transitions.
type BayHistory struct {
	db        *sql.DB
	chargerID string

	logger   Logger
	loggerMu sync.RWMutex
}

// NewBayHistory creates a bay history repository for one charger.
func NewBayHistory(db *sql.DB, chargerID string) *BayHistory {
	return &BayHistory{db: db, chargerID: chargerID}
}

// SetLogger sets the logger used when a change cannot be recorded.
func (h *BayHistory) SetLogger(logger Logger) {
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

// recordedFeedbacks are the change categories worth keeping. Charge and
// temperature move constantly and belong in the time-series store.
var recordedFeedbacks = map[string]bool{
	sbrc.FeedbackBayDetected: true,
	sbrc.FeedbackBayState:    true,
	sbrc.FeedbackBayError:    true,
}

// Tracks reports whether a change is one BayHistory records.
func Tracks(ch sbrc.Change) bool {
	return ch.Kind == sbrc.EntityBay && recordedFeedbacks[ch.Feedback]
}

// HandleChange implements sbrc.ChangeSink.
func (h *BayHistory) HandleChange(ctx context.Context, ch sbrc.Change, snap sbrc.EntitySnapshot) {
	if !Tracks(ch) {
		return
	}

	entry := &BayEntry{
		Bay:      ch.ID,
		Variable: ch.Variable,
		Value:    formatValue(ch.Value),
		State:    string(snap.Bay.State),
		Error:    snap.Bay.Error,
	}
	if err := h.Record(ctx, entry); err != nil {
		h.loggerMu.RLock()
		logger := h.logger
		h.loggerMu.RUnlock()
		if logger != nil {
			logger.Error("recording bay history", "bay", ch.ID, "variable", ch.Variable, "error", err)
		}
	}
}

// Record inserts an entry. ID, ChargerID and RecordedAt are filled in when
// empty.
func (h *BayHistory) Record(ctx context.Context, e *BayEntry) error {
	if e.Bay < 1 {
		return fmt.Errorf("bay must be positive, got %d", e.Bay)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.ChargerID == "" {
		e.ChargerID = h.chargerID
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now().UTC()
	}

	_, err := h.db.ExecContext(ctx,
		`INSERT INTO bay_state_history (id, charger_id, bay, variable, value, state, error, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ChargerID, e.Bay, e.Variable, e.Value, e.State, e.Error, formatTime(e.RecordedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting bay history: %w", err)
	}
	return nil
}

// List returns this charger's entries matching filter, newest first.
func (h *BayHistory) List(ctx context.Context, filter BayFilter) ([]BayEntry, error) {
	conditions := []string{"charger_id = ?"}
	args := []any{h.chargerID}

	if filter.Bay > 0 {
		conditions = append(conditions, "bay = ?")
		args = append(args, filter.Bay)
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "recorded_at >= ?")
		args = append(args, formatTime(filter.Since))
	}
	args = append(args, clampLimit(filter.Limit))

	query := "SELECT id, charger_id, bay, variable, value, state, error, recorded_at FROM bay_state_history WHERE " + //nolint:gosec // conditions are fixed strings with ? placeholders
		strings.Join(conditions, " AND ") + " ORDER BY recorded_at DESC LIMIT ?"

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying bay history: %w", err)
	}
	defer rows.Close()

	entries := []BayEntry{}
	for rows.Next() {
		var (
			e  BayEntry
			at string
		)
		if err := rows.Scan(&e.ID, &e.ChargerID, &e.Bay, &e.Variable, &e.Value, &e.State, &e.Error, &at); err != nil {
			return nil, fmt.Errorf("scanning bay history: %w", err)
		}
		if e.RecordedAt, err = parseTime(at); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating bay history: %w", err)
	}
	return entries, nil
}

// Prune deletes entries older than the given age and returns how many were
// removed.
func (h *BayHistory) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	res, err := h.db.ExecContext(ctx,
		"DELETE FROM bay_state_history WHERE recorded_at < ?",
		formatTime(time.Now().Add(-olderThan)),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning bay history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

func formatValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	default:
		return fmt.Sprint(t)
	}
}
