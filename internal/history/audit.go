package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-charger/internal/bridges/sbrc"
)

// CommandEntry is one audited command.
type CommandEntry struct {
	ID        string    `json:"id"`
	ChargerID string    `json:"charger_id"`
	CommandID string    `json:"command_id"`
	Command   string    `json:"command"`
	Wire      string    `json:"wire,omitempty"`
	Source    string    `json:"source,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// CommandFilter selects audit rows. Zero values mean "any".
type CommandFilter struct {
	Command string
	Source  string
	// FailedOnly restricts the result to failed commands.
	FailedOnly bool
	Since      time.Time
	Limit      int
	Offset     int
}

// CommandListResult is one page of audit entries.
type CommandListResult struct {
	Commands []CommandEntry `json:"commands"`
	Total    int            `json:"total"`
	Limit    int            `json:"limit"`
	Offset   int            `json:"offset"`
}

// CommandAudit stores every command the bridge executes.
type CommandAudit struct {
	db        *sql.DB
	chargerID string
}

// NewCommandAudit creates a command audit repository for one charger.
func NewCommandAudit(db *sql.DB, chargerID string) *CommandAudit {
	return &CommandAudit{db: db, chargerID: chargerID}
}

// RecordCommand implements sbrc.CommandRecorder.
func (a *CommandAudit) RecordCommand(ctx context.Context, rec sbrc.CommandRecord) error {
	created := rec.Timestamp
	if created.IsZero() {
		created = time.Now().UTC()
	}

	_, err := a.db.ExecContext(ctx,
		`INSERT INTO command_audit (id, charger_id, command_id, command, wire, source, user_id, success, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), a.chargerID, rec.ID, rec.Command, rec.Wire,
		rec.Source, rec.UserID, boolToInt(rec.Success), rec.Error, formatTime(created),
	)
	if err != nil {
		return fmt.Errorf("inserting command audit: %w", err)
	}
	return nil
}

// List returns a page of this charger's audit entries, newest first.
func (a *CommandAudit) List(ctx context.Context, filter CommandFilter) (*CommandListResult, error) {
	filter.Limit = clampLimit(filter.Limit)
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	conditions := []string{"charger_id = ?"}
	args := []any{a.chargerID}

	if filter.Command != "" {
		conditions = append(conditions, "command = ?")
		args = append(args, filter.Command)
	}
	if filter.Source != "" {
		conditions = append(conditions, "source = ?")
		args = append(args, filter.Source)
	}
	if filter.FailedOnly {
		conditions = append(conditions, "success = 0")
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, formatTime(filter.Since))
	}
	where := "WHERE " + strings.Join(conditions, " AND ")

	var total int
	if err := a.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM command_audit "+where, args...).Scan(&total); err != nil { //nolint:gosec // WHERE built from fixed conditions
		return nil, fmt.Errorf("counting command audit: %w", err)
	}

	rows, err := a.db.QueryContext(ctx, //nolint:gosec // WHERE built from fixed conditions
		"SELECT id, charger_id, command_id, command, wire, source, user_id, success, error, created_at FROM command_audit "+
			where+" ORDER BY created_at DESC LIMIT ? OFFSET ?",
		append(args, filter.Limit, filter.Offset)...,
	)
	if err != nil {
		return nil, fmt.Errorf("querying command audit: %w", err)
	}
	defer rows.Close()

	commands := []CommandEntry{}
	for rows.Next() {
		var (
			e       CommandEntry
			success int
			at      string
		)
		if err := rows.Scan(&e.ID, &e.ChargerID, &e.CommandID, &e.Command, &e.Wire,
			&e.Source, &e.UserID, &success, &e.Error, &at); err != nil {
			return nil, fmt.Errorf("scanning command audit: %w", err)
		}
		e.Success = success != 0
		if e.CreatedAt, err = parseTime(at); err != nil {
			return nil, err
		}
		commands = append(commands, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating command audit: %w", err)
	}

	return &CommandListResult{
		Commands: commands,
		Total:    total,
		Limit:    filter.Limit,
		Offset:   filter.Offset,
	}, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
