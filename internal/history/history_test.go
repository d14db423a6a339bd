package history

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-charger/internal/bridges/sbrc"
	"github.com/nerrad567/gray-logic-charger/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-charger/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-charger/migrations"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "history.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	require.NoError(t, db.Migrate(context.Background(), migrations.FS))
	return db.DB
}

type errorLog struct{ msgs []string }

func (l *errorLog) Error(msg string, _ ...any) { l.msgs = append(l.msgs, msg) }

func bayChange(id int, suffix string, value any) sbrc.Change {
	return sbrc.Change{
		Kind:     sbrc.EntityBay,
		ID:       id,
		Variable: "bay_" + strconv.Itoa(id) + "_" + suffix,
		Feedback: "bay_" + suffix,
		Value:    value,
	}
}

func TestBayHistoryHandleChangeFiltersVariables(t *testing.T) {
	db := openTestDB(t)
	h := NewBayHistory(db, "rack-1")
	ctx := context.Background()

	snap := sbrc.EntitySnapshot{Kind: sbrc.EntityBay, ID: 3, Bay: sbrc.Bay{
		ID:    3,
		State: sbrc.StateNormal,
		Error: "No Active Error",
	}}

	h.HandleChange(ctx, bayChange(3, "state", "NORMAL"), snap)
	h.HandleChange(ctx, bayChange(3, "error", "No Active Error"), snap)
	h.HandleChange(ctx, bayChange(3, "detected", true), snap)
	h.HandleChange(ctx, bayChange(3, "charge", 42), snap)
	h.HandleChange(ctx, bayChange(3, "temperature_c", 24), snap)
	h.HandleChange(ctx, sbrc.Change{Kind: sbrc.EntityCharger, Variable: "flash", Feedback: "flash", Value: true}, snap)

	entries, err := h.List(ctx, BayFilter{Bay: 3})
	require.NoError(t, err)
	require.Len(t, entries, 3)

	values := map[string]string{}
	for _, e := range entries {
		assert.Equal(t, "rack-1", e.ChargerID)
		assert.Equal(t, "NORMAL", e.State)
		assert.Equal(t, "No Active Error", e.Error)
		assert.NotEmpty(t, e.ID)
		values[e.Variable] = e.Value
	}
	assert.Equal(t, "NORMAL", values["bay_3_state"])
	assert.Equal(t, "true", values["bay_3_detected"])
}

func TestBayHistoryListFilters(t *testing.T) {
	db := openTestDB(t)
	h := NewBayHistory(db, "rack-1")
	other := NewBayHistory(db, "rack-2")
	ctx := context.Background()

	base := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, h.Record(ctx, &BayEntry{
			Bay:        1 + i%2,
			Variable:   "bay_1_state",
			Value:      "NORMAL",
			RecordedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, other.Record(ctx, &BayEntry{Bay: 1, Variable: "bay_1_state", Value: "FULL"}))

	all, err := h.List(ctx, BayFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 5)
	assert.True(t, all[0].RecordedAt.After(all[1].RecordedAt), "newest first")

	bay1, err := h.List(ctx, BayFilter{Bay: 1})
	require.NoError(t, err)
	assert.Len(t, bay1, 3)

	recent, err := h.List(ctx, BayFilter{Since: base.Add(3 * time.Minute)})
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	limited, err := h.List(ctx, BayFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
	assert.Equal(t, base.Add(4*time.Minute), limited[0].RecordedAt)
}

func TestBayHistoryRecordRejectsBadBay(t *testing.T) {
	h := NewBayHistory(openTestDB(t), "rack-1")
	assert.Error(t, h.Record(context.Background(), &BayEntry{Bay: 0}))
}

func TestBayHistoryPrune(t *testing.T) {
	h := NewBayHistory(openTestDB(t), "rack-1")
	ctx := context.Background()

	require.NoError(t, h.Record(ctx, &BayEntry{Bay: 1, Variable: "bay_1_state", RecordedAt: time.Now().Add(-48 * time.Hour)}))
	require.NoError(t, h.Record(ctx, &BayEntry{Bay: 1, Variable: "bay_1_state"}))

	n, err := h.Prune(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = h.Prune(ctx, 0)
	assert.Error(t, err)
}

func TestBayHistoryLogsFailures(t *testing.T) {
	db := openTestDB(t)
	h := NewBayHistory(db, "rack-1")
	log := &errorLog{}
	h.SetLogger(log)

	_, err := db.Exec("DROP TABLE bay_state_history")
	require.NoError(t, err)

	h.HandleChange(context.Background(), bayChange(2, "state", "FULL"), sbrc.EntitySnapshot{})
	assert.Equal(t, []string{"recording bay history"}, log.msgs)
}

func TestCommandAudit(t *testing.T) {
	db := openTestDB(t)
	audit := NewCommandAudit(db, "rack-1")
	ctx := context.Background()

	var _ sbrc.CommandRecorder = audit

	base := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	records := []sbrc.CommandRecord{
		{ID: "c1", Command: sbrc.CmdFlash, Wire: "< SET FLASH ON >", Source: "api", Success: true, Timestamp: base},
		{ID: "c2", Command: sbrc.CmdSetStorageMode, Wire: "< SET STORAGE_MODE TOGGLE >", Source: "mqtt", Success: true, Timestamp: base.Add(time.Minute)},
		{ID: "c3", Command: sbrc.CmdSetDeviceID, Source: "api", UserID: "ops", Success: false,
			Error: errors.New("invalid parameter").Error(), Timestamp: base.Add(2 * time.Minute)},
	}
	for _, rec := range records {
		require.NoError(t, audit.RecordCommand(ctx, rec))
	}

	res, err := audit.List(ctx, CommandFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Total)
	require.Len(t, res.Commands, 3)
	assert.Equal(t, "c3", res.Commands[0].CommandID)
	assert.False(t, res.Commands[0].Success)
	assert.Equal(t, "ops", res.Commands[0].UserID)
	assert.Equal(t, defaultListLimit, res.Limit)

	failed, err := audit.List(ctx, CommandFilter{FailedOnly: true})
	require.NoError(t, err)
	assert.Equal(t, 1, failed.Total)

	api, err := audit.List(ctx, CommandFilter{Source: "api", Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, api.Total)
	require.Len(t, api.Commands, 1)
	assert.Equal(t, "c3", api.Commands[0].CommandID)

	page, err := audit.List(ctx, CommandFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page.Commands, 1)
	assert.Equal(t, "c2", page.Commands[0].CommandID)
	assert.Equal(t, "< SET STORAGE_MODE TOGGLE >", page.Commands[0].Wire)

	since, err := audit.List(ctx, CommandFilter{Command: sbrc.CmdFlash, Since: base.Add(time.Second)})
	require.NoError(t, err)
	assert.Equal(t, 0, since.Total)
	assert.NotNil(t, since.Commands)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, defaultListLimit, clampLimit(0))
	assert.Equal(t, defaultListLimit, clampLimit(-3))
	assert.Equal(t, 10, clampLimit(10))
	assert.Equal(t, maxListLimit, clampLimit(maxListLimit+1))
}
