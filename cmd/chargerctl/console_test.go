package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-charger/internal/auth"
	"github.com/nerrad567/gray-logic-charger/internal/bridges/sbrc"
)

type fakeCharger struct {
	pipeline *sbrc.Pipeline
	sent     []string
	err      error
}

func newFakeCharger() *fakeCharger {
	return &fakeCharger{pipeline: sbrc.NewPipeline(sbrc.NewStore(nil))}
}

func (f *fakeCharger) Send(_ context.Context, cmd string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, cmd)
	return nil
}

func (f *fakeCharger) Store() *sbrc.Store { return f.pipeline.Store() }

func newTestConsole(model string) (*console, *fakeCharger, *bytes.Buffer) {
	fc := newFakeCharger()
	out := &bytes.Buffer{}
	return newConsole(fc, sbrc.Models[model], 1, out), fc, out
}

func TestConsoleCommands(t *testing.T) {
	con, fc, out := newTestConsole("sbrc")
	ctx := context.Background()

	tests := []struct {
		line string
		wire string
	}{
		{"storage toggle", "< SET STORAGE_MODE TOGGLE >"},
		{"storage ON", "< SET STORAGE_MODE ON >"},
		{"flash", "< SET FLASH ON >"},
		{"name RACK 1", "< SET DEVICE_ID {RACK 1} >"},
		{"refresh", "< GET 0 ALL >"},
		{"raw get 3 batt_charge", "< GET 3 batt_charge >"},
	}
	for _, tt := range tests {
		assert.False(t, con.handle(ctx, tt.line), tt.line)
	}
	want := make([]string, 0, len(tests))
	for _, tt := range tests {
		want = append(want, tt.wire)
	}
	assert.Equal(t, want, fc.sent)
	assert.Contains(t, out.String(), "sent < SET FLASH ON >")
}

func TestConsoleRejectsBadInput(t *testing.T) {
	con, fc, out := newTestConsole("sbrc")
	ctx := context.Background()

	con.handle(ctx, "storage maybe")
	con.handle(ctx, "name WAYTOOLONGNAME")
	con.handle(ctx, "storage")
	con.handle(ctx, "bay 9")
	con.handle(ctx, "dance")

	assert.Empty(t, fc.sent)
	text := out.String()
	assert.Contains(t, text, "storage mode")
	assert.Contains(t, text, "usage: storage")
	assert.Contains(t, text, "between 1 and 8")
	assert.Contains(t, text, "unknown command: dance")
}

func TestConsoleSendError(t *testing.T) {
	con, fc, out := newTestConsole("sbrc")
	fc.err = sbrc.ErrNotConnected

	con.handle(context.Background(), "flash")
	assert.Contains(t, out.String(), "not connected")
}

func TestConsoleReads(t *testing.T) {
	con, fc, out := newTestConsole("sbrc")
	require.NoError(t, fc.pipeline.Feed("< REP MODEL {SBRC} >< REP 2 BATT_CHARGE 64 >< REP 2 BATT_STATE NORMAL >< REP 3 BATT_MODULE_TYPE 004 >"))

	con.handle(context.Background(), "charger")
	con.handle(context.Background(), "bays")
	con.handle(context.Background(), "bay 2")
	con.handle(context.Background(), "modules")

	text := out.String()
	assert.Contains(t, text, "model=SBRC")
	assert.Contains(t, text, "64%")
	assert.Contains(t, text, "NORMAL")
	assert.Contains(t, text, "module 3: SBM920")
	// Unreported bays show the no-data marker.
	assert.Contains(t, text, "NO_BATT")
}

func TestConsoleModularHasNoModules(t *testing.T) {
	con, _, out := newTestConsole("sbc220")
	con.handle(context.Background(), "modules")
	assert.Contains(t, out.String(), "no module slots")
	assert.Equal(t, 2, con.activeBays())
}

func TestConsolePrintChange(t *testing.T) {
	con, _, out := newTestConsole("sbc220")

	con.printChange(sbrc.Change{Kind: sbrc.EntityBay, ID: 1, Variable: "bay_1_charge", Value: 40})
	con.printChange(sbrc.Change{Kind: sbrc.EntityBay, ID: 3, Variable: "bay_3_charge", Value: 50})
	assert.Contains(t, out.String(), "bay_1_charge")
	assert.NotContains(t, out.String(), "bay_3_charge", "bays beyond the model are hidden")

	con.handle(context.Background(), "quiet")
	out.Reset()
	con.printChange(sbrc.Change{Kind: sbrc.EntityCharger, Variable: "flash", Value: true})
	assert.Empty(t, out.String())
}

func TestConsoleQuit(t *testing.T) {
	con, _, _ := newTestConsole("sbrc")
	assert.True(t, con.handle(context.Background(), "quit"))
	assert.True(t, con.handle(context.Background(), "EXIT"))
	assert.False(t, con.handle(context.Background(), "   "))
}

func TestRunToken(t *testing.T) {
	const secret = "test-secret-key-at-least-32-characters-long"
	var out bytes.Buffer

	require.NoError(t, runToken([]string{"-secret", secret, "-role", "viewer", "-ttl", "5m", "panel"}, &out))

	claims, err := auth.ParseToken(strings.TrimSpace(out.String()), secret)
	require.NoError(t, err)
	assert.Equal(t, "panel", claims.Subject)
	assert.Equal(t, auth.RoleViewer, claims.Role)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), claims.ExpiresAt.Time, time.Minute)
}

func TestRunTokenErrors(t *testing.T) {
	t.Setenv("GRAYLOGIC_JWT_SECRET", "")
	var out bytes.Buffer

	assert.ErrorContains(t, runToken([]string{"panel"}, &out), "secret is required")
	assert.ErrorContains(t, runToken([]string{"-secret", "x"}, &out), "usage")
	assert.ErrorIs(t, runToken([]string{"-secret", "x", "-role", "root", "panel"}, &out), auth.ErrInvalidRole)
}
