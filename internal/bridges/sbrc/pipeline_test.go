package sbrc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineFieldIndependence(t *testing.T) {
	rec := &recorder{}
	p := NewPipeline(NewStore(rec))

	err := p.Feed("< REP 1 BATT_CHARGE 60 >< REP 1 BATT_HEALTH bad >< REP 1 BATT_CYCLE 12 >< REP 2 BATT_STATE NOPE >< REP 2 BATT_DETECTED YES >")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFieldParse)
	assert.ErrorIs(t, err, ErrUnknownCode)

	s := p.Store()
	assert.Equal(t, 60, s.Bay(1).Charge)
	assert.Equal(t, 255, s.Bay(1).Health)
	assert.Equal(t, 12, s.Bay(1).CycleCount)
	assert.Equal(t, StateNoBattery, s.Bay(2).State)
	assert.True(t, s.Bay(2).Detected)

	assert.Equal(t, uint64(5), p.Messages)
	assert.Equal(t, uint64(3), p.Applied)
	assert.Len(t, rec.all(), 3)
}

func TestPipelineSplitChunks(t *testing.T) {
	p := NewPipeline(NewStore(nil))

	require.NoError(t, p.Feed("< REP MODEL {SB"))
	assert.Equal(t, "", p.Store().Charger().Model)

	require.NoError(t, p.Feed("RC} >< REP 7 BATT_CHARGE 9"))
	assert.Equal(t, "SBRC", p.Store().Charger().Model)
	assert.Equal(t, 255, p.Store().Bay(7).Charge)

	require.NoError(t, p.Feed("9 >"))
	assert.Equal(t, 99, p.Store().Bay(7).Charge)
}

func TestPipelineIgnoresNonReports(t *testing.T) {
	p := NewPipeline(NewStore(nil))

	require.NoError(t, p.Feed(">< GET 0 ALL >< SAMPLE 1 ALL >"))
	assert.Equal(t, uint64(3), p.Messages)
	assert.Zero(t, p.Applied)
}

func TestPipelineIgnoresNonPositiveIDs(t *testing.T) {
	p := NewPipeline(NewStore(nil))

	require.NoError(t, p.Feed("< REP -3 BATT_CHARGE 5 >< REP 0 BATT_STATE FULL >< REP 0 BATT_MODULE_TYPE 001 >"))
	assert.Equal(t, uint64(3), p.Messages)
	assert.Zero(t, p.Applied)
	assert.Empty(t, p.Store().Bays())
	assert.Empty(t, p.Store().Modules())
}

func TestPipelineResetDropsPartial(t *testing.T) {
	p := NewPipeline(NewStore(nil))

	require.NoError(t, p.Feed("< REP 1 BATT_CHA"))
	p.Reset()
	require.NoError(t, p.Feed("< REP 1 BATT_CHARGE 20 >"))

	assert.Equal(t, 20, p.Store().Bay(1).Charge)
}
