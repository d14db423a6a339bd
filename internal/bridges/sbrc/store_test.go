package sbrc

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder collects notifications in order.
type recorder struct {
	mu      sync.Mutex
	changes []Change
}

func (r *recorder) Notify(c Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
}

func (r *recorder) all() []Change {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Change(nil), r.changes...)
}

func apply(t *testing.T, s *Store, raw string) error {
	t.Helper()
	u, ok := Decode(raw)
	require.True(t, ok, "decode %q", raw)
	return s.Apply(u)
}

func TestStoreBayDefaults(t *testing.T) {
	s := NewStore(nil)
	b := s.Bay(3)

	assert.Equal(t, 3, b.ID)
	assert.Equal(t, "BAY 3", b.Name)
	assert.False(t, b.Detected)
	assert.Equal(t, StateNoBattery, b.State)
	assert.Equal(t, 255, b.Charge)
	assert.Equal(t, 65535, b.TimeToFull)
	assert.Equal(t, "Unknown", b.TimeToFullString)
	assert.Equal(t, 65535, b.CurrentCapacity)
	assert.Equal(t, 65535, b.CurrentCapacityMax)
	assert.Equal(t, 65535, b.CapacityMax)
	assert.Equal(t, 65535, b.CycleCount)
	assert.Equal(t, 255, b.TemperatureC)
	assert.Equal(t, 255, b.TemperatureF)
	assert.Equal(t, 255, b.Health)
	assert.Equal(t, 255, b.Bars)
	assert.Equal(t, "No Data", b.Error)
	assert.False(t, b.HasBattery())

	assert.Equal(t, "No module installed", s.Module(1).Type)
	assert.Equal(t, Charger{}, s.Charger())
}

func TestStoreLazyCreationMutatesSameBay(t *testing.T) {
	s := NewStore(nil)

	before := s.Bay(3)
	assert.Equal(t, StateNoBattery, before.State)
	assert.Equal(t, 255, before.Charge)

	require.NoError(t, apply(t, s, "< REP 3 BATT_CHARGE 75 "))

	assert.Equal(t, 75, s.Bay(3).Charge)
	assert.Len(t, s.Bays(), 1)
}

func TestStoreTimeToFullSentinels(t *testing.T) {
	tests := []struct {
		value   string
		wantInt int
		wantStr string
	}{
		{"65535", 65535, "Unknown"},
		{"65534", 65534, "Error"},
		{"65533", 65533, "Calculating..."},
		{"65529", 65529, "Target reached!"},
		{"42", 42, "42"},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			rec := &recorder{}
			s := NewStore(rec)
			require.NoError(t, apply(t, s, "< REP 1 BATT_TIME_TO_FULL "+tt.value))

			b := s.Bay(1)
			assert.Equal(t, tt.wantInt, b.TimeToFull)
			assert.Equal(t, tt.wantStr, b.TimeToFullString)

			changes := rec.all()
			require.Len(t, changes, 2)
			assert.Equal(t, "bay_1_time_to_full", changes[0].Variable)
			assert.Equal(t, tt.wantInt, changes[0].Value)
			assert.Equal(t, "bay_1_time_to_full_string", changes[1].Variable)
			assert.Equal(t, tt.wantStr, changes[1].Value)
			assert.Equal(t, "bay_time_to_full", changes[1].Feedback)
		})
	}
}

func TestStoreUnknownNormalisation(t *testing.T) {
	for _, raw := range []string{"UNKN", "UNKNOWN"} {
		t.Run(raw, func(t *testing.T) {
			s := NewStore(nil)
			require.NoError(t, apply(t, s, "< REP MODEL "+raw))
			require.NoError(t, apply(t, s, "< REP FW_VER "+raw))
			require.NoError(t, apply(t, s, "< REP 2 BATT_ERROR "+raw))

			assert.Equal(t, "Unknown", s.Charger().Model)
			assert.Equal(t, "Unknown", s.Charger().FirmwareVersion)
			assert.Equal(t, "Unknown", s.Bay(2).Error)
		})
	}
}

func TestStoreChargerKeys(t *testing.T) {
	rec := &recorder{}
	s := NewStore(rec)

	require.NoError(t, apply(t, s, "< REP MODEL {SBRC} "))
	require.NoError(t, apply(t, s, "< REP FW_VER { 2.4.1 } "))
	require.NoError(t, apply(t, s, "< REP DEVICE_ID {RACK 1} "))
	require.NoError(t, apply(t, s, "< REP FLASH ON "))
	require.NoError(t, apply(t, s, "< REP STORAGE_MODE OFF "))

	c := s.Charger()
	assert.Equal(t, "SBRC", c.Model)
	assert.Equal(t, "2.4.1", c.FirmwareVersion)
	assert.Equal(t, "RACK 1", c.DeviceID)
	assert.True(t, c.Flash)
	assert.False(t, c.StorageMode)

	changes := rec.all()
	require.Len(t, changes, 5)
	vars := make([]string, len(changes))
	for i, ch := range changes {
		vars[i] = ch.Variable
		assert.Equal(t, EntityCharger, ch.Kind)
		assert.Zero(t, ch.ID)
	}
	assert.Equal(t, []string{"device_model", "firmware_version", "deviceId", "flash", "storage_mode"}, vars)
	assert.Equal(t, "storage_mode", changes[4].Feedback)
	assert.Equal(t, "flash", changes[3].Feedback)
	assert.Empty(t, changes[0].Feedback)
}

func TestStoreBayKeys(t *testing.T) {
	rec := &recorder{}
	s := NewStore(rec)

	msgs := []string{
		"REP 4 BATT_DETECTED YES",
		"REP 4 BATT_STATE WARM_FULL",
		"REP 4 BATT_ERROR 004",
		"REP 4 BATT_CYCLE 120",
		"REP 4 BATT_CHARGE 88",
		"REP 4 BATT_HEALTH 97",
		"REP 4 BATT_BARS 4",
		"REP 4 BATT_TEMP_C 31",
		"REP 4 BATT_TEMP_F 88",
		"REP 4 BATT_CAPACITY_MAX 1200",
		"REP 4 BATT_CURRENT_CAPACITY 1000",
		"REP 4 BATT_CURRENT_CAPACITY_MAX 1180",
	}
	for _, m := range msgs {
		require.NoError(t, apply(t, s, m))
	}

	b := s.Bay(4)
	assert.True(t, b.Detected)
	assert.Equal(t, StateWarmFull, b.State)
	assert.Equal(t, "Charge Failed", b.Error)
	assert.Equal(t, 120, b.CycleCount)
	assert.Equal(t, 88, b.Charge)
	assert.Equal(t, 97, b.Health)
	assert.Equal(t, 4, b.Bars)
	assert.Equal(t, 31, b.TemperatureC)
	assert.Equal(t, 88, b.TemperatureF)
	assert.Equal(t, 1200, b.CapacityMax)
	assert.Equal(t, 1000, b.CurrentCapacity)
	assert.Equal(t, 1180, b.CurrentCapacityMax)
	assert.True(t, b.HasBattery())

	changes := rec.all()
	require.Len(t, changes, len(msgs))
	assert.Equal(t, Change{Kind: EntityBay, ID: 4, Variable: "bay_4_detected", Feedback: "bay_detected", Value: true}, changes[0])
	assert.Equal(t, Change{Kind: EntityBay, ID: 4, Variable: "bay_4_state", Feedback: "bay_state", Value: "WARM_FULL"}, changes[1])
	assert.Equal(t, Change{Kind: EntityBay, ID: 4, Variable: "bay_4_charge", Feedback: "bay_charge", Value: 88}, changes[4])

	require.NoError(t, apply(t, s, "REP 4 BATT_DETECTED NO"))
	assert.False(t, s.Bay(4).Detected)
}

func TestStoreModuleBayDisambiguation(t *testing.T) {
	rec := &recorder{}
	s := NewStore(rec)

	require.NoError(t, apply(t, s, "< REP 2 BATT_MODULE_TYPE 001 "))
	assert.Equal(t, "AXT902", s.Module(2).Type)
	assert.False(t, s.HasBay(2))

	changes := rec.all()
	require.Len(t, changes, 1)
	assert.Equal(t, "module_2_type", changes[0].Variable)
	assert.True(t, changes[0].Structural)
	assert.Equal(t, EntityModule, changes[0].Kind)

	s2 := NewStore(nil)
	require.NoError(t, apply(t, s2, "< REP 2 BATT_CHARGE 10 "))
	assert.Equal(t, 10, s2.Bay(2).Charge)
	assert.False(t, s2.HasModule(2))
}

func TestStoreUnrecognisedErrorCode(t *testing.T) {
	s := NewStore(nil)
	require.NoError(t, apply(t, s, "< REP 5 BATT_ERROR 042 "))
	assert.Equal(t, "042", s.Bay(5).Error)
}

func TestStoreRejectsUnknownCodes(t *testing.T) {
	rec := &recorder{}
	s := NewStore(rec)

	require.NoError(t, apply(t, s, "REP 1 BATT_STATE CALCULATING"))
	err := apply(t, s, "REP 1 BATT_STATE MELTING")
	assert.ErrorIs(t, err, ErrUnknownCode)
	assert.Equal(t, StateCalculating, s.Bay(1).State)

	require.NoError(t, apply(t, s, "REP 3 BATT_MODULE_TYPE 004"))
	err = apply(t, s, "REP 3 BATT_MODULE_TYPE 099")
	assert.ErrorIs(t, err, ErrUnknownCode)
	assert.Equal(t, "SBM920", s.Module(3).Type)

	assert.Len(t, rec.all(), 2)
}

func TestStoreFieldParseError(t *testing.T) {
	rec := &recorder{}
	s := NewStore(rec)

	require.NoError(t, apply(t, s, "REP 1 BATT_CHARGE 40"))

	err := apply(t, s, "REP 1 BATT_CHARGE forty")
	assert.ErrorIs(t, err, ErrFieldParse)
	assert.Equal(t, 40, s.Bay(1).Charge)

	err = apply(t, s, "REP 1 BATT_TIME_TO_FULL UNKN")
	assert.ErrorIs(t, err, ErrFieldParse)
	assert.Equal(t, 65535, s.Bay(1).TimeToFull)

	assert.Len(t, rec.all(), 1)
}

func TestStoreIgnoresUnknownKeys(t *testing.T) {
	rec := &recorder{}
	s := NewStore(rec)

	require.NoError(t, apply(t, s, "REP SOMETHING_NEW 1"))
	require.NoError(t, apply(t, s, "REP 6 BATT_SOMETHING 1"))

	assert.Empty(t, rec.all())
	assert.True(t, s.HasBay(6))
}

func TestStoreConcurrentReaders(t *testing.T) {
	s := NewStore(nil)

	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				_ = s.Bay(1 + i%8)
				_ = s.Charger()
				_ = s.Bays()
			}
		}()
	}

	for i := 0; i < 200; i++ {
		u := Update{Kind: EntityBay, ID: 1 + i%8, Key: KeyBattCharge, Value: "50"}
		require.NoError(t, s.Apply(u))
	}
	wg.Wait()

	assert.Len(t, s.Bays(), 8)
}
