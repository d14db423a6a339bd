package sbrc

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Charger report keys.
const (
	KeyModel       = "MODEL"
	KeyFirmware    = "FW_VER"
	KeyDeviceID    = "DEVICE_ID"
	KeyFlash       = "FLASH"
	KeyStorageMode = "STORAGE_MODE"
)

// Bay report keys.
const (
	KeyBattDetected           = "BATT_DETECTED"
	KeyBattState              = "BATT_STATE"
	KeyBattError              = "BATT_ERROR"
	KeyBattTimeToFull         = "BATT_TIME_TO_FULL"
	KeyBattCycle              = "BATT_CYCLE"
	KeyBattCharge             = "BATT_CHARGE"
	KeyBattHealth             = "BATT_HEALTH"
	KeyBattBars               = "BATT_BARS"
	KeyBattTempC              = "BATT_TEMP_C"
	KeyBattTempF              = "BATT_TEMP_F"
	KeyBattCapacityMax        = "BATT_CAPACITY_MAX"
	KeyBattCurrentCapacity    = "BATT_CURRENT_CAPACITY"
	KeyBattCurrentCapacityMax = "BATT_CURRENT_CAPACITY_MAX"
)

// Charger variable names.
const (
	VarDeviceModel     = "device_model"
	VarFirmwareVersion = "firmware_version"
	VarDeviceID        = "deviceId"
	VarFlash           = "flash"
	VarStorageMode     = "storage_mode"
)

// Change describes one mutated field.
type Change struct {
	Kind EntityKind `json:"kind"`
	ID   int        `json:"id,omitempty"`
	// Variable is the observable name of the field, e.g. "bay_3_charge".
	Variable string `json:"variable"`
	// Feedback is the feedback category to re-evaluate. Empty when no
	// feedback depends on the field.
	Feedback string `json:"feedback,omitempty"`
	Value    any    `json:"value"`
	// Structural is set when the change alters the charger's composition,
	// which can change the set of valid bays and options.
	Structural bool `json:"structural,omitempty"`
}

// Notifier receives one call per mutated field.
type Notifier interface {
	Notify(Change)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Change)

// Notify calls f(c).
func (f NotifierFunc) Notify(c Change) { f(c) }

// bayIntField maps an integer bay key to its variable suffix and setter.
type bayIntField struct {
	suffix string
	set    func(*Bay, int)
}

var bayIntFields = map[string]bayIntField{
	KeyBattCycle:              {"cycle_count", func(b *Bay, v int) { b.CycleCount = v }},
	KeyBattCharge:             {"charge", func(b *Bay, v int) { b.Charge = v }},
	KeyBattHealth:             {"health", func(b *Bay, v int) { b.Health = v }},
	KeyBattBars:               {"bars", func(b *Bay, v int) { b.Bars = v }},
	KeyBattTempC:              {"temperature_c", func(b *Bay, v int) { b.TemperatureC = v }},
	KeyBattTempF:              {"temperature_f", func(b *Bay, v int) { b.TemperatureF = v }},
	KeyBattCapacityMax:        {"capacity_max", func(b *Bay, v int) { b.CapacityMax = v }},
	KeyBattCurrentCapacity:    {"current_capacity", func(b *Bay, v int) { b.CurrentCapacity = v }},
	KeyBattCurrentCapacityMax: {"current_capacity_max", func(b *Bay, v int) { b.CurrentCapacityMax = v }},
}

// Store holds the charger, bay and module state for one connection.
//
// Thread Safety:
//   - Apply is meant to be called from a single goroutine.
//   - Readers may call the getters concurrently; they receive copies.
//   - The notifier is called after the lock is released, in mutation order.
type Store struct {
	mu       sync.RWMutex
	charger  Charger
	bays     map[int]*Bay
	modules  map[int]*Module
	notifier Notifier
}

// NewStore creates an empty store. notifier may be nil.
func NewStore(notifier Notifier) *Store {
	return &Store{
		bays:     make(map[int]*Bay),
		modules:  make(map[int]*Module),
		notifier: notifier,
	}
}

// Charger returns a copy of the charger state.
func (s *Store) Charger() Charger {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.charger
}

// Bay returns a copy of the bay with the given id, creating it with
// default values on first access.
func (s *Store) Bay(id int) Bay {
	s.mu.RLock()
	b, ok := s.bays[id]
	if ok {
		out := *b
		s.mu.RUnlock()
		return out
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.bayLocked(id)
}

// Module returns a copy of the module with the given id, creating it on
// first access.
func (s *Store) Module(id int) Module {
	s.mu.RLock()
	m, ok := s.modules[id]
	if ok {
		out := *m
		s.mu.RUnlock()
		return out
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.moduleLocked(id)
}

// HasBay reports whether the bay has been created, without creating it.
func (s *Store) HasBay(id int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.bays[id]
	return ok
}

// HasModule reports whether the module has been created, without creating it.
func (s *Store) HasModule(id int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.modules[id]
	return ok
}

// Bays returns copies of every created bay ordered by id.
func (s *Store) Bays() []Bay {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Bay, 0, len(s.bays))
	for _, b := range s.bays {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Modules returns copies of every created module ordered by id.
func (s *Store) Modules() []Module {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Module, 0, len(s.modules))
	for _, m := range s.modules {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Apply applies one decoded update.
//
// Unknown keys are ignored. A failed integer parse returns ErrFieldParse and
// an unknown state or module code returns ErrUnknownCode; in both cases the
// stored value is left as it was. Bay and module entities are created even
// when the update is rejected.
func (s *Store) Apply(u Update) error {
	var (
		changes []Change
		err     error
	)

	s.mu.Lock()
	switch u.Kind {
	case EntityCharger:
		changes = s.applyCharger(u.Key, u.Value)
	case EntityBay:
		changes, err = s.applyBay(u.ID, u.Key, u.Value)
	case EntityModule:
		changes, err = s.applyModule(u.ID, u.Key, u.Value)
	}
	s.mu.Unlock()

	if s.notifier != nil {
		for _, c := range changes {
			s.notifier.Notify(c)
		}
	}
	return err
}

func (s *Store) bayLocked(id int) *Bay {
	b, ok := s.bays[id]
	if !ok {
		b = newBay(id)
		s.bays[id] = b
	}
	return b
}

func (s *Store) moduleLocked(id int) *Module {
	m, ok := s.modules[id]
	if !ok {
		m = newModule(id)
		s.modules[id] = m
	}
	return m
}

func (s *Store) applyCharger(key, value string) []Change {
	value = normaliseUnknown(value)

	change := func(variable, feedback string, v any) []Change {
		return []Change{{Kind: EntityCharger, Variable: variable, Feedback: feedback, Value: v}}
	}

	switch key {
	case KeyModel:
		s.charger.Model = stripBraces(value)
		return change(VarDeviceModel, "", s.charger.Model)
	case KeyFirmware:
		s.charger.FirmwareVersion = stripBraces(value)
		return change(VarFirmwareVersion, "", s.charger.FirmwareVersion)
	case KeyDeviceID:
		s.charger.DeviceID = stripBraces(value)
		return change(VarDeviceID, "", s.charger.DeviceID)
	case KeyFlash:
		s.charger.Flash = value == "ON"
		return change(VarFlash, FeedbackFlash, s.charger.Flash)
	case KeyStorageMode:
		s.charger.StorageMode = value == "ON"
		return change(VarStorageMode, FeedbackStorageMode, s.charger.StorageMode)
	}
	return nil
}

func (s *Store) applyBay(id int, key, value string) ([]Change, error) {
	bay := s.bayLocked(id)
	prefix := "bay_" + strconv.Itoa(id) + "_"

	change := func(suffix string, v any) Change {
		return Change{
			Kind:     EntityBay,
			ID:       id,
			Variable: prefix + suffix,
			Feedback: "bay_" + suffix,
			Value:    v,
		}
	}

	if f, ok := bayIntFields[key]; ok {
		n, err := parseInt(value)
		if err != nil {
			return nil, fmt.Errorf("%w: bay %d %s: %w", ErrFieldParse, id, key, err)
		}
		f.set(bay, n)
		return []Change{change(f.suffix, n)}, nil
	}

	value = normaliseUnknown(value)

	switch key {
	case KeyBattTimeToFull:
		n, err := parseInt(value)
		if err != nil {
			return nil, fmt.Errorf("%w: bay %d %s: %w", ErrFieldParse, id, key, err)
		}
		bay.TimeToFull = n
		bay.TimeToFullString = TimeToFullString(n)
		str := change("time_to_full_string", bay.TimeToFullString)
		str.Feedback = "bay_time_to_full"
		return []Change{change("time_to_full", n), str}, nil

	case KeyBattDetected:
		bay.Detected = value == "YES"
		return []Change{change("detected", bay.Detected)}, nil

	case KeyBattState:
		state, err := ParseBayState(value)
		if err != nil {
			return nil, fmt.Errorf("bay %d: %w", id, err)
		}
		bay.State = state
		return []Change{change("state", string(state))}, nil

	case KeyBattError:
		bay.Error = ResolveBayError(value)
		return []Change{change("error", bay.Error)}, nil
	}
	return nil, nil
}

func (s *Store) applyModule(id int, key, value string) ([]Change, error) {
	mod := s.moduleLocked(id)
	if key != KeyModuleType {
		return nil, nil
	}

	label, err := ParseModuleType(normaliseUnknown(value))
	if err != nil {
		return nil, fmt.Errorf("module %d: %w", id, err)
	}
	mod.Type = label
	return []Change{{
		Kind:       EntityModule,
		ID:         id,
		Variable:   "module_" + strconv.Itoa(id) + "_type",
		Value:      label,
		Structural: true,
	}}, nil
}

// normaliseUnknown rewrites the device's unknown tokens to a display value.
func normaliseUnknown(v string) string {
	if v == "UNKN" || v == "UNKNOWN" {
		return "Unknown"
	}
	return v
}

func stripBraces(v string) string {
	v = strings.Replace(v, "{", "", 1)
	v = strings.Replace(v, "}", "", 1)
	return strings.TrimSpace(v)
}

func parseInt(v string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("value %q is not an integer", v)
	}
	return n, nil
}
