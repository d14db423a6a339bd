package sbrc

import "strconv"

// VariableDefinition names an observable variable.
type VariableDefinition struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// bayVariables lists the per-bay variables in display order. The name
// template takes the bay number.
var bayVariables = []struct {
	suffix string
	name   func(n string) string
}{
	{"time_to_full", func(n string) string { return "Time To Full Bay " + n }},
	{"time_to_full_string", func(n string) string { return "Time To Full as String Bay " + n }},
	{"detected", func(n string) string { return "Battery in bay " + n + " detected" }},
	{"state", func(n string) string { return "Bay " + n + " State" }},
	{"cycle_count", func(n string) string { return "Battery Cycles bay " + n }},
	{"charge", func(n string) string { return "Battery charge in % bay " + n }},
	{"health", func(n string) string { return "Battery health bay " + n }},
	{"temperature_c", func(n string) string { return "Battery temperature in C bay " + n }},
	{"temperature_f", func(n string) string { return "Battery temperature in F bay " + n }},
	{"capacity_max", func(n string) string { return "Battery capacity max bay " + n }},
	{"current_capacity", func(n string) string { return "Battery current capacity bay " + n }},
	{"current_capacity_max", func(n string) string { return "Battery current capacity max bars bay " + n }},
	{"bars", func(n string) string { return "Battery bars bay " + n }},
	{"error", func(n string) string { return "Battery error bay " + n }},
}

// VariableDefinitions lists every variable exposed for a model and module
// count. Fixed chargers report their module slots as module_1..4_type.
func VariableDefinitions(model Model, moduleCount int) []VariableDefinition {
	var defs []VariableDefinition

	if !model.Modular {
		for i := 1; i <= MaxModuleCount; i++ {
			n := strconv.Itoa(i)
			defs = append(defs, VariableDefinition{ID: "module_" + n + "_type", Name: "Module " + n + " Type"})
		}
	}

	for i := 1; i <= model.ActiveBays(moduleCount); i++ {
		n := strconv.Itoa(i)
		for _, v := range bayVariables {
			defs = append(defs, VariableDefinition{ID: "bay_" + n + "_" + v.suffix, Name: v.name(n)})
		}
	}

	return append(defs,
		VariableDefinition{ID: VarDeviceModel, Name: "Charger Model"},
		VariableDefinition{ID: VarFirmwareVersion, Name: "Firmware Version"},
		VariableDefinition{ID: VarDeviceID, Name: "Charger Id"},
		VariableDefinition{ID: VarFlash, Name: "Charger Flash Mode"},
		VariableDefinition{ID: VarStorageMode, Name: "Charger Storage Mode"},
	)
}

// VariableValues returns the current value of every variable the store
// can answer for, keyed by variable id.
func VariableValues(s *Store, model Model, moduleCount int) map[string]any {
	c := s.Charger()
	out := map[string]any{
		VarDeviceModel:     c.Model,
		VarFirmwareVersion: c.FirmwareVersion,
		VarDeviceID:        c.DeviceID,
		VarFlash:           c.Flash,
		VarStorageMode:     c.StorageMode,
	}

	if !model.Modular {
		for i := 1; i <= MaxModuleCount; i++ {
			out["module_"+strconv.Itoa(i)+"_type"] = s.Module(i).Type
		}
	}

	for i := 1; i <= model.ActiveBays(moduleCount); i++ {
		b := s.Bay(i)
		p := "bay_" + strconv.Itoa(i) + "_"
		out[p+"time_to_full"] = b.TimeToFull
		out[p+"time_to_full_string"] = b.TimeToFullString
		out[p+"detected"] = b.Detected
		out[p+"state"] = string(b.State)
		out[p+"cycle_count"] = b.CycleCount
		out[p+"charge"] = b.Charge
		out[p+"health"] = b.Health
		out[p+"temperature_c"] = b.TemperatureC
		out[p+"temperature_f"] = b.TemperatureF
		out[p+"capacity_max"] = b.CapacityMax
		out[p+"current_capacity"] = b.CurrentCapacity
		out[p+"current_capacity_max"] = b.CurrentCapacityMax
		out[p+"bars"] = b.Bars
		out[p+"error"] = b.Error
	}
	return out
}
