package sbrc

import "strconv"

// Sentinels for bay fields that have not been reported yet.
const (
	NoDataByte = 255
	NoDataWord = 65535
)

// Charger is the charger unit itself. There is one per connection.
type Charger struct {
	Model           string `json:"model"`
	FirmwareVersion string `json:"firmware_version"`
	DeviceID        string `json:"device_id"`
	Flash           bool   `json:"flash"`
	StorageMode     bool   `json:"storage_mode"`
}

// Bay is one charging slot. Fields that have not been reported hold the
// NoDataByte or NoDataWord sentinel.
type Bay struct {
	ID                 int      `json:"id"`
	Name               string   `json:"name"`
	Detected           bool     `json:"detected"`
	TimeToFull         int      `json:"time_to_full"`
	TimeToFullString   string   `json:"time_to_full_string"`
	State              BayState `json:"state"`
	Charge             int      `json:"charge"`
	CurrentCapacity    int      `json:"current_capacity"`
	CurrentCapacityMax int      `json:"current_capacity_max"`
	CapacityMax        int      `json:"capacity_max"`
	CycleCount         int      `json:"cycle_count"`
	TemperatureC       int      `json:"temperature_c"`
	TemperatureF       int      `json:"temperature_f"`
	Health             int      `json:"health"`
	Bars               int      `json:"bars"`
	Error              string   `json:"error"`
}

func newBay(id int) *Bay {
	return &Bay{
		ID:                 id,
		Name:               "BAY " + strconv.Itoa(id),
		TimeToFull:         TimeToFullUnknown,
		TimeToFullString:   TimeToFullString(TimeToFullUnknown),
		State:              StateNoBattery,
		Charge:             NoDataByte,
		CurrentCapacity:    NoDataWord,
		CurrentCapacityMax: NoDataWord,
		CapacityMax:        NoDataWord,
		CycleCount:         NoDataWord,
		TemperatureC:       NoDataByte,
		TemperatureF:       NoDataByte,
		Health:             NoDataByte,
		Bars:               NoDataByte,
		Error:              BayErrorNoData,
	}
}

// HasBattery reports whether a battery is seated and reporting.
func (b Bay) HasBattery() bool {
	return b.Detected && b.State != StateNoBattery
}

// Module is a charging module slot.
type Module struct {
	ID   int    `json:"id"`
	Type string `json:"type"`
}

func newModule(id int) *Module {
	return &Module{ID: id, Type: ModuleTypeNone}
}
