package sbrc

import (
	"fmt"
	"sort"
	"strconv"
)

// BayState is the charging state reported for a bay.
type BayState string

// Bay states reported by BATT_STATE.
const (
	StateFull            BayState = "FULL"
	StateCalculating     BayState = "CALCULATING"
	StateNormal          BayState = "NORMAL"
	StateWarm            BayState = "WARM"
	StateWarmFull        BayState = "WARM_FULL"
	StateHot             BayState = "HOT"
	StateCold            BayState = "COLD"
	StatePrecharge       BayState = "PRECHARGE"
	StateReadyToStore    BayState = "READY_TO_STORE"
	StateDischargeCalc   BayState = "DISCHARGE_CALC"
	StateDischarging     BayState = "DISCHARGING"
	StateDischargingWarm BayState = "DISCHARGING_WARM"
	StateDischargingCold BayState = "DISCHARGING_COLD"
	StateError           BayState = "ERROR"
	StateNoBattery       BayState = "NO_BATT"
)

// bayStates lists every state in protocol order.
var bayStates = []BayState{
	StateFull,
	StateCalculating,
	StateNormal,
	StateWarm,
	StateWarmFull,
	StateHot,
	StateCold,
	StatePrecharge,
	StateReadyToStore,
	StateDischargeCalc,
	StateDischarging,
	StateDischargingWarm,
	StateDischargingCold,
	StateError,
	StateNoBattery,
}

// BayStates returns all known bay states in protocol order.
func BayStates() []BayState {
	out := make([]BayState, len(bayStates))
	copy(out, bayStates)
	return out
}

// ParseBayState looks up a raw state token. The table is closed: any
// token outside it returns ErrUnknownCode.
func ParseBayState(raw string) (BayState, error) {
	for _, s := range bayStates {
		if string(s) == raw {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: bay state %q", ErrUnknownCode, raw)
}

// Bay error codes and their display labels.
const (
	BayErrorCodeNone   = "000"
	BayErrorCodeNoData = "255"

	// BayErrorNoData is the label for a bay that has not reported an error yet.
	BayErrorNoData = "No Data"
)

var bayErrorLabels = map[string]string{
	"000":              "No Active Error",
	"001":              "Unknown Module",
	"002":              "Unrecognized Battery",
	"003":              "Deep Discharge Recovery Failed",
	"004":              "Charge Failed",
	"005":              "Check Battery",
	"006":              "Check Charger",
	"007":              "Communication Failure",
	BayErrorCodeNoData: BayErrorNoData,
}

// BayErrorLabel returns the display label for a bay error code.
func BayErrorLabel(code string) (string, bool) {
	label, ok := bayErrorLabels[code]
	return label, ok
}

// ResolveBayError maps a reported error code to its label. Codes missing
// from the table are returned unchanged so newer firmware codes still show.
func ResolveBayError(raw string) string {
	if label, ok := bayErrorLabels[raw]; ok {
		return label
	}
	return raw
}

// BayErrorCodes returns all known error codes in ascending order.
func BayErrorCodes() []string {
	codes := make([]string, 0, len(bayErrorLabels))
	for code := range bayErrorLabels {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Module type labels.
const (
	ModuleTypeNone    = "No module installed"
	ModuleTypeInvalid = "Invalid / Unsupported module"
)

var moduleTypeLabels = map[string]string{
	"000": ModuleTypeNone,
	"001": "AXT902",
	"002": "AXT901",
	"003": "SBC-AX (For SB900x)",
	"004": "SBM920",
	"005": "SBM910",
	"006": "SBM910M",
	"255": ModuleTypeInvalid,
}

// ParseModuleType looks up a BATT_MODULE_TYPE code. The table is closed.
func ParseModuleType(code string) (string, error) {
	label, ok := moduleTypeLabels[code]
	if !ok {
		return "", fmt.Errorf("%w: module type %q", ErrUnknownCode, code)
	}
	return label, nil
}

// Time-to-full sentinels reported in BATT_TIME_TO_FULL.
const (
	TimeToFullUnknown       = 65535
	TimeToFullError         = 65534
	TimeToFullCalculating   = 65533
	TimeToFullTargetReached = 65529
)

// TimeToFullString renders a time-to-full value for display, replacing
// sentinels with their meaning.
func TimeToFullString(minutes int) string {
	switch minutes {
	case TimeToFullUnknown:
		return "Unknown"
	case TimeToFullError:
		return "Error"
	case TimeToFullCalculating:
		return "Calculating..."
	case TimeToFullTargetReached:
		return "Target reached!"
	default:
		return strconv.Itoa(minutes)
	}
}
