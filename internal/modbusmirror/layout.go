package modbusmirror

import (
	"strconv"

	"github.com/nerrad567/gray-logic-charger/internal/bridges/sbrc"
)

// Charger block, at the base address. Layout is fixed; clients read it by
// offset.
const (
	SlotStorageMode = iota
	SlotFlash
	SlotActiveBays

	ChargerSlots
)

// Bay block, at base + bay*stride.
const (
	SlotDetected = iota
	SlotState
	SlotError
	SlotCharge
	SlotTimeToFull
	SlotCycleCount
	SlotHealth
	SlotBars
	SlotTemperatureC
	SlotTemperatureF
	SlotCapacityMax
	SlotCurrentCapacity
	SlotCurrentCapacityMax

	BaySlots
)

// NoValue marks a register whose source value is unknown.
const NoValue uint16 = 0xFFFF

// EncodeCharger converts the charger state into its register block.
// No IO.
func EncodeCharger(ch sbrc.Charger, activeBays int) []uint16 {
	regs := make([]uint16, ChargerSlots)
	regs[SlotStorageMode] = boolRegister(ch.StorageMode)
	regs[SlotFlash] = boolRegister(ch.Flash)
	regs[SlotActiveBays] = uint16(activeBays) //nolint:gosec // at most 8 bays
	return regs
}

// EncodeBay converts a bay into its register block. Device sentinels pass
// through unchanged so a reader sees the same 255/65535 the charger sent.
// Temperatures are two's complement.
func EncodeBay(b sbrc.Bay) []uint16 {
	regs := make([]uint16, BaySlots)
	regs[SlotDetected] = boolRegister(b.Detected)
	regs[SlotState] = stateRegister(b.State)
	regs[SlotError] = errorRegister(b.Error)
	regs[SlotCharge] = clampRegister(b.Charge)
	regs[SlotTimeToFull] = clampRegister(b.TimeToFull)
	regs[SlotCycleCount] = clampRegister(b.CycleCount)
	regs[SlotHealth] = clampRegister(b.Health)
	regs[SlotBars] = clampRegister(b.Bars)
	regs[SlotTemperatureC] = uint16(int16(b.TemperatureC)) //nolint:gosec // device range fits int16
	regs[SlotTemperatureF] = uint16(int16(b.TemperatureF)) //nolint:gosec // device range fits int16
	regs[SlotCapacityMax] = clampRegister(b.CapacityMax)
	regs[SlotCurrentCapacity] = clampRegister(b.CurrentCapacity)
	regs[SlotCurrentCapacityMax] = clampRegister(b.CurrentCapacityMax)
	return regs
}

func boolRegister(v bool) uint16 {
	if v {
		return 1
	}
	return 0
}

func clampRegister(v int) uint16 {
	if v < 0 || v > 0xFFFF {
		return NoValue
	}
	return uint16(v)
}

// stateRegister is the state's index in protocol order.
func stateRegister(s sbrc.BayState) uint16 {
	for i, known := range sbrc.BayStates() {
		if known == s {
			return uint16(i) //nolint:gosec // small table
		}
	}
	return NoValue
}

// errorLabelCodes reverses the bay error table.
var errorLabelCodes = func() map[string]string {
	out := make(map[string]string)
	for _, code := range sbrc.BayErrorCodes() {
		label, _ := sbrc.BayErrorLabel(code)
		out[label] = code
	}
	return out
}()

// errorRegister recovers the numeric error code from the stored label.
// Codes unknown to the table are stored raw and parsed directly.
func errorRegister(label string) uint16 {
	code, ok := errorLabelCodes[label]
	if !ok {
		code = label
	}
	n, err := strconv.Atoi(code)
	if err != nil {
		return NoValue
	}
	return clampRegister(n)
}
