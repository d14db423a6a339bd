package sbrc

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
)

// Feedback names.
const (
	FeedbackStorageMode = "storage_mode"
	FeedbackFlash       = "flash"
	FeedbackBayDetected = "bay_detected"
	FeedbackBayState    = "bay_state"
	FeedbackBayError    = "bay_error"
	FeedbackBayCharge   = "bay_charge"
)

// DefaultChargeThreshold is the default charge option for bay_charge.
const DefaultChargeThreshold = "100"

var chargePattern = regexp.MustCompile(`^([0-9]|[1-9][0-9]|100)$`)

// FeedbackOptions are the parameters a feedback is evaluated with. Only
// the fields a feedback uses are read.
type FeedbackOptions struct {
	Bay   int      `json:"bay,omitempty"`
	State BayState `json:"state,omitempty"`
	// Error is a bay error code such as "004".
	Error  string `json:"error,omitempty"`
	Charge string `json:"charge,omitempty"`
	// ChargeGreater switches bay_charge from equality to "at least".
	ChargeGreater bool `json:"charge_greater"`
}

// FeedbackDefinition describes a boolean feedback and its options.
type FeedbackDefinition struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Options     []string `json:"options,omitempty"`
	// Bays holds the selectable bays for feedbacks that take a bay.
	Bays []Choice `json:"bays,omitempty"`
}

// FeedbackDefinitions lists the feedbacks available for a model and module
// count. The bay choices change with module composition.
func FeedbackDefinitions(model Model, moduleCount int) []FeedbackDefinition {
	bays := model.BayChoices(moduleCount)
	return []FeedbackDefinition{
		{ID: FeedbackStorageMode, Name: "Storage Mode", Description: "If the Charger is in Storage Mode"},
		{ID: FeedbackFlash, Name: "Flash Active", Description: "If the Charger is flashing its LEDs"},
		{ID: FeedbackBayDetected, Name: "Battery Detected", Description: "If a battery is detected in the selected bay", Options: []string{"bay"}, Bays: bays},
		{ID: FeedbackBayState, Name: "Bay State", Options: []string{"bay", "state"}, Bays: bays},
		{ID: FeedbackBayError, Name: "Bay Error", Options: []string{"bay", "error"}, Bays: bays},
		{ID: FeedbackBayCharge, Name: "Battery Charge Equals", Options: []string{"bay", "charge", "charge_greater"}, Bays: bays},
	}
}

// FeedbackNames returns the feedback ids in sorted order.
func FeedbackNames() []string {
	names := []string{
		FeedbackStorageMode, FeedbackFlash, FeedbackBayDetected,
		FeedbackBayState, FeedbackBayError, FeedbackBayCharge,
	}
	sort.Strings(names)
	return names
}

// EvaluateFeedback evaluates a named feedback against the store.
func EvaluateFeedback(s *Store, name string, opts FeedbackOptions) (bool, error) {
	switch name {
	case FeedbackStorageMode:
		return s.Charger().StorageMode, nil
	case FeedbackFlash:
		return s.Charger().Flash, nil
	}

	if opts.Bay <= 0 {
		return false, fmt.Errorf("%w: bay must be positive, got %d", ErrInvalidParameter, opts.Bay)
	}

	switch name {
	case FeedbackBayDetected:
		return s.Bay(opts.Bay).Detected, nil

	case FeedbackBayState:
		state, err := ParseBayState(string(opts.State))
		if err != nil {
			return false, fmt.Errorf("%w: %w", ErrInvalidParameter, err)
		}
		return s.Bay(opts.Bay).State == state, nil

	case FeedbackBayError:
		code := opts.Error
		if code == "" {
			code = BayErrorCodeNoData
		}
		label, ok := BayErrorLabel(code)
		if !ok {
			return false, fmt.Errorf("%w: bay error code %q", ErrInvalidParameter, code)
		}
		return s.Bay(opts.Bay).Error == label, nil

	case FeedbackBayCharge:
		raw := opts.Charge
		if raw == "" {
			raw = DefaultChargeThreshold
		}
		if !chargePattern.MatchString(raw) {
			return false, fmt.Errorf("%w: charge %q must be 0-100", ErrInvalidParameter, raw)
		}
		want, _ := strconv.Atoi(raw)
		charge := s.Bay(opts.Bay).Charge
		if opts.ChargeGreater {
			return charge >= want, nil
		}
		return charge == want, nil
	}

	return false, fmt.Errorf("%w: %q", ErrUnknownFeedback, name)
}
