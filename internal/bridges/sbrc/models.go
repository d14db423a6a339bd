package sbrc

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// DefaultModelID is used when no model is configured.
const DefaultModelID = "sbrc"

// MaxModuleCount is the largest configurable module count for modular chargers.
const MaxModuleCount = 4

// Model describes a charger family.
type Model struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	Bays    int    `json:"bays"`
	Modules int    `json:"modules"`
	// Modular families let the installer choose how many modules are fitted.
	Modular bool `json:"modular"`
}

// Models is the static table of supported charger families.
var Models = map[string]Model{
	"sbc220": {ID: "sbc220", Label: "SBC220 AD", Bays: 2, Modules: 4, Modular: true},
	"sbc240": {ID: "sbc240", Label: "SBC240 ADX", Bays: 2, Modules: 4, Modular: true},
	"sbrc":   {ID: "sbrc", Label: "SBRC Rack Charger", Bays: 8, Modules: 4, Modular: false},
}

// LookupModel returns the model with the given id.
func LookupModel(id string) (Model, error) {
	m, ok := Models[id]
	if !ok {
		return Model{}, fmt.Errorf("%w: %q", ErrUnknownModel, id)
	}
	return m, nil
}

// ActiveBays returns how many bays are in use. Modular chargers multiply
// their per-module bays by the configured module count.
func (m Model) ActiveBays(moduleCount int) int {
	if m.Modular {
		return m.Bays * moduleCount
	}
	return m.Bays
}

// ModelChoices returns all models sorted by label, case-insensitively.
func ModelChoices() []Model {
	out := make([]Model, 0, len(Models))
	for _, m := range Models {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Label) < strings.ToLower(out[j].Label)
	})
	return out
}

// ModuleCountChoices returns the selectable module counts.
func ModuleCountChoices() []int {
	out := make([]int, MaxModuleCount)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

// Choice is a selectable option for a feedback or action parameter.
type Choice struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// BayChoices returns "Bay i" choices for every active bay.
func (m Model) BayChoices(moduleCount int) []Choice {
	n := m.ActiveBays(moduleCount)
	out := make([]Choice, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, Choice{ID: strconv.Itoa(i), Label: "Bay " + strconv.Itoa(i)})
	}
	return out
}
