package sbrc

import (
	"strconv"
	"strings"
)

// EntityKind identifies which entity an update targets.
type EntityKind int

// Entity kinds.
const (
	EntityCharger EntityKind = iota + 1
	EntityBay
	EntityModule
)

// String returns the lowercase name used in topics and logs.
func (k EntityKind) String() string {
	switch k {
	case EntityCharger:
		return "charger"
	case EntityBay:
		return "bay"
	case EntityModule:
		return "module"
	default:
		return "unknown"
	}
}

// Protocol command types and keys.
const (
	CommandReport = "REP"
	CommandSet    = "SET"
	CommandGet    = "GET"

	// KeyModuleType is the only id-scoped key that targets a module
	// rather than a bay.
	KeyModuleType = "BATT_MODULE_TYPE"
)

// Update is one decoded key/value report.
type Update struct {
	Kind EntityKind
	// ID is the bay or module id. Zero for charger updates.
	ID    int
	Key   string
	Value string
}

// Decode parses one framed message. It returns false for anything that
// does not carry state: empty messages, non-REP command types, reports
// too short to name a key and ids below 1.
//
// Wire shapes:
//
//	< REP KEY value...        charger
//	< REP id KEY value...     bay, or module when KEY is BATT_MODULE_TYPE
func Decode(raw string) (Update, bool) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "<")

	tokens := strings.Fields(s)
	if len(tokens) < 2 || tokens[0] != CommandReport {
		return Update{}, false
	}

	id, err := strconv.Atoi(tokens[1])
	if err != nil {
		return Update{
			Kind:  EntityCharger,
			Key:   tokens[1],
			Value: joinValue(tokens, 2),
		}, true
	}

	if len(tokens) < 3 || id < 1 {
		return Update{}, false
	}

	u := Update{
		Kind:  EntityBay,
		ID:    id,
		Key:   tokens[2],
		Value: joinValue(tokens, 3),
	}
	if u.Key == KeyModuleType {
		u.Kind = EntityModule
	}
	return u, true
}

func joinValue(tokens []string, from int) string {
	if from >= len(tokens) {
		return ""
	}
	return strings.TrimSpace(strings.Join(tokens[from:], " "))
}
