package sbrc

import (
	"fmt"
	"regexp"
	"strings"
)

// Encode formats an outbound command as "< VERB ARG... >". Arguments are
// written as given; callers must not pass terminators or newlines.
func Encode(verb string, args ...string) string {
	var b strings.Builder
	b.WriteString("< ")
	b.WriteString(verb)
	for _, a := range args {
		b.WriteByte(' ')
		b.WriteString(a)
	}
	b.WriteString(" >")
	return b.String()
}

// StorageMode is the argument to SET STORAGE_MODE.
type StorageMode string

// Storage mode values.
const (
	StorageModeOff    StorageMode = "OFF"
	StorageModeOn     StorageMode = "ON"
	StorageModeToggle StorageMode = "TOGGLE"
)

// ParseStorageMode validates a storage mode, accepting any letter case.
func ParseStorageMode(raw string) (StorageMode, error) {
	switch m := StorageMode(strings.ToUpper(strings.TrimSpace(raw))); m {
	case StorageModeOff, StorageModeOn, StorageModeToggle:
		return m, nil
	}
	return "", fmt.Errorf("%w: storage mode %q (use ON, OFF or TOGGLE)", ErrInvalidParameter, raw)
}

// deviceIDPattern is the set of names the charger accepts for DEVICE_ID.
var deviceIDPattern = regexp.MustCompile(`^[A-Za-z0-9\s!"#$%&'()*+,\-./:;<=>?@\[\\\]^_` + "`" + `~]{1,8}$`)

// ValidateDeviceID trims name and checks it against the charger's device
// name rules. Names containing the frame terminator or line breaks are
// rejected because they cannot be sent.
func ValidateDeviceID(name string) (string, error) {
	name = strings.TrimSpace(name)
	if !deviceIDPattern.MatchString(name) {
		return "", fmt.Errorf("%w: device name %q must be 1-8 printable characters", ErrInvalidParameter, name)
	}
	if strings.ContainsAny(name, ">\r\n") {
		return "", fmt.Errorf("%w: device name %q contains a reserved character", ErrInvalidParameter, name)
	}
	return name, nil
}

// GetAllCommand asks the charger to report every value. It is sent after
// each connect.
func GetAllCommand() string {
	return Encode(CommandGet, "0", "ALL")
}

// SetStorageModeCommand builds SET STORAGE_MODE.
func SetStorageModeCommand(mode StorageMode) string {
	return Encode(CommandSet, KeyStorageMode, string(mode))
}

// SetFlashCommand builds SET FLASH ON, which blinks the charger's LEDs.
func SetFlashCommand() string {
	return Encode(CommandSet, KeyFlash, "ON")
}

// SetDeviceIDCommand builds SET DEVICE_ID with the name wrapped in braces.
// The name must already be validated.
func SetDeviceIDCommand(name string) string {
	return Encode(CommandSet, KeyDeviceID, "{"+name+"}")
}
