package sbrc

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// DefaultDiscoveryPrefix is Home Assistant's discovery topic prefix.
const DefaultDiscoveryPrefix = "homeassistant"

// DiscoveryConfig is a Home Assistant MQTT discovery payload.
type DiscoveryConfig struct {
	Name              string          `json:"name,omitempty"`
	DeviceClass       string          `json:"device_class,omitempty"`
	StateTopic        string          `json:"state_topic"`
	UnitOfMeasure     string          `json:"unit_of_measurement,omitempty"`
	ValueTemplate     string          `json:"value_template"`
	UniqueID          string          `json:"unique_id"`
	StateClass        string          `json:"state_class,omitempty"`
	AvailabilityTopic string          `json:"availability_topic,omitempty"`
	AvailabilityTmpl  string          `json:"availability_template,omitempty"`
	PayloadOn         string          `json:"payload_on,omitempty"`
	PayloadOff        string          `json:"payload_off,omitempty"`
	Device            DiscoveryDevice `json:"device"`
}

// DiscoveryDevice groups entities under one device in Home Assistant.
type DiscoveryDevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
	SWVersion    string   `json:"sw_version,omitempty"`
}

// DiscoveryMessage is one retained config publish.
type DiscoveryMessage struct {
	Topic   string
	Payload []byte
}

// discoveryEntity describes one exposed field.
type discoveryEntity struct {
	component   string // sensor or binary_sensor
	key         string // JSON key in the state message
	name        string
	deviceClass string
	unit        string
	stateClass  string
}

var chargerEntities = []discoveryEntity{
	{component: "binary_sensor", key: "storage_mode", name: "Storage Mode"},
	{component: "binary_sensor", key: "flash", name: "Flash", deviceClass: "light"},
	{component: "sensor", key: "firmware_version", name: "Firmware Version"},
}

var bayEntities = []discoveryEntity{
	{component: "binary_sensor", key: "detected", name: "Battery Detected", deviceClass: "occupancy"},
	{component: "sensor", key: "charge", name: "Charge", deviceClass: "battery", unit: "%", stateClass: "measurement"},
	{component: "sensor", key: "time_to_full_string", name: "Time To Full"},
	{component: "sensor", key: "state", name: "State"},
	{component: "sensor", key: "health", name: "Health", unit: "%", stateClass: "measurement"},
	{component: "sensor", key: "cycle_count", name: "Cycles", stateClass: "total_increasing"},
	{component: "sensor", key: "temperature_c", name: "Temperature", deviceClass: "temperature", unit: "°C", stateClass: "measurement"},
	{component: "sensor", key: "error", name: "Error"},
}

// BuildDiscovery returns discovery configs for the charger and each of its
// active bays. Sentinel values are mapped to "unknown" in the templates.
func BuildDiscovery(prefix, bridgeID string, model Model, moduleCount int, charger Charger) ([]DiscoveryMessage, error) {
	if prefix == "" {
		prefix = DefaultDiscoveryPrefix
	}

	deviceID := "graylogic_sbrc_" + strings.ReplaceAll(strings.ToLower(bridgeID), "-", "_")
	device := DiscoveryDevice{
		Identifiers:  []string{deviceID},
		Name:         chargerDisplayName(model, charger),
		Manufacturer: "Shure",
		Model:        model.Label,
		SWVersion:    charger.FirmwareVersion,
	}

	var out []DiscoveryMessage
	add := func(entity string, e discoveryEntity, namePrefix string) error {
		uid := deviceID + "_" + strings.ReplaceAll(entity, "-", "_") + "_" + e.key
		cfg := DiscoveryConfig{
			Name:              strings.TrimSpace(namePrefix + " " + e.name),
			DeviceClass:       e.deviceClass,
			StateTopic:        StateTopic(entity),
			UnitOfMeasure:     e.unit,
			StateClass:        e.stateClass,
			ValueTemplate:     valueTemplate(e),
			UniqueID:          uid,
			AvailabilityTopic: HealthTopic(),
			AvailabilityTmpl:  "{{ 'online' if value_json.status in ['healthy', 'degraded'] else 'offline' }}",
			Device:            device,
		}
		if e.component == "binary_sensor" {
			cfg.PayloadOn = "True"
			cfg.PayloadOff = "False"
		}

		payload, err := json.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshal discovery %s: %w", uid, err)
		}
		out = append(out, DiscoveryMessage{
			Topic:   prefix + "/" + e.component + "/" + uid + "/config",
			Payload: payload,
		})
		return nil
	}

	for _, e := range chargerEntities {
		if err := add(EntityName(EntityCharger, 0), e, ""); err != nil {
			return nil, err
		}
	}
	for i := 1; i <= model.ActiveBays(moduleCount); i++ {
		for _, e := range bayEntities {
			if err := add(EntityName(EntityBay, i), e, "Bay "+strconv.Itoa(i)); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

func valueTemplate(e discoveryEntity) string {
	switch e.key {
	case "charge", "health":
		return "{{ value_json.state." + e.key + " if value_json.state." + e.key + " != 255 else 'unknown' }}"
	case "temperature_c":
		return "{{ value_json.state.temperature_c if value_json.state.temperature_c != 255 else 'unknown' }}"
	case "cycle_count":
		return "{{ value_json.state.cycle_count if value_json.state.cycle_count != 65535 else 'unknown' }}"
	}
	return "{{ value_json.state." + e.key + " }}"
}

func chargerDisplayName(model Model, c Charger) string {
	if c.DeviceID != "" {
		return model.Label + " " + c.DeviceID
	}
	return model.Label
}
