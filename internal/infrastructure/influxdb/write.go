package influxdb

import (
	"context"
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-charger/internal/bridges/sbrc"
)

// Measurement names.
const (
	MeasurementBay     = "charger_bay"
	MeasurementCharger = "charger_status"
)

// BayFields returns the fields recorded for a bay. Numeric values still at
// their no-data sentinel are left out so they never show up as readings.
func BayFields(b sbrc.Bay) map[string]any {
	fields := map[string]any{
		"detected": b.Detected,
		"state":    string(b.State),
		"error":    b.Error,
	}

	byteFields := map[string]int{
		"charge":        b.Charge,
		"health":        b.Health,
		"bars":          b.Bars,
		"temperature_c": b.TemperatureC,
		"temperature_f": b.TemperatureF,
	}
	for k, v := range byteFields {
		if v != sbrc.NoDataByte {
			fields[k] = v
		}
	}

	wordFields := map[string]int{
		"cycle_count":          b.CycleCount,
		"current_capacity":     b.CurrentCapacity,
		"current_capacity_max": b.CurrentCapacityMax,
		"capacity_max":         b.CapacityMax,
	}
	for k, v := range wordFields {
		if v != sbrc.NoDataWord {
			fields[k] = v
		}
	}

	// Values from 65529 up are sentinels, not minutes.
	if b.TimeToFull < sbrc.TimeToFullTargetReached {
		fields["time_to_full"] = b.TimeToFull
	}
	return fields
}

// WriteBayMetric writes one bay's current values.
//
// Parameters:
//   - chargerID: Bridge id, used as the charger tag
//   - bay: Bay snapshot
//   - at: Time of the change
func (c *Client) WriteBayMetric(chargerID string, bay sbrc.Bay, at time.Time) {
	c.WritePointWithTime(MeasurementBay,
		map[string]string{
			"charger": chargerID,
			"bay":     strconv.Itoa(bay.ID),
		},
		BayFields(bay),
		at,
	)
}

// WriteChargerStatus writes the charger's boolean flags.
func (c *Client) WriteChargerStatus(chargerID string, ch sbrc.Charger, at time.Time) {
	c.WritePointWithTime(MeasurementCharger,
		map[string]string{
			"charger": chargerID,
			"model":   ch.Model,
		},
		map[string]any{
			"flash":        ch.Flash,
			"storage_mode": ch.StorageMode,
		},
		at,
	)
}

// WritePointWithTime writes a point with explicit tags, fields and time.
// Disconnected clients drop the point.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time) {
	if !c.IsConnected() || c.writeAPI == nil {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
}

// Sink records every bay and charger change as a point.
type Sink struct {
	client    *Client
	chargerID string
}

// NewSink returns a bridge change sink writing to client.
func NewSink(client *Client, chargerID string) *Sink {
	return &Sink{client: client, chargerID: chargerID}
}

// HandleChange writes the changed entity's snapshot. Module changes are
// not recorded.
func (s *Sink) HandleChange(_ context.Context, _ sbrc.Change, snap sbrc.EntitySnapshot) {
	now := time.Now()
	switch snap.Kind {
	case sbrc.EntityBay:
		s.client.WriteBayMetric(s.chargerID, snap.Bay, now)
	case sbrc.EntityCharger:
		s.client.WriteChargerStatus(s.chargerID, snap.Charger, now)
	}
}
