package influxdb

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-charger/internal/bridges/sbrc"
	"github.com/nerrad567/gray-logic-charger/internal/infrastructure/config"
)

// fakeWriter records points instead of sending them.
type fakeWriter struct {
	mu      sync.Mutex
	points  []*write.Point
	flushes int
}

func (f *fakeWriter) WritePoint(p *write.Point) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points = append(f.points, p)
}

func (f *fakeWriter) Flush() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
}

func newTestClient() (*Client, *fakeWriter) {
	w := &fakeWriter{}
	return &Client{writeAPI: w, connected: true}, w
}

func fieldMap(p *write.Point) map[string]any {
	out := make(map[string]any)
	for _, f := range p.FieldList() {
		out[f.Key] = f.Value
	}
	return out
}

func tagMap(p *write.Point) map[string]string {
	out := make(map[string]string)
	for _, t := range p.TagList() {
		out[t.Key] = t.Value
	}
	return out
}

func TestConnect_Disabled(t *testing.T) {
	_, err := Connect(config.InfluxDBConfig{Enabled: false})
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	_, err := Connect(config.InfluxDBConfig{Enabled: true, URL: "http://127.0.0.1:1"})
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestBayFieldsSkipSentinels(t *testing.T) {
	bay := sbrc.Bay{
		ID:                 2,
		Detected:           true,
		State:              sbrc.StateNormal,
		Error:              "No Active Error",
		Charge:             64,
		Health:             sbrc.NoDataByte,
		Bars:               3,
		TemperatureC:       sbrc.NoDataByte,
		TemperatureF:       sbrc.NoDataByte,
		CycleCount:         120,
		CurrentCapacity:    sbrc.NoDataWord,
		CurrentCapacityMax: sbrc.NoDataWord,
		CapacityMax:        sbrc.NoDataWord,
		TimeToFull:         sbrc.TimeToFullCalculating,
	}

	fields := BayFields(bay)

	for _, k := range []string{"detected", "state", "error", "charge", "bars", "cycle_count"} {
		if _, ok := fields[k]; !ok {
			t.Errorf("field %q missing", k)
		}
	}
	for _, k := range []string{"health", "temperature_c", "temperature_f", "current_capacity", "capacity_max", "time_to_full"} {
		if _, ok := fields[k]; ok {
			t.Errorf("sentinel field %q should be skipped", k)
		}
	}

	bay.TimeToFull = 42
	if got := BayFields(bay)["time_to_full"]; got != 42 {
		t.Errorf("time_to_full = %v, want 42", got)
	}
}

func TestWriteBayMetric(t *testing.T) {
	c, w := newTestClient()
	at := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)

	c.WriteBayMetric("rack-1", sbrc.Bay{ID: 3, Charge: 80, State: sbrc.StateFull, TimeToFull: 0}, at)

	if len(w.points) != 1 {
		t.Fatalf("points = %d, want 1", len(w.points))
	}
	p := w.points[0]
	if p.Name() != MeasurementBay {
		t.Errorf("measurement = %q", p.Name())
	}
	if tags := tagMap(p); tags["bay"] != "3" || tags["charger"] != "rack-1" {
		t.Errorf("tags = %v", tags)
	}
	if fields := fieldMap(p); fields["charge"] != int64(80) || fields["state"] != "FULL" {
		t.Errorf("fields = %v", fields)
	}
	if !p.Time().Equal(at) {
		t.Errorf("time = %v, want %v", p.Time(), at)
	}
}

func TestSinkRoutesByEntity(t *testing.T) {
	c, w := newTestClient()
	sink := NewSink(c, "rack-1")
	ctx := context.Background()

	sink.HandleChange(ctx, sbrc.Change{Kind: sbrc.EntityCharger}, sbrc.EntitySnapshot{
		Kind:    sbrc.EntityCharger,
		Charger: sbrc.Charger{Model: "SBRC", StorageMode: true},
	})
	sink.HandleChange(ctx, sbrc.Change{Kind: sbrc.EntityBay, ID: 1}, sbrc.EntitySnapshot{
		Kind: sbrc.EntityBay, ID: 1, Bay: sbrc.Bay{ID: 1, Charge: 10},
	})
	sink.HandleChange(ctx, sbrc.Change{Kind: sbrc.EntityModule, ID: 1}, sbrc.EntitySnapshot{Kind: sbrc.EntityModule, ID: 1})

	if len(w.points) != 2 {
		t.Fatalf("points = %d, want 2 (module changes are not recorded)", len(w.points))
	}
	if w.points[0].Name() != MeasurementCharger {
		t.Errorf("first point = %q, want %q", w.points[0].Name(), MeasurementCharger)
	}
	if fieldMap(w.points[0])["storage_mode"] != true {
		t.Errorf("storage_mode field = %v", fieldMap(w.points[0])["storage_mode"])
	}
	if w.points[1].Name() != MeasurementBay {
		t.Errorf("second point = %q, want %q", w.points[1].Name(), MeasurementBay)
	}
}

func TestDisconnectedClientDropsPoints(t *testing.T) {
	c, w := newTestClient()
	if err := c.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	if w.flushes != 1 {
		t.Errorf("Close should flush once, flushed %d", w.flushes)
	}

	c.WriteBayMetric("rack-1", sbrc.Bay{ID: 1}, time.Now())
	c.Flush()

	if len(w.points) != 0 {
		t.Error("points written after Close")
	}
	if w.flushes != 1 {
		t.Error("Flush after Close should be a no-op")
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() = %v, want ErrNotConnected", err)
	}
}

func TestHandleWriteErrors(t *testing.T) {
	c, _ := newTestClient()

	var got []error
	c.SetOnError(func(err error) { got = append(got, err) })

	ch := make(chan error, 2)
	ch <- errors.New("bucket not found")
	ch <- errors.New("unauthorized")
	close(ch)
	c.handleWriteErrors(ch)

	if len(got) != 2 {
		t.Errorf("callback called %d times, want 2", len(got))
	}
}
