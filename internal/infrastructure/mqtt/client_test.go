package mqtt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-charger/internal/infrastructure/config"
)

// testConfig returns a valid MQTT configuration for testing.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "graylogic-charger-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// disconnectedClient returns a client that was never connected.
func disconnectedClient() *Client {
	return &Client{cfg: testConfig(), subscriptions: make(map[string]subscription)}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = config.MQTTAuthConfig{Username: "bridge", Password: "secret"}

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want tcp://127.0.0.1:1883", opts.Servers)
	}
	if opts.ClientID != "graylogic-charger-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "bridge" || opts.Password != "secret" {
		t.Errorf("credentials not applied: %q/%q", opts.Username, opts.Password)
	}
	if !opts.CleanSession || !opts.AutoReconnect {
		t.Error("expected clean session with auto-reconnect")
	}
	if opts.TLSConfig != nil && opts.TLSConfig.MinVersion != 0 {
		t.Error("TLS should not be configured")
	}
}

func TestBuildClientOptionsTLS(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Broker.Port = 8883

	opts := buildClientOptions(cfg)

	if opts.Servers[0].String() != "ssl://127.0.0.1:8883" {
		t.Errorf("Servers = %v, want ssl://127.0.0.1:8883", opts.Servers)
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Error("expected TLS 1.2 minimum")
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := buildClientOptions(testConfig())
	configureLWT(opts, Will{Topic: "graylogic/health/sbrc", Payload: []byte(`{"status":"offline"}`)})

	if !opts.WillEnabled {
		t.Fatal("will should be enabled")
	}
	if opts.WillTopic != "graylogic/health/sbrc" {
		t.Errorf("WillTopic = %q", opts.WillTopic)
	}
	if string(opts.WillPayload) != `{"status":"offline"}` {
		t.Errorf("WillPayload = %s", opts.WillPayload)
	}
	if !opts.WillRetained || opts.WillQos != willQoS {
		t.Errorf("will should be retained QoS 1, got retained=%v qos=%d", opts.WillRetained, opts.WillQos)
	}

	empty := buildClientOptions(testConfig())
	configureLWT(empty, Will{})
	if empty.WillEnabled {
		t.Error("empty will should not be registered")
	}
}

func TestDisconnectedClient(t *testing.T) {
	c := disconnectedClient()

	if c.IsConnected() {
		t.Error("IsConnected() = true, want false")
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() = %v, want ErrNotConnected", err)
	}
	if err := c.Publish("graylogic/state/sbrc/charger", []byte("{}"), 1, true); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() = %v, want ErrNotConnected", err)
	}
	noop := func(string, []byte) error { return nil }
	if err := c.Subscribe("graylogic/command/sbrc/#", 1, noop); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe() = %v, want ErrNotConnected", err)
	}
	if c.SubscriptionCount() != 0 {
		t.Error("failed subscription should not be tracked")
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}

func TestHealthCheckCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := disconnectedClient().HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() = %v, want context.Canceled", err)
	}
}

func TestPublishValidation(t *testing.T) {
	c := disconnectedClient()

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		want    error
	}{
		{"empty topic", "", nil, 1, ErrInvalidTopic},
		{"invalid qos", "a/b", nil, 3, ErrInvalidQoS},
		{"oversized payload", "a/b", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Publish(tt.topic, tt.payload, tt.qos, false); !errors.Is(err, tt.want) {
				t.Errorf("Publish() = %v, want %v", err, tt.want)
			}
		})
	}
}

// stubToken is a paho token that completes with err, or never when
// pending is set.
type stubToken struct {
	pending bool
	err     error
}

func (s stubToken) Wait() bool                     { return !s.pending }
func (s stubToken) WaitTimeout(time.Duration) bool { return !s.pending }
func (s stubToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	if !s.pending {
		close(ch)
	}
	return ch
}
func (s stubToken) Error() error { return s.err }

func TestWaitToken(t *testing.T) {
	brokerErr := errors.New("not authorised")

	tests := []struct {
		name        string
		token       stubToken
		op          error
		wantCause   error
		wantTimeout bool
	}{
		{name: "acknowledged", token: stubToken{}, op: ErrPublishFailed},
		{name: "publish timeout", token: stubToken{pending: true}, op: ErrPublishFailed, wantTimeout: true},
		{name: "subscribe timeout", token: stubToken{pending: true}, op: ErrSubscribeFailed, wantTimeout: true},
		{name: "broker error", token: stubToken{err: brokerErr}, op: ErrUnsubscribeFailed, wantCause: brokerErr},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := waitToken(tt.token, 10*time.Millisecond, tt.op)
			if !tt.wantTimeout && tt.wantCause == nil {
				if err != nil {
					t.Fatalf("waitToken() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.op) {
				t.Errorf("waitToken() = %v, want wrapping %v", err, tt.op)
			}
			if got := errors.Is(err, ErrTimeout); got != tt.wantTimeout {
				t.Errorf("errors.Is(err, ErrTimeout) = %v, want %v", got, tt.wantTimeout)
			}
			if tt.wantCause != nil && !errors.Is(err, tt.wantCause) {
				t.Errorf("waitToken() = %v, want wrapping %v", err, tt.wantCause)
			}
		})
	}
}

func TestSubscribeValidation(t *testing.T) {
	c := disconnectedClient()
	noop := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 1, noop); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic: %v", err)
	}
	if err := c.Subscribe("a/b", 3, noop); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("invalid qos: %v", err)
	}
	if err := c.Subscribe("a/b", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler: %v", err)
	}
	if err := c.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("unsubscribe empty topic: %v", err)
	}
}

type recordingLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func TestDispatchRecoversAndLogs(t *testing.T) {
	c := disconnectedClient()
	logger := &recordingLogger{}
	c.SetLogger(logger)

	c.dispatch(func(string, []byte) error { panic("boom") }, "t", nil)
	c.dispatch(func(string, []byte) error { return errors.New("bad payload") }, "t", nil)
	c.dispatch(func(string, []byte) error { return nil }, "t", nil)

	if len(logger.errors) != 1 {
		t.Errorf("errors = %v, want one panic entry", logger.errors)
	}
	if len(logger.warns) != 1 {
		t.Errorf("warns = %v, want one handler error entry", logger.warns)
	}
}

func TestConnectionCallbacks(t *testing.T) {
	c := disconnectedClient()

	var lost error
	c.SetOnDisconnect(func(err error) { lost = err })
	c.handleDisconnect(errors.New("network down"))

	if lost == nil || lost.Error() != "network down" {
		t.Errorf("disconnect callback got %v", lost)
	}
	if c.IsConnected() {
		t.Error("client should be disconnected")
	}
}

// fakeBus records calls made through the adapter.
type fakeBus struct {
	published []string
	handlers  map[string]MessageHandler
}

func (f *fakeBus) Publish(topic string, _ []byte, _ byte, _ bool) error {
	f.published = append(f.published, topic)
	return nil
}

func (f *fakeBus) Subscribe(topic string, _ byte, handler MessageHandler) error {
	if f.handlers == nil {
		f.handlers = make(map[string]MessageHandler)
	}
	f.handlers[topic] = handler
	return nil
}

func (f *fakeBus) IsConnected() bool { return true }

func TestBridgeAdapter(t *testing.T) {
	bus := &fakeBus{}
	a := NewBridgeAdapter(bus)

	var got string
	if err := a.Subscribe("graylogic/request/sbrc/#", 1, func(topic string, _ []byte) { got = topic }); err != nil {
		t.Fatalf("Subscribe() = %v", err)
	}
	if err := bus.handlers["graylogic/request/sbrc/#"]("graylogic/request/sbrc/r1", nil); err != nil {
		t.Errorf("wrapped handler returned %v", err)
	}
	if got != "graylogic/request/sbrc/r1" {
		t.Errorf("handler got topic %q", got)
	}

	if err := a.Publish("graylogic/health/sbrc", nil, 1, true); err != nil {
		t.Fatalf("Publish() = %v", err)
	}
	if len(bus.published) != 1 || !a.IsConnected() {
		t.Error("adapter did not forward")
	}
}
