package mqtt

// BusPublisher is the subset of Client the bridge adapter needs.
type BusPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler MessageHandler) error
	IsConnected() bool
}

// BridgeAdapter adapts a Client to the bridge's MQTTClient interface,
// whose handlers return nothing.
type BridgeAdapter struct {
	client BusPublisher
}

// NewBridgeAdapter wraps client.
func NewBridgeAdapter(client BusPublisher) *BridgeAdapter {
	return &BridgeAdapter{client: client}
}

// Publish forwards to the client.
func (a *BridgeAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

// Subscribe registers handler, wrapping it to return a nil error.
func (a *BridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// IsConnected forwards to the client.
func (a *BridgeAdapter) IsConnected() bool {
	return a.client.IsConnected()
}
