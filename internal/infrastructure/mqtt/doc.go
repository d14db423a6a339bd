// Package mqtt provides MQTT client connectivity for the charger bridge.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing with QoS guarantees and a payload size cap
//   - Topic subscriptions with wildcard support, restored on reconnect
//   - The bridge's Last Will and Testament for offline detection
//
// The bridge's topic hierarchy lives in the sbrc package; this package only
// moves bytes.
//
// # Security Considerations
//
//   - Enable TLS (cfg.Broker.TLS=true) outside a trusted LAN
//   - Credentials are validated against broker ACL
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, mqtt.Will{Topic: topic, Payload: lwt})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	bridge, err := sbrc.NewBridge(sbrc.BridgeOptions{
//	    MQTTClient: mqtt.NewBridgeAdapter(client),
//	    ...
//	})
package mqtt
