// Package api provides the HTTP REST API and WebSocket push for the
// charger bridge.
//
// Reads come straight from the bridge's store, so they always reflect the
// last report from the charger. Commands go through Bridge.Execute and are
// audited like bus commands. When security.jwt.secret is set, command
// endpoints require a bearer token whose role grants charger:command.
//
// Every state change is also pushed to WebSocket clients subscribed to the
// "charger.changed" channel; the Hub is registered as a bridge change sink.
package api
