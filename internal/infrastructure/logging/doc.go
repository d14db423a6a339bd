// Package logging provides structured logging for the charger bridge.
//
// It wraps log/slog with JSON or text output, level filtering and default
// fields (service, version) on every entry.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("charger connected", "address", addr)
//	logger.With("component", "history").Error("insert failed", "error", err)
//
// Never log the JWT secret, MQTT password or InfluxDB token.
package logging
