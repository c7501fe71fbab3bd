// Package logging provides structured logging for the Smarteefi bridge.
//
// It wraps Go's standard log/slog package so every component logs through
// one configuration. Each record carries service, bridge_id and version
// attributes, letting households that run several bridge instances (one
// per Smarteefi account, say) tell their logs apart.
//
// # Configuration
//
// Logging is configured via the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, cfg.Bridge.ID, version)
//	logger.Info("starting bridge", "devices", count)
//
//	mqttLogger := logger.With("component", "mqtt")
//	mqttLogger.Warn("reconnecting", "attempt", n)
//
// # Security
//
// Never log the Smarteefi API token, MQTT credentials or the REST API
// bearer token. Log a prefix if an identifier is needed.
package logging
