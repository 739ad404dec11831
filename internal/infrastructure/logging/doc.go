// Package logging provides structured logging for hars-imp.
//
// This package wraps Go's standard log/slog package so every component logs
// with the same default fields (service, version) and level filtering.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, journal (default under systemd)
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("inhibitor acquired", "class", "sleep")
//	logger.Error("failed to connect", "error", err)
//
// Never log MQTT passwords or InfluxDB tokens.
package logging
