// Package logging builds the device's structured logger on log/slog.
//
// Every record carries service=graylogic-device and the build version.
// Components get a child logger tagged with their name and accept it through
// a small Debug/Info/Warn/Error interface, which *Logger satisfies via the
// embedded slog.Logger:
//
//	log := logging.New(cfg.Logging, version)
//	dev.SetLogger(log.With("component", "device"))
//
// Once Device.Begin has produced the GUID and hostname, the top-level logger
// is narrowed with WithDevice so every later record identifies the unit.
//
// Configured by the logging section of device.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// MQTT and API passwords are never logged; log the server and user instead.
package logging
