// Package logging builds the bridge's structured logger on log/slog.
//
// Every entry carries service and version fields. JSON is the default
// format; text is easier to read while developing against a local broker.
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Default returns an info-level JSON logger for use before the
// configuration is loaded. Packages below cmd/ take a small Logger
// interface instead of this type, so *Logger is passed to them via
// SetLogger.
//
// The cloud access token and the API JWT secret must never be logged.
package logging
