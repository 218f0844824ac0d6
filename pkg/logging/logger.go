// Package logging provides the DealHound service logger and the chat audit
// log. Everything is JSON on stdout so the platform's log shipper needs no
// parser configuration.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Logger is the service-wide structured logger.
type Logger struct {
	*slog.Logger
}

// New returns a JSON logger at the given level. Unknown or empty levels
// default to info.
func New(level string) *Logger {
	logLevel := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	return &Logger{Logger: slog.New(handler)}
}

// Default returns an info-level logger for call sites that were not handed
// one explicitly.
func Default() *Logger {
	return New("info")
}
