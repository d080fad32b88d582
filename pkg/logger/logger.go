// Package logger provides the global structured logger shared by every
// goqueue package and binary.
package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Log is the global logger instance.
var Log zerolog.Logger

func init() {
	// Default to JSON output for production
	Log = zerolog.New(os.Stdout).
		With().
		Timestamp().
		Logger()

	// Pretty print unless APP_ENV is "production"
	if os.Getenv("APP_ENV") != "production" {
		Log = Log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

// GetLogger returns the global logger instance.
func GetLogger() zerolog.Logger {
	return Log
}

// Component returns a child logger tagged with a "component" field,
// used by queue/scheduler/worker so log lines can be filtered by the
// subsystem that emitted them.
func Component(name string) zerolog.Logger {
	return Log.With().Str("component", name).Logger()
}
