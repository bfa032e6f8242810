// Package logging wires the process-wide structured logger.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds the root logger. Every component derives a child logger from
// this with With().Str("component", name) rather than constructing its own.
func New(debug bool) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"}).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// Component returns a child logger tagged with the owning component name.
func Component(base zerolog.Logger, name string) zerolog.Logger {
	return base.With().Str("component", name).Logger()
}
