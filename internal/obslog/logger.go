// Package obslog builds the zerolog logger shared by the engine and the
// cmd/livegrapherd wrapper: JSON or pretty-console output, a fixed
// service field, and nothing else — no panic-recovery helpers, since the
// reactor is single-threaded and has no worker goroutines to guard.
package obslog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Format selects the console encoding.
type Format int

const (
	FormatJSON Format = iota
	FormatPretty
)

// Config controls level and encoding of the constructed logger.
type Config struct {
	Level  zerolog.Level
	Format Format
}

// New builds a zerolog.Logger with a timestamp and a fixed service field.
// JSON output (the default) is meant for log aggregation; pretty output is
// for local development.
func New(cfg Config) zerolog.Logger {
	var output io.Writer = os.Stdout
	if cfg.Format == FormatPretty {
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	zerolog.SetGlobalLevel(cfg.Level)

	return zerolog.New(output).
		With().
		Timestamp().
		Str("service", "livegrapherd").
		Logger()
}
