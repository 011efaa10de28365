// Package logging provides the daemon's shared structured logger.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	mu      sync.RWMutex
	base    = zerolog.New(defaultWriter()).Level(zerolog.InfoLevel).With().Timestamp().Logger()
	initted bool
)

func defaultWriter() io.Writer {
	return zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
}

// Configure sets the process-wide base logger. Call once during startup,
// before any component logger is taken. level is one of zerolog's level
// strings ("debug", "info", "warn", "error"); format is "console" or "json".
func Configure(level, format string) {
	mu.Lock()
	defer mu.Unlock()

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	var w io.Writer = os.Stderr
	if format != "json" {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	base = zerolog.New(w).Level(lvl).With().Timestamp().Logger()
	initted = true
}

// WithComponent returns a logger tagged with the given component name.
// Safe to call before Configure; it will pick up the default console writer
// at info level until Configure runs.
func WithComponent(name string) zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base.With().Str("component", name).Logger()
}

// IsConfigured reports whether Configure has been called.
func IsConfigured() bool {
	mu.RLock()
	defer mu.RUnlock()
	return initted
}
