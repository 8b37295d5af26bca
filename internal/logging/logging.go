// Package logging configures the global zerolog logger and provides
// context-scoped logger access for handlers and services.
package logging

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup initializes the global zerolog logger with the given level.
// Unknown levels fall back to info. Output is JSON to stderr with
// RFC3339 timestamps; console formatting is left to the log pipeline.
func Setup(level string) {
	zerolog.TimeFieldFormat = time.RFC3339

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// FromContext returns the logger attached to ctx by the logging middleware,
// or the global logger when none is attached. The returned logger already
// carries the request's trace_id field.
func FromContext(ctx context.Context) *zerolog.Logger {
	return zerolog.Ctx(ctx)
}
