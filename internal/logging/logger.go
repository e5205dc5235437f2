// Package logging builds the zerolog loggers handed to every component.
//
// There is no global logger: main builds one with New and passes it down.
// Request-scoped fields (correlation id, session id) travel in the context.
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config holds logging configuration.
type Config struct {
	// Level is the minimum level: trace, debug, info, warn, error. Default: info.
	Level string

	// Format is json or console. Default: json.
	Format string

	// Output defaults to os.Stderr.
	Output io.Writer
}

// New returns a logger for cfg. Unknown levels fall back to info.
func New(cfg Config) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// NewCorrelationID returns a short id for tying log lines of one request together.
func NewCorrelationID() string {
	return uuid.New().String()[:8]
}

// WithRequest returns ctx carrying a child of base tagged with a correlation id
// and the session id.
func WithRequest(ctx context.Context, base zerolog.Logger, sessionID string) context.Context {
	l := base.With().
		Str("correlation_id", NewCorrelationID()).
		Str("session_id", sessionID).
		Logger()
	return l.WithContext(ctx)
}

// FromContext returns the logger stored in ctx, or fallback when there is none.
func FromContext(ctx context.Context, fallback zerolog.Logger) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &fallback
}
