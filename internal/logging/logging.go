// Package logging bootstraps zerolog for the whole process and carries
// trace IDs through contexts so one tick's log lines can be correlated.
package logging

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logger settings
type Config struct {
	Level  string `json:"level" yaml:"level"`
	Output string `json:"output" yaml:"output"` // stdout, stderr, or a file path
	Pretty bool   `json:"pretty" yaml:"pretty"` // console writer for development
}

// New builds the root logger. Unknown levels fall back to info; an
// unopenable output file falls back to stdout.
func New(cfg Config) zerolog.Logger {
	var out io.Writer = os.Stdout
	switch cfg.Output {
	case "", "stdout":
	case "stderr":
		out = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err == nil {
			out = f
		}
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

type contextKey string

const traceIDKey contextKey = "trace_id"

// NewTraceID generates a random trace ID
func NewTraceID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// WithTrace attaches a fresh trace ID to the context and returns a logger
// carrying it
func WithTrace(ctx context.Context, logger zerolog.Logger) (context.Context, zerolog.Logger) {
	id := NewTraceID()
	return context.WithValue(ctx, traceIDKey, id), logger.With().Str("trace_id", id).Logger()
}

// TraceID reads the trace ID from the context, empty if absent
func TraceID(ctx context.Context) string {
	if id, ok := ctx.Value(traceIDKey).(string); ok {
		return id
	}
	return ""
}
