// Package logger builds the zerolog loggers used across the services and
// carries them through request and job contexts.
package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Output formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

type ctxKey struct{}

// Options selects the level, format and destination of a logger. Zero values
// give an info-level console logger on stdout.
type Options struct {
	Level  string
	Format string
	Out    io.Writer
}

// New creates a console logger on stdout at info level.
func New() zerolog.Logger {
	return NewWithOptions(Options{})
}

// NewWithLevel creates a console logger filtered at the given level name
// (debug, info, warn, error). Unknown or empty names fall back to info.
func NewWithLevel(level string) zerolog.Logger {
	return NewWithOptions(Options{Level: level})
}

// NewWithOptions creates a logger from o. JSON output suits log collectors;
// the console format is for terminals.
func NewWithOptions(o Options) zerolog.Logger {
	out := o.Out
	if out == nil {
		out = os.Stdout
	}
	if !strings.EqualFold(strings.TrimSpace(o.Format), FormatJSON) {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).With().Timestamp().Caller().Logger().Level(parseLevel(o.Level))
}

// NewWithWriter creates a JSON logger writing to w, at every level.
func NewWithWriter(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Caller().Logger()
}

func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// WithContext stores logger in ctx.
func WithContext(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext returns the logger stored in ctx, or a default console logger.
func FromContext(ctx context.Context) zerolog.Logger {
	if logger, ok := ctx.Value(ctxKey{}).(zerolog.Logger); ok {
		return logger
	}
	return New()
}

// WithFields adds structured fields to a logger
func WithFields(logger zerolog.Logger, fields map[string]interface{}) zerolog.Logger {
	ctx := logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return ctx.Logger()
}

// WithCompany returns a logger tagged with the tenant the work is scoped to.
func WithCompany(logger zerolog.Logger, companyID string) zerolog.Logger {
	return logger.With().Str("company_id", companyID).Logger()
}

// WithJob returns a logger tagged with a queued job.
func WithJob(logger zerolog.Logger, jobID, companyID string) zerolog.Logger {
	return logger.With().Str("job_id", jobID).Str("company_id", companyID).Logger()
}
