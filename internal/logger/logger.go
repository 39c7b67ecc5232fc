// Package logger configures zerolog as the service's structured logger.
package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"

	"apmdemo/internal/config"
)

// TimestampField is the name of the timestamp field on every log line.
const TimestampField = "ts"

type timestampHook struct {
	loc *time.Location
}

func (h timestampHook) Run(e *zerolog.Event, _ zerolog.Level, _ string) {
	e.Str(TimestampField, time.Now().In(h.loc).Format(time.RFC3339Nano))
}

// ParseLevel maps a textual level to zerolog. Unknown values mean info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// New builds a logger writing one JSON object per line to w ("console" format is human readable).
// Timestamps are rendered in loc.
func New(w io.Writer, level, format string, loc *time.Location) zerolog.Logger {
	if loc == nil {
		loc = time.UTC
	}
	if strings.EqualFold(format, "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(ParseLevel(level)).Hook(timestampHook{loc: loc})
}

// Init installs the global logger from configuration and returns it.
func Init(cfg *config.AppConfig) zerolog.Logger {
	l := New(os.Stdout, cfg.LogLevel, cfg.LogFormat, cfg.Location()).
		With().Str("service", cfg.Name).Logger()
	log.Logger = l
	return l
}

// WithSpan enriches l with the trace and span ids of the span recorded in ctx, so log lines
// can be joined with traces in the APM backend.
func WithSpan(ctx context.Context, l zerolog.Logger) zerolog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return l
	}
	return l.With().
		Str("trace_id", sc.TraceID().String()).
		Str("span_id", sc.SpanID().String()).
		Logger()
}

// Ctx is WithSpan applied to the global logger.
func Ctx(ctx context.Context) *zerolog.Logger {
	l := WithSpan(ctx, log.Logger)
	return &l
}
