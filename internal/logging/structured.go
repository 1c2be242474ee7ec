package logging

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// InitStructured reconfigures the operational logger based on format settings.
// format: "text"/"console" (default) or "json" (Loki/ELK compatible)
// level: "debug", "info", "warn", "error"
func InitStructured(format, level string) {
	SetLevelFromString(level)

	w := opOutput.Load().w
	switch format {
	case "json":
		store(zerolog.New(w).With().Timestamp().Logger())
	default:
		store(newConsoleLogger(w))
	}
}

// WithTrace returns the operational logger with trace context fields taken
// from the span stored in ctx, when one is recording.
func WithTrace(ctx context.Context) *zerolog.Logger {
	l := Op()
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return l
	}
	ctxLogger := l.With().
		Str("trace_id", sc.TraceID().String()).
		Str("span_id", sc.SpanID().String()).
		Logger()
	return &ctxLogger
}
