package observe

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for the Nexa tracer.
const tracerName = "github.com/webnexifystudio/nexa"

// Tracer returns the Nexa tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span named name. End it with [EndSpan] or span.End().
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// EndSpan sets the span status from err and ends it. Errors matching one of
// aborted (via errors.Is) are outcomes the caller asked for, such as a
// Disconnect during Connect; they are recorded as an "aborted" event and
// leave the status unset.
func EndSpan(span trace.Span, err error, aborted ...error) {
	defer span.End()
	if err == nil {
		span.SetStatus(codes.Ok, "")
		return
	}
	for _, a := range aborted {
		if errors.Is(err, a) {
			span.AddEvent("aborted", trace.WithAttributes(Attr("reason", err.Error())))
			return
		}
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// CorrelationID returns the trace ID of the active span in ctx, or the empty
// string when there is none. It is echoed to HTTP clients so a UI error can be
// matched to server logs.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns base, or [slog.Default] when base is nil, with trace_id and
// span_id from ctx attached.
func Logger(ctx context.Context, base *slog.Logger) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return base
	}
	return base.With(
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	)
}
