package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName identifies the instrumentation scope on every span the
// application services emit.
const tracerName = "stockledger-backend"

// Span attribute keys used by the application services. They mirror the
// metric label names so a trace and the dashboards built on the metrics
// can be joined on the same fields.
const (
	SpanAttrProductID      = "product_id"
	SpanAttrQuantity       = "quantity"
	SpanAttrDeductionCount = "deduction_count"
	SpanAttrAttempt        = "attempt"
)

// StartServiceSpan opens a span named "{service}.{operation}" on the
// globally installed tracer provider. When tracing is disabled the global
// provider is a no-op, so callers never need to guard the call:
//
//	ctx, span := telemetry.StartServiceSpan(ctx, "allocation", "allocate")
//	defer span.End()
func StartServiceSpan(ctx context.Context, service, operation string) (context.Context, trace.Span) {
	return otel.GetTracerProvider().Tracer(tracerName).Start(ctx, service+"."+operation,
		trace.WithSpanKind(trace.SpanKindInternal))
}

// SetAttributes records alternating key/value pairs on the span. Keys must
// be strings; a pair with a non-string key is skipped, and a trailing key
// without a value is dropped.
func SetAttributes(span trace.Span, pairs ...any) {
	span.SetAttributes(collectAttributes(pairs)...)
}

// SetAttribute records a single key/value pair on the span.
func SetAttribute(span trace.Span, key string, value any) {
	span.SetAttributes(toAttribute(key, value))
}

// RecordError attaches the error to the span and marks its status as
// failed. A nil error leaves the span untouched.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// AddEvent attaches a named point-in-time event to the span, with
// alternating key/value pairs in the same format SetAttributes takes.
func AddEvent(span trace.Span, name string, pairs ...any) {
	span.AddEvent(name, trace.WithAttributes(collectAttributes(pairs)...))
}

func collectAttributes(pairs []any) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			continue
		}
		attrs = append(attrs, toAttribute(key, pairs[i+1]))
	}
	return attrs
}

// toAttribute picks the native OTel representation for common Go types and
// falls back to fmt formatting for everything else.
func toAttribute(key string, value any) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case bool:
		return attribute.Bool(key, v)
	case fmt.Stringer:
		return attribute.String(key, v.String())
	default:
		return attribute.String(key, fmt.Sprintf("%v", v))
	}
}
