package telemetry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/stockledger/backend/internal/infrastructure/telemetry"
)

// installRecorder swaps the global tracer provider for one that keeps every
// ended span in memory, and restores the previous provider afterwards.
func installRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
		_ = provider.Shutdown(context.Background())
	})
	return recorder
}

func endedSpan(t *testing.T, recorder *tracetest.SpanRecorder) sdktrace.ReadOnlySpan {
	t.Helper()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	return ended[0]
}

func attrMap(kvs []attribute.KeyValue) map[attribute.Key]attribute.Value {
	m := make(map[attribute.Key]attribute.Value, len(kvs))
	for _, kv := range kvs {
		m[kv.Key] = kv.Value
	}
	return m
}

func TestStartServiceSpan_NamesSpanAfterServiceAndOperation(t *testing.T) {
	recorder := installRecorder(t)

	_, span := telemetry.StartServiceSpan(context.Background(), "allocation", "allocate")
	span.End()

	got := endedSpan(t, recorder)
	assert.Equal(t, "allocation.allocate", got.Name())
	assert.Equal(t, trace.SpanKindInternal, got.SpanKind())
	assert.Equal(t, "stockledger-backend", got.InstrumentationScope().Name)
}

func TestStartServiceSpan_ChildJoinsParentTrace(t *testing.T) {
	recorder := installRecorder(t)

	ctx, parent := telemetry.StartServiceSpan(context.Background(), "allocation", "allocate")
	_, child := telemetry.StartServiceSpan(ctx, "allocation", "reverse")
	child.End()
	parent.End()

	ended := recorder.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, ended[1].SpanContext().TraceID(), ended[0].SpanContext().TraceID())
	assert.Equal(t, ended[1].SpanContext().SpanID(), ended[0].Parent().SpanID())
}

func TestSetAttributes_RecordsTypedPairs(t *testing.T) {
	recorder := installRecorder(t)
	productID := uuid.New()

	_, span := telemetry.StartServiceSpan(context.Background(), "allocation", "allocate")
	telemetry.SetAttributes(span,
		telemetry.SpanAttrProductID, productID.String(),
		telemetry.SpanAttrQuantity, "25.5",
		telemetry.SpanAttrDeductionCount, 3,
	)
	span.End()

	attrs := attrMap(endedSpan(t, recorder).Attributes())
	assert.Equal(t, productID.String(), attrs["product_id"].AsString())
	assert.Equal(t, "25.5", attrs["quantity"].AsString())
	assert.Equal(t, int64(3), attrs["deduction_count"].AsInt64())
}

func TestSetAttributes_SkipsMalformedPairs(t *testing.T) {
	recorder := installRecorder(t)

	_, span := telemetry.StartServiceSpan(context.Background(), "allocation", "allocate")
	telemetry.SetAttributes(span,
		42, "keyed by an int, skipped",
		telemetry.SpanAttrAttempt, 2,
		"dangling key without a value",
	)
	span.End()

	attrs := attrMap(endedSpan(t, recorder).Attributes())
	require.Len(t, attrs, 1)
	assert.Equal(t, int64(2), attrs["attempt"].AsInt64())
}

func TestSetAttribute_ConvertsCommonTypes(t *testing.T) {
	recorder := installRecorder(t)
	batchID := uuid.New()

	_, span := telemetry.StartServiceSpan(context.Background(), "status", "transition")
	telemetry.SetAttribute(span, "batch_id", batchID) // fmt.Stringer
	telemetry.SetAttribute(span, "expired", true)
	telemetry.SetAttribute(span, "unit_cost", 12.5)
	telemetry.SetAttribute(span, "rows", int64(4))
	span.End()

	attrs := attrMap(endedSpan(t, recorder).Attributes())
	assert.Equal(t, batchID.String(), attrs["batch_id"].AsString())
	assert.True(t, attrs["expired"].AsBool())
	assert.Equal(t, 12.5, attrs["unit_cost"].AsFloat64())
	assert.Equal(t, int64(4), attrs["rows"].AsInt64())
}

func TestRecordError_MarksSpanFailed(t *testing.T) {
	recorder := installRecorder(t)
	allocErr := errors.New("insufficient stock in every batch")

	_, span := telemetry.StartServiceSpan(context.Background(), "allocation", "allocate")
	telemetry.RecordError(span, allocErr)
	span.End()

	got := endedSpan(t, recorder)
	assert.Equal(t, codes.Error, got.Status().Code)
	assert.Equal(t, allocErr.Error(), got.Status().Description)
	require.NotEmpty(t, got.Events())
	assert.Equal(t, "exception", got.Events()[0].Name)
}

func TestRecordError_NilLeavesSpanUntouched(t *testing.T) {
	recorder := installRecorder(t)

	_, span := telemetry.StartServiceSpan(context.Background(), "allocation", "allocate")
	telemetry.RecordError(span, nil)
	span.End()

	got := endedSpan(t, recorder)
	assert.Equal(t, codes.Unset, got.Status().Code)
	assert.Empty(t, got.Events())
}

func TestAddEvent_AttachesNamedEventWithAttributes(t *testing.T) {
	recorder := installRecorder(t)
	allocationID := uuid.New()

	_, span := telemetry.StartServiceSpan(context.Background(), "allocation", "allocate")
	telemetry.AddEvent(span, "stock_allocated",
		"allocation_id", allocationID.String(),
		"total_cost", "127.50",
	)
	span.End()

	events := endedSpan(t, recorder).Events()
	require.Len(t, events, 1)
	assert.Equal(t, "stock_allocated", events[0].Name)

	attrs := attrMap(events[0].Attributes)
	assert.Equal(t, allocationID.String(), attrs["allocation_id"].AsString())
	assert.Equal(t, "127.50", attrs["total_cost"].AsString())
}
