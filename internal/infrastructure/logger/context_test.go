package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithJobRun(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	ctx, log := WithJobRun(context.Background(), base, "run-7f3a")

	assert.Equal(t, "run-7f3a", JobRunID(ctx))

	log.Info("expiry scan started")
	entries := recorded.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "run-7f3a", entries[0].ContextMap()["job_id"])
}

func TestJobRunID_Unset(t *testing.T) {
	assert.Empty(t, JobRunID(context.Background()))
}

func TestWithOperator(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	ctx, log := WithOperator(context.Background(), base, "op-stockkeeper")

	assert.Equal(t, "op-stockkeeper", OperatorID(ctx))

	log.Info("manual batch closure")
	entries := recorded.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "op-stockkeeper", entries[0].ContextMap()["operator_id"])
}

func TestOperatorID_Unset(t *testing.T) {
	assert.Empty(t, OperatorID(context.Background()))
}

func TestWithTraceContext_NoSpan(t *testing.T) {
	core, _ := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	// No active span: the logger comes back unchanged
	log := WithTraceContext(context.Background(), base)
	assert.Same(t, base, log)
}

func TestWithTraceContext_ActiveSpan(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)

	spanCtx := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), spanCtx)

	WithTraceContext(ctx, base).Info("allocation dispatched")

	entries := recorded.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, traceID.String(), fields["trace_id"])
	assert.Equal(t, spanID.String(), fields["span_id"])
}

func TestJobRunAndOperatorCompose(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	ctx, log := WithJobRun(context.Background(), base, "run-1")
	ctx, log = WithOperator(ctx, log, "op-2")

	assert.Equal(t, "run-1", JobRunID(ctx))
	assert.Equal(t, "op-2", OperatorID(ctx))

	log.Info("both stamped")
	entries := recorded.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "run-1", fields["job_id"])
	assert.Equal(t, "op-2", fields["operator_id"])
}
