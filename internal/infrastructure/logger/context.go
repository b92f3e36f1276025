package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type contextKey int

const (
	jobRunIDKey contextKey = iota
	operatorIDKey
)

// WithJobRun stamps the context with a maintenance job run ID and returns a
// logger that carries it on every entry. SQL traced during the run picks the
// ID up through JobRunID.
func WithJobRun(ctx context.Context, log *zap.Logger, jobID string) (context.Context, *zap.Logger) {
	return context.WithValue(ctx, jobRunIDKey, jobID), log.With(zap.String("job_id", jobID))
}

// JobRunID returns the maintenance job run ID from the context, or "".
func JobRunID(ctx context.Context) string {
	id, _ := ctx.Value(jobRunIDKey).(string)
	return id
}

// WithOperator stamps the context with the acting operator and returns a
// logger that carries the operator on every entry.
func WithOperator(ctx context.Context, log *zap.Logger, operatorID string) (context.Context, *zap.Logger) {
	return context.WithValue(ctx, operatorIDKey, operatorID), log.With(zap.String("operator_id", operatorID))
}

// OperatorID returns the acting operator from the context, or "".
func OperatorID(ctx context.Context) string {
	id, _ := ctx.Value(operatorIDKey).(string)
	return id
}

// WithTraceContext returns the logger with trace_id and span_id fields taken
// from the context's active span. Without a valid span the logger is returned
// unchanged.
func WithTraceContext(ctx context.Context, log *zap.Logger) *zap.Logger {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return log
	}
	return log.With(
		zap.String("trace_id", spanCtx.TraceID().String()),
		zap.String("span_id", spanCtx.SpanID().String()),
	)
}
