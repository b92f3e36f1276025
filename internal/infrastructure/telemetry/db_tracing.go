package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBTracingConfig tunes query span generation.
type DBTracingConfig struct {
	Enabled bool
	// LogFullSQL includes query parameter values in span attributes. Values
	// can carry customer data, so this is for development databases only.
	LogFullSQL bool
	// SlowQueryThresh marks spans above it with a slow_query attribute.
	SlowQueryThresh time.Duration
	// DBSystem names the backing database on every span.
	DBSystem string
}

// RegisterDBTracing instruments a gorm connection with otelgorm query spans
// and adds hooks that annotate each span with row counts, the table name,
// the error outcome and a slow query marker.
func RegisterDBTracing(db *gorm.DB, cfg DBTracingConfig, logger *zap.Logger) error {
	if !cfg.Enabled {
		logger.Debug("Database tracing disabled")
		return nil
	}
	if cfg.SlowQueryThresh <= 0 {
		cfg.SlowQueryThresh = 200 * time.Millisecond
	}
	if cfg.DBSystem == "" {
		cfg.DBSystem = "postgresql"
	}

	// The annotation hooks go in first. Within one callback anchor gorm runs
	// hooks in registration order, and these must observe the span before
	// otelgorm's own after-hook ends it on the Row and Raw paths.
	hooks := &dbTracingHooks{slowThreshold: cfg.SlowQueryThresh}
	if err := hooks.register(db); err != nil {
		return fmt.Errorf("register tracing hooks: %w", err)
	}

	opts := []otelgorm.Option{
		otelgorm.WithDBName(cfg.DBSystem),
	}
	if !cfg.LogFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return fmt.Errorf("install otelgorm plugin: %w", err)
	}

	logger.Info("Database tracing enabled",
		zap.Bool("log_full_sql", cfg.LogFullSQL),
		zap.Duration("slow_query_threshold", cfg.SlowQueryThresh),
		zap.String("db_system", cfg.DBSystem),
	)
	return nil
}

// dbTracingHooks annotates the spans otelgorm opens. It keeps its own start
// timestamp because otelgorm does not expose span timing to callbacks.
type dbTracingHooks struct {
	slowThreshold time.Duration
}

type dbTracingCtxKey struct{}

func (h *dbTracingHooks) register(db *gorm.DB) error {
	cb := db.Callback()
	return errors.Join(
		cb.Create().Before("gorm:create").Register("db_tracing:start_create", h.stampStart),
		cb.Query().Before("gorm:query").Register("db_tracing:start_query", h.stampStart),
		cb.Update().Before("gorm:update").Register("db_tracing:start_update", h.stampStart),
		cb.Delete().Before("gorm:delete").Register("db_tracing:start_delete", h.stampStart),
		cb.Row().Before("gorm:row").Register("db_tracing:start_row", h.stampStart),
		cb.Raw().Before("gorm:raw").Register("db_tracing:start_raw", h.stampStart),

		cb.Create().After("gorm:create").Register("db_tracing:annotate_create", h.annotateSpan),
		cb.Query().After("gorm:query").Register("db_tracing:annotate_query", h.annotateSpan),
		cb.Update().After("gorm:update").Register("db_tracing:annotate_update", h.annotateSpan),
		cb.Delete().After("gorm:delete").Register("db_tracing:annotate_delete", h.annotateSpan),
		cb.Row().After("gorm:row").Register("db_tracing:annotate_row", h.annotateSpan),
		cb.Raw().After("gorm:raw").Register("db_tracing:annotate_raw", h.annotateSpan),
	)
}

func (h *dbTracingHooks) stampStart(db *gorm.DB) {
	if db.Statement.Context == nil {
		return
	}
	db.Statement.Context = context.WithValue(db.Statement.Context, dbTracingCtxKey{}, time.Now())
}

func (h *dbTracingHooks) annotateSpan(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}

	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	if db.RowsAffected >= 0 {
		span.SetAttributes(attribute.Int64("db.rows_affected", db.RowsAffected))
	}
	if db.Statement.Table != "" {
		span.SetAttributes(attribute.String("db.sql.table", db.Statement.Table))
	}

	if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
		span.SetStatus(codes.Error, db.Error.Error())
		span.RecordError(db.Error)
	}

	start, ok := ctx.Value(dbTracingCtxKey{}).(time.Time)
	if !ok {
		return
	}
	if elapsed := time.Since(start); elapsed > h.slowThreshold {
		span.SetAttributes(
			attribute.Bool("db.slow_query", true),
			attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
		)
		span.AddEvent("slow_query", trace.WithAttributes(
			attribute.Int64("duration_ms", elapsed.Milliseconds()),
			attribute.Int64("threshold_ms", h.slowThreshold.Milliseconds()),
		))
	}
}
