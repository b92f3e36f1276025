package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBMetricsConfig tunes database metrics collection.
type DBMetricsConfig struct {
	Enabled bool
	// SlowQueryThreshold marks queries above it in db_slow_query_total.
	SlowQueryThreshold time.Duration
	// PoolStatsInterval is how often connection pool gauges are sampled.
	PoolStatsInterval time.Duration
}

// DefaultDBMetricsConfig returns the thresholds used when the config file
// does not override them.
func DefaultDBMetricsConfig() DBMetricsConfig {
	return DBMetricsConfig{
		Enabled:            true,
		SlowQueryThreshold: 200 * time.Millisecond,
		PoolStatsInterval:  15 * time.Second,
	}
}

// DBMetrics records query counts, latencies and connection pool state for
// the gorm connection it is registered on. Construct it through
// RegisterDBMetrics and release it with Stop.
type DBMetrics struct {
	queryTotal    *Counter
	queryErrors   *Counter
	slowQueries   *Counter
	queryDuration *Histogram
	poolState     *Gauge
	poolMax       *Gauge

	slowThreshold time.Duration
	poolInterval  time.Duration
	sqlDB         *sql.DB
	logger        *zap.Logger

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func newDBMetrics(meter metric.Meter, sqlDB *sql.DB, cfg DBMetricsConfig, logger *zap.Logger) (*DBMetrics, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SlowQueryThreshold <= 0 {
		cfg.SlowQueryThreshold = 200 * time.Millisecond
	}
	if cfg.PoolStatsInterval <= 0 {
		cfg.PoolStatsInterval = 15 * time.Second
	}

	queryTotal, err := NewCounter(meter,
		"db_query_total", "Database queries by operation", "{query}")
	if err != nil {
		return nil, err
	}
	queryErrors, err := NewCounter(meter,
		"db_query_error_total", "Failed database queries by operation", "{query}")
	if err != nil {
		return nil, err
	}
	slowQueries, err := NewCounter(meter,
		"db_slow_query_total", "Queries slower than the configured threshold, by table", "{query}")
	if err != nil {
		return nil, err
	}
	queryDuration, err := NewHistogram(meter, HistogramOpts{
		Name:        "db_query_duration_seconds",
		Description: "Database query latency",
		Unit:        "s",
		Boundaries:  DBDurationBuckets,
	})
	if err != nil {
		return nil, err
	}
	poolState, err := NewGauge(meter,
		"db_pool_connections", "Connections in the pool by state", "{connection}")
	if err != nil {
		return nil, err
	}
	poolMax, err := NewGauge(meter,
		"db_pool_connections_max", "Connection pool size limit", "{connection}")
	if err != nil {
		return nil, err
	}

	return &DBMetrics{
		queryTotal:    queryTotal,
		queryErrors:   queryErrors,
		slowQueries:   slowQueries,
		queryDuration: queryDuration,
		poolState:     poolState,
		poolMax:       poolMax,
		slowThreshold: cfg.SlowQueryThreshold,
		poolInterval:  cfg.PoolStatsInterval,
		sqlDB:         sqlDB,
		logger:        logger,
		stop:          make(chan struct{}),
	}, nil
}

// startPoolStats samples the connection pool on a ticker until Stop is
// called or the context ends.
func (m *DBMetrics) startPoolStats(ctx context.Context) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(m.poolInterval)
		defer ticker.Stop()

		m.observePool(ctx)
		for {
			select {
			case <-ticker.C:
				m.observePool(ctx)
			case <-m.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	m.logger.Info("Connection pool stats collection started",
		zap.Duration("interval", m.poolInterval),
	)
}

func (m *DBMetrics) observePool(ctx context.Context) {
	stats := m.sqlDB.Stats()

	m.poolMax.Record(ctx, int64(stats.MaxOpenConnections))

	// open = idle + in_use. WaitCount is cumulative rather than a current
	// state, so it has no place on a gauge.
	m.poolState.Record(ctx, int64(stats.Idle), AttrDBState.String("idle"))
	m.poolState.Record(ctx, int64(stats.InUse), AttrDBState.String("in_use"))
	m.poolState.Record(ctx, int64(stats.OpenConnections), AttrDBState.String("open"))
}

// Stop terminates pool stats collection and waits for the sampler to exit.
// Safe to call more than once.
func (m *DBMetrics) Stop() {
	m.stopOnce.Do(func() {
		close(m.stop)
		m.wg.Wait()
		m.logger.Debug("Database metrics stopped")
	})
}

// recordQuery is the sink for the gorm callbacks. A gorm.ErrRecordNotFound
// is an answer, not a failure, and stays out of the error counter.
func (m *DBMetrics) recordQuery(ctx context.Context, operation, table string, elapsed time.Duration, err error) {
	if operation == "" {
		operation = "OTHER"
	}

	m.queryTotal.Inc(ctx, AttrDBOperation.String(operation))
	m.queryDuration.RecordDuration(ctx, elapsed, AttrDBOperation.String(operation))

	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		m.queryErrors.Inc(ctx, AttrDBOperation.String(operation))
	}

	if elapsed > m.slowThreshold {
		if table == "" {
			table = "unknown"
		}
		m.slowQueries.Inc(ctx, AttrDBTable.String(table))
	}
}

// dbMetricsPlugin hooks gorm's callback chain: a before callback stamps the
// start time into the statement context, an after callback feeds the
// elapsed time and outcome into DBMetrics.
type dbMetricsPlugin struct {
	metrics *DBMetrics
}

type dbMetricsCtxKey struct{}

func (p *dbMetricsPlugin) Name() string { return "db_metrics" }

func (p *dbMetricsPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	err := errors.Join(
		cb.Create().Before("gorm:create").Register("db_metrics:start_create", p.stampStart),
		cb.Query().Before("gorm:query").Register("db_metrics:start_query", p.stampStart),
		cb.Update().Before("gorm:update").Register("db_metrics:start_update", p.stampStart),
		cb.Delete().Before("gorm:delete").Register("db_metrics:start_delete", p.stampStart),
		cb.Row().Before("gorm:row").Register("db_metrics:start_row", p.stampStart),
		cb.Raw().Before("gorm:raw").Register("db_metrics:start_raw", p.stampStart),

		cb.Create().After("gorm:create").Register("db_metrics:record_create", p.recordAs("INSERT")),
		cb.Query().After("gorm:query").Register("db_metrics:record_query", p.recordAs("SELECT")),
		cb.Update().After("gorm:update").Register("db_metrics:record_update", p.recordAs("UPDATE")),
		cb.Delete().After("gorm:delete").Register("db_metrics:record_delete", p.recordAs("DELETE")),
		cb.Row().After("gorm:row").Register("db_metrics:record_row", p.recordSniffed),
		cb.Raw().After("gorm:raw").Register("db_metrics:record_raw", p.recordSniffed),
	)
	if err != nil {
		return fmt.Errorf("register metrics callbacks: %w", err)
	}
	return nil
}

func (p *dbMetricsPlugin) stampStart(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		ctx = context.Background()
	}
	db.Statement.Context = context.WithValue(ctx, dbMetricsCtxKey{}, time.Now())
}

// recordAs returns an after callback for processors whose operation type is
// fixed by the callback chain they run in.
func (p *dbMetricsPlugin) recordAs(operation string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		p.record(db, operation)
	}
}

// recordSniffed handles Row and Raw processors, which carry arbitrary SQL.
func (p *dbMetricsPlugin) recordSniffed(db *gorm.DB) {
	p.record(db, sqlOperation(db.Statement.SQL.String()))
}

func (p *dbMetricsPlugin) record(db *gorm.DB, operation string) {
	ctx := db.Statement.Context
	if ctx == nil {
		ctx = context.Background()
	}

	var elapsed time.Duration
	if start, ok := ctx.Value(dbMetricsCtxKey{}).(time.Time); ok {
		elapsed = time.Since(start)
	}

	p.metrics.recordQuery(ctx, operation, db.Statement.Table, elapsed, db.Error)
}

func sqlOperation(sql string) string {
	sql = strings.TrimSpace(strings.ToUpper(sql))
	switch {
	case strings.HasPrefix(sql, "SELECT"):
		return "SELECT"
	case strings.HasPrefix(sql, "INSERT"):
		return "INSERT"
	case strings.HasPrefix(sql, "UPDATE"):
		return "UPDATE"
	case strings.HasPrefix(sql, "DELETE"):
		return "DELETE"
	default:
		return "OTHER"
	}
}

// RegisterDBMetrics wires query and pool metrics into a gorm connection and
// starts pool sampling. It returns nil without error when metrics are
// switched off; callers own the returned value's Stop.
func RegisterDBMetrics(ctx context.Context, db *gorm.DB, meterProvider *MeterProvider, cfg DBMetricsConfig, logger *zap.Logger) (*DBMetrics, error) {
	if !cfg.Enabled {
		logger.Debug("Database metrics disabled")
		return nil, nil
	}
	if meterProvider == nil || !meterProvider.IsEnabled() {
		logger.Debug("No meter provider, skipping database metrics")
		return nil, nil
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("resolve sql.DB for pool stats: %w", err)
	}

	metrics, err := newDBMetrics(meterProvider.Meter("stockledger.db"), sqlDB, cfg, logger)
	if err != nil {
		return nil, err
	}

	if err := db.Use(&dbMetricsPlugin{metrics: metrics}); err != nil {
		return nil, fmt.Errorf("install metrics plugin: %w", err)
	}
	metrics.startPoolStats(ctx)

	logger.Info("Database metrics registered",
		zap.Duration("slow_query_threshold", metrics.slowThreshold),
		zap.Duration("pool_stats_interval", metrics.poolInterval),
	)
	return metrics, nil
}
