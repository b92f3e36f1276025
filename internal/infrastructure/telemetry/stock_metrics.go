package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// StockMetrics provides business metrics for the stock ledger.
// It tracks allocation outcomes, ledger activity, and batch inventory health.
type StockMetrics struct {
	logger *zap.Logger

	allocationTotal      *Counter
	allocationRetryTotal *Counter
	movementTotal        *Counter
	batchReceivedTotal   *Counter
	batchDepletedTotal   *Counter
	reversalTotal        *Counter

	allocationDuration *Histogram

	batchCount         *Gauge
	expiringBatchCount *Gauge
	stockValueAtCost   *FloatGauge

	stopChan    chan struct{}
	stopOnce    sync.Once
	collectOnce sync.Once

	stockProvider    StockLevelProvider
	expiryWindowDays int
}

// StockLevelProvider provides batch inventory data for periodic metrics
// collection. The interface keeps the telemetry layer off the inventory
// domain; implementations query the batch tables directly.
type StockLevelProvider interface {
	// GetBatchCountsByStatus returns the number of batches per status
	GetBatchCountsByStatus(ctx context.Context) (map[string]int64, error)

	// GetExpiringBatchCount returns the number of active batches holding
	// stock that expire within the given window, including already expired
	GetExpiringBatchCount(ctx context.Context, windowDays int) (int64, error)

	// GetStockValueAtCost returns remaining quantity valued at cost price,
	// summed across all active batches
	GetStockValueAtCost(ctx context.Context) (decimal.Decimal, error)
}

// StockMetricsConfig holds configuration for stock metrics.
type StockMetricsConfig struct {
	Meter            metric.Meter
	Logger           *zap.Logger
	StockProvider    StockLevelProvider
	ExpiryWindowDays int // Default: 30
}

// NewStockMetrics creates a new StockMetrics instance.
func NewStockMetrics(cfg StockMetricsConfig) (*StockMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	expiryWindowDays := cfg.ExpiryWindowDays
	if expiryWindowDays <= 0 {
		expiryWindowDays = 30
	}

	sm := &StockMetrics{
		logger:           logger,
		stopChan:         make(chan struct{}),
		stockProvider:    cfg.StockProvider,
		expiryWindowDays: expiryWindowDays,
	}

	var err error

	// Allocation metrics
	sm.allocationTotal, err = NewCounter(
		cfg.Meter,
		"stock_allocation_total",
		"Total number of stock allocation requests by result",
		"{allocations}",
	)
	if err != nil {
		return nil, err
	}

	sm.allocationRetryTotal, err = NewCounter(
		cfg.Meter,
		"stock_allocation_retry_total",
		"Total number of allocation attempts retried after concurrent write conflicts",
		"{retries}",
	)
	if err != nil {
		return nil, err
	}

	sm.allocationDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "stock_allocation_duration_seconds",
		Description: "Stock allocation latency distribution in seconds, including retries",
		Unit:        "s",
		Boundaries:  AllocationDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	// Ledger metrics
	sm.movementTotal, err = NewCounter(
		cfg.Meter,
		"stock_movement_total",
		"Total number of movement records appended to the ledger by type",
		"{movements}",
	)
	if err != nil {
		return nil, err
	}

	sm.reversalTotal, err = NewCounter(
		cfg.Meter,
		"stock_reversal_total",
		"Total number of compensating reversal movements recorded",
		"{reversals}",
	)
	if err != nil {
		return nil, err
	}

	// Batch lifecycle metrics
	sm.batchReceivedTotal, err = NewCounter(
		cfg.Meter,
		"stock_batch_received_total",
		"Total number of batches received into stock",
		"{batches}",
	)
	if err != nil {
		return nil, err
	}

	sm.batchDepletedTotal, err = NewCounter(
		cfg.Meter,
		"stock_batch_depleted_total",
		"Total number of batches fully consumed by allocation",
		"{batches}",
	)
	if err != nil {
		return nil, err
	}

	// Inventory gauge metrics
	sm.batchCount, err = NewGauge(
		cfg.Meter,
		"stock_batch_count",
		"Current number of batches by status",
		"{batches}",
	)
	if err != nil {
		return nil, err
	}

	sm.expiringBatchCount, err = NewGauge(
		cfg.Meter,
		"stock_batch_expiring_count",
		"Number of active batches holding stock that expire within the configured window",
		"{batches}",
	)
	if err != nil {
		return nil, err
	}

	sm.stockValueAtCost, err = NewFloatGauge(
		cfg.Meter,
		"stock_value_at_cost",
		"Remaining stock valued at batch cost price",
		"{currency}",
	)
	if err != nil {
		return nil, err
	}

	return sm, nil
}

// AllocationResult labels the outcome of an allocation request.
type AllocationResult string

const (
	AllocationResultAllocated    AllocationResult = "allocated"
	AllocationResultInsufficient AllocationResult = "insufficient_stock"
	AllocationResultConflict     AllocationResult = "conflict"
	AllocationResultError        AllocationResult = "error"
)

// RecordAllocation records one allocation request with its outcome and total
// duration including retries. Call this once per request from the
// application layer.
func (sm *StockMetrics) RecordAllocation(ctx context.Context, result AllocationResult, duration time.Duration) {
	sm.allocationTotal.Inc(ctx, AttrAllocationResult.String(string(result)))
	sm.allocationDuration.RecordDuration(ctx, duration, AttrAllocationResult.String(string(result)))
}

// RecordAllocationRetry records one whole-attempt retry after a concurrent
// write conflict.
func (sm *StockMetrics) RecordAllocationRetry(ctx context.Context) {
	sm.allocationRetryTotal.Inc(ctx)
}

// RecordMovement records one movement appended to the ledger.
func (sm *StockMetrics) RecordMovement(ctx context.Context, movementType string) {
	sm.movementTotal.Inc(ctx, AttrMovementType.String(movementType))
}

// RecordReversal records one compensating reversal movement.
func (sm *StockMetrics) RecordReversal(ctx context.Context, movementType string) {
	sm.reversalTotal.Inc(ctx, AttrMovementType.String(movementType))
}

// RecordBatchReceived records one batch received into stock.
func (sm *StockMetrics) RecordBatchReceived(ctx context.Context) {
	sm.batchReceivedTotal.Inc(ctx)
}

// RecordBatchDepleted records one batch emptied by allocation.
func (sm *StockMetrics) RecordBatchDepleted(ctx context.Context) {
	sm.batchDepletedTotal.Inc(ctx)
}

// StartPeriodicCollection starts periodic collection of gauge metrics from
// the configured provider (default interval: 5 minutes). This is
// non-blocking; use Stop() to stop collection.
func (sm *StockMetrics) StartPeriodicCollection(ctx context.Context, interval time.Duration) {
	sm.collectOnce.Do(func() {
		if interval <= 0 {
			interval = 5 * time.Minute
		}

		go sm.runPeriodicCollection(ctx, interval)
	})
}

// runPeriodicCollection runs the periodic collection loop.
func (sm *StockMetrics) runPeriodicCollection(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Collect immediately on start
	sm.collectStockGauges(ctx)

	for {
		select {
		case <-sm.stopChan:
			sm.logger.Info("Stopping periodic stock metrics collection")
			return
		case <-ctx.Done():
			sm.logger.Info("Context cancelled, stopping periodic stock metrics collection")
			return
		case <-ticker.C:
			sm.collectStockGauges(ctx)
		}
	}
}

// collectStockGauges queries the provider and records the gauge metrics.
// Individual query failures are logged and skipped so one bad query does not
// starve the other gauges.
func (sm *StockMetrics) collectStockGauges(ctx context.Context) {
	if sm.stockProvider == nil {
		sm.logger.Debug("No stock provider configured, skipping stock metrics collection")
		return
	}

	countsByStatus, err := sm.stockProvider.GetBatchCountsByStatus(ctx)
	if err != nil {
		sm.logger.Warn("Failed to get batch counts for metrics collection", zap.Error(err))
	} else {
		for status, count := range countsByStatus {
			sm.batchCount.Record(ctx, count, AttrBatchStatus.String(status))
		}
	}

	expiringCount, err := sm.stockProvider.GetExpiringBatchCount(ctx, sm.expiryWindowDays)
	if err != nil {
		sm.logger.Warn("Failed to get expiring batch count for metrics collection", zap.Error(err))
	} else {
		sm.expiringBatchCount.Record(ctx, expiringCount)
	}

	valueAtCost, err := sm.stockProvider.GetStockValueAtCost(ctx)
	if err != nil {
		sm.logger.Warn("Failed to get stock value for metrics collection", zap.Error(err))
	} else {
		sm.stockValueAtCost.Record(ctx, valueAtCost.InexactFloat64())
	}
}

// Stop stops the periodic collection.
func (sm *StockMetrics) Stop() {
	sm.stopOnce.Do(func() {
		close(sm.stopChan)
	})
}

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewStockMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
