package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stockledger/backend/internal/domain/inventory"
	"github.com/stockledger/backend/internal/infrastructure/telemetry"
)

// ExpiryReporter surfaces batches whose expiry date falls inside a window,
// grouped per product with the most urgent first
type ExpiryReporter interface {
	ExpiringBatches(ctx context.Context, daysWindow int) ([]inventory.ProductExpiryGroup, error)
}

// LedgerDigest aggregates ledger activity per product and day. The movement
// repository satisfies it directly.
type LedgerDigest interface {
	ProductIDsWithMovements(ctx context.Context, day time.Time) ([]uuid.UUID, error)
	SummarizeDay(ctx context.Context, productID uuid.UUID, day time.Time) ([]inventory.DailyMovementSummary, error)
}

// SnapshotWarmer recomputes a product's valuation snapshot, refreshing any
// cache behind it
type SnapshotWarmer interface {
	ValuateProduct(ctx context.Context, productID uuid.UUID) (*inventory.ValuationSnapshot, error)
}

const defaultExpiryWindowDays = 30

// MaintenanceExecutor runs the nightly maintenance jobs against the stock
// ledger read sides: the expiry scan and the daily summary precompute
type MaintenanceExecutor struct {
	expiry ExpiryReporter
	ledger LedgerDigest
	logger *zap.Logger

	// Optional valuation re-warming after each summary (nil skips it)
	snapshots        SnapshotWarmer
	expiryWindowDays int
}

// NewMaintenanceExecutor creates a new maintenance executor
func NewMaintenanceExecutor(expiry ExpiryReporter, ledger LedgerDigest, logger *zap.Logger) *MaintenanceExecutor {
	return &MaintenanceExecutor{
		expiry:           expiry,
		ledger:           ledger,
		logger:           logger,
		expiryWindowDays: defaultExpiryWindowDays,
	}
}

// SetSnapshotWarmer enables valuation snapshot re-warming during the daily
// summary job
func (e *MaintenanceExecutor) SetSnapshotWarmer(warmer SnapshotWarmer) {
	e.snapshots = warmer
}

// SetExpiryWindow overrides how many days ahead the expiry scan looks
func (e *MaintenanceExecutor) SetExpiryWindow(days int) {
	if days > 0 {
		e.expiryWindowDays = days
	}
}

// Execute dispatches the job to its handler
func (e *MaintenanceExecutor) Execute(ctx context.Context, job *Job) error {
	switch job.Type {
	case JobTypeExpiryScan:
		return e.runExpiryScan(ctx)
	case JobTypeDailySummary:
		return e.runDailySummary(ctx, job.Day)
	default:
		return fmt.Errorf("%w: %s", ErrInvalidJobType, job.Type)
	}
}

// runExpiryScan reports every active batch expiring inside the window.
// Batches already past expiry but still holding stock are escalated to
// warnings so they surface in alerting.
func (e *MaintenanceExecutor) runExpiryScan(ctx context.Context) error {
	var runErr error

	telemetry.WithProfilingLabels(ctx, telemetry.JobLabels("expiry_scan", nil), func(c context.Context) {
		groups, err := e.expiry.ExpiringBatches(c, e.expiryWindowDays)
		if err != nil {
			runErr = err
			return
		}

		if len(groups) == 0 {
			e.logger.Info("No batches expiring within window",
				zap.Int("window_days", e.expiryWindowDays))
			return
		}

		totalBatches := 0
		totalExpired := 0
		for _, group := range groups {
			if len(group.Batches) == 0 {
				continue
			}

			expired := 0
			for _, batch := range group.Batches {
				if batch.Expired {
					expired++
				}
			}
			totalBatches += len(group.Batches)
			totalExpired += expired

			// Batches are sorted most urgent first
			soonest := group.Batches[0]
			if expired > 0 {
				e.logger.Warn("Batches past expiry still hold stock",
					zap.String("product_id", group.ProductID.String()),
					zap.Int("expired_batches", expired),
					zap.String("oldest_batch", soonest.BatchNumber),
					zap.String("location", soonest.Location),
					zap.Int("days_overdue", -soonest.DaysUntilExpiry),
				)
			} else {
				e.logger.Info("Batches approaching expiry",
					zap.String("product_id", group.ProductID.String()),
					zap.Int("batch_count", len(group.Batches)),
					zap.String("next_batch", soonest.BatchNumber),
					zap.String("location", soonest.Location),
					zap.Int("days_until_expiry", soonest.DaysUntilExpiry),
				)
			}
		}

		e.logger.Info("Expiry scan completed",
			zap.Int("window_days", e.expiryWindowDays),
			zap.Int("products", len(groups)),
			zap.Int("batches", totalBatches),
			zap.Int("expired", totalExpired),
		)
	})

	return runErr
}

// runDailySummary precomputes the per-product movement summaries for the
// given day and re-warms the valuation snapshot of every product that moved.
// Individual product failures are logged and skipped; the job only fails
// when nothing could be computed.
func (e *MaintenanceExecutor) runDailySummary(ctx context.Context, day time.Time) error {
	var runErr error

	telemetry.WithProfilingLabels(ctx, telemetry.JobLabels("daily_summary", nil), func(c context.Context) {
		productIDs, err := e.ledger.ProductIDsWithMovements(c, day)
		if err != nil {
			runErr = err
			return
		}

		if len(productIDs) == 0 {
			e.logger.Info("No ledger activity to summarize", zap.Time("day", day))
			return
		}

		computed := 0
		failed := 0
		warmed := 0
		for _, productID := range productIDs {
			select {
			case <-c.Done():
				runErr = c.Err()
				return
			default:
			}

			summaries, err := e.ledger.SummarizeDay(c, productID, day)
			if err != nil {
				e.logger.Error("Failed to summarize product movements",
					zap.String("product_id", productID.String()),
					zap.Time("day", day),
					zap.Error(err),
				)
				failed++
				continue
			}
			computed++
			e.logger.Debug("Daily movement summary computed",
				zap.String("product_id", productID.String()),
				zap.Int("movement_types", len(summaries)),
			)

			if e.snapshots == nil {
				continue
			}
			if _, err := e.snapshots.ValuateProduct(c, productID); err != nil {
				e.logger.Warn("Failed to re-warm valuation snapshot",
					zap.String("product_id", productID.String()),
					zap.Error(err),
				)
				continue
			}
			warmed++
		}

		e.logger.Info("Daily summary precompute completed",
			zap.Time("day", day),
			zap.Int("products", len(productIDs)),
			zap.Int("computed", computed),
			zap.Int("failed", failed),
			zap.Int("snapshots_warmed", warmed),
		)

		if computed == 0 && failed > 0 {
			runErr = fmt.Errorf("%w: all %d products failed", ErrSummaryComputationFailed, failed)
		}
	})

	return runErr
}

// Ensure MaintenanceExecutor implements JobExecutor
var _ JobExecutor = (*MaintenanceExecutor)(nil)
