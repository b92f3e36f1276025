package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockledger/backend/internal/domain/inventory"
)

// fakeExpiryReporter implements ExpiryReporter for testing
type fakeExpiryReporter struct {
	groups    []inventory.ProductExpiryGroup
	err       error
	gotWindow int32
}

func (f *fakeExpiryReporter) ExpiringBatches(ctx context.Context, daysWindow int) ([]inventory.ProductExpiryGroup, error) {
	atomic.StoreInt32(&f.gotWindow, int32(daysWindow))
	return f.groups, f.err
}

// fakeLedgerDigest implements LedgerDigest for testing
type fakeLedgerDigest struct {
	productIDsFunc func(ctx context.Context, day time.Time) ([]uuid.UUID, error)
	summarizeFunc  func(ctx context.Context, productID uuid.UUID, day time.Time) ([]inventory.DailyMovementSummary, error)
	summarizeCalls int32
}

func (f *fakeLedgerDigest) ProductIDsWithMovements(ctx context.Context, day time.Time) ([]uuid.UUID, error) {
	if f.productIDsFunc != nil {
		return f.productIDsFunc(ctx, day)
	}
	return nil, nil
}

func (f *fakeLedgerDigest) SummarizeDay(ctx context.Context, productID uuid.UUID, day time.Time) ([]inventory.DailyMovementSummary, error) {
	atomic.AddInt32(&f.summarizeCalls, 1)
	if f.summarizeFunc != nil {
		return f.summarizeFunc(ctx, productID, day)
	}
	return nil, nil
}

// fakeSnapshotWarmer implements SnapshotWarmer for testing
type fakeSnapshotWarmer struct {
	err   error
	calls int32
}

func (f *fakeSnapshotWarmer) ValuateProduct(ctx context.Context, productID uuid.UUID) (*inventory.ValuationSnapshot, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	return &inventory.ValuationSnapshot{ProductID: productID}, nil
}

func expiryGroup(daysUntil int, expired bool) inventory.ProductExpiryGroup {
	return inventory.ProductExpiryGroup{
		ProductID: uuid.New(),
		Batches: []inventory.ExpiringBatch{
			{
				BatchID:         uuid.New(),
				BatchNumber:     "BATCH-2024-001",
				Quantity:        decimal.NewFromInt(25),
				ExpiryDate:      time.Now().AddDate(0, 0, daysUntil),
				DaysUntilExpiry: daysUntil,
				Expired:         expired,
			},
		},
	}
}

func summaryRows() []inventory.DailyMovementSummary {
	return []inventory.DailyMovementSummary{
		{
			MovementType:  inventory.MovementTypeSale,
			MovementCount: 4,
			QuantityIn:    decimal.Zero,
			QuantityOut:   decimal.NewFromInt(12),
			NetChange:     decimal.NewFromInt(-12),
		},
	}
}

func TestMaintenanceExecutor_ExpiryScan(t *testing.T) {
	reporter := &fakeExpiryReporter{
		groups: []inventory.ProductExpiryGroup{
			expiryGroup(-3, true), // overdue
			expiryGroup(12, false),
		},
	}
	executor := NewMaintenanceExecutor(reporter, &fakeLedgerDigest{}, newTestLogger())

	job := NewJob(JobTypeExpiryScan, time.Now(), 0)
	err := executor.Execute(context.Background(), job)

	require.NoError(t, err)
	assert.Equal(t, int32(30), atomic.LoadInt32(&reporter.gotWindow))
}

func TestMaintenanceExecutor_ExpiryScan_CustomWindow(t *testing.T) {
	reporter := &fakeExpiryReporter{}
	executor := NewMaintenanceExecutor(reporter, &fakeLedgerDigest{}, newTestLogger())

	executor.SetExpiryWindow(7)
	require.NoError(t, executor.Execute(context.Background(), NewJob(JobTypeExpiryScan, time.Now(), 0)))
	assert.Equal(t, int32(7), atomic.LoadInt32(&reporter.gotWindow))

	// Non-positive windows are ignored
	executor.SetExpiryWindow(0)
	require.NoError(t, executor.Execute(context.Background(), NewJob(JobTypeExpiryScan, time.Now(), 0)))
	assert.Equal(t, int32(7), atomic.LoadInt32(&reporter.gotWindow))
}

func TestMaintenanceExecutor_ExpiryScan_NothingExpiring(t *testing.T) {
	executor := NewMaintenanceExecutor(&fakeExpiryReporter{}, &fakeLedgerDigest{}, newTestLogger())

	err := executor.Execute(context.Background(), NewJob(JobTypeExpiryScan, time.Now(), 0))

	assert.NoError(t, err)
}

func TestMaintenanceExecutor_ExpiryScan_QueryError(t *testing.T) {
	queryErr := errors.New("connection refused")
	executor := NewMaintenanceExecutor(&fakeExpiryReporter{err: queryErr}, &fakeLedgerDigest{}, newTestLogger())

	err := executor.Execute(context.Background(), NewJob(JobTypeExpiryScan, time.Now(), 0))

	assert.ErrorIs(t, err, queryErr)
}

func TestMaintenanceExecutor_DailySummary(t *testing.T) {
	day := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	products := []uuid.UUID{uuid.New(), uuid.New()}

	var gotDay time.Time
	ledger := &fakeLedgerDigest{
		productIDsFunc: func(ctx context.Context, d time.Time) ([]uuid.UUID, error) {
			gotDay = d
			return products, nil
		},
		summarizeFunc: func(ctx context.Context, productID uuid.UUID, d time.Time) ([]inventory.DailyMovementSummary, error) {
			return summaryRows(), nil
		},
	}
	warmer := &fakeSnapshotWarmer{}

	executor := NewMaintenanceExecutor(&fakeExpiryReporter{}, ledger, newTestLogger())
	executor.SetSnapshotWarmer(warmer)

	err := executor.Execute(context.Background(), NewJob(JobTypeDailySummary, day, 0))

	require.NoError(t, err)
	assert.Equal(t, day, gotDay)
	assert.Equal(t, int32(2), atomic.LoadInt32(&ledger.summarizeCalls))
	assert.Equal(t, int32(2), atomic.LoadInt32(&warmer.calls))
}

func TestMaintenanceExecutor_DailySummary_NoMovements(t *testing.T) {
	ledger := &fakeLedgerDigest{}
	executor := NewMaintenanceExecutor(&fakeExpiryReporter{}, ledger, newTestLogger())

	err := executor.Execute(context.Background(), NewJob(JobTypeDailySummary, time.Now(), 0))

	require.NoError(t, err)
	assert.Zero(t, atomic.LoadInt32(&ledger.summarizeCalls))
}

func TestMaintenanceExecutor_DailySummary_ListError(t *testing.T) {
	listErr := errors.New("relation does not exist")
	ledger := &fakeLedgerDigest{
		productIDsFunc: func(ctx context.Context, d time.Time) ([]uuid.UUID, error) {
			return nil, listErr
		},
	}
	executor := NewMaintenanceExecutor(&fakeExpiryReporter{}, ledger, newTestLogger())

	err := executor.Execute(context.Background(), NewJob(JobTypeDailySummary, time.Now(), 0))

	assert.ErrorIs(t, err, listErr)
}

func TestMaintenanceExecutor_DailySummary_PartialFailure(t *testing.T) {
	good := uuid.New()
	bad := uuid.New()

	ledger := &fakeLedgerDigest{
		productIDsFunc: func(ctx context.Context, d time.Time) ([]uuid.UUID, error) {
			return []uuid.UUID{good, bad}, nil
		},
		summarizeFunc: func(ctx context.Context, productID uuid.UUID, d time.Time) ([]inventory.DailyMovementSummary, error) {
			if productID == bad {
				return nil, errors.New("query timeout")
			}
			return summaryRows(), nil
		},
	}
	executor := NewMaintenanceExecutor(&fakeExpiryReporter{}, ledger, newTestLogger())

	// One product failing does not fail the run
	err := executor.Execute(context.Background(), NewJob(JobTypeDailySummary, time.Now(), 0))

	assert.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&ledger.summarizeCalls))
}

func TestMaintenanceExecutor_DailySummary_AllFailed(t *testing.T) {
	ledger := &fakeLedgerDigest{
		productIDsFunc: func(ctx context.Context, d time.Time) ([]uuid.UUID, error) {
			return []uuid.UUID{uuid.New(), uuid.New()}, nil
		},
		summarizeFunc: func(ctx context.Context, productID uuid.UUID, d time.Time) ([]inventory.DailyMovementSummary, error) {
			return nil, errors.New("query timeout")
		},
	}
	executor := NewMaintenanceExecutor(&fakeExpiryReporter{}, ledger, newTestLogger())

	err := executor.Execute(context.Background(), NewJob(JobTypeDailySummary, time.Now(), 0))

	assert.ErrorIs(t, err, ErrSummaryComputationFailed)
}

func TestMaintenanceExecutor_DailySummary_WarmerFailure(t *testing.T) {
	ledger := &fakeLedgerDigest{
		productIDsFunc: func(ctx context.Context, d time.Time) ([]uuid.UUID, error) {
			return []uuid.UUID{uuid.New()}, nil
		},
		summarizeFunc: func(ctx context.Context, productID uuid.UUID, d time.Time) ([]inventory.DailyMovementSummary, error) {
			return summaryRows(), nil
		},
	}
	warmer := &fakeSnapshotWarmer{err: errors.New("cache unavailable")}

	executor := NewMaintenanceExecutor(&fakeExpiryReporter{}, ledger, newTestLogger())
	executor.SetSnapshotWarmer(warmer)

	// Warming is best effort; a cache failure does not fail the run
	err := executor.Execute(context.Background(), NewJob(JobTypeDailySummary, time.Now(), 0))

	assert.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&warmer.calls))
}

func TestMaintenanceExecutor_DailySummary_NoWarmer(t *testing.T) {
	ledger := &fakeLedgerDigest{
		productIDsFunc: func(ctx context.Context, d time.Time) ([]uuid.UUID, error) {
			return []uuid.UUID{uuid.New()}, nil
		},
		summarizeFunc: func(ctx context.Context, productID uuid.UUID, d time.Time) ([]inventory.DailyMovementSummary, error) {
			return summaryRows(), nil
		},
	}
	executor := NewMaintenanceExecutor(&fakeExpiryReporter{}, ledger, newTestLogger())

	err := executor.Execute(context.Background(), NewJob(JobTypeDailySummary, time.Now(), 0))

	assert.NoError(t, err)
}

func TestMaintenanceExecutor_DailySummary_ContextCancelled(t *testing.T) {
	ledger := &fakeLedgerDigest{
		productIDsFunc: func(ctx context.Context, d time.Time) ([]uuid.UUID, error) {
			return []uuid.UUID{uuid.New(), uuid.New()}, nil
		},
	}
	executor := NewMaintenanceExecutor(&fakeExpiryReporter{}, ledger, newTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := executor.Execute(ctx, NewJob(JobTypeDailySummary, time.Now(), 0))

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, atomic.LoadInt32(&ledger.summarizeCalls))
}

func TestMaintenanceExecutor_UnknownJobType(t *testing.T) {
	executor := NewMaintenanceExecutor(&fakeExpiryReporter{}, &fakeLedgerDigest{}, newTestLogger())

	job := NewJob(JobType("VACUUM"), time.Now(), 0)
	err := executor.Execute(context.Background(), job)

	assert.ErrorIs(t, err, ErrInvalidJobType)
}
