package inventory

import (
	"context"
	"iter"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stockledger/backend/internal/domain/shared"
)

// DateRange bounds a movement history query. From is inclusive and To is
// exclusive; a nil bound leaves that side open.
type DateRange struct {
	From *time.Time
	To   *time.Time
}

// DailyMovementSummary aggregates one day's movements of a single type
type DailyMovementSummary struct {
	MovementType  MovementType    `json:"movement_type"`
	MovementCount int64           `json:"movement_count"`
	QuantityIn    decimal.Decimal `json:"quantity_in"`
	QuantityOut   decimal.Decimal `json:"quantity_out"`
	NetChange     decimal.Decimal `json:"net_change"`
}

// BatchRepository persists product batches. Batches are never deleted;
// closed batches remain behind as audit history.
type BatchRepository interface {
	Create(ctx context.Context, batch *Batch) error
	FindByID(ctx context.Context, id uuid.UUID) (*Batch, error)
	FindByBatchNumber(ctx context.Context, productID uuid.UUID, batchNumber string) (*Batch, error)
	FindByProduct(ctx context.Context, productID uuid.UUID, filter shared.Filter) ([]*Batch, int64, error)
	// ListActiveOrdered returns a product's active batches in consumption
	// order: purchase date ascending, receipt order breaking ties.
	ListActiveOrdered(ctx context.Context, productID uuid.UUID) ([]*Batch, error)
	// ListAllWithStock returns every batch holding quantity, across products.
	ListAllWithStock(ctx context.Context) ([]*Batch, error)
	// FindExpiringWithin returns active batches holding quantity whose
	// expiry date falls on or before now plus the given number of days,
	// including batches already expired.
	FindExpiringWithin(ctx context.Context, days int) ([]*Batch, error)
	// SaveWithLock persists the batch guarded by its version column and
	// reports a concurrency conflict when another writer got there first.
	SaveWithLock(ctx context.Context, batch *Batch) error
	// ApplyDelta moves a batch quantity by a signed delta, guarded by the
	// exact quantity the caller last observed. The write succeeds only
	// against an open batch whose quantity still matches expectedCurrent;
	// landing on zero closes the batch as depleted and a positive result
	// reopens a depleted batch.
	ApplyDelta(ctx context.Context, batchID uuid.UUID, delta, expectedCurrent decimal.Decimal) error
}

// MovementRepository persists the append-only stock movement ledger
type MovementRepository interface {
	Append(ctx context.Context, record *MovementRecord) error
	// HistoryByProduct streams a product's movements ordered by occurrence
	// time ascending. The sequence is lazy and restartable: iteration pulls
	// pages on demand and ranging over it again re-runs the query.
	HistoryByProduct(ctx context.Context, productID uuid.UUID, dateRange DateRange) iter.Seq2[*MovementRecord, error]
	// SummarizeDay aggregates one product's movements for the UTC day
	// containing the given time into per-type totals.
	SummarizeDay(ctx context.Context, productID uuid.UUID, day time.Time) ([]DailyMovementSummary, error)
	// ProductIDsWithMovements lists the distinct products that recorded at
	// least one movement during the UTC day containing the given time.
	ProductIDsWithMovements(ctx context.Context, day time.Time) ([]uuid.UUID, error)
}

// ProductRepository persists the product stock aggregates
type ProductRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Product, error)
	// GetOrCreate returns the product with the given ID, creating a zero
	// stock row on first receipt. Races between concurrent creators resolve
	// to the single surviving row.
	GetOrCreate(ctx context.Context, productID uuid.UUID, name, sku, unit string) (*Product, error)
	SaveWithLock(ctx context.Context, product *Product) error
}
