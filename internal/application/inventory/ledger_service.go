package inventory

import (
	"context"
	"iter"
	"time"

	"github.com/google/uuid"
	"github.com/stockledger/backend/internal/domain/inventory"
	"github.com/stockledger/backend/internal/domain/shared"
)

// LedgerService exposes read access to the stock movement ledger: streamed
// per-product history and per-day aggregation. Writes to the ledger happen
// only as part of the stock mutations in the other services.
type LedgerService struct {
	movementRepo inventory.MovementRepository
}

// NewLedgerService creates a new LedgerService
func NewLedgerService(movementRepo inventory.MovementRepository) *LedgerService {
	return &LedgerService{movementRepo: movementRepo}
}

// History streams a product's movements in occurrence order, oldest first.
// The returned sequence is lazy: rows are fetched as the caller iterates,
// and ranging over it a second time re-runs the query from the start.
func (s *LedgerService) History(ctx context.Context, productID uuid.UUID, dateRange inventory.DateRange) (iter.Seq2[MovementResponse, error], error) {
	if productID == uuid.Nil {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Product ID is required")
	}
	if dateRange.From != nil && dateRange.To != nil && dateRange.To.Before(*dateRange.From) {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "History range end predates its start")
	}

	records := s.movementRepo.HistoryByProduct(ctx, productID, dateRange)
	return func(yield func(MovementResponse, error) bool) {
		for record, err := range records {
			if err != nil {
				yield(MovementResponse{}, err)
				return
			}
			if !yield(ToMovementResponse(record), nil) {
				return
			}
		}
	}, nil
}

// DailySummary aggregates one product's movements for the UTC day containing
// the given time into one row per movement type. A zero time means today.
func (s *LedgerService) DailySummary(ctx context.Context, productID uuid.UUID, day time.Time) ([]inventory.DailyMovementSummary, error) {
	if productID == uuid.Nil {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Product ID is required")
	}
	if day.IsZero() {
		day = time.Now().UTC()
	}
	return s.movementRepo.SummarizeDay(ctx, productID, day)
}
