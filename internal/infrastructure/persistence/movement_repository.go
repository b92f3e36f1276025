package persistence

import (
	"context"
	"iter"
	"time"

	"github.com/google/uuid"
	"github.com/stockledger/backend/internal/domain/inventory"
	"gorm.io/gorm"
)

// historyPageSize is how many movement rows each history page pulls
const historyPageSize = 200

// GormMovementRepository implements MovementRepository using GORM
type GormMovementRepository struct {
	db *gorm.DB
}

// NewGormMovementRepository creates a new GormMovementRepository
func NewGormMovementRepository(db *gorm.DB) *GormMovementRepository {
	return &GormMovementRepository{db: db}
}

// Append inserts a movement record. The ledger is insert-only.
func (r *GormMovementRepository) Append(ctx context.Context, record *inventory.MovementRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// HistoryByProduct streams a product's movements oldest first. Pages are
// pulled on demand with a keyset cursor on (occurred_at, id); ranging over
// the sequence again re-runs the query from the start.
func (r *GormMovementRepository) HistoryByProduct(ctx context.Context, productID uuid.UUID, dateRange inventory.DateRange) iter.Seq2[*inventory.MovementRecord, error] {
	return func(yield func(*inventory.MovementRecord, error) bool) {
		var afterTime time.Time
		var afterID uuid.UUID
		first := true

		for {
			query := r.db.WithContext(ctx).
				Where("product_id = ?", productID).
				Order("occurred_at ASC, id ASC").
				Limit(historyPageSize)
			if dateRange.From != nil {
				query = query.Where("occurred_at >= ?", *dateRange.From)
			}
			if dateRange.To != nil {
				query = query.Where("occurred_at < ?", *dateRange.To)
			}
			if !first {
				query = query.Where("(occurred_at, id) > (?, ?)", afterTime, afterID)
			}

			var page []*inventory.MovementRecord
			if err := query.Find(&page).Error; err != nil {
				yield(nil, err)
				return
			}

			for _, record := range page {
				if !yield(record, nil) {
					return
				}
			}

			if len(page) < historyPageSize {
				return
			}
			last := page[len(page)-1]
			afterTime = last.OccurredAt
			afterID = last.ID
			first = false
		}
	}
}

// SummarizeDay aggregates one product's movements for the UTC day containing
// the given time into per-type totals. Outbound quantity is reported as a
// positive magnitude.
func (r *GormMovementRepository) SummarizeDay(ctx context.Context, productID uuid.UUID, day time.Time) ([]inventory.DailyMovementSummary, error) {
	dayStart := day.UTC().Truncate(24 * time.Hour)
	dayEnd := dayStart.Add(24 * time.Hour)

	var summaries []inventory.DailyMovementSummary
	err := r.db.WithContext(ctx).
		Model(&inventory.MovementRecord{}).
		Select(`
			movement_type,
			COUNT(*) as movement_count,
			COALESCE(SUM(CASE WHEN quantity_delta > 0 THEN quantity_delta ELSE 0 END), 0) as quantity_in,
			COALESCE(SUM(CASE WHEN quantity_delta < 0 THEN -quantity_delta ELSE 0 END), 0) as quantity_out,
			COALESCE(SUM(quantity_delta), 0) as net_change
		`).
		Where("product_id = ?", productID).
		Where("occurred_at >= ? AND occurred_at < ?", dayStart, dayEnd).
		Group("movement_type").
		Order("movement_type ASC").
		Scan(&summaries).Error
	if err != nil {
		return nil, err
	}
	return summaries, nil
}

// ProductIDsWithMovements lists the distinct products that recorded at least
// one movement during the UTC day containing the given time.
func (r *GormMovementRepository) ProductIDsWithMovements(ctx context.Context, day time.Time) ([]uuid.UUID, error) {
	dayStart := day.UTC().Truncate(24 * time.Hour)
	dayEnd := dayStart.Add(24 * time.Hour)

	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&inventory.MovementRecord{}).
		Distinct("product_id").
		Where("occurred_at >= ? AND occurred_at < ?", dayStart, dayEnd).
		Order("product_id ASC").
		Pluck("product_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Ensure GormMovementRepository implements MovementRepository
var _ inventory.MovementRepository = (*GormMovementRepository)(nil)
