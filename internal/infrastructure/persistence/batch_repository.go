package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stockledger/backend/internal/domain/inventory"
	"github.com/stockledger/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// GormBatchRepository implements BatchRepository using GORM
type GormBatchRepository struct {
	db *gorm.DB
}

// NewGormBatchRepository creates a new GormBatchRepository
func NewGormBatchRepository(db *gorm.DB) *GormBatchRepository {
	return &GormBatchRepository{db: db}
}

// Create inserts a new batch. A unique index on (product_id, batch_number)
// backs up the service-level duplicate check against concurrent receipts.
func (r *GormBatchRepository) Create(ctx context.Context, batch *inventory.Batch) error {
	if err := r.db.WithContext(ctx).Create(batch).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.NewDomainError("DUPLICATE_BATCH_NUMBER",
				"A batch with this batch number already exists for the product")
		}
		return err
	}
	return nil
}

// FindByID finds a batch by its ID
func (r *GormBatchRepository) FindByID(ctx context.Context, id uuid.UUID) (*inventory.Batch, error) {
	var batch inventory.Batch
	if err := r.db.WithContext(ctx).First(&batch, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrBatchNotFound
		}
		return nil, err
	}
	return &batch, nil
}

// FindByBatchNumber finds a batch by its number within a product
func (r *GormBatchRepository) FindByBatchNumber(ctx context.Context, productID uuid.UUID, batchNumber string) (*inventory.Batch, error) {
	var batch inventory.Batch
	if err := r.db.WithContext(ctx).
		Where("product_id = ? AND batch_number = ?", productID, batchNumber).
		First(&batch).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrBatchNotFound
		}
		return nil, err
	}
	return &batch, nil
}

// FindByProduct finds all batches of a product with pagination
func (r *GormBatchRepository) FindByProduct(ctx context.Context, productID uuid.UUID, filter shared.Filter) ([]*inventory.Batch, int64, error) {
	base := r.db.WithContext(ctx).Model(&inventory.Batch{}).Where("product_id = ?", productID)

	var total int64
	if err := r.applyFilterWithoutPagination(base.Session(&gorm.Session{}), filter).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var batches []*inventory.Batch
	if err := r.applyFilter(base.Session(&gorm.Session{}), filter).
		Find(&batches).Error; err != nil {
		return nil, 0, err
	}
	return batches, total, nil
}

// ListActiveOrdered returns a product's active batches in consumption order:
// oldest purchase first, receipt order breaking same-day ties.
func (r *GormBatchRepository) ListActiveOrdered(ctx context.Context, productID uuid.UUID) ([]*inventory.Batch, error) {
	var batches []*inventory.Batch
	if err := r.db.WithContext(ctx).
		Where("product_id = ? AND status = ?", productID, inventory.BatchStatusActive).
		Order("purchase_date ASC, created_at ASC, id ASC").
		Find(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}

// ListAllWithStock returns every batch still holding quantity, across products
func (r *GormBatchRepository) ListAllWithStock(ctx context.Context) ([]*inventory.Batch, error) {
	var batches []*inventory.Batch
	if err := r.db.WithContext(ctx).
		Where("current_quantity > 0").
		Order("product_id ASC, purchase_date ASC, created_at ASC").
		Find(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}

// FindExpiringWithin returns active batches holding stock whose expiry date
// falls within the window, including batches already past it
func (r *GormBatchRepository) FindExpiringWithin(ctx context.Context, days int) ([]*inventory.Batch, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, days)
	var batches []*inventory.Batch
	if err := r.db.WithContext(ctx).
		Where("status = ? AND current_quantity > 0 AND expiry_date IS NOT NULL AND expiry_date <= ?",
			inventory.BatchStatusActive, cutoff).
		Order("expiry_date ASC, product_id ASC").
		Find(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}

// SaveWithLock saves with optimistic locking (checks version)
func (r *GormBatchRepository) SaveWithLock(ctx context.Context, batch *inventory.Batch) error {
	result := r.db.WithContext(ctx).
		Model(batch).
		Where("id = ? AND version = ?", batch.ID, batch.Version-1).
		Updates(map[string]interface{}{
			"current_quantity":  batch.CurrentQuantity,
			"reserved_quantity": batch.ReservedQuantity,
			"status":            batch.Status,
			"location":          batch.Location,
			"notes":             batch.Notes,
			"version":           batch.Version,
			"updated_at":        batch.UpdatedAt,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.NewDomainError("CONCURRENCY_CONFLICT",
			"Batch was modified by another transaction")
	}
	return nil
}

// ApplyDelta moves a batch quantity by a signed delta in a single guarded
// UPDATE. The write only lands on an open batch whose quantity still equals
// expectedCurrent; the status column follows the resulting quantity, so a
// batch drained to zero closes as depleted and a restored one reopens.
func (r *GormBatchRepository) ApplyDelta(ctx context.Context, batchID uuid.UUID, delta, expectedCurrent decimal.Decimal) error {
	openStatuses := []inventory.BatchStatus{inventory.BatchStatusActive, inventory.BatchStatusDepleted}

	result := r.db.WithContext(ctx).
		Model(&inventory.Batch{}).
		Where("id = ? AND current_quantity = ? AND status IN ?", batchID, expectedCurrent, openStatuses).
		Updates(map[string]interface{}{
			"current_quantity": gorm.Expr("current_quantity + ?", delta),
			"status": gorm.Expr("CASE WHEN current_quantity + ? <= 0 THEN ? ELSE ? END",
				delta, inventory.BatchStatusDepleted, inventory.BatchStatusActive),
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now(),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.NewDomainError("CONCURRENCY_CONFLICT",
			"Batch quantity changed under a concurrent allocation")
	}
	return nil
}

// applyFilter applies filter options to the query
func (r *GormBatchRepository) applyFilter(query *gorm.DB, filter shared.Filter) *gorm.DB {
	query = r.applyFilterWithoutPagination(query, filter)

	if filter.Page > 0 && filter.PageSize > 0 {
		query = query.Offset(filter.Offset()).Limit(filter.PageSize)
	}

	if filter.OrderBy != "" {
		orderDir := "ASC"
		if strings.ToLower(filter.OrderDir) == "desc" {
			orderDir = "DESC"
		}
		query = query.Order(filter.OrderBy + " " + orderDir)
	} else {
		query = query.Order("purchase_date ASC, created_at ASC")
	}

	return query
}

// applyFilterWithoutPagination applies filter options without pagination
func (r *GormBatchRepository) applyFilterWithoutPagination(query *gorm.DB, filter shared.Filter) *gorm.DB {
	for key, value := range filter.Filters {
		switch key {
		case "status":
			query = query.Where("status = ?", value)
		case "has_stock":
			if value == true {
				query = query.Where("current_quantity > 0")
			}
		case "expiring_before":
			query = query.Where("expiry_date IS NOT NULL AND expiry_date <= ?", value)
		case "supplier_id":
			query = query.Where("supplier_id = ?", value)
		case "location":
			query = query.Where("location = ?", value)
		}
	}

	return query
}

// Ensure GormBatchRepository implements BatchRepository
var _ inventory.BatchRepository = (*GormBatchRepository)(nil)
