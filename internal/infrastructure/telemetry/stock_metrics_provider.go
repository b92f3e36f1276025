package telemetry

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormStockLevelProvider implements StockLevelProvider using GORM.
// It queries the product_batches table directly for aggregated metrics.
type GormStockLevelProvider struct {
	db *gorm.DB
}

// NewGormStockLevelProvider creates a new GormStockLevelProvider.
func NewGormStockLevelProvider(db *gorm.DB) *GormStockLevelProvider {
	return &GormStockLevelProvider{db: db}
}

// GetBatchCountsByStatus returns the number of batches per status.
func (p *GormStockLevelProvider) GetBatchCountsByStatus(ctx context.Context) (map[string]int64, error) {
	type result struct {
		Status string `gorm:"column:status"`
		Count  int64  `gorm:"column:count"`
	}

	var results []result
	err := p.db.WithContext(ctx).
		Table("product_batches").
		Select("status, COUNT(*) as count").
		Group("status").
		Find(&results).Error

	if err != nil {
		return nil, err
	}

	m := make(map[string]int64, len(results))
	for _, r := range results {
		m[r.Status] = r.Count
	}

	return m, nil
}

// GetExpiringBatchCount returns the number of active batches holding stock
// that expire within the given window, including batches already expired
// but not yet closed.
func (p *GormStockLevelProvider) GetExpiringBatchCount(ctx context.Context, windowDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, windowDays)

	var count int64
	err := p.db.WithContext(ctx).
		Table("product_batches").
		Where("status = ?", "ACTIVE").
		Where("current_quantity > 0").
		Where("expiry_date IS NOT NULL AND expiry_date <= ?", cutoff).
		Count(&count).Error

	return count, err
}

// GetStockValueAtCost returns remaining quantity valued at cost price,
// summed across all active batches.
func (p *GormStockLevelProvider) GetStockValueAtCost(ctx context.Context) (decimal.Decimal, error) {
	type result struct {
		Total decimal.Decimal `gorm:"column:total"`
	}

	var r result
	err := p.db.WithContext(ctx).
		Table("product_batches").
		Select("COALESCE(SUM(current_quantity * cost_price), 0) as total").
		Where("status = ?", "ACTIVE").
		Scan(&r).Error

	if err != nil {
		return decimal.Zero, err
	}

	return r.Total, nil
}

// Ensure GormStockLevelProvider implements StockLevelProvider
var _ StockLevelProvider = (*GormStockLevelProvider)(nil)
