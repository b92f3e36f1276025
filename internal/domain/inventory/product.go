package inventory

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stockledger/backend/internal/domain/shared"
)

// Product is the stock aggregate a movement ledger hangs off. CurrentStock
// is derived state: it always equals the sum of the product's batch
// quantities and is moved in the same commit as the batches it summarizes.
type Product struct {
	shared.BaseAggregateRoot
	SKU          string          `gorm:"type:varchar(64);index"`
	Name         string          `gorm:"type:varchar(255);not null"`
	Unit         string          `gorm:"type:varchar(20);not null;default:'pcs'"`
	CurrentStock decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
}

// TableName returns the table name for GORM
func (Product) TableName() string {
	return "products"
}

// NewProduct creates a product with zero stock
func NewProduct(name, sku, unit string) (*Product, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Product name cannot be empty")
	}
	if unit == "" {
		unit = "pcs"
	}

	return &Product{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		SKU:               strings.TrimSpace(sku),
		Name:              name,
		Unit:              unit,
		CurrentStock:      decimal.Zero,
	}, nil
}

// ApplyStockDelta moves the derived stock total by a signed delta. The
// total can never go negative; a negative result means the caller's batch
// arithmetic is wrong.
func (p *Product) ApplyStockDelta(delta decimal.Decimal) error {
	newStock := p.CurrentStock.Add(delta)
	if newStock.IsNegative() {
		return shared.NewDomainError("VALIDATION_ERROR",
			"Stock delta would make product stock negative")
	}
	p.CurrentStock = newStock
	p.IncrementVersion()
	return nil
}

var _ shared.AggregateRoot = (*Product)(nil)
