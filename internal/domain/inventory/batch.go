package inventory

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stockledger/backend/internal/domain/shared"
)

// Batch is one physical lot of a product received into stock. Each batch
// carries its own purchase cost and expiry, so consuming oldest batches
// first preserves accurate cost of goods sold. Batches are never deleted;
// terminal batches stay behind as audit history.
type Batch struct {
	shared.BaseAggregateRoot
	ProductID        uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_batches_product_number,priority:1;index:idx_batches_product_fifo,priority:1"`
	BatchNumber      string          `gorm:"type:varchar(64);not null;uniqueIndex:idx_batches_product_number,priority:2"`
	CostPrice        decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	SellingPrice     decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	MRP              decimal.Decimal `gorm:"column:mrp;type:decimal(18,4);not null"`
	InitialQuantity  decimal.Decimal `gorm:"type:decimal(18,4);not null"` // Immutable after receipt
	CurrentQuantity  decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	ReservedQuantity decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	PurchaseDate     time.Time       `gorm:"type:timestamptz;not null;index:idx_batches_product_fifo,priority:2"`
	ExpiryDate       *time.Time      `gorm:"type:timestamptz;index"`
	ManufactureDate  *time.Time      `gorm:"type:timestamptz"`
	Status           BatchStatus     `gorm:"type:varchar(20);not null;default:'ACTIVE';index"`
	SupplierID       *uuid.UUID      `gorm:"type:uuid;index"`
	PurchaseOrderID  *uuid.UUID      `gorm:"type:uuid"`
	Location         string          `gorm:"type:varchar(100)"`
	Notes            string          `gorm:"type:varchar(500)"`
}

// TableName returns the table name for GORM
func (Batch) TableName() string {
	return "product_batches"
}

// NewBatch creates a batch from a stock receipt. The batch starts active
// with its full initial quantity available.
func NewBatch(
	productID uuid.UUID,
	batchNumber string,
	costPrice decimal.Decimal,
	sellingPrice decimal.Decimal,
	mrp decimal.Decimal,
	initialQuantity decimal.Decimal,
	purchaseDate time.Time,
) (*Batch, error) {
	batchNumber = strings.TrimSpace(batchNumber)

	if productID == uuid.Nil {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Product ID cannot be empty")
	}
	if batchNumber == "" {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Batch number cannot be empty")
	}
	if costPrice.IsNegative() {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Cost price cannot be negative")
	}
	if sellingPrice.IsNegative() {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Selling price cannot be negative")
	}
	if mrp.IsNegative() {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "MRP cannot be negative")
	}
	if !initialQuantity.IsPositive() {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Initial quantity must be positive")
	}
	if purchaseDate.IsZero() {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Purchase date cannot be empty")
	}

	batch := &Batch{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		ProductID:         productID,
		BatchNumber:       batchNumber,
		CostPrice:         costPrice,
		SellingPrice:      sellingPrice,
		MRP:               mrp,
		InitialQuantity:   initialQuantity,
		CurrentQuantity:   initialQuantity,
		ReservedQuantity:  decimal.Zero,
		PurchaseDate:      purchaseDate,
		Status:            BatchStatusActive,
	}
	batch.AddDomainEvent(NewBatchCreatedEvent(batch))
	return batch, nil
}

// WithExpiryDate sets the expiry date
func (b *Batch) WithExpiryDate(expiryDate time.Time) *Batch {
	b.ExpiryDate = &expiryDate
	return b
}

// WithManufactureDate sets the manufacture date
func (b *Batch) WithManufactureDate(manufactureDate time.Time) *Batch {
	b.ManufactureDate = &manufactureDate
	return b
}

// WithSupplier links the batch to the supplier it was received from
func (b *Batch) WithSupplier(supplierID uuid.UUID) *Batch {
	b.SupplierID = &supplierID
	return b
}

// WithPurchaseOrder links the batch to its purchase order
func (b *Batch) WithPurchaseOrder(purchaseOrderID uuid.UUID) *Batch {
	b.PurchaseOrderID = &purchaseOrderID
	return b
}

// WithLocation sets the storage location
func (b *Batch) WithLocation(location string) *Batch {
	b.Location = location
	return b
}

// WithNotes sets free-text notes
func (b *Batch) WithNotes(notes string) *Batch {
	b.Notes = notes
	return b
}

// IsActive returns true if the batch can still participate in stock operations
func (b *Batch) IsActive() bool {
	return b.Status == BatchStatusActive
}

// HasStock returns true if the batch has quantity remaining
func (b *Batch) HasStock() bool {
	return b.CurrentQuantity.IsPositive()
}

// AvailableQuantity returns the quantity not held by reservations
func (b *Batch) AvailableQuantity() decimal.Decimal {
	return b.CurrentQuantity.Sub(b.ReservedQuantity)
}

// IsExpired returns true if the batch has an expiry date in the past
func (b *Batch) IsExpired() bool {
	return b.ExpiryDate != nil && b.ExpiryDate.Before(time.Now())
}

// WillExpireWithin returns true if the batch expires within the given number
// of days. Already-expired batches report true; batches without an expiry
// date report false.
func (b *Batch) WillExpireWithin(days int) bool {
	if b.ExpiryDate == nil {
		return false
	}
	cutoff := time.Now().AddDate(0, 0, days)
	return !b.ExpiryDate.After(cutoff)
}

// Consume removes quantity from the batch for a sale. The batch transitions
// to depleted automatically when consumption empties it.
func (b *Batch) Consume(quantity decimal.Decimal) error {
	if !b.IsActive() {
		return shared.NewDomainError("INVALID_TRANSITION",
			"Cannot consume from a batch with status "+b.Status.String())
	}
	if !quantity.IsPositive() {
		return shared.NewDomainError("VALIDATION_ERROR", "Consume quantity must be positive")
	}
	if quantity.GreaterThan(b.CurrentQuantity) {
		return shared.NewDomainError("INSUFFICIENT_STOCK",
			"Consume quantity exceeds batch quantity")
	}

	b.CurrentQuantity = b.CurrentQuantity.Sub(quantity)
	if b.CurrentQuantity.IsZero() {
		b.Status = BatchStatusDepleted
		b.AddDomainEvent(NewBatchDepletedEvent(b))
	}
	b.IncrementVersion()
	return nil
}

// Restock returns previously consumed quantity to the batch, such as when a
// committed sale is reversed. A depleted batch becomes active again; a
// manually closed batch cannot be restocked.
func (b *Batch) Restock(quantity decimal.Decimal) error {
	if b.Status.IsManualTarget() {
		return shared.NewDomainError("INVALID_TRANSITION",
			"Cannot restock a batch with status "+b.Status.String())
	}
	if !quantity.IsPositive() {
		return shared.NewDomainError("VALIDATION_ERROR", "Restock quantity must be positive")
	}
	newQuantity := b.CurrentQuantity.Add(quantity)
	if newQuantity.GreaterThan(b.InitialQuantity) {
		return shared.NewDomainError("VALIDATION_ERROR",
			"Restock quantity exceeds the batch initial quantity")
	}

	b.CurrentQuantity = newQuantity
	if b.Status == BatchStatusDepleted {
		b.Status = BatchStatusActive
		b.AddDomainEvent(NewBatchStatusChangedEvent(b, BatchStatusDepleted, ""))
	}
	b.IncrementVersion()
	return nil
}

// AdjustBy applies a signed count correction to an active batch. The
// resulting quantity must stay between zero and the initial quantity.
// Adjusting to exactly zero leaves the batch active; depletion is reserved
// for consumption.
func (b *Batch) AdjustBy(delta decimal.Decimal) error {
	if !b.IsActive() {
		return shared.NewDomainError("INVALID_TRANSITION",
			"Cannot adjust a batch with status "+b.Status.String())
	}
	if delta.IsZero() {
		return shared.NewDomainError("VALIDATION_ERROR", "Adjustment delta cannot be zero")
	}
	newQuantity := b.CurrentQuantity.Add(delta)
	if newQuantity.IsNegative() {
		return shared.NewDomainError("VALIDATION_ERROR",
			"Adjustment would make the batch quantity negative")
	}
	if newQuantity.GreaterThan(b.InitialQuantity) {
		return shared.NewDomainError("VALIDATION_ERROR",
			"Adjustment would exceed the batch initial quantity")
	}

	b.CurrentQuantity = newQuantity
	b.AddDomainEvent(NewQuantityAdjustedEvent(b, delta))
	b.IncrementVersion()
	return nil
}

// MarkDepleted applies the automatic transition for a batch whose quantity
// reached zero. Calling it on an already depleted batch is a no-op.
func (b *Batch) MarkDepleted() error {
	if b.Status == BatchStatusDepleted {
		return nil
	}
	if b.Status != BatchStatusActive {
		return shared.NewDomainError("INVALID_TRANSITION",
			"Cannot deplete a batch with status "+b.Status.String())
	}
	if !b.CurrentQuantity.IsZero() {
		return shared.NewDomainError("INVALID_TRANSITION",
			"Cannot deplete a batch that still has quantity")
	}

	b.Status = BatchStatusDepleted
	b.AddDomainEvent(NewBatchDepletedEvent(b))
	b.IncrementVersion()
	return nil
}

// MarkTerminal closes an active batch with a manual terminal status and
// writes off its remaining quantity. It returns the quantity that was
// written off so the caller can record the matching stock movement.
func (b *Batch) MarkTerminal(target BatchStatus, reason string) (decimal.Decimal, error) {
	if target == BatchStatusActive {
		return decimal.Zero, shared.NewDomainError("INVALID_TRANSITION",
			"Batches cannot return to "+BatchStatusActive.String())
	}
	if !target.IsManualTarget() {
		return decimal.Zero, shared.NewDomainError("VALIDATION_ERROR",
			"Status "+target.String()+" is not a manual terminal status")
	}
	if !b.Status.CanTransitionTo(target) {
		return decimal.Zero, shared.NewDomainError("INVALID_TRANSITION",
			"Cannot transition batch from "+b.Status.String()+" to "+target.String())
	}
	if strings.TrimSpace(reason) == "" {
		return decimal.Zero, shared.NewDomainError("VALIDATION_ERROR",
			"A reason is required to close a batch")
	}

	previousQuantity := b.CurrentQuantity
	previousStatus := b.Status
	b.CurrentQuantity = decimal.Zero
	b.Status = target
	b.AddDomainEvent(NewBatchStatusChangedEvent(b, previousStatus, reason))
	b.IncrementVersion()
	return previousQuantity, nil
}

// TotalCostValue returns the current quantity valued at cost price
func (b *Batch) TotalCostValue() decimal.Decimal {
	return b.CurrentQuantity.Mul(b.CostPrice)
}

// TotalSellingValue returns the current quantity valued at selling price
func (b *Batch) TotalSellingValue() decimal.Decimal {
	return b.CurrentQuantity.Mul(b.SellingPrice)
}

var _ shared.AggregateRoot = (*Batch)(nil)
