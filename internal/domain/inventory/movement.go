package inventory

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stockledger/backend/internal/domain/shared"
)

// MovementType classifies the cause of a stock movement
type MovementType string

const (
	// MovementTypePurchase is stock received from a supplier (batch creation)
	MovementTypePurchase MovementType = "PURCHASE"
	// MovementTypeSale is stock consumed by a sale allocation
	MovementTypeSale MovementType = "SALE"
	// MovementTypeAdjustment is a manual count correction, positive or negative
	MovementTypeAdjustment MovementType = "ADJUSTMENT"
	// MovementTypeReturn is stock returned to the supplier or restored by a reversed sale
	MovementTypeReturn MovementType = "RETURN"
	// MovementTypeDamage is stock written off as damaged
	MovementTypeDamage MovementType = "DAMAGE"
	// MovementTypeTransfer is stock moved between locations
	MovementTypeTransfer MovementType = "TRANSFER"
	// MovementTypeExpired is stock written off past its expiry date
	MovementTypeExpired MovementType = "EXPIRED"
)

// String returns the string representation of MovementType
func (t MovementType) String() string {
	return string(t)
}

// IsValid returns true if the movement type is valid
func (t MovementType) IsValid() bool {
	switch t {
	case MovementTypePurchase,
		MovementTypeSale,
		MovementTypeAdjustment,
		MovementTypeReturn,
		MovementTypeDamage,
		MovementTypeTransfer,
		MovementTypeExpired:
		return true
	}
	return false
}

// MovementRecord is one immutable audit-trail entry describing a single
// change to a product's stock and its cause. Records are only ever inserted;
// corrections are expressed as new reversing records, never as updates.
type MovementRecord struct {
	shared.BaseEntity
	ProductID     uuid.UUID       `gorm:"type:uuid;not null;index:idx_movements_product_time,priority:1"`
	BatchID       *uuid.UUID      `gorm:"type:uuid;index"`
	MovementType  MovementType    `gorm:"type:varchar(20);not null;index"`
	QuantityDelta decimal.Decimal `gorm:"type:decimal(18,4);not null"` // Signed change applied to the product aggregate
	PreviousStock decimal.Decimal `gorm:"type:decimal(18,4);not null"` // Product stock before this movement
	NewStock      decimal.Decimal `gorm:"type:decimal(18,4);not null"` // Product stock after this movement
	ReferenceType string          `gorm:"type:varchar(30)"`            // Originating document kind (purchase order, bill, ...)
	ReferenceID   string          `gorm:"type:varchar(64)"`            // Originating document identifier
	Reason        string          `gorm:"type:varchar(255)"`
	PerformedBy   *uuid.UUID      `gorm:"type:uuid"`
	IsReversal    bool            `gorm:"not null;default:false"`
	// ReversesMovementID links a compensating entry to the movement it undoes
	ReversesMovementID *uuid.UUID `gorm:"type:uuid;index"`
	OccurredAt         time.Time  `gorm:"type:timestamptz;not null;index:idx_movements_product_time,priority:2"`
}

// TableName returns the table name for GORM
func (MovementRecord) TableName() string {
	return "stock_movements"
}

// NewMovementRecord creates a movement record, enforcing the ledger
// invariant previousStock + quantityDelta == newStock.
func NewMovementRecord(
	productID uuid.UUID,
	movementType MovementType,
	quantityDelta decimal.Decimal,
	previousStock decimal.Decimal,
	newStock decimal.Decimal,
) (*MovementRecord, error) {
	if productID == uuid.Nil {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Product ID cannot be empty")
	}
	if !movementType.IsValid() {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Invalid movement type")
	}
	if !previousStock.Add(quantityDelta).Equal(newStock) {
		return nil, shared.NewDomainError("VALIDATION_ERROR",
			"Movement does not balance: previous stock plus delta must equal new stock")
	}

	return &MovementRecord{
		BaseEntity:    shared.NewBaseEntity(),
		ProductID:     productID,
		MovementType:  movementType,
		QuantityDelta: quantityDelta,
		PreviousStock: previousStock,
		NewStock:      newStock,
		OccurredAt:    time.Now(),
	}, nil
}

// WithBatch links the record to the batch whose quantity changed
func (m *MovementRecord) WithBatch(batchID uuid.UUID) *MovementRecord {
	m.BatchID = &batchID
	return m
}

// WithReference links the record to its originating document
func (m *MovementRecord) WithReference(referenceType, referenceID string) *MovementRecord {
	m.ReferenceType = referenceType
	m.ReferenceID = referenceID
	return m
}

// WithReason sets the free-text reason for the movement
func (m *MovementRecord) WithReason(reason string) *MovementRecord {
	m.Reason = reason
	return m
}

// WithActor sets the user who caused the movement
func (m *MovementRecord) WithActor(userID uuid.UUID) *MovementRecord {
	m.PerformedBy = &userID
	return m
}

// WithOccurredAt overrides the movement timestamp
func (m *MovementRecord) WithOccurredAt(t time.Time) *MovementRecord {
	m.OccurredAt = t
	return m
}

// AsReversalOf marks the record as a compensating entry for a prior movement
func (m *MovementRecord) AsReversalOf(movementID uuid.UUID) *MovementRecord {
	m.IsReversal = true
	m.ReversesMovementID = &movementID
	return m
}

// IsInbound returns true if the movement increased product stock
func (m *MovementRecord) IsInbound() bool {
	return m.QuantityDelta.IsPositive()
}

// IsOutbound returns true if the movement decreased product stock
func (m *MovementRecord) IsOutbound() bool {
	return m.QuantityDelta.IsNegative()
}

var _ shared.Entity = (*MovementRecord)(nil)
