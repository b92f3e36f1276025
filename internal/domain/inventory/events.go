package inventory

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stockledger/backend/internal/domain/shared"
)

// Aggregate types for domain events
const (
	AggregateTypeBatch   = "inventory.batch"
	AggregateTypeProduct = "inventory.product"
)

// Event types
const (
	EventTypeBatchCreated       = "inventory.batch.created"
	EventTypeBatchDepleted      = "inventory.batch.depleted"
	EventTypeBatchStatusChanged = "inventory.batch.status_changed"
	EventTypeQuantityAdjusted   = "inventory.batch.quantity_adjusted"
	EventTypeStockAllocated     = "inventory.stock.allocated"
	EventTypeAllocationReversed = "inventory.allocation.reversed"
)

// BatchCreatedEvent is emitted when a new batch is received into stock
type BatchCreatedEvent struct {
	shared.BaseDomainEvent
	ProductID       uuid.UUID       `json:"product_id"`
	BatchNumber     string          `json:"batch_number"`
	InitialQuantity decimal.Decimal `json:"initial_quantity"`
	CostPrice       decimal.Decimal `json:"cost_price"`
}

// NewBatchCreatedEvent creates a BatchCreatedEvent
func NewBatchCreatedEvent(batch *Batch) *BatchCreatedEvent {
	return &BatchCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeBatchCreated, AggregateTypeBatch, batch.ID),
		ProductID:       batch.ProductID,
		BatchNumber:     batch.BatchNumber,
		InitialQuantity: batch.InitialQuantity,
		CostPrice:       batch.CostPrice,
	}
}

// BatchDepletedEvent is emitted when consumption empties a batch
type BatchDepletedEvent struct {
	shared.BaseDomainEvent
	ProductID   uuid.UUID `json:"product_id"`
	BatchNumber string    `json:"batch_number"`
}

// NewBatchDepletedEvent creates a BatchDepletedEvent
func NewBatchDepletedEvent(batch *Batch) *BatchDepletedEvent {
	return &BatchDepletedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeBatchDepleted, AggregateTypeBatch, batch.ID),
		ProductID:       batch.ProductID,
		BatchNumber:     batch.BatchNumber,
	}
}

// BatchStatusChangedEvent is emitted when a batch changes status outside the
// automatic depletion path
type BatchStatusChangedEvent struct {
	shared.BaseDomainEvent
	ProductID   uuid.UUID   `json:"product_id"`
	BatchNumber string      `json:"batch_number"`
	FromStatus  BatchStatus `json:"from_status"`
	ToStatus    BatchStatus `json:"to_status"`
	Reason      string      `json:"reason,omitempty"`
}

// NewBatchStatusChangedEvent creates a BatchStatusChangedEvent
func NewBatchStatusChangedEvent(batch *Batch, from BatchStatus, reason string) *BatchStatusChangedEvent {
	return &BatchStatusChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeBatchStatusChanged, AggregateTypeBatch, batch.ID),
		ProductID:       batch.ProductID,
		BatchNumber:     batch.BatchNumber,
		FromStatus:      from,
		ToStatus:        batch.Status,
		Reason:          reason,
	}
}

// QuantityAdjustedEvent is emitted when a batch quantity is corrected manually
type QuantityAdjustedEvent struct {
	shared.BaseDomainEvent
	ProductID   uuid.UUID       `json:"product_id"`
	BatchNumber string          `json:"batch_number"`
	Delta       decimal.Decimal `json:"delta"`
	NewQuantity decimal.Decimal `json:"new_quantity"`
}

// NewQuantityAdjustedEvent creates a QuantityAdjustedEvent
func NewQuantityAdjustedEvent(batch *Batch, delta decimal.Decimal) *QuantityAdjustedEvent {
	return &QuantityAdjustedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeQuantityAdjusted, AggregateTypeBatch, batch.ID),
		ProductID:       batch.ProductID,
		BatchNumber:     batch.BatchNumber,
		Delta:           delta,
		NewQuantity:     batch.CurrentQuantity,
	}
}

// StockAllocatedEvent is emitted when a sale allocation commits
type StockAllocatedEvent struct {
	shared.BaseDomainEvent
	ProductID         uuid.UUID       `json:"product_id"`
	AllocationID      uuid.UUID       `json:"allocation_id"`
	RequestedQuantity decimal.Decimal `json:"requested_quantity"`
	TotalCost         decimal.Decimal `json:"total_cost"`
	BatchCount        int             `json:"batch_count"`
}

// NewStockAllocatedEvent creates a StockAllocatedEvent
func NewStockAllocatedEvent(productID, allocationID uuid.UUID, requestedQuantity, totalCost decimal.Decimal, batchCount int) *StockAllocatedEvent {
	return &StockAllocatedEvent{
		BaseDomainEvent:   shared.NewBaseDomainEvent(EventTypeStockAllocated, AggregateTypeProduct, productID),
		ProductID:         productID,
		AllocationID:      allocationID,
		RequestedQuantity: requestedQuantity,
		TotalCost:         totalCost,
		BatchCount:        batchCount,
	}
}

// AllocationReversedEvent is emitted when a committed allocation is undone
type AllocationReversedEvent struct {
	shared.BaseDomainEvent
	ProductID        uuid.UUID       `json:"product_id"`
	AllocationID     uuid.UUID       `json:"allocation_id"`
	RestoredQuantity decimal.Decimal `json:"restored_quantity"`
}

// NewAllocationReversedEvent creates an AllocationReversedEvent
func NewAllocationReversedEvent(productID, allocationID uuid.UUID, restoredQuantity decimal.Decimal) *AllocationReversedEvent {
	return &AllocationReversedEvent{
		BaseDomainEvent:  shared.NewBaseDomainEvent(EventTypeAllocationReversed, AggregateTypeProduct, productID),
		ProductID:        productID,
		AllocationID:     allocationID,
		RestoredQuantity: restoredQuantity,
	}
}
