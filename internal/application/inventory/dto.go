package inventory

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stockledger/backend/internal/domain/inventory"
)

// CreateBatchCommand describes a stock receipt for one batch
type CreateBatchCommand struct {
	ProductID       uuid.UUID       `json:"product_id"`
	ProductName     string          `json:"product_name"` // Used only when the product row does not exist yet
	ProductSKU      string          `json:"product_sku"`
	ProductUnit     string          `json:"product_unit"`
	BatchNumber     string          `json:"batch_number"`
	CostPrice       decimal.Decimal `json:"cost_price"`
	SellingPrice    decimal.Decimal `json:"selling_price"`
	MRP             decimal.Decimal `json:"mrp"`
	Quantity        decimal.Decimal `json:"quantity"`
	PurchaseDate    time.Time       `json:"purchase_date"`
	ExpiryDate      *time.Time      `json:"expiry_date,omitempty"`
	ManufactureDate *time.Time      `json:"manufacture_date,omitempty"`
	SupplierID      *uuid.UUID      `json:"supplier_id,omitempty"`
	PurchaseOrderID *uuid.UUID      `json:"purchase_order_id,omitempty"`
	Location        string          `json:"location,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	ReferenceType   string          `json:"reference_type,omitempty"`
	ReferenceID     string          `json:"reference_id,omitempty"`
	OperatorID      *uuid.UUID      `json:"operator_id,omitempty"`
}

// BatchResponse represents a batch in service responses
type BatchResponse struct {
	ID              uuid.UUID       `json:"id"`
	ProductID       uuid.UUID       `json:"product_id"`
	BatchNumber     string          `json:"batch_number"`
	CostPrice       decimal.Decimal `json:"cost_price"`
	SellingPrice    decimal.Decimal `json:"selling_price"`
	MRP             decimal.Decimal `json:"mrp"`
	InitialQuantity decimal.Decimal `json:"initial_quantity"`
	CurrentQuantity decimal.Decimal `json:"current_quantity"`
	PurchaseDate    time.Time       `json:"purchase_date"`
	ExpiryDate      *time.Time      `json:"expiry_date,omitempty"`
	ManufactureDate *time.Time      `json:"manufacture_date,omitempty"`
	Status          string          `json:"status"`
	SupplierID      *uuid.UUID      `json:"supplier_id,omitempty"`
	PurchaseOrderID *uuid.UUID      `json:"purchase_order_id,omitempty"`
	Location        string          `json:"location,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Version         int             `json:"version"`
}

// ToBatchResponse converts a batch aggregate to a response
func ToBatchResponse(batch *inventory.Batch) BatchResponse {
	return BatchResponse{
		ID:              batch.ID,
		ProductID:       batch.ProductID,
		BatchNumber:     batch.BatchNumber,
		CostPrice:       batch.CostPrice,
		SellingPrice:    batch.SellingPrice,
		MRP:             batch.MRP,
		InitialQuantity: batch.InitialQuantity,
		CurrentQuantity: batch.CurrentQuantity,
		PurchaseDate:    batch.PurchaseDate,
		ExpiryDate:      batch.ExpiryDate,
		ManufactureDate: batch.ManufactureDate,
		Status:          batch.Status.String(),
		SupplierID:      batch.SupplierID,
		PurchaseOrderID: batch.PurchaseOrderID,
		Location:        batch.Location,
		Notes:           batch.Notes,
		CreatedAt:       batch.CreatedAt,
		UpdatedAt:       batch.UpdatedAt,
		Version:         batch.GetVersion(),
	}
}

// ToBatchResponses converts a slice of batches to responses
func ToBatchResponses(batches []*inventory.Batch) []BatchResponse {
	responses := make([]BatchResponse, len(batches))
	for i, batch := range batches {
		responses[i] = ToBatchResponse(batch)
	}
	return responses
}

// BatchListFilter represents filter options for batch listings
type BatchListFilter struct {
	Status   string `json:"status,omitempty"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
	OrderBy  string `json:"order_by"`
	OrderDir string `json:"order_dir"`
}

// MovementResponse represents a ledger entry in service responses
type MovementResponse struct {
	ID                 uuid.UUID       `json:"id"`
	ProductID          uuid.UUID       `json:"product_id"`
	BatchID            *uuid.UUID      `json:"batch_id,omitempty"`
	MovementType       string          `json:"movement_type"`
	QuantityDelta      decimal.Decimal `json:"quantity_delta"`
	PreviousStock      decimal.Decimal `json:"previous_stock"`
	NewStock           decimal.Decimal `json:"new_stock"`
	ReferenceType      string          `json:"reference_type,omitempty"`
	ReferenceID        string          `json:"reference_id,omitempty"`
	Reason             string          `json:"reason,omitempty"`
	PerformedBy        *uuid.UUID      `json:"performed_by,omitempty"`
	IsReversal         bool            `json:"is_reversal"`
	ReversesMovementID *uuid.UUID      `json:"reverses_movement_id,omitempty"`
	OccurredAt         time.Time       `json:"occurred_at"`
}

// ToMovementResponse converts a movement record to a response
func ToMovementResponse(record *inventory.MovementRecord) MovementResponse {
	return MovementResponse{
		ID:                 record.ID,
		ProductID:          record.ProductID,
		BatchID:            record.BatchID,
		MovementType:       record.MovementType.String(),
		QuantityDelta:      record.QuantityDelta,
		PreviousStock:      record.PreviousStock,
		NewStock:           record.NewStock,
		ReferenceType:      record.ReferenceType,
		ReferenceID:        record.ReferenceID,
		Reason:             record.Reason,
		PerformedBy:        record.PerformedBy,
		IsReversal:         record.IsReversal,
		ReversesMovementID: record.ReversesMovementID,
		OccurredAt:         record.OccurredAt,
	}
}

// AllocateStockCommand describes a sale allocation request
type AllocateStockCommand struct {
	ProductID     uuid.UUID       `json:"product_id"`
	Quantity      decimal.Decimal `json:"quantity"`
	ReferenceType string          `json:"reference_type,omitempty"` // Originating document kind, e.g. "bill"
	ReferenceID   string          `json:"reference_id,omitempty"`
	OperatorID    *uuid.UUID      `json:"operator_id,omitempty"`
}

// ConsumedBatch is one batch's contribution to a committed allocation
type ConsumedBatch struct {
	BatchID      uuid.UUID       `json:"batch_id"`
	BatchNumber  string          `json:"batch_number"`
	Quantity     decimal.Decimal `json:"quantity"`
	CostPrice    decimal.Decimal `json:"cost_price"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	// MovementID identifies the sale ledger entry written for this
	// consumption, so a later reversal can link its compensating entry.
	MovementID uuid.UUID `json:"movement_id"`
}

// AllocationResult is the outcome of a committed sale allocation
type AllocationResult struct {
	AllocationID      uuid.UUID       `json:"allocation_id"`
	ProductID         uuid.UUID       `json:"product_id"`
	RequestedQuantity decimal.Decimal `json:"requested_quantity"`
	ConsumedBatches   []ConsumedBatch `json:"consumed_batches"`
	TotalCost         decimal.Decimal `json:"total_cost"`
	AverageCostPrice  decimal.Decimal `json:"average_cost_price"`
}

// ReversalResult is the outcome of undoing a committed allocation
type ReversalResult struct {
	AllocationID     uuid.UUID       `json:"allocation_id"`
	ProductID        uuid.UUID       `json:"product_id"`
	RestoredQuantity decimal.Decimal `json:"restored_quantity"`
	MovementIDs      []uuid.UUID     `json:"movement_ids"`
}

// TransitionBatchCommand closes a batch with a manual terminal status
type TransitionBatchCommand struct {
	BatchID    uuid.UUID             `json:"batch_id"`
	Target     inventory.BatchStatus `json:"target"`
	Reason     string                `json:"reason"`
	OperatorID *uuid.UUID            `json:"operator_id,omitempty"`
}

// AdjustQuantityCommand corrects a batch quantity by a signed delta
type AdjustQuantityCommand struct {
	BatchID    uuid.UUID       `json:"batch_id"`
	Delta      decimal.Decimal `json:"delta"`
	Reason     string          `json:"reason"`
	OperatorID *uuid.UUID      `json:"operator_id,omitempty"`
}
