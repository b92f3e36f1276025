package inventory

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stockledger/backend/internal/domain/shared"
)

// Deduction is one planned consumption step against a single batch
type Deduction struct {
	BatchID      uuid.UUID
	BatchNumber  string
	Quantity     decimal.Decimal
	CostPrice    decimal.Decimal
	SellingPrice decimal.Decimal
}

// AllocationPlan is the outcome of walking a product's batches oldest-first
// until a requested quantity is covered. The plan is computed from a
// snapshot; callers apply it with compare-and-swap writes and replan from
// fresh state when a batch changed underneath them.
type AllocationPlan struct {
	Deductions []Deduction
	TotalCost  decimal.Decimal
}

// TotalQuantity returns the summed quantity across all planned deductions
func (p *AllocationPlan) TotalQuantity() decimal.Decimal {
	total := decimal.Zero
	for _, d := range p.Deductions {
		total = total.Add(d.Quantity)
	}
	return total
}

// AverageUnitCost returns the quantity-weighted unit cost of the plan for
// the requested quantity
func (p *AllocationPlan) AverageUnitCost(requested decimal.Decimal) decimal.Decimal {
	if !requested.IsPositive() {
		return decimal.Zero
	}
	return p.TotalCost.Div(requested)
}

// TotalAvailable sums the consumable quantity across batches. Only active
// batches count; zero-quantity rows contribute nothing.
func TotalAvailable(batches []*Batch) decimal.Decimal {
	total := decimal.Zero
	for _, b := range batches {
		if b.IsActive() && b.HasStock() {
			total = total.Add(b.CurrentQuantity)
		}
	}
	return total
}

// PlanFIFO walks batches in the order given, which callers load sorted by
// purchase date then receipt order, and plans deductions until the
// requested quantity is covered. Expired batches still in active status are
// consumed like any other; excluding them is an administrative decision
// made by closing the batch, not a sales-time filter.
//
// Planning is all-or-nothing: when the batches cannot cover the request no
// plan is returned at all.
func PlanFIFO(batches []*Batch, requested decimal.Decimal) (*AllocationPlan, error) {
	if !requested.IsPositive() {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Requested quantity must be positive")
	}

	available := TotalAvailable(batches)
	if available.LessThan(requested) {
		return nil, shared.NewDomainError("INSUFFICIENT_STOCK",
			fmt.Sprintf("Insufficient stock: requested %s, available %s",
				requested.String(), available.String()))
	}

	plan := &AllocationPlan{TotalCost: decimal.Zero}
	remaining := requested
	for _, b := range batches {
		if remaining.IsZero() {
			break
		}
		if !b.IsActive() || !b.HasStock() {
			continue
		}

		take := decimal.Min(remaining, b.CurrentQuantity)
		plan.Deductions = append(plan.Deductions, Deduction{
			BatchID:      b.ID,
			BatchNumber:  b.BatchNumber,
			Quantity:     take,
			CostPrice:    b.CostPrice,
			SellingPrice: b.SellingPrice,
		})
		plan.TotalCost = plan.TotalCost.Add(take.Mul(b.CostPrice))
		remaining = remaining.Sub(take)
	}

	return plan, nil
}
