package inventory

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ValuationSnapshot is the value of a product's stock on hand, computed
// over its batches. Averages are weighted by batch quantity, so a large
// cheap batch pulls the average cost down proportionally.
type ValuationSnapshot struct {
	ProductID           uuid.UUID       `json:"product_id"`
	TotalQuantity       decimal.Decimal `json:"total_quantity"`
	TotalCostValue      decimal.Decimal `json:"total_cost_value"`
	TotalSellingValue   decimal.Decimal `json:"total_selling_value"`
	PotentialProfit     decimal.Decimal `json:"potential_profit"`
	AverageCostPrice    decimal.Decimal `json:"average_cost_price"`
	AverageSellingPrice decimal.Decimal `json:"average_selling_price"`
	BatchCount          int             `json:"batch_count"`
}

// StoreValuation aggregates per-product valuations into store-wide totals
type StoreValuation struct {
	Products          []ValuationSnapshot `json:"products"`
	TotalQuantity     decimal.Decimal     `json:"total_quantity"`
	TotalCostValue    decimal.Decimal     `json:"total_cost_value"`
	TotalSellingValue decimal.Decimal     `json:"total_selling_value"`
	PotentialProfit   decimal.Decimal     `json:"potential_profit"`
}

// ExpiringBatch is one batch inside an expiry report window
type ExpiringBatch struct {
	BatchID         uuid.UUID       `json:"batch_id"`
	BatchNumber     string          `json:"batch_number"`
	Location        string          `json:"location,omitempty"`
	Quantity        decimal.Decimal `json:"quantity"`
	ExpiryDate      time.Time       `json:"expiry_date"`
	DaysUntilExpiry int             `json:"days_until_expiry"`
	Expired         bool            `json:"expired"`
}

// ProductExpiryGroup collects a product's expiring batches, soonest first
type ProductExpiryGroup struct {
	ProductID uuid.UUID       `json:"product_id"`
	Batches   []ExpiringBatch `json:"batches"`
}

// ComputeValuation values a product's stock from its batches. Only batches
// holding quantity contribute; with nothing on hand every figure is zero.
func ComputeValuation(productID uuid.UUID, batches []*Batch) ValuationSnapshot {
	snapshot := ValuationSnapshot{
		ProductID:           productID,
		TotalQuantity:       decimal.Zero,
		TotalCostValue:      decimal.Zero,
		TotalSellingValue:   decimal.Zero,
		PotentialProfit:     decimal.Zero,
		AverageCostPrice:    decimal.Zero,
		AverageSellingPrice: decimal.Zero,
	}

	for _, b := range batches {
		if !b.HasStock() {
			continue
		}
		snapshot.TotalQuantity = snapshot.TotalQuantity.Add(b.CurrentQuantity)
		snapshot.TotalCostValue = snapshot.TotalCostValue.Add(b.TotalCostValue())
		snapshot.TotalSellingValue = snapshot.TotalSellingValue.Add(b.TotalSellingValue())
		snapshot.BatchCount++
	}

	snapshot.PotentialProfit = snapshot.TotalSellingValue.Sub(snapshot.TotalCostValue)
	if snapshot.TotalQuantity.IsPositive() {
		snapshot.AverageCostPrice = snapshot.TotalCostValue.Div(snapshot.TotalQuantity)
		snapshot.AverageSellingPrice = snapshot.TotalSellingValue.Div(snapshot.TotalQuantity)
	}
	return snapshot
}

// ComputeStoreValuation values every product represented in the given
// batches and sums the grand totals. Products are ordered by ID so repeated
// runs over the same stock produce identical reports.
func ComputeStoreValuation(batches []*Batch) StoreValuation {
	byProduct := make(map[uuid.UUID][]*Batch)
	for _, b := range batches {
		byProduct[b.ProductID] = append(byProduct[b.ProductID], b)
	}

	valuation := StoreValuation{
		Products:          make([]ValuationSnapshot, 0, len(byProduct)),
		TotalQuantity:     decimal.Zero,
		TotalCostValue:    decimal.Zero,
		TotalSellingValue: decimal.Zero,
		PotentialProfit:   decimal.Zero,
	}
	for productID, productBatches := range byProduct {
		snapshot := ComputeValuation(productID, productBatches)
		valuation.Products = append(valuation.Products, snapshot)
		valuation.TotalQuantity = valuation.TotalQuantity.Add(snapshot.TotalQuantity)
		valuation.TotalCostValue = valuation.TotalCostValue.Add(snapshot.TotalCostValue)
		valuation.TotalSellingValue = valuation.TotalSellingValue.Add(snapshot.TotalSellingValue)
		valuation.PotentialProfit = valuation.PotentialProfit.Add(snapshot.PotentialProfit)
	}

	sort.Slice(valuation.Products, func(i, j int) bool {
		return valuation.Products[i].ProductID.String() < valuation.Products[j].ProductID.String()
	})
	return valuation
}

// GroupExpiringBatches turns batches inside an expiry window into
// per-product groups. Batches within a group and the groups themselves are
// sorted soonest-expiring first; batches already past their expiry date
// carry negative day counts and are flagged, never hidden.
func GroupExpiringBatches(batches []*Batch, now time.Time) []ProductExpiryGroup {
	byProduct := make(map[uuid.UUID][]ExpiringBatch)
	for _, b := range batches {
		if b.ExpiryDate == nil || !b.HasStock() {
			continue
		}
		byProduct[b.ProductID] = append(byProduct[b.ProductID], ExpiringBatch{
			BatchID:         b.ID,
			BatchNumber:     b.BatchNumber,
			Location:        b.Location,
			Quantity:        b.CurrentQuantity,
			ExpiryDate:      *b.ExpiryDate,
			DaysUntilExpiry: daysBetween(now, *b.ExpiryDate),
			Expired:         b.ExpiryDate.Before(now),
		})
	}

	groups := make([]ProductExpiryGroup, 0, len(byProduct))
	for productID, expiring := range byProduct {
		sort.Slice(expiring, func(i, j int) bool {
			return expiring[i].DaysUntilExpiry < expiring[j].DaysUntilExpiry
		})
		groups = append(groups, ProductExpiryGroup{ProductID: productID, Batches: expiring})
	}

	sort.Slice(groups, func(i, j int) bool {
		di, dj := groups[i].Batches[0].DaysUntilExpiry, groups[j].Batches[0].DaysUntilExpiry
		if di != dj {
			return di < dj
		}
		return groups[i].ProductID.String() < groups[j].ProductID.String()
	})
	return groups
}

// daysBetween counts whole calendar days from now to expiry on UTC date
// boundaries, negative when expiry has passed.
func daysBetween(now, expiry time.Time) int {
	ny, nm, nd := now.UTC().Date()
	ey, em, ed := expiry.UTC().Date()
	nowDate := time.Date(ny, nm, nd, 0, 0, 0, 0, time.UTC)
	expiryDate := time.Date(ey, em, ed, 0, 0, 0, 0, time.UTC)
	return int(expiryDate.Sub(nowDate).Hours() / 24)
}
