package inventory

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stockledger/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildBatch(productID uuid.UUID, batchNumber string, quantity, costPrice float64, purchaseDate time.Time) *Batch {
	qty := decimal.NewFromFloat(quantity)
	cost := decimal.NewFromFloat(costPrice)
	return &Batch{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		ProductID:         productID,
		BatchNumber:       batchNumber,
		CostPrice:         cost,
		SellingPrice:      cost.Mul(decimal.NewFromFloat(1.5)),
		MRP:               cost.Mul(decimal.NewFromInt(2)),
		InitialQuantity:   qty,
		CurrentQuantity:   qty,
		ReservedQuantity:  decimal.Zero,
		PurchaseDate:      purchaseDate,
		Status:            BatchStatusActive,
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func TestNewBatch(t *testing.T) {
	productID := uuid.New()
	purchaseDate := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

	t.Run("creates batch successfully", func(t *testing.T) {
		batch, err := NewBatch(
			productID,
			"  BN-2026-001  ",
			decimal.NewFromInt(10),
			decimal.NewFromInt(15),
			decimal.NewFromInt(18),
			decimal.NewFromInt(50),
			purchaseDate,
		)

		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, batch.ID)
		assert.Equal(t, productID, batch.ProductID)
		assert.Equal(t, "BN-2026-001", batch.BatchNumber)
		assert.Equal(t, BatchStatusActive, batch.Status)
		assert.True(t, batch.CurrentQuantity.Equal(batch.InitialQuantity))
		assert.True(t, batch.ReservedQuantity.IsZero())
		assert.Equal(t, 1, batch.GetVersion())
	})

	t.Run("emits BatchCreated event", func(t *testing.T) {
		batch, err := NewBatch(
			productID, "BN-001",
			decimal.NewFromInt(10), decimal.NewFromInt(15), decimal.NewFromInt(18),
			decimal.NewFromInt(50), purchaseDate,
		)

		require.NoError(t, err)
		events := batch.GetDomainEvents()
		require.Len(t, events, 1)
		assert.Equal(t, EventTypeBatchCreated, events[0].EventType())
	})

	t.Run("fails with nil product ID", func(t *testing.T) {
		_, err := NewBatch(
			uuid.Nil, "BN-001",
			decimal.NewFromInt(10), decimal.NewFromInt(15), decimal.NewFromInt(18),
			decimal.NewFromInt(50), purchaseDate,
		)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "Product ID")
	})

	t.Run("fails with empty batch number", func(t *testing.T) {
		_, err := NewBatch(
			productID, "   ",
			decimal.NewFromInt(10), decimal.NewFromInt(15), decimal.NewFromInt(18),
			decimal.NewFromInt(50), purchaseDate,
		)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "Batch number")
	})

	t.Run("fails with negative prices", func(t *testing.T) {
		_, err := NewBatch(
			productID, "BN-001",
			decimal.NewFromInt(-1), decimal.NewFromInt(15), decimal.NewFromInt(18),
			decimal.NewFromInt(50), purchaseDate,
		)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Cost price")

		_, err = NewBatch(
			productID, "BN-001",
			decimal.NewFromInt(10), decimal.NewFromInt(-1), decimal.NewFromInt(18),
			decimal.NewFromInt(50), purchaseDate,
		)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Selling price")

		_, err = NewBatch(
			productID, "BN-001",
			decimal.NewFromInt(10), decimal.NewFromInt(15), decimal.NewFromInt(-1),
			decimal.NewFromInt(50), purchaseDate,
		)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "MRP")
	})

	t.Run("allows zero cost price for free goods", func(t *testing.T) {
		batch, err := NewBatch(
			productID, "BN-FREE",
			decimal.Zero, decimal.NewFromInt(15), decimal.NewFromInt(18),
			decimal.NewFromInt(50), purchaseDate,
		)

		require.NoError(t, err)
		assert.True(t, batch.CostPrice.IsZero())
	})

	t.Run("fails with non-positive initial quantity", func(t *testing.T) {
		_, err := NewBatch(
			productID, "BN-001",
			decimal.NewFromInt(10), decimal.NewFromInt(15), decimal.NewFromInt(18),
			decimal.Zero, purchaseDate,
		)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Initial quantity")

		_, err = NewBatch(
			productID, "BN-001",
			decimal.NewFromInt(10), decimal.NewFromInt(15), decimal.NewFromInt(18),
			decimal.NewFromInt(-5), purchaseDate,
		)
		require.Error(t, err)
	})

	t.Run("fails with zero purchase date", func(t *testing.T) {
		_, err := NewBatch(
			productID, "BN-001",
			decimal.NewFromInt(10), decimal.NewFromInt(15), decimal.NewFromInt(18),
			decimal.NewFromInt(50), time.Time{},
		)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "Purchase date")
	})
}

func TestBatch_Builders(t *testing.T) {
	batch := buildBatch(uuid.New(), "BN-001", 50, 10, time.Now())
	supplierID := uuid.New()
	purchaseOrderID := uuid.New()
	expiry := time.Now().AddDate(1, 0, 0)
	manufacture := time.Now().AddDate(0, -1, 0)

	batch.WithExpiryDate(expiry).
		WithManufactureDate(manufacture).
		WithSupplier(supplierID).
		WithPurchaseOrder(purchaseOrderID).
		WithLocation("Aisle 3, Shelf B").
		WithNotes("keep refrigerated")

	require.NotNil(t, batch.ExpiryDate)
	assert.Equal(t, expiry, *batch.ExpiryDate)
	require.NotNil(t, batch.ManufactureDate)
	assert.Equal(t, manufacture, *batch.ManufactureDate)
	require.NotNil(t, batch.SupplierID)
	assert.Equal(t, supplierID, *batch.SupplierID)
	require.NotNil(t, batch.PurchaseOrderID)
	assert.Equal(t, purchaseOrderID, *batch.PurchaseOrderID)
	assert.Equal(t, "Aisle 3, Shelf B", batch.Location)
	assert.Equal(t, "keep refrigerated", batch.Notes)
}

func TestBatch_Consume(t *testing.T) {
	t.Run("reduces quantity and bumps version", func(t *testing.T) {
		batch := buildBatch(uuid.New(), "BN-001", 10, 10, time.Now())

		err := batch.Consume(decimal.NewFromInt(4))

		require.NoError(t, err)
		assert.True(t, batch.CurrentQuantity.Equal(decimal.NewFromInt(6)))
		assert.Equal(t, BatchStatusActive, batch.Status)
		assert.Equal(t, 2, batch.GetVersion())
	})

	t.Run("depletes automatically when consumption empties the batch", func(t *testing.T) {
		batch := buildBatch(uuid.New(), "BN-001", 5, 10, time.Now())

		err := batch.Consume(decimal.NewFromInt(5))

		require.NoError(t, err)
		assert.True(t, batch.CurrentQuantity.IsZero())
		assert.Equal(t, BatchStatusDepleted, batch.Status)

		events := batch.GetDomainEvents()
		require.Len(t, events, 1)
		assert.Equal(t, EventTypeBatchDepleted, events[0].EventType())
	})

	t.Run("fails when quantity exceeds remaining stock", func(t *testing.T) {
		batch := buildBatch(uuid.New(), "BN-001", 5, 10, time.Now())

		err := batch.Consume(decimal.NewFromInt(6))

		require.Error(t, err)
		assert.True(t, errors.Is(err, shared.ErrInsufficientStock))
		assert.True(t, batch.CurrentQuantity.Equal(decimal.NewFromInt(5)))
	})

	t.Run("fails with non-positive quantity", func(t *testing.T) {
		batch := buildBatch(uuid.New(), "BN-001", 5, 10, time.Now())

		require.Error(t, batch.Consume(decimal.Zero))
		require.Error(t, batch.Consume(decimal.NewFromInt(-1)))
	})

	t.Run("fails on non-active batch", func(t *testing.T) {
		batch := buildBatch(uuid.New(), "BN-001", 5, 10, time.Now())
		batch.Status = BatchStatusDamaged
		batch.CurrentQuantity = decimal.Zero

		err := batch.Consume(decimal.NewFromInt(1))

		require.Error(t, err)
		assert.True(t, errors.Is(err, shared.ErrInvalidTransition))
	})
}

func TestBatch_Restock(t *testing.T) {
	t.Run("returns quantity to an active batch", func(t *testing.T) {
		batch := buildBatch(uuid.New(), "BN-001", 10, 10, time.Now())
		require.NoError(t, batch.Consume(decimal.NewFromInt(6)))

		err := batch.Restock(decimal.NewFromInt(4))

		require.NoError(t, err)
		assert.True(t, batch.CurrentQuantity.Equal(decimal.NewFromInt(8)))
		assert.Equal(t, BatchStatusActive, batch.Status)
	})

	t.Run("reopens a depleted batch", func(t *testing.T) {
		batch := buildBatch(uuid.New(), "BN-001", 5, 10, time.Now())
		require.NoError(t, batch.Consume(decimal.NewFromInt(5)))
		require.Equal(t, BatchStatusDepleted, batch.Status)

		err := batch.Restock(decimal.NewFromInt(5))

		require.NoError(t, err)
		assert.Equal(t, BatchStatusActive, batch.Status)
		assert.True(t, batch.CurrentQuantity.Equal(decimal.NewFromInt(5)))

		events := batch.GetDomainEvents()
		statusChanged := events[len(events)-1]
		assert.Equal(t, EventTypeBatchStatusChanged, statusChanged.EventType())
	})

	t.Run("fails when restock exceeds initial quantity", func(t *testing.T) {
		batch := buildBatch(uuid.New(), "BN-001", 10, 10, time.Now())
		require.NoError(t, batch.Consume(decimal.NewFromInt(2)))

		err := batch.Restock(decimal.NewFromInt(3))

		require.Error(t, err)
		assert.Contains(t, err.Error(), "initial quantity")
	})

	t.Run("fails on a manually closed batch", func(t *testing.T) {
		batch := buildBatch(uuid.New(), "BN-001", 10, 10, time.Now())
		_, err := batch.MarkTerminal(BatchStatusDamaged, "water damage")
		require.NoError(t, err)

		err = batch.Restock(decimal.NewFromInt(1))

		require.Error(t, err)
		assert.True(t, errors.Is(err, shared.ErrInvalidTransition))
	})
}

func TestBatch_AdjustBy(t *testing.T) {
	t.Run("applies positive and negative corrections", func(t *testing.T) {
		batch := buildBatch(uuid.New(), "BN-001", 10, 10, time.Now())
		require.NoError(t, batch.Consume(decimal.NewFromInt(5)))

		require.NoError(t, batch.AdjustBy(decimal.NewFromInt(-2)))
		assert.True(t, batch.CurrentQuantity.Equal(decimal.NewFromInt(3)))

		require.NoError(t, batch.AdjustBy(decimal.NewFromInt(4)))
		assert.True(t, batch.CurrentQuantity.Equal(decimal.NewFromInt(7)))
	})

	t.Run("emits QuantityAdjusted event", func(t *testing.T) {
		batch := buildBatch(uuid.New(), "BN-001", 10, 10, time.Now())

		require.NoError(t, batch.AdjustBy(decimal.NewFromInt(-1)))

		events := batch.GetDomainEvents()
		require.Len(t, events, 1)
		assert.Equal(t, EventTypeQuantityAdjusted, events[0].EventType())
	})

	t.Run("adjusting to exactly zero keeps the batch active", func(t *testing.T) {
		batch := buildBatch(uuid.New(), "BN-001", 3, 10, time.Now())

		err := batch.AdjustBy(decimal.NewFromInt(-3))

		require.NoError(t, err)
		assert.True(t, batch.CurrentQuantity.IsZero())
		assert.Equal(t, BatchStatusActive, batch.Status)
	})

	t.Run("fails when the result would be negative", func(t *testing.T) {
		batch := buildBatch(uuid.New(), "BN-001", 3, 10, time.Now())

		err := batch.AdjustBy(decimal.NewFromInt(-4))

		require.Error(t, err)
		assert.Contains(t, err.Error(), "negative")
		assert.True(t, batch.CurrentQuantity.Equal(decimal.NewFromInt(3)))
	})

	t.Run("fails when the result would exceed initial quantity", func(t *testing.T) {
		batch := buildBatch(uuid.New(), "BN-001", 3, 10, time.Now())

		err := batch.AdjustBy(decimal.NewFromInt(1))

		require.Error(t, err)
		assert.Contains(t, err.Error(), "initial quantity")
	})

	t.Run("fails with zero delta", func(t *testing.T) {
		batch := buildBatch(uuid.New(), "BN-001", 3, 10, time.Now())

		require.Error(t, batch.AdjustBy(decimal.Zero))
	})

	t.Run("fails on non-active batches", func(t *testing.T) {
		batch := buildBatch(uuid.New(), "BN-001", 3, 10, time.Now())
		require.NoError(t, batch.Consume(decimal.NewFromInt(3)))
		require.Equal(t, BatchStatusDepleted, batch.Status)

		err := batch.AdjustBy(decimal.NewFromInt(1))

		require.Error(t, err)
		assert.True(t, errors.Is(err, shared.ErrInvalidTransition))
	})
}

func TestBatch_MarkDepleted(t *testing.T) {
	t.Run("transitions an emptied active batch", func(t *testing.T) {
		batch := buildBatch(uuid.New(), "BN-001", 3, 10, time.Now())
		require.NoError(t, batch.AdjustBy(decimal.NewFromInt(-3)))

		err := batch.MarkDepleted()

		require.NoError(t, err)
		assert.Equal(t, BatchStatusDepleted, batch.Status)
	})

	t.Run("is idempotent on an already depleted batch", func(t *testing.T) {
		batch := buildBatch(uuid.New(), "BN-001", 3, 10, time.Now())
		require.NoError(t, batch.Consume(decimal.NewFromInt(3)))
		version := batch.GetVersion()

		err := batch.MarkDepleted()

		require.NoError(t, err)
		assert.Equal(t, BatchStatusDepleted, batch.Status)
		assert.Equal(t, version, batch.GetVersion())
	})

	t.Run("fails when the batch still has quantity", func(t *testing.T) {
		batch := buildBatch(uuid.New(), "BN-001", 3, 10, time.Now())

		err := batch.MarkDepleted()

		require.Error(t, err)
		assert.True(t, errors.Is(err, shared.ErrInvalidTransition))
	})

	t.Run("fails on a manually closed batch", func(t *testing.T) {
		batch := buildBatch(uuid.New(), "BN-001", 3, 10, time.Now())
		_, err := batch.MarkTerminal(BatchStatusExpired, "past shelf life")
		require.NoError(t, err)

		err = batch.MarkDepleted()

		require.Error(t, err)
		assert.True(t, errors.Is(err, shared.ErrInvalidTransition))
	})
}

func TestBatch_MarkTerminal(t *testing.T) {
	t.Run("zeroes quantity and returns the written-off amount", func(t *testing.T) {
		batch := buildBatch(uuid.New(), "BN-001", 10, 10, time.Now())

		previous, err := batch.MarkTerminal(BatchStatusDamaged, "dropped pallet")

		require.NoError(t, err)
		assert.True(t, previous.Equal(decimal.NewFromInt(10)))
		assert.True(t, batch.CurrentQuantity.IsZero())
		assert.Equal(t, BatchStatusDamaged, batch.Status)

		events := batch.GetDomainEvents()
		require.Len(t, events, 1)
		assert.Equal(t, EventTypeBatchStatusChanged, events[0].EventType())
	})

	t.Run("fails on an already terminal batch", func(t *testing.T) {
		batch := buildBatch(uuid.New(), "BN-001", 10, 10, time.Now())
		_, err := batch.MarkTerminal(BatchStatusDamaged, "dropped pallet")
		require.NoError(t, err)

		_, err = batch.MarkTerminal(BatchStatusReturned, "sending back")

		require.Error(t, err)
		assert.True(t, errors.Is(err, shared.ErrInvalidTransition))
	})

	t.Run("fails when target is not a manual terminal status", func(t *testing.T) {
		batch := buildBatch(uuid.New(), "BN-001", 10, 10, time.Now())

		_, err := batch.MarkTerminal(BatchStatusDepleted, "some reason")

		require.Error(t, err)
		assert.True(t, errors.Is(err, shared.ErrValidation))
	})

	t.Run("never reopens a closed batch", func(t *testing.T) {
		batch := buildBatch(uuid.New(), "BN-001", 10, 10, time.Now())
		_, err := batch.MarkTerminal(BatchStatusDamaged, "water damage")
		require.NoError(t, err)

		_, err = batch.MarkTerminal(BatchStatusActive, "restoring")

		require.Error(t, err)
		assert.True(t, errors.Is(err, shared.ErrInvalidTransition))
	})

	t.Run("fails without a reason", func(t *testing.T) {
		batch := buildBatch(uuid.New(), "BN-001", 10, 10, time.Now())

		_, err := batch.MarkTerminal(BatchStatusDamaged, "   ")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "reason")
	})
}

func TestBatch_Expiry(t *testing.T) {
	t.Run("IsExpired reflects the expiry date", func(t *testing.T) {
		fresh := buildBatch(uuid.New(), "BN-001", 10, 10, time.Now())
		fresh.WithExpiryDate(time.Now().AddDate(0, 0, 30))
		assert.False(t, fresh.IsExpired())

		stale := buildBatch(uuid.New(), "BN-002", 10, 10, time.Now())
		stale.WithExpiryDate(time.Now().AddDate(0, 0, -1))
		assert.True(t, stale.IsExpired())

		noExpiry := buildBatch(uuid.New(), "BN-003", 10, 10, time.Now())
		assert.False(t, noExpiry.IsExpired())
	})

	t.Run("WillExpireWithin covers the window edges", func(t *testing.T) {
		batch := buildBatch(uuid.New(), "BN-001", 10, 10, time.Now())
		batch.WithExpiryDate(time.Now().AddDate(0, 0, 5))

		assert.True(t, batch.WillExpireWithin(7))
		assert.False(t, batch.WillExpireWithin(3))

		expired := buildBatch(uuid.New(), "BN-002", 10, 10, time.Now())
		expired.WithExpiryDate(time.Now().AddDate(0, 0, -2))
		assert.True(t, expired.WillExpireWithin(7))

		noExpiry := buildBatch(uuid.New(), "BN-003", 10, 10, time.Now())
		assert.False(t, noExpiry.WillExpireWithin(365))
	})
}

func TestBatch_Values(t *testing.T) {
	batch := buildBatch(uuid.New(), "BN-001", 10, 10, time.Now())

	assert.True(t, batch.TotalCostValue().Equal(decimal.NewFromInt(100)))
	assert.True(t, batch.TotalSellingValue().Equal(decimal.NewFromInt(150)))
	assert.True(t, batch.AvailableQuantity().Equal(decimal.NewFromInt(10)))
	assert.True(t, batch.HasStock())
	assert.True(t, batch.IsActive())
}
