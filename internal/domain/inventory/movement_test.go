package inventory

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMovementType_IsValid(t *testing.T) {
	t.Run("returns true for all defined types", func(t *testing.T) {
		assert.True(t, MovementTypePurchase.IsValid())
		assert.True(t, MovementTypeSale.IsValid())
		assert.True(t, MovementTypeAdjustment.IsValid())
		assert.True(t, MovementTypeReturn.IsValid())
		assert.True(t, MovementTypeDamage.IsValid())
		assert.True(t, MovementTypeTransfer.IsValid())
		assert.True(t, MovementTypeExpired.IsValid())
	})

	t.Run("returns false for unknown type", func(t *testing.T) {
		assert.False(t, MovementType("THEFT").IsValid())
		assert.False(t, MovementType("").IsValid())
	})
}

func TestNewMovementRecord(t *testing.T) {
	productID := uuid.New()

	t.Run("creates record when totals balance", func(t *testing.T) {
		record, err := NewMovementRecord(
			productID,
			MovementTypeSale,
			decimal.NewFromInt(-8),
			decimal.NewFromInt(15),
			decimal.NewFromInt(7),
		)

		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, record.ID)
		assert.Equal(t, productID, record.ProductID)
		assert.Equal(t, MovementTypeSale, record.MovementType)
		assert.True(t, record.QuantityDelta.Equal(decimal.NewFromInt(-8)))
		assert.False(t, record.OccurredAt.IsZero())
		assert.False(t, record.IsReversal)
	})

	t.Run("allows zero delta", func(t *testing.T) {
		record, err := NewMovementRecord(
			productID,
			MovementTypeAdjustment,
			decimal.Zero,
			decimal.NewFromInt(10),
			decimal.NewFromInt(10),
		)

		require.NoError(t, err)
		assert.True(t, record.QuantityDelta.IsZero())
	})

	t.Run("fails with nil product ID", func(t *testing.T) {
		record, err := NewMovementRecord(
			uuid.Nil,
			MovementTypeSale,
			decimal.NewFromInt(-1),
			decimal.NewFromInt(5),
			decimal.NewFromInt(4),
		)

		require.Error(t, err)
		assert.Nil(t, record)
		assert.Contains(t, err.Error(), "Product ID")
	})

	t.Run("fails with invalid movement type", func(t *testing.T) {
		record, err := NewMovementRecord(
			productID,
			MovementType("THEFT"),
			decimal.NewFromInt(-1),
			decimal.NewFromInt(5),
			decimal.NewFromInt(4),
		)

		require.Error(t, err)
		assert.Nil(t, record)
		assert.Contains(t, err.Error(), "movement type")
	})

	t.Run("fails when totals do not balance", func(t *testing.T) {
		record, err := NewMovementRecord(
			productID,
			MovementTypeSale,
			decimal.NewFromInt(-8),
			decimal.NewFromInt(15),
			decimal.NewFromInt(8),
		)

		require.Error(t, err)
		assert.Nil(t, record)
		assert.Contains(t, err.Error(), "balance")
	})
}

func TestMovementRecord_Builders(t *testing.T) {
	productID := uuid.New()
	batchID := uuid.New()
	actorID := uuid.New()
	occurredAt := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	record, err := NewMovementRecord(
		productID,
		MovementTypeSale,
		decimal.NewFromInt(-5),
		decimal.NewFromInt(5),
		decimal.Zero,
	)
	require.NoError(t, err)

	record.WithBatch(batchID).
		WithReference("bill", "BILL-1042").
		WithReason("counter sale").
		WithActor(actorID).
		WithOccurredAt(occurredAt)

	require.NotNil(t, record.BatchID)
	assert.Equal(t, batchID, *record.BatchID)
	assert.Equal(t, "bill", record.ReferenceType)
	assert.Equal(t, "BILL-1042", record.ReferenceID)
	assert.Equal(t, "counter sale", record.Reason)
	require.NotNil(t, record.PerformedBy)
	assert.Equal(t, actorID, *record.PerformedBy)
	assert.Equal(t, occurredAt, record.OccurredAt)
}

func TestMovementRecord_AsReversalOf(t *testing.T) {
	originalID := uuid.New()

	record, err := NewMovementRecord(
		uuid.New(),
		MovementTypeReturn,
		decimal.NewFromInt(5),
		decimal.Zero,
		decimal.NewFromInt(5),
	)
	require.NoError(t, err)

	record.AsReversalOf(originalID)

	assert.True(t, record.IsReversal)
	require.NotNil(t, record.ReversesMovementID)
	assert.Equal(t, originalID, *record.ReversesMovementID)
}

func TestMovementRecord_Direction(t *testing.T) {
	productID := uuid.New()

	inbound, err := NewMovementRecord(
		productID, MovementTypePurchase,
		decimal.NewFromInt(10), decimal.Zero, decimal.NewFromInt(10),
	)
	require.NoError(t, err)
	assert.True(t, inbound.IsInbound())
	assert.False(t, inbound.IsOutbound())

	outbound, err := NewMovementRecord(
		productID, MovementTypeSale,
		decimal.NewFromInt(-4), decimal.NewFromInt(10), decimal.NewFromInt(6),
	)
	require.NoError(t, err)
	assert.False(t, outbound.IsInbound())
	assert.True(t, outbound.IsOutbound())

	neutral, err := NewMovementRecord(
		productID, MovementTypeAdjustment,
		decimal.Zero, decimal.NewFromInt(6), decimal.NewFromInt(6),
	)
	require.NoError(t, err)
	assert.False(t, neutral.IsInbound())
	assert.False(t, neutral.IsOutbound())
}
