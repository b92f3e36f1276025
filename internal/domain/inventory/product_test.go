package inventory

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProduct(t *testing.T) {
	t.Run("creates product with zero stock", func(t *testing.T) {
		product, err := NewProduct("Paracetamol 500mg", "SKU-1001", "strip")

		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, product.ID)
		assert.Equal(t, "Paracetamol 500mg", product.Name)
		assert.Equal(t, "SKU-1001", product.SKU)
		assert.Equal(t, "strip", product.Unit)
		assert.True(t, product.CurrentStock.IsZero())
		assert.Equal(t, 1, product.GetVersion())
	})

	t.Run("defaults the unit", func(t *testing.T) {
		product, err := NewProduct("Notebook", "", "")

		require.NoError(t, err)
		assert.Equal(t, "pcs", product.Unit)
		assert.Empty(t, product.SKU)
	})

	t.Run("fails with empty name", func(t *testing.T) {
		product, err := NewProduct("   ", "SKU-1", "pcs")

		require.Error(t, err)
		assert.Nil(t, product)
		assert.Contains(t, err.Error(), "name")
	})
}

func TestProduct_ApplyStockDelta(t *testing.T) {
	t.Run("moves the total and bumps the version", func(t *testing.T) {
		product, err := NewProduct("Notebook", "SKU-1", "pcs")
		require.NoError(t, err)

		require.NoError(t, product.ApplyStockDelta(decimal.NewFromInt(15)))
		assert.True(t, product.CurrentStock.Equal(decimal.NewFromInt(15)))
		assert.Equal(t, 2, product.GetVersion())

		require.NoError(t, product.ApplyStockDelta(decimal.NewFromInt(-8)))
		assert.True(t, product.CurrentStock.Equal(decimal.NewFromInt(7)))
		assert.Equal(t, 3, product.GetVersion())
	})

	t.Run("rejects a negative result", func(t *testing.T) {
		product, err := NewProduct("Notebook", "SKU-1", "pcs")
		require.NoError(t, err)
		require.NoError(t, product.ApplyStockDelta(decimal.NewFromInt(5)))

		err = product.ApplyStockDelta(decimal.NewFromInt(-6))

		require.Error(t, err)
		assert.Contains(t, err.Error(), "negative")
		assert.True(t, product.CurrentStock.Equal(decimal.NewFromInt(5)))
	})

	t.Run("allows draining to exactly zero", func(t *testing.T) {
		product, err := NewProduct("Notebook", "SKU-1", "pcs")
		require.NoError(t, err)
		require.NoError(t, product.ApplyStockDelta(decimal.NewFromInt(5)))

		require.NoError(t, product.ApplyStockDelta(decimal.NewFromInt(-5)))
		assert.True(t, product.CurrentStock.IsZero())
	})
}
