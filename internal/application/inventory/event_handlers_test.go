package inventory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stockledger/backend/internal/domain/inventory"
	"github.com/stockledger/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

// MockDepletionNotifier is a mock notifier for testing
type MockDepletionNotifier struct {
	mu       sync.Mutex
	notices  []DepletionNotice
	failWith error
}

func NewMockDepletionNotifier() *MockDepletionNotifier {
	return &MockDepletionNotifier{
		notices: make([]DepletionNotice, 0),
	}
}

func (n *MockDepletionNotifier) NotifyDepleted(ctx context.Context, notice DepletionNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failWith != nil {
		return n.failWith
	}
	n.notices = append(n.notices, notice)
	return nil
}

func (n *MockDepletionNotifier) GetNotices() []DepletionNotice {
	n.mu.Lock()
	defer n.mu.Unlock()
	result := make([]DepletionNotice, len(n.notices))
	copy(result, n.notices)
	return result
}

func (n *MockDepletionNotifier) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = make([]DepletionNotice, 0)
	n.failWith = nil
}

// unrelatedEvent stands in for an event outside the inventory context
type unrelatedEvent struct {
	shared.BaseDomainEvent
}

func TestValuationInvalidationHandler_Handle(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx := context.Background()
	productID := newTestProductID()
	batch := newTestBatch(productID, "BN-2026-001", 10, 10.00, time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC))
	allocationID := uuid.New()
	three := decimal.NewFromInt(3)

	stockEvents := []struct {
		name  string
		event shared.DomainEvent
	}{
		{"batch created", inventory.NewBatchCreatedEvent(batch)},
		{"batch depleted", inventory.NewBatchDepletedEvent(batch)},
		{"status changed", inventory.NewBatchStatusChangedEvent(batch, inventory.BatchStatusActive, "damaged in transit")},
		{"quantity adjusted", inventory.NewQuantityAdjustedEvent(batch, three)},
		{"stock allocated", inventory.NewStockAllocatedEvent(productID, allocationID, three, three.Mul(three), 1)},
		{"allocation reversed", inventory.NewAllocationReversedEvent(productID, allocationID, three)},
	}

	for _, tc := range stockEvents {
		t.Run("invalidates product and store caches on "+tc.name, func(t *testing.T) {
			mockCache := new(MockValuationCache)
			mockCache.On("Delete", ctx, productID).Return(nil)
			mockCache.On("DeleteStore", ctx).Return(nil)

			handler := NewValuationInvalidationHandler(mockCache, logger)

			err := handler.Handle(ctx, tc.event)
			require.NoError(t, err)
			mockCache.AssertExpectations(t)
		})
	}

	t.Run("swallows cache failures", func(t *testing.T) {
		mockCache := new(MockValuationCache)
		mockCache.On("Delete", ctx, productID).Return(errors.New("redis timeout"))
		mockCache.On("DeleteStore", ctx).Return(errors.New("redis timeout"))

		handler := NewValuationInvalidationHandler(mockCache, logger)

		err := handler.Handle(ctx, inventory.NewBatchDepletedEvent(batch))
		assert.NoError(t, err)
	})

	t.Run("returns error for wrong event type", func(t *testing.T) {
		mockCache := new(MockValuationCache)
		handler := NewValuationInvalidationHandler(mockCache, logger)

		wrongEvent := &unrelatedEvent{
			BaseDomainEvent: shared.NewBaseDomainEvent("billing.invoice.paid", "billing.invoice", uuid.New()),
		}

		err := handler.Handle(ctx, wrongEvent)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unexpected event type")
		mockCache.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	})
}

func TestValuationInvalidationHandler_EventTypes(t *testing.T) {
	handler := NewValuationInvalidationHandler(new(MockValuationCache), zap.NewNop())

	eventTypes := handler.EventTypes()
	assert.Len(t, eventTypes, 6)
	assert.Contains(t, eventTypes, inventory.EventTypeBatchCreated)
	assert.Contains(t, eventTypes, inventory.EventTypeStockAllocated)
	assert.Contains(t, eventTypes, inventory.EventTypeAllocationReversed)
}

func TestBatchDepletedHandler_Handle(t *testing.T) {
	logger := zaptest.NewLogger(t)
	notifier := NewMockDepletionNotifier()

	handler := NewBatchDepletedHandler(logger).
		WithNotifier(notifier)

	productID := newTestProductID()
	batch := newTestBatch(productID, "BN-2026-001", 10, 10.00, time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC))

	t.Run("delivers a notice", func(t *testing.T) {
		notifier.Reset()

		event := inventory.NewBatchDepletedEvent(batch)

		err := handler.Handle(context.Background(), event)
		require.NoError(t, err)

		notices := notifier.GetNotices()
		require.Len(t, notices, 1)
		assert.Equal(t, productID.String(), notices[0].ProductID)
		assert.Equal(t, batch.ID.String(), notices[0].BatchID)
		assert.Equal(t, "BN-2026-001", notices[0].BatchNumber)
		assert.NotEmpty(t, notices[0].OccurredAt)
	})

	t.Run("notifier failure does not fail handling", func(t *testing.T) {
		notifier.Reset()
		notifier.failWith = errors.New("smtp connection refused")

		err := handler.Handle(context.Background(), inventory.NewBatchDepletedEvent(batch))
		assert.NoError(t, err)
	})

	t.Run("works without a notifier", func(t *testing.T) {
		bare := NewBatchDepletedHandler(logger)

		err := bare.Handle(context.Background(), inventory.NewBatchDepletedEvent(batch))
		assert.NoError(t, err)
	})

	t.Run("returns error for wrong event type", func(t *testing.T) {
		wrongEvent := &unrelatedEvent{
			BaseDomainEvent: shared.NewBaseDomainEvent("billing.invoice.paid", "billing.invoice", uuid.New()),
		}

		err := handler.Handle(context.Background(), wrongEvent)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unexpected event type")
	})
}

func TestBatchDepletedHandler_EventTypes(t *testing.T) {
	handler := NewBatchDepletedHandler(zap.NewNop())

	eventTypes := handler.EventTypes()
	assert.Len(t, eventTypes, 1)
	assert.Equal(t, inventory.EventTypeBatchDepleted, eventTypes[0])
}

func TestLoggingDepletionNotifier_NotifyDepleted(t *testing.T) {
	logger := zaptest.NewLogger(t)
	notifier := NewLoggingDepletionNotifier(logger)

	notice := DepletionNotice{
		ProductID:   uuid.New().String(),
		BatchID:     uuid.New().String(),
		BatchNumber: "BN-2026-001",
		OccurredAt:  time.Now().UTC().Format(time.RFC3339),
	}

	err := notifier.NotifyDepleted(context.Background(), notice)
	assert.NoError(t, err)
}

func TestStockEventAuditHandler_EventTypes(t *testing.T) {
	handler := NewStockEventAuditHandler(zap.NewNop())

	// nil subscribes the mirror as a catch-all on the bus
	assert.Nil(t, handler.EventTypes())
}

func TestStockEventAuditHandler_Handle(t *testing.T) {
	ctx := context.Background()
	productID := newTestProductID()
	batch := newTestBatch(productID, "BN-2026-001", 10, 10.00, time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC))
	allocationID := uuid.New()
	three := decimal.NewFromInt(3)

	stockEvents := []struct {
		name       string
		event      shared.DomainEvent
		extraField string
	}{
		{"batch created", inventory.NewBatchCreatedEvent(batch), "cost_price"},
		{"batch depleted", inventory.NewBatchDepletedEvent(batch), "batch_number"},
		{"status changed", inventory.NewBatchStatusChangedEvent(batch, inventory.BatchStatusActive, "damaged in transit"), "to_status"},
		{"quantity adjusted", inventory.NewQuantityAdjustedEvent(batch, three), "delta"},
		{"stock allocated", inventory.NewStockAllocatedEvent(productID, allocationID, three, three.Mul(three), 1), "total_cost"},
		{"allocation reversed", inventory.NewAllocationReversedEvent(productID, allocationID, three), "restored_quantity"},
	}

	for _, tc := range stockEvents {
		t.Run("mirrors "+tc.name, func(t *testing.T) {
			core, recorded := observer.New(zapcore.InfoLevel)
			handler := NewStockEventAuditHandler(zap.New(core))

			require.NoError(t, handler.Handle(ctx, tc.event))

			entries := recorded.All()
			require.Len(t, entries, 1)
			assert.Equal(t, tc.event.EventType(), entries[0].Message)
			assert.Equal(t, "stock_audit", entries[0].LoggerName)

			fields := entries[0].ContextMap()
			assert.Equal(t, tc.event.EventID().String(), fields["event_id"])
			assert.Equal(t, productID.String(), fields["product_id"])
			assert.Contains(t, fields, tc.extraField)
		})
	}

	t.Run("mirrors unknown events with identity fields only", func(t *testing.T) {
		core, recorded := observer.New(zapcore.InfoLevel)
		handler := NewStockEventAuditHandler(zap.New(core))

		wrongEvent := &unrelatedEvent{
			BaseDomainEvent: shared.NewBaseDomainEvent("billing.invoice.paid", "billing.invoice", uuid.New()),
		}
		require.NoError(t, handler.Handle(ctx, wrongEvent))

		entries := recorded.All()
		require.Len(t, entries, 1)
		assert.Equal(t, "billing.invoice.paid", entries[0].Message)

		fields := entries[0].ContextMap()
		assert.Equal(t, wrongEvent.EventID().String(), fields["event_id"])
		assert.Equal(t, "billing.invoice", fields["aggregate_type"])
		assert.NotContains(t, fields, "product_id")
	})
}
