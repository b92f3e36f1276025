package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stockledger/backend/internal/domain/inventory"
	"github.com/stockledger/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// ValuationInvalidationHandler drops cached valuations whenever a stock
// changing event commits, so the next valuation read recomputes from the
// batch store
type ValuationInvalidationHandler struct {
	cache  inventory.ValuationCache
	logger *zap.Logger
}

// NewValuationInvalidationHandler creates a handler that keeps the valuation
// cache consistent with stock changes
func NewValuationInvalidationHandler(cache inventory.ValuationCache, logger *zap.Logger) *ValuationInvalidationHandler {
	return &ValuationInvalidationHandler{
		cache:  cache,
		logger: logger,
	}
}

// EventTypes returns the event types this handler is interested in
func (h *ValuationInvalidationHandler) EventTypes() []string {
	return []string{
		inventory.EventTypeBatchCreated,
		inventory.EventTypeBatchDepleted,
		inventory.EventTypeBatchStatusChanged,
		inventory.EventTypeQuantityAdjusted,
		inventory.EventTypeStockAllocated,
		inventory.EventTypeAllocationReversed,
	}
}

// Handle invalidates the cached valuation of the product the event touched
func (h *ValuationInvalidationHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	var productID uuid.UUID
	switch e := event.(type) {
	case *inventory.BatchCreatedEvent:
		productID = e.ProductID
	case *inventory.BatchDepletedEvent:
		productID = e.ProductID
	case *inventory.BatchStatusChangedEvent:
		productID = e.ProductID
	case *inventory.QuantityAdjustedEvent:
		productID = e.ProductID
	case *inventory.StockAllocatedEvent:
		productID = e.ProductID
	case *inventory.AllocationReversedEvent:
		productID = e.ProductID
	default:
		h.logger.Error("unexpected event type",
			zap.String("event_type", event.EventType()),
		)
		return fmt.Errorf("unexpected event type: %s", event.EventType())
	}

	// Cache failures are logged and swallowed: entries expire on their own
	// and a stale miss only costs a recomputation.
	if err := h.cache.Delete(ctx, productID); err != nil {
		h.logger.Warn("failed to invalidate product valuation cache",
			zap.String("product_id", productID.String()),
			zap.Error(err),
		)
	}
	if err := h.cache.DeleteStore(ctx); err != nil {
		h.logger.Warn("failed to invalidate store valuation cache",
			zap.Error(err),
		)
	}

	h.logger.Debug("valuation cache invalidated",
		zap.String("event_type", event.EventType()),
		zap.String("product_id", productID.String()),
	)
	return nil
}

// Ensure ValuationInvalidationHandler implements shared.EventHandler
var _ shared.EventHandler = (*ValuationInvalidationHandler)(nil)

// BatchDepletedHandler reacts to batches running dry. It logs the depletion
// and forwards a notice to an optional notifier so purchasing can reorder
type BatchDepletedHandler struct {
	logger   *zap.Logger
	notifier DepletionNotifier
}

// DepletionNotifier is the interface for delivering depletion notices
// Implementations can support different channels (in-app, email, webhook)
type DepletionNotifier interface {
	// NotifyDepleted delivers a depletion notice
	NotifyDepleted(ctx context.Context, notice DepletionNotice) error
}

// DepletionNotice describes a batch that ran out of stock
type DepletionNotice struct {
	ProductID   string `json:"product_id"`
	BatchID     string `json:"batch_id"`
	BatchNumber string `json:"batch_number"`
	OccurredAt  string `json:"occurred_at"`
}

// NewBatchDepletedHandler creates a new handler for batch depleted events
func NewBatchDepletedHandler(logger *zap.Logger) *BatchDepletedHandler {
	return &BatchDepletedHandler{
		logger: logger,
	}
}

// WithNotifier sets the notifier for delivering depletion notices
func (h *BatchDepletedHandler) WithNotifier(notifier DepletionNotifier) *BatchDepletedHandler {
	h.notifier = notifier
	return h
}

// EventTypes returns the event types this handler is interested in
func (h *BatchDepletedHandler) EventTypes() []string {
	return []string{inventory.EventTypeBatchDepleted}
}

// Handle processes a BatchDepletedEvent
func (h *BatchDepletedHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	depletedEvent, ok := event.(*inventory.BatchDepletedEvent)
	if !ok {
		h.logger.Error("unexpected event type",
			zap.String("expected", inventory.EventTypeBatchDepleted),
			zap.String("actual", event.EventType()),
		)
		return fmt.Errorf("unexpected event type: expected %s, got %s",
			inventory.EventTypeBatchDepleted, event.EventType())
	}

	h.logger.Warn("batch depleted",
		zap.String("batch_id", depletedEvent.AggregateID().String()),
		zap.String("batch_number", depletedEvent.BatchNumber),
		zap.String("product_id", depletedEvent.ProductID.String()),
	)

	if h.notifier != nil {
		notice := DepletionNotice{
			ProductID:   depletedEvent.ProductID.String(),
			BatchID:     depletedEvent.AggregateID().String(),
			BatchNumber: depletedEvent.BatchNumber,
			OccurredAt:  depletedEvent.OccurredAt().Format(time.RFC3339),
		}
		if err := h.notifier.NotifyDepleted(ctx, notice); err != nil {
			h.logger.Error("failed to deliver depletion notice",
				zap.String("batch_number", notice.BatchNumber),
				zap.Error(err),
			)
			// Notification failure must not fail the event handling
		}
	}

	return nil
}

// Ensure BatchDepletedHandler implements shared.EventHandler
var _ shared.EventHandler = (*BatchDepletedHandler)(nil)

// LoggingDepletionNotifier logs depletion notices
// This is useful for development and testing
type LoggingDepletionNotifier struct {
	logger *zap.Logger
}

// NewLoggingDepletionNotifier creates a new logging notifier
func NewLoggingDepletionNotifier(logger *zap.Logger) *LoggingDepletionNotifier {
	return &LoggingDepletionNotifier{
		logger: logger,
	}
}

// NotifyDepleted logs the depletion notice
func (n *LoggingDepletionNotifier) NotifyDepleted(ctx context.Context, notice DepletionNotice) error {
	n.logger.Warn("BATCH DEPLETED",
		zap.String("product_id", notice.ProductID),
		zap.String("batch_id", notice.BatchID),
		zap.String("batch_number", notice.BatchNumber),
	)
	return nil
}

// Ensure LoggingDepletionNotifier implements DepletionNotifier
var _ DepletionNotifier = (*LoggingDepletionNotifier)(nil)

// StockEventAuditHandler mirrors every published stock event into the
// structured log. Subscribed as a catch-all, it gives operators one stream to
// grep when they need to reconstruct what happened to a product without
// querying the movement ledger
type StockEventAuditHandler struct {
	logger *zap.Logger
}

// NewStockEventAuditHandler creates the audit mirror. Events are written
// under the "stock_audit" logger name so log pipelines can route them.
func NewStockEventAuditHandler(logger *zap.Logger) *StockEventAuditHandler {
	return &StockEventAuditHandler{
		logger: logger.Named("stock_audit"),
	}
}

// EventTypes returns nil: the bus registers a handler without types as a
// catch-all, so the mirror sees the whole stream
func (h *StockEventAuditHandler) EventTypes() []string {
	return nil
}

// Handle writes one audit line per event. The mirror is an observer, never a
// participant: it logs whatever arrives and always succeeds
func (h *StockEventAuditHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	fields := []zap.Field{
		zap.String("event_id", event.EventID().String()),
		zap.String("aggregate_type", event.AggregateType()),
		zap.String("aggregate_id", event.AggregateID().String()),
		zap.Time("occurred_at", event.OccurredAt()),
	}

	switch e := event.(type) {
	case *inventory.BatchCreatedEvent:
		fields = append(fields,
			zap.String("product_id", e.ProductID.String()),
			zap.String("batch_number", e.BatchNumber),
			zap.String("quantity", e.InitialQuantity.String()),
			zap.String("cost_price", e.CostPrice.String()),
		)
	case *inventory.BatchDepletedEvent:
		fields = append(fields,
			zap.String("product_id", e.ProductID.String()),
			zap.String("batch_number", e.BatchNumber),
		)
	case *inventory.BatchStatusChangedEvent:
		fields = append(fields,
			zap.String("product_id", e.ProductID.String()),
			zap.String("batch_number", e.BatchNumber),
			zap.String("from_status", e.FromStatus.String()),
			zap.String("to_status", e.ToStatus.String()),
			zap.String("reason", e.Reason),
		)
	case *inventory.QuantityAdjustedEvent:
		fields = append(fields,
			zap.String("product_id", e.ProductID.String()),
			zap.String("batch_number", e.BatchNumber),
			zap.String("delta", e.Delta.String()),
			zap.String("new_quantity", e.NewQuantity.String()),
		)
	case *inventory.StockAllocatedEvent:
		fields = append(fields,
			zap.String("product_id", e.ProductID.String()),
			zap.String("allocation_id", e.AllocationID.String()),
			zap.String("quantity", e.RequestedQuantity.String()),
			zap.String("total_cost", e.TotalCost.String()),
			zap.Int("batch_count", e.BatchCount),
		)
	case *inventory.AllocationReversedEvent:
		fields = append(fields,
			zap.String("product_id", e.ProductID.String()),
			zap.String("allocation_id", e.AllocationID.String()),
			zap.String("restored_quantity", e.RestoredQuantity.String()),
		)
	}

	h.logger.Info(event.EventType(), fields...)
	return nil
}

// Ensure StockEventAuditHandler implements shared.EventHandler
var _ shared.EventHandler = (*StockEventAuditHandler)(nil)
