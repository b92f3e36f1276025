package event

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/stockledger/backend/internal/domain/shared"
)

// IdempotentHandler wraps an EventHandler so redelivered stock events run
// their side effects once. The wrapped handler only sees an event whose ID
// was not marked processed yet; everything else is acknowledged silently.
type IdempotentHandler struct {
	inner shared.EventHandler
	store shared.IdempotencyStore
	cfg   shared.IdempotencyConfig
	log   *zap.Logger
	stats *IdempotencyMetrics
}

// IdempotentHandlerOption is a functional option for IdempotentHandler
type IdempotentHandlerOption func(*IdempotentHandler)

// WithIdempotencyConfig sets the idempotency configuration
func WithIdempotencyConfig(config shared.IdempotencyConfig) IdempotentHandlerOption {
	return func(h *IdempotentHandler) {
		h.cfg = config
	}
}

// WithIdempotencyMetrics lets several handlers share one counter set
func WithIdempotencyMetrics(metrics *IdempotencyMetrics) IdempotentHandlerOption {
	return func(h *IdempotentHandler) {
		h.stats = metrics
	}
}

// NewIdempotentHandler creates a new idempotent handler wrapper
func NewIdempotentHandler(
	handler shared.EventHandler,
	store shared.IdempotencyStore,
	logger *zap.Logger,
	opts ...IdempotentHandlerOption,
) *IdempotentHandler {
	h := &IdempotentHandler{
		inner: handler,
		store: store,
		cfg:   shared.DefaultIdempotencyConfig(),
		log:   logger,
		stats: &IdempotencyMetrics{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// EventTypes returns the wrapped handler's subscriptions
func (h *IdempotentHandler) EventTypes() []string {
	return h.inner.EventTypes()
}

// Handle runs the wrapped handler unless the event was already processed.
// A failing idempotency store degrades to at-least-once delivery: dropping
// an invalidation would leave a stale snapshot, a duplicate one is harmless.
func (h *IdempotentHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	if h.cfg.Enabled && !h.firstDelivery(ctx, event) {
		return nil
	}

	if err := h.inner.Handle(ctx, event); err != nil {
		h.stats.EventsFailed.Add(1)
		h.log.Error("event handler failed",
			zap.String("event_id", event.EventID().String()),
			zap.String("event_type", event.EventType()),
			zap.Error(err),
		)
		// The processed mark stays in place on failure. It expires with the
		// TTL, which throttles retries to one per cooldown instead of
		// hammering a broken handler.
		return err
	}

	h.stats.EventsProcessed.Add(1)
	return nil
}

// firstDelivery marks the event processed and reports whether this delivery
// was the first one
func (h *IdempotentHandler) firstDelivery(ctx context.Context, event shared.DomainEvent) bool {
	isNew, err := h.store.MarkProcessed(ctx, event.EventID().String(), h.cfg.TTL)
	if err != nil {
		h.log.Warn("idempotency check failed, processing anyway",
			zap.String("event_id", event.EventID().String()),
			zap.String("event_type", event.EventType()),
			zap.Error(err),
		)
		return true
	}
	if !isNew {
		h.stats.EventsDuplicate.Add(1)
		h.log.Debug("duplicate event skipped",
			zap.String("event_id", event.EventID().String()),
			zap.String("event_type", event.EventType()),
		)
	}
	return isNew
}

// Metrics returns the counter set for this handler
func (h *IdempotentHandler) Metrics() *IdempotencyMetrics {
	return h.stats
}

// Unwrap returns the wrapped handler
func (h *IdempotentHandler) Unwrap() shared.EventHandler {
	return h.inner
}

// Ensure IdempotentHandler implements EventHandler
var _ shared.EventHandler = (*IdempotentHandler)(nil)

// IdempotencyMetrics counts dedup outcomes across a handler's lifetime
type IdempotencyMetrics struct {
	EventsProcessed atomic.Int64
	EventsDuplicate atomic.Int64
	EventsFailed    atomic.Int64
}

// IdempotencyStats is a point-in-time copy of the counters
type IdempotencyStats struct {
	EventsProcessed int64 `json:"events_processed"`
	EventsDuplicate int64 `json:"events_duplicate"`
	EventsFailed    int64 `json:"events_failed"`
}

// Stats returns a snapshot of the current metrics
func (m *IdempotencyMetrics) Stats() IdempotencyStats {
	return IdempotencyStats{
		EventsProcessed: m.EventsProcessed.Load(),
		EventsDuplicate: m.EventsDuplicate.Load(),
		EventsFailed:    m.EventsFailed.Load(),
	}
}
