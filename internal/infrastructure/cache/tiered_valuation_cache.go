package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stockledger/backend/internal/domain/inventory"
)

// TieredValuationCache layers a process-local cache over a shared one.
// Reads fall through L1 to L2 and repopulate L1 on the way back. Writes go to
// both layers and broadcast an invalidation so other instances drop their own
// L1 copies. The shared layer and the broadcaster are interfaces, so tests can
// run the tier logic without Redis.
type TieredValuationCache struct {
	l1          *InMemoryValuationCache
	l2          inventory.ValuationCache
	invalidator inventory.CacheInvalidator
	config      inventory.CacheConfig
	logger      *zap.Logger

	l1Hits   atomic.Int64
	l1Misses atomic.Int64
	l2Hits   atomic.Int64
	l2Misses atomic.Int64
}

// TieredValuationCacheOption configures the tiered cache.
type TieredValuationCacheOption func(*TieredValuationCache)

// WithTieredConfig overrides the default TTLs.
func WithTieredConfig(config inventory.CacheConfig) TieredValuationCacheOption {
	return func(c *TieredValuationCache) {
		c.config = config
	}
}

// WithTieredLogger sets the logger.
func WithTieredLogger(logger *zap.Logger) TieredValuationCacheOption {
	return func(c *TieredValuationCache) {
		c.logger = logger
	}
}

// NewTieredValuationCache combines the local and shared layers. The
// invalidator may be nil, in which case no cross-instance messages are sent.
func NewTieredValuationCache(
	l1 *InMemoryValuationCache,
	l2 inventory.ValuationCache,
	invalidator inventory.CacheInvalidator,
	opts ...TieredValuationCacheOption,
) *TieredValuationCache {
	c := &TieredValuationCache{
		l1:          l1,
		l2:          l2,
		invalidator: invalidator,
		config:      inventory.DefaultCacheConfig(),
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StartInvalidationSubscription blocks draining remote invalidation messages
// into the L1 layer. Run it in its own goroutine after constructing the cache.
func (c *TieredValuationCache) StartInvalidationSubscription(ctx context.Context) error {
	if c.invalidator == nil {
		return nil
	}
	return c.invalidator.Subscribe(ctx, c.applyRemoteInvalidation)
}

// applyRemoteInvalidation drops the L1 entries another instance told us are
// stale. L2 is untouched: the sender already rewrote or deleted it there.
func (c *TieredValuationCache) applyRemoteInvalidation(msg inventory.CacheUpdateMessage) {
	ctx := context.Background()

	switch msg.Action {
	case inventory.CacheUpdateActionSnapshotUpdated, inventory.CacheUpdateActionSnapshotDeleted:
		productID, err := uuid.Parse(msg.ProductID)
		if err != nil {
			c.logger.Error("invalidation message with bad product ID",
				zap.String("product_id", msg.ProductID),
				zap.Error(err))
			return
		}
		if err := c.l1.Delete(ctx, productID); err != nil {
			c.logger.Error("local snapshot invalidation failed",
				zap.String("product_id", msg.ProductID),
				zap.Error(err))
		}

	case inventory.CacheUpdateActionStoreUpdated, inventory.CacheUpdateActionStoreDeleted:
		if err := c.l1.DeleteStore(ctx); err != nil {
			c.logger.Error("local store rollup invalidation failed", zap.Error(err))
		}

	case inventory.CacheUpdateActionInvalidateAll:
		if err := c.l1.InvalidateAll(ctx); err != nil {
			c.logger.Error("local cache clear failed", zap.Error(err))
		}
		c.logger.Info("cleared local valuation cache on remote request")
	}
}

// broadcast tells the other instances to drop their L1 copies. Failures are
// logged, not returned: the local write already succeeded and the remote
// copies expire with their TTL anyway.
func (c *TieredValuationCache) broadcast(ctx context.Context, msg inventory.CacheUpdateMessage) {
	if c.invalidator == nil {
		return
	}
	if err := c.invalidator.Publish(ctx, msg); err != nil {
		c.logger.Warn("cache invalidation broadcast failed",
			zap.String("action", string(msg.Action)),
			zap.Error(err))
	}
}

// Get reads a product snapshot through the tiers, repopulating L1 on an L2
// hit. It returns nil, nil when both layers miss.
func (c *TieredValuationCache) Get(ctx context.Context, productID uuid.UUID) (*inventory.ValuationSnapshot, error) {
	if snapshot, err := c.l1.Get(ctx, productID); err == nil && snapshot != nil {
		c.l1Hits.Add(1)
		return snapshot, nil
	}
	c.l1Misses.Add(1)

	snapshot, err := c.l2.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		c.l2Misses.Add(1)
		return nil, nil
	}

	c.l2Hits.Add(1)
	if err := c.l1.Set(ctx, snapshot, c.config.L1TTL); err != nil {
		c.logger.Warn("L1 repopulation failed",
			zap.String("product_id", productID.String()),
			zap.Error(err))
	}
	return snapshot, nil
}

// Set writes a product snapshot to both layers and broadcasts the update.
func (c *TieredValuationCache) Set(ctx context.Context, snapshot *inventory.ValuationSnapshot, ttl time.Duration) error {
	if snapshot == nil {
		return nil
	}

	if err := c.l2.Set(ctx, snapshot, ttl); err != nil {
		return err
	}
	if err := c.l1.Set(ctx, snapshot, c.config.L1TTL); err != nil {
		c.logger.Warn("L1 write failed",
			zap.String("product_id", snapshot.ProductID.String()),
			zap.Error(err))
	}

	c.broadcast(ctx, inventory.CacheUpdateMessage{
		Action:    inventory.CacheUpdateActionSnapshotUpdated,
		ProductID: snapshot.ProductID.String(),
	})
	return nil
}

// Delete removes a product snapshot from both layers and broadcasts the
// deletion.
func (c *TieredValuationCache) Delete(ctx context.Context, productID uuid.UUID) error {
	if err := c.l2.Delete(ctx, productID); err != nil {
		return err
	}
	if err := c.l1.Delete(ctx, productID); err != nil {
		c.logger.Warn("L1 delete failed",
			zap.String("product_id", productID.String()),
			zap.Error(err))
	}

	c.broadcast(ctx, inventory.CacheUpdateMessage{
		Action:    inventory.CacheUpdateActionSnapshotDeleted,
		ProductID: productID.String(),
	})
	return nil
}

// GetStore reads the store rollup through the tiers, repopulating L1 on an
// L2 hit. It returns nil, nil when both layers miss.
func (c *TieredValuationCache) GetStore(ctx context.Context) (*inventory.StoreValuation, error) {
	if valuation, err := c.l1.GetStore(ctx); err == nil && valuation != nil {
		c.l1Hits.Add(1)
		return valuation, nil
	}
	c.l1Misses.Add(1)

	valuation, err := c.l2.GetStore(ctx)
	if err != nil {
		return nil, err
	}
	if valuation == nil {
		c.l2Misses.Add(1)
		return nil, nil
	}

	c.l2Hits.Add(1)
	if err := c.l1.SetStore(ctx, valuation, c.config.L1TTL); err != nil {
		c.logger.Warn("L1 store rollup repopulation failed", zap.Error(err))
	}
	return valuation, nil
}

// SetStore writes the store rollup to both layers and broadcasts the update.
func (c *TieredValuationCache) SetStore(ctx context.Context, valuation *inventory.StoreValuation, ttl time.Duration) error {
	if valuation == nil {
		return nil
	}

	if err := c.l2.SetStore(ctx, valuation, ttl); err != nil {
		return err
	}
	if err := c.l1.SetStore(ctx, valuation, c.config.L1TTL); err != nil {
		c.logger.Warn("L1 store rollup write failed", zap.Error(err))
	}

	c.broadcast(ctx, inventory.CacheUpdateMessage{Action: inventory.CacheUpdateActionStoreUpdated})
	return nil
}

// DeleteStore removes the store rollup from both layers and broadcasts the
// deletion.
func (c *TieredValuationCache) DeleteStore(ctx context.Context) error {
	if err := c.l2.DeleteStore(ctx); err != nil {
		return err
	}
	if err := c.l1.DeleteStore(ctx); err != nil {
		c.logger.Warn("L1 store rollup delete failed", zap.Error(err))
	}

	c.broadcast(ctx, inventory.CacheUpdateMessage{Action: inventory.CacheUpdateActionStoreDeleted})
	return nil
}

// InvalidateAll clears both layers and broadcasts the clear.
func (c *TieredValuationCache) InvalidateAll(ctx context.Context) error {
	if err := c.l2.InvalidateAll(ctx); err != nil {
		return err
	}
	if err := c.l1.InvalidateAll(ctx); err != nil {
		c.logger.Warn("L1 clear failed", zap.Error(err))
	}

	c.broadcast(ctx, inventory.CacheUpdateMessage{Action: inventory.CacheUpdateActionInvalidateAll})
	return nil
}

// Close stops the invalidation subscription and shuts both layers down.
func (c *TieredValuationCache) Close() error {
	var lastErr error
	if c.invalidator != nil {
		if err := c.invalidator.Close(); err != nil {
			lastErr = err
		}
	}
	if err := c.l2.Close(); err != nil {
		lastErr = err
	}
	if err := c.l1.Close(); err != nil {
		lastErr = err
	}
	return lastErr
}

// GetL1 reads a product snapshot from the local layer only.
func (c *TieredValuationCache) GetL1(ctx context.Context, productID uuid.UUID) (*inventory.ValuationSnapshot, error) {
	return c.l1.Get(ctx, productID)
}

// SetL1 writes a product snapshot to the local layer only.
func (c *TieredValuationCache) SetL1(ctx context.Context, snapshot *inventory.ValuationSnapshot, ttl time.Duration) error {
	return c.l1.Set(ctx, snapshot, ttl)
}

// InvalidateL1 drops a product snapshot from the local layer only.
func (c *TieredValuationCache) InvalidateL1(ctx context.Context, productID uuid.UUID) error {
	return c.l1.Delete(ctx, productID)
}

// GetCacheStats reports hit and miss counts across the tiers. A read that
// missed L1 but hit L2 counts as a hit; only reads both layers missed count
// as misses.
func (c *TieredValuationCache) GetCacheStats(ctx context.Context) inventory.CacheStats {
	l1Hits := c.l1Hits.Load()
	l1Misses := c.l1Misses.Load()
	l2Hits := c.l2Hits.Load()
	l2Misses := c.l2Misses.Load()

	totalHits := l1Hits + l2Hits
	totalMisses := l2Misses

	var hitRatio float64
	if total := totalHits + totalMisses; total > 0 {
		hitRatio = float64(totalHits) / float64(total)
	}

	snapshots, rollups := c.l1.Count()
	return inventory.CacheStats{
		L1Hits:       l1Hits,
		L1Misses:     l1Misses,
		L2Hits:       l2Hits,
		L2Misses:     l2Misses,
		TotalHits:    totalHits,
		TotalMisses:  totalMisses,
		HitRatio:     hitRatio,
		CacheEntries: int64(snapshots + rollups),
	}
}

// ResetStats zeroes the hit and miss counters on this tier and on L1.
func (c *TieredValuationCache) ResetStats() {
	c.l1Hits.Store(0)
	c.l1Misses.Store(0)
	c.l2Hits.Store(0)
	c.l2Misses.Store(0)
	c.l1.ResetStats()
}

var _ inventory.ValuationCache = (*TieredValuationCache)(nil)
var _ inventory.TieredValuationCache = (*TieredValuationCache)(nil)
