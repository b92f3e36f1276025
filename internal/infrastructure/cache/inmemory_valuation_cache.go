package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stockledger/backend/internal/domain/inventory"
)

// l1SweepInterval is how often expired local entries are purged.
const l1SweepInterval = 30 * time.Second

// timedEntry pairs a cached value with its expiry deadline.
type timedEntry[T any] struct {
	value   *T
	staleAt time.Time
}

func (e *timedEntry[T]) fresh() bool {
	return time.Now().Before(e.staleAt)
}

// InMemoryValuationCache is the process-local (L1) snapshot cache. Entries
// live for a short TTL; cross-instance coherence comes from the Pub/Sub
// invalidations the tiered cache applies on top of it.
type InMemoryValuationCache struct {
	snapshots syncMap[timedEntry[inventory.ValuationSnapshot]]
	rollups   syncMap[timedEntry[inventory.StoreValuation]]
	config    inventory.CacheConfig
	logger    *zap.Logger

	stop    chan struct{}
	stopped atomic.Bool

	hits   atomic.Int64
	misses atomic.Int64
}

// InMemoryValuationCacheOption configures the cache.
type InMemoryValuationCacheOption func(*InMemoryValuationCache)

// WithInMemoryConfig overrides the default TTLs.
func WithInMemoryConfig(config inventory.CacheConfig) InMemoryValuationCacheOption {
	return func(c *InMemoryValuationCache) {
		c.config = config
	}
}

// WithInMemoryLogger sets the logger.
func WithInMemoryLogger(logger *zap.Logger) InMemoryValuationCacheOption {
	return func(c *InMemoryValuationCache) {
		c.logger = logger
	}
}

// NewInMemoryValuationCache creates the cache and starts its sweeper.
func NewInMemoryValuationCache(opts ...InMemoryValuationCacheOption) *InMemoryValuationCache {
	c := &InMemoryValuationCache{
		config: inventory.DefaultCacheConfig(),
		logger: zap.NewNop(),
		stop:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.sweepLoop()
	return c
}

// Get retrieves a product's valuation snapshot. It returns nil, nil on a miss
// and drops an entry it finds expired.
func (c *InMemoryValuationCache) Get(ctx context.Context, productID uuid.UUID) (*inventory.ValuationSnapshot, error) {
	key := productSnapshotKey(productID)
	if entry, ok := c.snapshots.load(key); ok {
		if entry.fresh() {
			c.hits.Add(1)
			return entry.value, nil
		}
		c.snapshots.delete(key)
	}
	c.misses.Add(1)
	return nil, nil
}

// Set stores a product's valuation snapshot. A zero ttl means the configured
// snapshot TTL.
func (c *InMemoryValuationCache) Set(ctx context.Context, snapshot *inventory.ValuationSnapshot, ttl time.Duration) error {
	if snapshot == nil {
		return nil
	}
	if ttl == 0 {
		ttl = c.config.SnapshotTTL
	}

	c.snapshots.store(productSnapshotKey(snapshot.ProductID), &timedEntry[inventory.ValuationSnapshot]{
		value:   snapshot,
		staleAt: time.Now().Add(ttl),
	})
	return nil
}

// Delete removes a product's valuation snapshot.
func (c *InMemoryValuationCache) Delete(ctx context.Context, productID uuid.UUID) error {
	c.snapshots.delete(productSnapshotKey(productID))
	return nil
}

// GetStore retrieves the store-wide rollup. It returns nil, nil on a miss.
func (c *InMemoryValuationCache) GetStore(ctx context.Context) (*inventory.StoreValuation, error) {
	if entry, ok := c.rollups.load(storeValuationKey); ok {
		if entry.fresh() {
			c.hits.Add(1)
			return entry.value, nil
		}
		c.rollups.delete(storeValuationKey)
	}
	c.misses.Add(1)
	return nil, nil
}

// SetStore stores the store-wide rollup. A zero ttl means the configured
// store TTL.
func (c *InMemoryValuationCache) SetStore(ctx context.Context, valuation *inventory.StoreValuation, ttl time.Duration) error {
	if valuation == nil {
		return nil
	}
	if ttl == 0 {
		ttl = c.config.StoreTTL
	}

	c.rollups.store(storeValuationKey, &timedEntry[inventory.StoreValuation]{
		value:   valuation,
		staleAt: time.Now().Add(ttl),
	})
	return nil
}

// DeleteStore removes the store-wide rollup.
func (c *InMemoryValuationCache) DeleteStore(ctx context.Context) error {
	c.rollups.delete(storeValuationKey)
	return nil
}

// InvalidateAll clears every cached valuation.
func (c *InMemoryValuationCache) InvalidateAll(ctx context.Context) error {
	c.snapshots.clear()
	c.rollups.clear()
	c.logger.Info("cleared local valuation cache")
	return nil
}

// Close stops the sweeper. Safe to call more than once.
func (c *InMemoryValuationCache) Close() error {
	if c.stopped.CompareAndSwap(false, true) {
		close(c.stop)
	}
	return nil
}

// GetStats returns the hit and miss counts.
func (c *InMemoryValuationCache) GetStats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// ResetStats zeroes the hit and miss counts.
func (c *InMemoryValuationCache) ResetStats() {
	c.hits.Store(0)
	c.misses.Store(0)
}

// Count returns the number of live entries per keyspace.
func (c *InMemoryValuationCache) Count() (snapshots, rollups int) {
	return c.snapshots.len(), c.rollups.len()
}

func (c *InMemoryValuationCache) sweepLoop() {
	ticker := time.NewTicker(l1SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// sweep drops every expired entry so abandoned products do not pin memory
// between reads.
func (c *InMemoryValuationCache) sweep() {
	dropped := c.snapshots.deleteFunc(func(e *timedEntry[inventory.ValuationSnapshot]) bool {
		return !e.fresh()
	})
	dropped += c.rollups.deleteFunc(func(e *timedEntry[inventory.StoreValuation]) bool {
		return !e.fresh()
	})

	if dropped > 0 {
		c.logger.Debug("swept expired local cache entries", zap.Int("dropped", dropped))
	}
}

var _ inventory.ValuationCache = (*InMemoryValuationCache)(nil)
