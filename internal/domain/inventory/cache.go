package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ValuationCache caches computed valuation snapshots so that repeated
// valuation reads do not rescan every batch row. Entries are advisory:
// a miss or a cache failure always falls back to recomputing from the
// batch store, and stock mutations invalidate the affected entries.
//
// Cache keys follow the pattern:
// - Product snapshots: valuation:product:{product_id}
// - Store rollup: valuation:store
type ValuationCache interface {
	// Get retrieves a product's valuation snapshot.
	// Returns nil, nil on a cache miss.
	Get(ctx context.Context, productID uuid.UUID) (*ValuationSnapshot, error)

	// Set stores a product's valuation snapshot with the specified TTL.
	// If ttl is 0, the implementation uses a default TTL.
	Set(ctx context.Context, snapshot *ValuationSnapshot, ttl time.Duration) error

	// Delete removes a product's valuation snapshot.
	Delete(ctx context.Context, productID uuid.UUID) error

	// GetStore retrieves the store-wide valuation rollup.
	// Returns nil, nil on a cache miss.
	GetStore(ctx context.Context) (*StoreValuation, error)

	// SetStore stores the store-wide valuation rollup with the specified TTL.
	SetStore(ctx context.Context, valuation *StoreValuation, ttl time.Duration) error

	// DeleteStore removes the store-wide valuation rollup.
	DeleteStore(ctx context.Context) error

	// InvalidateAll removes all cached valuations.
	InvalidateAll(ctx context.Context) error

	// Close releases any resources held by the cache.
	Close() error
}

// CacheUpdateAction represents the type of cache update notification
type CacheUpdateAction string

const (
	// CacheUpdateActionSnapshotUpdated indicates a product snapshot was recomputed
	CacheUpdateActionSnapshotUpdated CacheUpdateAction = "snapshot_updated"
	// CacheUpdateActionSnapshotDeleted indicates a product snapshot was invalidated
	CacheUpdateActionSnapshotDeleted CacheUpdateAction = "snapshot_deleted"
	// CacheUpdateActionStoreUpdated indicates the store rollup was recomputed
	CacheUpdateActionStoreUpdated CacheUpdateAction = "store_updated"
	// CacheUpdateActionStoreDeleted indicates the store rollup was invalidated
	CacheUpdateActionStoreDeleted CacheUpdateAction = "store_deleted"
	// CacheUpdateActionInvalidateAll indicates all cached valuations should be cleared
	CacheUpdateActionInvalidateAll CacheUpdateAction = "invalidate_all"
)

// CacheUpdateMessage represents a cache invalidation message
// sent via Pub/Sub to notify other instances of cache changes.
type CacheUpdateMessage struct {
	Action    CacheUpdateAction `json:"action"`
	ProductID string            `json:"product_id,omitempty"`
	Timestamp int64             `json:"timestamp"`
}

// CacheInvalidator provides cache invalidation functionality.
// It allows publishing cache update notifications to other instances
// and subscribing to receive notifications from other instances.
type CacheInvalidator interface {
	// Publish sends a cache update notification to all subscribers.
	Publish(ctx context.Context, msg CacheUpdateMessage) error

	// Subscribe starts listening for cache update notifications.
	// The callback function is invoked for each received message.
	// This method should be called in a goroutine as it blocks.
	Subscribe(ctx context.Context, callback func(msg CacheUpdateMessage)) error

	// Close releases any resources held by the invalidator.
	Close() error
}

// TieredValuationCache combines multiple cache layers for optimal performance.
// It follows a read-through, write-around pattern:
// - Reads: Check L1 -> Check L2 -> recompute from the batch store
// - Writes: Write to L2, invalidate L1 via Pub/Sub
type TieredValuationCache interface {
	ValuationCache

	// GetL1 directly accesses the L1 (local) cache, bypassing L2.
	GetL1(ctx context.Context, productID uuid.UUID) (*ValuationSnapshot, error)

	// SetL1 directly sets a value in the L1 (local) cache.
	// This is typically called when receiving Pub/Sub notifications.
	SetL1(ctx context.Context, snapshot *ValuationSnapshot, ttl time.Duration) error

	// InvalidateL1 removes a product entry from the L1 (local) cache only.
	InvalidateL1(ctx context.Context, productID uuid.UUID) error

	// GetCacheStats returns statistics about cache hits, misses, and other metrics.
	GetCacheStats(ctx context.Context) CacheStats
}

// CacheStats holds cache performance statistics
type CacheStats struct {
	L1Hits       int64   `json:"l1_hits"`
	L1Misses     int64   `json:"l1_misses"`
	L2Hits       int64   `json:"l2_hits"`
	L2Misses     int64   `json:"l2_misses"`
	TotalHits    int64   `json:"total_hits"`
	TotalMisses  int64   `json:"total_misses"`
	HitRatio     float64 `json:"hit_ratio"`
	CacheEntries int64   `json:"cache_entries"`
}

// CacheConfig holds configuration for the valuation cache
type CacheConfig struct {
	// SnapshotTTL is the time-to-live for per-product snapshots (default: 60s)
	SnapshotTTL time.Duration
	// StoreTTL is the time-to-live for the store rollup (default: 30s)
	StoreTTL time.Duration
	// L1TTL is the time-to-live for L1 (local) cache entries (default: 10s)
	L1TTL time.Duration
	// PubSubChannel is the Redis Pub/Sub channel name (default: "valuation:updates")
	PubSubChannel string
}

// DefaultCacheConfig returns the default cache configuration
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		SnapshotTTL:   60 * time.Second,
		StoreTTL:      30 * time.Second,
		L1TTL:         10 * time.Second,
		PubSubChannel: "valuation:updates",
	}
}
