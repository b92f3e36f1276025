package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/stockledger/backend/internal/domain/inventory"
)

const (
	// storeValuationKey is the single key holding the store-wide rollup.
	storeValuationKey = "valuation:store"

	// valuationKeyPattern matches every valuation key for bulk invalidation.
	valuationKeyPattern = "valuation:*"

	// scanBatchSize bounds each SCAN page during bulk invalidation.
	scanBatchSize = 100
)

// productSnapshotKey is the cache key for one product's valuation snapshot.
// The Redis and in-memory layers share the keyspace so a Pub/Sub message can
// name the entry to drop in either one.
func productSnapshotKey(productID uuid.UUID) string {
	return "valuation:product:" + productID.String()
}

// RedisValuationCache is the shared (L2) snapshot cache. Snapshots are stored
// as JSON so the platform instances, which write the same keys, can read them
// back regardless of which service computed them.
type RedisValuationCache struct {
	client *redis.Client
	config inventory.CacheConfig
	logger *zap.Logger
}

// RedisValuationCacheOption configures a RedisValuationCache.
type RedisValuationCacheOption func(*RedisValuationCache)

// WithCacheConfig overrides the default TTLs.
func WithCacheConfig(config inventory.CacheConfig) RedisValuationCacheOption {
	return func(c *RedisValuationCache) {
		c.config = config
	}
}

// WithCacheLogger sets the logger.
func WithCacheLogger(logger *zap.Logger) RedisValuationCacheOption {
	return func(c *RedisValuationCache) {
		c.logger = logger
	}
}

// NewRedisValuationCache wraps an existing client. The caller keeps ownership
// of the client and closes it after the cache is no longer in use.
func NewRedisValuationCache(client *redis.Client, opts ...RedisValuationCacheOption) *RedisValuationCache {
	c := &RedisValuationCache{
		client: client,
		config: inventory.DefaultCacheConfig(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// readJSON loads and decodes one key into dst. It reports false on a miss.
// A payload that no longer decodes is dropped so the next read falls through
// to the valuation engine instead of failing forever.
func (c *RedisValuationCache) readJSON(ctx context.Context, key string, dst any) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == redis.Nil:
		return false, nil
	case err != nil:
		return false, fmt.Errorf("cache read %s: %w", key, err)
	}

	if err := json.Unmarshal(data, dst); err != nil {
		c.logger.Warn("dropping undecodable cache entry", zap.String("key", key), zap.Error(err))
		_ = c.client.Del(ctx, key)
		return false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return true, nil
}

// writeJSON encodes src and stores it under key for the given TTL.
func (c *RedisValuationCache) writeJSON(ctx context.Context, key string, src any, ttl time.Duration) error {
	data, err := json.Marshal(src)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("cache write %s: %w", key, err)
	}
	return nil
}

// Get retrieves a product's valuation snapshot. It returns nil, nil on a miss.
func (c *RedisValuationCache) Get(ctx context.Context, productID uuid.UUID) (*inventory.ValuationSnapshot, error) {
	var snapshot inventory.ValuationSnapshot
	hit, err := c.readJSON(ctx, productSnapshotKey(productID), &snapshot)
	if err != nil {
		c.logger.Error("valuation snapshot read failed",
			zap.String("product_id", productID.String()),
			zap.Error(err))
		return nil, err
	}
	if !hit {
		return nil, nil
	}
	return &snapshot, nil
}

// Set stores a product's valuation snapshot. A zero ttl means the configured
// snapshot TTL.
func (c *RedisValuationCache) Set(ctx context.Context, snapshot *inventory.ValuationSnapshot, ttl time.Duration) error {
	if snapshot == nil {
		return nil
	}
	if ttl == 0 {
		ttl = c.config.SnapshotTTL
	}

	if err := c.writeJSON(ctx, productSnapshotKey(snapshot.ProductID), snapshot, ttl); err != nil {
		c.logger.Error("valuation snapshot write failed",
			zap.String("product_id", snapshot.ProductID.String()),
			zap.Error(err))
		return err
	}
	return nil
}

// Delete removes a product's valuation snapshot.
func (c *RedisValuationCache) Delete(ctx context.Context, productID uuid.UUID) error {
	if err := c.client.Del(ctx, productSnapshotKey(productID)).Err(); err != nil {
		c.logger.Error("valuation snapshot delete failed",
			zap.String("product_id", productID.String()),
			zap.Error(err))
		return fmt.Errorf("cache delete %s: %w", productSnapshotKey(productID), err)
	}
	return nil
}

// GetStore retrieves the store-wide rollup. It returns nil, nil on a miss.
func (c *RedisValuationCache) GetStore(ctx context.Context) (*inventory.StoreValuation, error) {
	var valuation inventory.StoreValuation
	hit, err := c.readJSON(ctx, storeValuationKey, &valuation)
	if err != nil {
		c.logger.Error("store valuation read failed", zap.Error(err))
		return nil, err
	}
	if !hit {
		return nil, nil
	}
	return &valuation, nil
}

// SetStore stores the store-wide rollup. A zero ttl means the configured
// store TTL.
func (c *RedisValuationCache) SetStore(ctx context.Context, valuation *inventory.StoreValuation, ttl time.Duration) error {
	if valuation == nil {
		return nil
	}
	if ttl == 0 {
		ttl = c.config.StoreTTL
	}

	if err := c.writeJSON(ctx, storeValuationKey, valuation, ttl); err != nil {
		c.logger.Error("store valuation write failed", zap.Error(err))
		return err
	}
	return nil
}

// DeleteStore removes the store-wide rollup.
func (c *RedisValuationCache) DeleteStore(ctx context.Context) error {
	if err := c.client.Del(ctx, storeValuationKey).Err(); err != nil {
		c.logger.Error("store valuation delete failed", zap.Error(err))
		return fmt.Errorf("cache delete %s: %w", storeValuationKey, err)
	}
	return nil
}

// InvalidateAll removes every valuation key. SCAN pages through the keyspace
// so a large cache does not block Redis the way KEYS would.
func (c *RedisValuationCache) InvalidateAll(ctx context.Context) error {
	var cursor uint64
	var dropped int64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, valuationKeyPattern, scanBatchSize).Result()
		if err != nil {
			c.logger.Error("valuation key scan failed", zap.Error(err))
			return fmt.Errorf("scan valuation keys: %w", err)
		}

		if len(keys) > 0 {
			n, err := c.client.Del(ctx, keys...).Result()
			if err != nil {
				c.logger.Error("valuation key delete failed", zap.Error(err))
				return fmt.Errorf("delete valuation keys: %w", err)
			}
			dropped += n
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	c.logger.Info("cleared shared valuation cache", zap.Int64("keys_dropped", dropped))
	return nil
}

// Close is a no-op: the injected client is owned by the caller.
func (c *RedisValuationCache) Close() error {
	return nil
}

var _ inventory.ValuationCache = (*RedisValuationCache)(nil)
