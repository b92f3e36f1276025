package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stockledger/backend/internal/domain/shared"
)

// markPrefix namespaces event marks away from the valuation keys that share
// the same database.
const markPrefix = "event:idempotency:"

// RedisIdempotencyStore keeps processed-event marks in Redis so that every
// instance of the platform sees the same dedup state.
type RedisIdempotencyStore struct {
	client *redis.Client
}

// NewRedisIdempotencyStore dials Redis and returns the store. The store owns
// the connection and closes it on Close.
func NewRedisIdempotencyStore(cfg RedisConfig) (*RedisIdempotencyStore, error) {
	client, err := dialRedis(cfg)
	if err != nil {
		return nil, err
	}
	return &RedisIdempotencyStore{client: client}, nil
}

// MarkProcessed claims the event ID for the given TTL. SETNX makes the claim
// atomic, so exactly one delivery across all instances reports true.
func (s *RedisIdempotencyStore) MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	claimed, err := s.client.SetNX(ctx, markPrefix+eventID, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("mark event %s processed: %w", eventID, err)
	}
	return claimed, nil
}

// IsProcessed reports whether a live mark exists for the event ID.
func (s *RedisIdempotencyStore) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	n, err := s.client.Exists(ctx, markPrefix+eventID).Result()
	if err != nil {
		return false, fmt.Errorf("check event %s processed: %w", eventID, err)
	}
	return n > 0, nil
}

// Close closes the owned Redis connection.
func (s *RedisIdempotencyStore) Close() error {
	return s.client.Close()
}

var _ shared.IdempotencyStore = (*RedisIdempotencyStore)(nil)
