// Package cache provides the valuation snapshot caches and the event
// idempotency stores. A process-local layer answers hot reads, Redis makes
// snapshots and dedup marks visible across instances, and Pub/Sub keeps the
// local layers coherent.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const dialTimeout = 5 * time.Second

// RedisConfig holds the connection settings for the package's Redis-backed
// stores.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// dialRedis opens a client and verifies the connection before handing it out.
func dialRedis(cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", client.Options().Addr, err)
	}
	return client, nil
}
