package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/stockledger/backend/internal/domain/inventory"
)

// closeWait bounds how long Close waits for a running subscription to stop.
const closeWait = 5 * time.Second

var errAlreadySubscribed = errors.New("invalidation subscription already running")

// RedisValuationCacheInvalidator fans cache update messages out over Redis
// Pub/Sub. Every instance subscribes on the same channel, so a snapshot write
// on one box drops the stale L1 entries on all the others.
type RedisValuationCacheInvalidator struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// RedisValuationCacheInvalidatorOption configures the invalidator.
type RedisValuationCacheInvalidatorOption func(*RedisValuationCacheInvalidator)

// WithInvalidatorChannel overrides the Pub/Sub channel name.
func WithInvalidatorChannel(channel string) RedisValuationCacheInvalidatorOption {
	return func(i *RedisValuationCacheInvalidator) {
		i.channel = channel
	}
}

// WithInvalidatorLogger sets the logger.
func WithInvalidatorLogger(logger *zap.Logger) RedisValuationCacheInvalidatorOption {
	return func(i *RedisValuationCacheInvalidator) {
		i.logger = logger
	}
}

// NewRedisValuationCacheInvalidator wraps an existing client. The caller keeps
// ownership of the client and closes it after the invalidator is closed.
func NewRedisValuationCacheInvalidator(client *redis.Client, opts ...RedisValuationCacheInvalidatorOption) *RedisValuationCacheInvalidator {
	i := &RedisValuationCacheInvalidator{
		client:  client,
		channel: inventory.DefaultCacheConfig().PubSubChannel,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Publish sends one cache update message to every subscriber. An unset
// timestamp is stamped with the current time so receivers can age messages.
func (i *RedisValuationCacheInvalidator) Publish(ctx context.Context, msg inventory.CacheUpdateMessage) error {
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixNano()
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode cache update: %w", err)
	}
	if err := i.client.Publish(ctx, i.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish cache update on %s: %w", i.channel, err)
	}

	i.logger.Debug("published cache update",
		zap.String("action", string(msg.Action)),
		zap.String("product_id", msg.ProductID))
	return nil
}

// Subscribe listens on the channel and invokes callback for every decoded
// message. It blocks until the context is canceled or the connection drops,
// so call it from its own goroutine. Only one subscription may run at a time.
func (i *RedisValuationCacheInvalidator) Subscribe(ctx context.Context, callback func(msg inventory.CacheUpdateMessage)) error {
	subCtx, cancel := context.WithCancel(ctx)

	i.mu.Lock()
	if i.running {
		i.mu.Unlock()
		cancel()
		return errAlreadySubscribed
	}
	done := make(chan struct{})
	i.running = true
	i.cancel = cancel
	i.done = done
	i.mu.Unlock()

	defer func() {
		i.mu.Lock()
		i.running = false
		i.mu.Unlock()
		close(done)
	}()

	pubsub := i.client.Subscribe(subCtx, i.channel)
	defer pubsub.Close()

	// The first Receive confirms the SUBSCRIBE before we start draining.
	if _, err := pubsub.Receive(subCtx); err != nil {
		return fmt.Errorf("subscribe to %s: %w", i.channel, err)
	}
	i.logger.Info("listening for cache invalidations", zap.String("channel", i.channel))

	return i.pump(subCtx, pubsub.Channel(), callback)
}

// pump drains messages until the context ends or the channel closes.
func (i *RedisValuationCacheInvalidator) pump(ctx context.Context, ch <-chan *redis.Message, callback func(msg inventory.CacheUpdateMessage)) error {
	for {
		select {
		case <-ctx.Done():
			i.logger.Info("cache invalidation subscription stopped")
			return ctx.Err()
		case raw, ok := <-ch:
			if !ok {
				i.logger.Warn("cache invalidation channel closed")
				return nil
			}

			var msg inventory.CacheUpdateMessage
			if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
				i.logger.Error("undecodable cache update message",
					zap.String("payload", raw.Payload),
					zap.Error(err))
				continue
			}
			i.dispatch(msg, callback)
		}
	}
}

// dispatch hands the message to the callback on its own goroutine so a slow
// or panicking callback cannot stall the pump.
func (i *RedisValuationCacheInvalidator) dispatch(msg inventory.CacheUpdateMessage, callback func(msg inventory.CacheUpdateMessage)) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				i.logger.Error("cache update callback panicked", zap.Any("panic", r))
			}
		}()
		callback(msg)
	}()
}

// Close stops a running subscription and waits briefly for it to drain. The
// Redis client itself stays open for its owner.
func (i *RedisValuationCacheInvalidator) Close() error {
	i.mu.Lock()
	cancel, done, running := i.cancel, i.done, i.running
	i.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	if running {
		select {
		case <-done:
		case <-time.After(closeWait):
			i.logger.Warn("timed out waiting for invalidation subscription to stop")
		}
	}
	return nil
}

var _ inventory.CacheInvalidator = (*RedisValuationCacheInvalidator)(nil)
