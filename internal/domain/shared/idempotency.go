package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers which event IDs a subscriber has already
// handled, so redelivered stock events do not run their side effects twice.
type IdempotencyStore interface {
	// MarkProcessed records an event ID with a TTL. It returns true when
	// the ID was newly recorded and false when it was already present.
	MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error)

	// IsProcessed reports whether an event ID has already been recorded
	IsProcessed(ctx context.Context, eventID string) (bool, error)

	// Close releases the store's resources
	Close() error
}

// IdempotencyConfig controls duplicate suppression for event handlers
type IdempotencyConfig struct {
	// TTL is how long a processed event ID is remembered. Once it lapses
	// the same ID would be handled again.
	TTL time.Duration

	// Enabled turns duplicate suppression on or off
	Enabled bool
}

// DefaultIdempotencyConfig returns the defaults: suppression on, IDs
// remembered for a day.
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL:     24 * time.Hour,
		Enabled: true,
	}
}
