package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers keys for a TTL so repeated work can be detected.
// The sync dispatcher uses it to drop duplicate enqueues of the same record.
type IdempotencyStore interface {
	// MarkProcessed marks a key as seen with a TTL
	// Returns true if the key was newly marked, false if it was already present
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// IsProcessed checks if a key is currently marked
	IsProcessed(ctx context.Context, key string) (bool, error)

	// Release forgets a key before its TTL, when the marked work never happened
	Release(ctx context.Context, key string) error

	// Close closes the store and releases resources
	Close() error
}
