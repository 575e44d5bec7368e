// Package kv abstracts the TTL key/value store used for token revocation
// entries and rate-limit counters.
package kv

import (
	"context"
	"time"
)

type Store interface {
	// Set writes a presence flag under key that disappears after ttl.
	Set(ctx context.Context, key string, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	// Incr increments the counter under key and returns the new value.
	// The ttl applies from the first increment of the window.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}
