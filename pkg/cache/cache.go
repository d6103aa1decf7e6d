package cache

import (
	"context"
	"errors"
	"time"
)

// DefaultTTL applies to every key class
const DefaultTTL = 5 * time.Minute

// ErrCacheMiss is returned by Get when the key is absent or expired
var ErrCacheMiss = errors.New("cache miss")

// Cache is the byte-level store behind Authority. Implementations must be
// safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error

	// Incr atomically increments a counter key that never expires and
	// returns the new value. A missing key counts as zero.
	Incr(ctx context.Context, key string) (int64, error)

	// Counter reads a counter written by Incr; missing is zero.
	Counter(ctx context.Context, key string) (int64, error)
}
