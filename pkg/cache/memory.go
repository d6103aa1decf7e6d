package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/platinummonkey/tenantdesk/pkg/clock"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCache is a bounded in-process Cache. Expiry is checked against an
// injected clock on read. Counters live outside the LRU so an eviction
// can never roll an epoch back.
type MemoryCache struct {
	entries *lru.Cache[string, memoryEntry]
	clock   clock.Clock

	mu       sync.Mutex
	counters map[string]int64
}

// NewMemoryCache creates a MemoryCache holding at most size entries
func NewMemoryCache(size int, clk clock.Clock) (*MemoryCache, error) {
	if size <= 0 {
		size = 10000
	}
	if clk == nil {
		clk = clock.Real()
	}
	entries, err := lru.New[string, memoryEntry](size)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	return &MemoryCache{entries: entries, clock: clk, counters: make(map[string]int64)}, nil
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	e, ok := c.entries.Get(key)
	if !ok {
		return nil, ErrCacheMiss
	}
	if !e.expiresAt.IsZero() && !c.clock.Now().Before(e.expiresAt) {
		c.entries.Remove(key)
		return nil, ErrCacheMiss
	}
	return e.value, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = c.clock.Now().Add(ttl)
	}
	c.entries.Add(key, e)
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		c.entries.Remove(k)
	}
	return nil
}

func (c *MemoryCache) Incr(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[key]++
	return c.counters[key], nil
}

func (c *MemoryCache) Counter(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counters[key], nil
}

// Len reports the number of live and not yet reaped entries
func (c *MemoryCache) Len() int {
	return c.entries.Len()
}
