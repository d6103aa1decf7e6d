package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/tenantdesk/pkg/observability"
)

// Authority is the read-through cache for derived authorization data. It
// is never a source of truth: every failure degrades to a direct load and
// no cache error ever reaches the caller.
type Authority struct {
	cache   Cache
	ttl     time.Duration
	logger  *observability.Logger
	metrics *observability.Metrics
	group   singleflight.Group
}

// Option configures an Authority
type Option func(*Authority)

// WithTTL overrides DefaultTTL
func WithTTL(ttl time.Duration) Option {
	return func(a *Authority) {
		if ttl > 0 {
			a.ttl = ttl
		}
	}
}

func WithLogger(logger *observability.Logger) Option {
	return func(a *Authority) { a.logger = logger }
}

func WithMetrics(metrics *observability.Metrics) Option {
	return func(a *Authority) { a.metrics = metrics }
}

// NewAuthority wraps c. A nil c yields an Authority that always loads.
func NewAuthority(c Cache, opts ...Option) *Authority {
	a := &Authority{cache: c, ttl: DefaultTTL, logger: observability.Nop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// TTL returns the entry lifetime
func (a *Authority) TTL() time.Duration {
	return a.ttl
}

func (a *Authority) enabled() bool {
	return a != nil && a.cache != nil
}

func (a *Authority) absorb(ctx context.Context, op, key string, err error) {
	if a.metrics != nil {
		a.metrics.CacheErrorsTotal.WithLabelValues(op).Inc()
	}
	observability.FromContext(ctx).WithError(err).WithFields(map[string]interface{}{
		"cache_op":  op,
		"cache_key": key,
	}).Warn("authority cache degraded")
}

func (a *Authority) hit(kind string) {
	if a.metrics != nil {
		a.metrics.CacheHitsTotal.WithLabelValues(kind).Inc()
	}
}

func (a *Authority) miss(kind string) {
	if a.metrics != nil {
		a.metrics.CacheMissesTotal.WithLabelValues(kind).Inc()
	}
}

// Fetch returns the cached value at key, or calls load, caches a
// successful result for the TTL and returns it. Concurrent misses on one
// key share a single load. Load errors are returned and never cached.
func Fetch[T any](ctx context.Context, a *Authority, kind, key string, load func(context.Context) (T, error)) (T, error) {
	if !a.enabled() {
		return load(ctx)
	}

	data, err := a.cache.Get(ctx, key)
	switch {
	case err == nil:
		var v T
		if uerr := json.Unmarshal(data, &v); uerr == nil {
			a.hit(kind)
			return v, nil
		}
		a.Invalidate(ctx, kind, key)
	case !errors.Is(err, ErrCacheMiss):
		a.absorb(ctx, "get", key, err)
	}
	a.miss(kind)

	res, err, _ := a.group.Do(key, func() (interface{}, error) {
		v, err := load(ctx)
		if err != nil {
			return v, err
		}
		a.store(ctx, key, v)
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	v, _ := res.(T)
	return v, nil
}

func (a *Authority) store(ctx context.Context, key string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		a.absorb(ctx, "encode", key, err)
		return
	}
	if err := a.cache.Set(ctx, key, data, a.ttl); err != nil {
		a.absorb(ctx, "set", key, err)
	}
}

// Invalidate deletes exactly keys. Failures are logged and counted only.
func (a *Authority) Invalidate(ctx context.Context, kind string, keys ...string) {
	if !a.enabled() || len(keys) == 0 {
		return
	}
	if err := a.cache.Delete(ctx, keys...); err != nil {
		a.absorb(ctx, "delete", keys[0], err)
		return
	}
	if a.metrics != nil {
		a.metrics.CacheInvalidationsTotal.WithLabelValues(kind).Add(float64(len(keys)))
	}
}

// Epoch reads the counter at key. ok is false when the cache is disabled
// or failing; callers should bypass the cache for that read.
func (a *Authority) Epoch(ctx context.Context, key string) (epoch int64, ok bool) {
	if !a.enabled() {
		return 0, false
	}
	n, err := a.cache.Counter(ctx, key)
	if err != nil {
		a.absorb(ctx, "epoch", key, err)
		return 0, false
	}
	return n, true
}

// BumpEpoch orphans every key versioned by the counter at key
func (a *Authority) BumpEpoch(ctx context.Context, key string) {
	if !a.enabled() {
		return
	}
	if _, err := a.cache.Incr(ctx, key); err != nil {
		a.absorb(ctx, "incr", key, err)
	}
}

// Retire bumps the epoch at epochKey and deletes the keys of the retired
// epoch named by keysFor, which may be nil. A load that started before the
// bump can only store under the retired epoch, which no later read asks
// for.
func (a *Authority) Retire(ctx context.Context, kind, epochKey string, keysFor func(epoch int64) []string) {
	if !a.enabled() {
		return
	}
	n, err := a.cache.Incr(ctx, epochKey)
	if err != nil {
		a.absorb(ctx, "incr", epochKey, err)
		return
	}
	if keysFor != nil {
		a.Invalidate(ctx, kind, keysFor(n-1)...)
	}
}

// FetchVersioned is Fetch under a key derived from the current epoch at
// epochKey. If the epoch cannot be read, load runs uncached.
func FetchVersioned[T any](ctx context.Context, a *Authority, kind, epochKey string, keyFor func(epoch int64) string, load func(context.Context) (T, error)) (T, error) {
	epoch, ok := a.Epoch(ctx, epochKey)
	if !ok {
		return load(ctx)
	}
	return Fetch(ctx, a, kind, keyFor(epoch), load)
}
