package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/tenantdesk/pkg/tenancy"
)

// RedisOptions configures NewRedisClient
type RedisOptions struct {
	URL        string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
}

// NewRedisClient parses opts.URL and verifies connectivity
func NewRedisClient(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	ro, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if opts.Password != "" {
		ro.Password = opts.Password
	}
	if opts.DB > 0 {
		ro.DB = opts.DB
	}
	if opts.PoolSize > 0 {
		ro.PoolSize = opts.PoolSize
	}
	if opts.MaxRetries > 0 {
		ro.MaxRetries = opts.MaxRetries
	}
	ro.DialTimeout = 5 * time.Second
	ro.ReadTimeout = 3 * time.Second
	ro.WriteTimeout = 3 * time.Second
	ro.PoolTimeout = 4 * time.Second

	client := redis.NewClient(ro)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// RedisCache stores authority entries in Redis
type RedisCache struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisCache wraps client. prefix namespaces every key.
func NewRedisCache(client redis.UniversalClient, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) key(k string) string {
	return c.prefix + k
}

func unavailable(op string, err error) error {
	return fmt.Errorf("redis %s: %w: %v", op, tenancy.ErrCacheUnavailable, err)
}

// Get returns ErrCacheMiss on redis.Nil
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, unavailable("get", err)
	}
	return data, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.key(key), value, ttl).Err(); err != nil {
		return unavailable("set", err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.key(k)
	}
	if err := c.client.Del(ctx, full...).Err(); err != nil {
		return unavailable("del", err)
	}
	return nil
}

func (c *RedisCache) Incr(ctx context.Context, key string) (int64, error) {
	n, err := c.client.Incr(ctx, c.key(key)).Result()
	if err != nil {
		return 0, unavailable("incr", err)
	}
	return n, nil
}

func (c *RedisCache) Counter(ctx context.Context, key string) (int64, error) {
	n, err := c.client.Get(ctx, c.key(key)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, unavailable("get counter", err)
	}
	return n, nil
}
