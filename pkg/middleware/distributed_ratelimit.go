package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// DistributedRateLimiter implements rate limiting using Redis
// This allows rate limits to be shared across multiple instances
type DistributedRateLimiter struct {
	redis  redis.UniversalClient
	config *RateLimitConfig
	prefix string
}

// NewDistributedRateLimiter creates a new Redis-backed rate limiter
func NewDistributedRateLimiter(redisClient redis.UniversalClient, config *RateLimitConfig, prefix string) *DistributedRateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	if prefix == "" {
		prefix = "ratelimit"
	}

	return &DistributedRateLimiter{
		redis:  redisClient,
		config: config,
		prefix: prefix,
	}
}

func (rl *DistributedRateLimiter) redisKey(key string) string {
	return fmt.Sprintf("%s:%s", rl.prefix, key)
}

// Allow counts the request in key's current fixed window. The window
// starts with the first request and expires WindowDuration later; burst
// capacity is added to the per-window allowance.
func (rl *DistributedRateLimiter) Allow(ctx context.Context, key string) (Result, error) {
	redisKey := rl.redisKey(key)

	pipe := rl.redis.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	ttl := pipe.PTTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, fmt.Errorf("redis error: %w", err)
	}

	resetAfter := ttl.Val()
	if resetAfter < 0 {
		// New window: the key has no expiry yet
		if err := rl.redis.PExpire(ctx, redisKey, rl.config.WindowDuration).Err(); err != nil {
			return Result{}, fmt.Errorf("redis error: %w", err)
		}
		resetAfter = rl.config.WindowDuration
	}

	count := int(incr.Val())
	remaining := rl.config.capacity() - count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:    count <= rl.config.capacity(),
		Limit:      rl.config.RequestsPerWindow,
		Remaining:  remaining,
		ResetAfter: resetAfter,
	}, nil
}

// TTL returns the time until the rate limit window resets
func (rl *DistributedRateLimiter) TTL(ctx context.Context, key string) (time.Duration, error) {
	return rl.redis.PTTL(ctx, rl.redisKey(key)).Result()
}

// Reset clears the rate limit for a key (for testing or admin purposes)
func (rl *DistributedRateLimiter) Reset(ctx context.Context, key string) error {
	return rl.redis.Del(ctx, rl.redisKey(key)).Err()
}
