package middleware

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/tenantdesk/pkg/clock"
	"github.com/platinummonkey/tenantdesk/pkg/httputil"
	"github.com/platinummonkey/tenantdesk/pkg/observability"
	"github.com/platinummonkey/tenantdesk/pkg/tenancy"
)

// RateLimitConfig defines rate limiting configuration
type RateLimitConfig struct {
	// RequestsPerWindow is the max requests allowed in the time window
	RequestsPerWindow int
	// WindowDuration is the time window for rate limiting
	WindowDuration time.Duration
	// BurstSize allows temporary bursts above the rate
	BurstSize int
}

// DefaultRateLimitConfig returns settings for unauthenticated callers
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 100,
		WindowDuration:    time.Minute,
		BurstSize:         10,
	}
}

// PerUserRateLimitConfig returns per-principal rate limit settings
func PerUserRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 1000,
		WindowDuration:    time.Minute,
		BurstSize:         50,
	}
}

// InboundRateLimitConfig limits externally originated messages per
// workspace. Every inbound message can move a conversation back to Todo,
// so ingestion bursts are capped separately from agent traffic.
func InboundRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 600,
		WindowDuration:    time.Minute,
		BurstSize:         60,
	}
}

func (c *RateLimitConfig) capacity() int {
	return c.RequestsPerWindow + c.BurstSize
}

// Result describes one rate limit decision
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	// ResetAfter is how long until the caller regains capacity
	ResetAfter time.Duration
}

// Limiter decides whether the caller identified by key may proceed.
// A non-nil error means the limiter could not decide; the middleware fails
// open.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// RateLimiter implements rate limiting using token bucket algorithm
type RateLimiter struct {
	config  *RateLimitConfig
	clock   clock.Clock
	buckets map[string]*bucket
	mu      sync.Mutex
}

type bucket struct {
	tokens     int
	lastUpdate time.Time
}

// NewRateLimiter creates an in-process limiter. clk may be nil.
func NewRateLimiter(config *RateLimitConfig, clk clock.Clock) *RateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &RateLimiter{
		config:  config,
		clock:   clk,
		buckets: make(map[string]*bucket),
	}
}

// refill tops the bucket up for the time elapsed since its last update.
// Callers hold rl.mu.
func (rl *RateLimiter) refill(b *bucket, now time.Time) {
	elapsed := now.Sub(b.lastUpdate)
	tokensToAdd := int(elapsed.Seconds() * float64(rl.config.RequestsPerWindow) / rl.config.WindowDuration.Seconds())
	if tokensToAdd <= 0 {
		return
	}
	b.tokens += tokensToAdd
	if b.tokens > rl.config.capacity() {
		b.tokens = rl.config.capacity()
	}
	b.lastUpdate = now
}

// Allow takes one token from key's bucket
func (rl *RateLimiter) Allow(_ context.Context, key string) (Result, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	b, exists := rl.buckets[key]
	if !exists {
		b = &bucket{tokens: rl.config.capacity(), lastUpdate: now}
		rl.buckets[key] = b
	}
	rl.refill(b, now)

	res := Result{Limit: rl.config.RequestsPerWindow}
	if b.tokens > 0 {
		b.tokens--
		res.Allowed = true
	}
	res.Remaining = b.tokens
	if res.Remaining == 0 {
		res.ResetAfter = rl.config.WindowDuration / time.Duration(rl.config.RequestsPerWindow)
	}
	return res, nil
}

// Cleanup removes buckets idle for two windows
func (rl *RateLimiter) Cleanup() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	removed := 0
	for key, b := range rl.buckets {
		if now.Sub(b.lastUpdate) > rl.config.WindowDuration*2 {
			delete(rl.buckets, key)
			removed++
		}
	}
	return removed
}

// StartCleanup runs Cleanup every window until ctx is done
func (rl *RateLimiter) StartCleanup(ctx context.Context) {
	ticker := time.NewTicker(rl.config.WindowDuration)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rl.Cleanup()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// KeyFunc derives the rate limit key of a request. An empty key skips
// limiting.
type KeyFunc func(r *http.Request) string

// PrincipalKey keys authenticated callers by principal id and everyone else
// by client address.
func PrincipalKey(r *http.Request) string {
	if p, ok := tenancy.PrincipalFromContext(r.Context()); ok && p.ID != "" {
		return "principal:" + p.ID
	}
	return "ip:" + getClientIP(r)
}

// PathKey keys requests by a mux route variable, e.g. the workspace id
func PathKey(name string) KeyFunc {
	return func(r *http.Request) string {
		if v := mux.Vars(r)[name]; v != "" {
			return name + ":" + v
		}
		return ""
	}
}

// RateLimitMiddleware provides HTTP rate limiting
type RateLimitMiddleware struct {
	name    string
	limiter Limiter
	key     KeyFunc
	metrics *observability.Metrics
}

// NewRateLimitMiddleware creates a middleware named name (used in metrics
// and logs). metrics may be nil.
func NewRateLimitMiddleware(name string, limiter Limiter, key KeyFunc, metrics *observability.Metrics) *RateLimitMiddleware {
	return &RateLimitMiddleware{name: name, limiter: limiter, key: key, metrics: metrics}
}

func (m *RateLimitMiddleware) count(result string) {
	if m.metrics != nil {
		m.metrics.RateLimitedTotal.WithLabelValues(m.name, result).Inc()
	}
}

// Handler wraps an HTTP handler with rate limiting. Limiter failures let
// the request through.
func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := m.key(r)
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}

		res, err := m.limiter.Allow(r.Context(), key)
		if err != nil {
			m.count("fail_open")
			observability.FromContext(r.Context()).
				WithError(err).
				WithField("limiter", m.name).
				Warn("rate limiter unavailable; allowing request")
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", res.Limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", res.Remaining))

		if !res.Allowed {
			m.count("rejected")
			retryAfter := res.ResetAfter
			if retryAfter < time.Second {
				retryAfter = time.Second
			}
			w.Header().Set("Retry-After", fmt.Sprintf("%.0f", retryAfter.Seconds()))
			httputil.WriteErrorMessage(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func getClientIP(r *http.Request) string {
	// Check X-Forwarded-For header (if behind proxy)
	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded != "" {
		return forwarded
	}

	// Check X-Real-IP header
	realIP := r.Header.Get("X-Real-IP")
	if realIP != "" {
		return realIP
	}

	// Use remote address
	return r.RemoteAddr
}
