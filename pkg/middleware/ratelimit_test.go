package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantdesk/pkg/clock"
	"github.com/platinummonkey/tenantdesk/pkg/observability"
	"github.com/platinummonkey/tenantdesk/pkg/tenancy"
)

var testConfig = &RateLimitConfig{
	RequestsPerWindow: 10,
	WindowDuration:    10 * time.Second,
	BurstSize:         2,
}

func TestRateLimiter_AllowAndRefill(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	limiter := NewRateLimiter(testConfig, clk)
	ctx := context.Background()

	allowed := 0
	for i := 0; i < testConfig.capacity()+5; i++ {
		res, err := limiter.Allow(ctx, "k")
		require.NoError(t, err)
		if res.Allowed {
			allowed++
		}
	}
	assert.Equal(t, testConfig.capacity(), allowed)

	res, err := limiter.Allow(ctx, "k")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, time.Second, res.ResetAfter)

	// One token per second at 10 per 10s
	clk.Advance(time.Second)
	res, err = limiter.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	other, err := limiter.Allow(ctx, "other")
	require.NoError(t, err)
	assert.True(t, other.Allowed)
	assert.Equal(t, testConfig.capacity()-1, other.Remaining)
}

func TestRateLimiter_Cleanup(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	limiter := NewRateLimiter(testConfig, clk)
	ctx := context.Background()

	_, _ = limiter.Allow(ctx, "idle")
	clk.Advance(15 * time.Second)
	_, _ = limiter.Allow(ctx, "busy")
	clk.Advance(10 * time.Second)

	assert.Equal(t, 1, limiter.Cleanup())
	assert.Len(t, limiter.buckets, 1)
}

func setupRedisLimiter(t *testing.T) (*miniredis.Miniredis, *DistributedRateLimiter) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewDistributedRateLimiter(client, testConfig, "rl")
}

func TestDistributedRateLimiter_FixedWindow(t *testing.T) {
	mr, limiter := setupRedisLimiter(t)
	ctx := context.Background()

	for i := 0; i < testConfig.capacity(); i++ {
		res, err := limiter.Allow(ctx, "ws:1")
		require.NoError(t, err)
		require.True(t, res.Allowed, "request %d", i)
	}
	assert.Equal(t, testConfig.WindowDuration, mr.TTL("rl:ws:1"))

	res, err := limiter.Allow(ctx, "ws:1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, testConfig.RequestsPerWindow, res.Limit)

	mr.FastForward(testConfig.WindowDuration)
	res, err = limiter.Allow(ctx, "ws:1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	require.NoError(t, limiter.Reset(ctx, "ws:1"))
	assert.False(t, mr.Exists("rl:ws:1"))
}

func TestDistributedRateLimiter_RedisDown(t *testing.T) {
	mr, limiter := setupRedisLimiter(t)
	mr.Close()

	_, err := limiter.Allow(context.Background(), "ws:1")
	assert.Error(t, err)
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (Result, error) {
	return Result{}, errors.New("boom")
}

func serveLimited(mw *RateLimitMiddleware, r *http.Request) *httptest.ResponseRecorder {
	router := mux.NewRouter()
	router.Handle("/workspaces/{workspace_id}/inbound", mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, r)
	return rec
}

func TestRateLimitMiddleware(t *testing.T) {
	m := observability.NewTestMetrics()
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	cfg := &RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute}
	mw := NewRateLimitMiddleware("inbound", NewRateLimiter(cfg, clk), PathKey("workspace_id"), m)

	rec := serveLimited(mw, httptest.NewRequest(http.MethodPost, "/workspaces/ws-1/inbound", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = serveLimited(mw, httptest.NewRequest(http.MethodPost, "/workspaces/ws-1/inbound", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, rec.Body.String())

	// Another workspace has its own bucket
	rec = serveLimited(mw, httptest.NewRequest(http.MethodPost, "/workspaces/ws-2/inbound", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimitedTotal.WithLabelValues("inbound", "rejected")))
}

func TestRateLimitMiddleware_FailsOpen(t *testing.T) {
	m := observability.NewTestMetrics()
	mw := NewRateLimitMiddleware("inbound", failingLimiter{}, PathKey("workspace_id"), m)

	rec := serveLimited(mw, httptest.NewRequest(http.MethodPost, "/workspaces/ws-1/inbound", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimitedTotal.WithLabelValues("inbound", "fail_open")))
}

func TestPrincipalKey(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Forwarded-For", "10.0.0.1")
	assert.Equal(t, "ip:10.0.0.1", PrincipalKey(r))

	r = r.WithContext(tenancy.WithPrincipal(r.Context(), tenancy.Principal{ID: "u-1", Kind: tenancy.PrincipalUser}))
	assert.Equal(t, "principal:u-1", PrincipalKey(r))
}

func TestPathKey_MissingVariableSkips(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "", PathKey("workspace_id")(r))
}
