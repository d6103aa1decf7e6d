package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantdesk/pkg/clock"
)

func TestMemoryCache_ExpiresOnClock(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	c, err := NewMemoryCache(16, clk)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))

	clk.Advance(59 * time.Second)
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	clk.Advance(time.Second)
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Zero(t, c.Len())
}

func TestMemoryCache_Delete(t *testing.T) {
	c, err := NewMemoryCache(16, nil)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), 0))
	require.NoError(t, c.Delete(ctx, "a", "missing"))

	_, err = c.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = c.Get(ctx, "b")
	assert.NoError(t, err)
}

func TestMemoryCache_CountersSurviveEviction(t *testing.T) {
	c, err := NewMemoryCache(1, nil)
	require.NoError(t, err)
	ctx := context.Background()

	n, err := c.Counter(ctx, "epoch")
	require.NoError(t, err)
	assert.Zero(t, n)

	_, _ = c.Incr(ctx, "epoch")
	require.NoError(t, c.Set(ctx, "x", []byte("1"), 0))
	require.NoError(t, c.Set(ctx, "y", []byte("2"), 0))

	n, err = c.Counter(ctx, "epoch")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
