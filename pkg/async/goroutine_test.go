package async

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantdesk/pkg/observability"
)

func TestGroup_RunsAndWaits(t *testing.T) {
	g := NewGroup(observability.Nop())
	var n atomic.Int32

	for i := 0; i < 5; i++ {
		g.Go(context.Background(), time.Second, "count", func(context.Context) error {
			n.Add(1)
			return nil
		})
	}
	require.NoError(t, g.Wait(context.Background()))
	assert.Equal(t, int32(5), n.Load())
}

func TestGroup_OutlivesParentCancellation(t *testing.T) {
	g := NewGroup(observability.Nop())
	parent, cancel := context.WithCancel(context.Background())

	var ctxErr error
	release := make(chan struct{})
	g.Go(parent, time.Second, "detached", func(ctx context.Context) error {
		<-release
		ctxErr = ctx.Err()
		return nil
	})
	cancel()
	close(release)

	require.NoError(t, g.Wait(context.Background()))
	assert.NoError(t, ctxErr)
}

func TestGroup_TimeoutAndErrors(t *testing.T) {
	g := NewGroup(nil)
	var sawDeadline atomic.Bool

	g.Go(context.Background(), 10*time.Millisecond, "slow", func(ctx context.Context) error {
		<-ctx.Done()
		sawDeadline.Store(errors.Is(ctx.Err(), context.DeadlineExceeded))
		return ctx.Err()
	})
	g.Go(context.Background(), time.Second, "failing", func(context.Context) error {
		return errors.New("boom")
	})

	require.NoError(t, g.Wait(context.Background()))
	assert.True(t, sawDeadline.Load())
}

func TestGroup_RecoversPanics(t *testing.T) {
	g := NewGroup(observability.Nop())
	g.Go(context.Background(), time.Second, "panicky", func(context.Context) error {
		panic("kaboom")
	})
	assert.NoError(t, g.Wait(context.Background()))
}

func TestGroup_WaitHonorsContext(t *testing.T) {
	g := NewGroup(observability.Nop())
	release := make(chan struct{})
	defer close(release)
	g.Go(context.Background(), time.Minute, "blocked", func(context.Context) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, g.Wait(ctx), context.DeadlineExceeded)
}

func TestSafeGo(t *testing.T) {
	done := make(chan struct{})
	SafeGo(context.Background(), time.Second, "one-off", func(context.Context) error {
		close(done)
		return nil
	})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task did not run")
	}
}
