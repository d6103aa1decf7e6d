package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdownManager_ReverseOrder(t *testing.T) {
	sm := NewShutdownManager(Nop(), nil, 0)
	var order []string
	sm.Register("store", func(context.Context) error { order = append(order, "store"); return nil })
	sm.Register("cache", func(context.Context) error { order = append(order, "cache"); return nil })

	require.NoError(t, sm.Shutdown(context.Background()))
	assert.Equal(t, []string{"cache", "store"}, order)
}

func TestShutdownManager_CollectsErrors(t *testing.T) {
	sm := NewShutdownManager(Nop(), nil, 0)
	boom := errors.New("boom")
	ran := false
	sm.Register("first", func(context.Context) error { ran = true; return nil })
	sm.Register("second", func(context.Context) error { return boom })

	err := sm.Shutdown(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.True(t, ran)
}

func TestShutdownManager_Wait(t *testing.T) {
	sm := NewShutdownManager(Nop(), nil, 0)
	called := false
	sm.Register("hook", func(context.Context) error { called = true; return nil })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, sm.Wait(ctx))
	assert.True(t, called)
}
