package async

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/platinummonkey/tenantdesk/pkg/observability"
)

// Group runs fire-and-forget tasks with panic recovery, a per-task timeout
// and error logging, and lets shutdown wait for the ones in flight.
//
// Example:
//
//	g.Go(r.Context(), 5*time.Second, "publish status change", func(ctx context.Context) error {
//	    return publisher.Publish(ctx, topic, ev)
//	})
type Group struct {
	logger *observability.Logger
	wg     sync.WaitGroup
}

// NewGroup creates a Group that logs through logger
func NewGroup(logger *observability.Logger) *Group {
	if logger == nil {
		logger = observability.Nop()
	}
	return &Group{logger: logger}
}

// Go runs fn in a goroutine. The task keeps the values of parentCtx but
// not its cancellation, so it outlives the request that started it.
func (g *Group) Go(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(parentCtx), timeout)
		defer cancel()

		logger := observability.FromContext(ctx).WithField("task", taskName)
		defer observability.RecoverPanic(logger, taskName)

		if err := fn(ctx); err != nil {
			logger.WithError(err).Warn("background task failed")
		}
	}()
}

// Wait blocks until every task started by Go has returned or ctx is done
func (g *Group) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for background tasks: %w", ctx.Err())
	}
}

// SafeGo runs fn on a throwaway Group
func SafeGo(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) {
	NewGroup(observability.GetLogger(parentCtx)).Go(parentCtx, timeout, taskName, fn)
}
