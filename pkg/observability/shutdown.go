package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// ShutdownFunc is a function to call during shutdown
type ShutdownFunc func(context.Context) error

type namedShutdown struct {
	name string
	fn   ShutdownFunc
}

// ShutdownManager stops the HTTP server and then runs registered hooks in
// reverse registration order, so later components close before the
// stores they depend on.
type ShutdownManager struct {
	logger  *Logger
	server  *http.Server
	timeout time.Duration

	mu    sync.Mutex
	hooks []namedShutdown
}

// NewShutdownManager creates a new shutdown manager
func NewShutdownManager(logger *Logger, server *http.Server, timeout time.Duration) *ShutdownManager {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &ShutdownManager{logger: logger, server: server, timeout: timeout}
}

// Register adds a named hook
func (sm *ShutdownManager) Register(name string, fn ShutdownFunc) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.hooks = append(sm.hooks, namedShutdown{name: name, fn: fn})
}

// Wait blocks until ctx is cancelled (typically by signal.NotifyContext)
// and then shuts everything down.
func (sm *ShutdownManager) Wait(ctx context.Context) error {
	<-ctx.Done()
	sm.logger.Info("Shutdown requested")
	return sm.Shutdown(context.Background())
}

// Shutdown runs the shutdown sequence bounded by the manager timeout
func (sm *ShutdownManager) Shutdown(parent context.Context) error {
	ctx, cancel := context.WithTimeout(parent, sm.timeout)
	defer cancel()

	var errs []error
	if sm.server != nil {
		if err := sm.server.Shutdown(ctx); err != nil {
			sm.logger.WithError(err).Error("HTTP server shutdown error")
			errs = append(errs, fmt.Errorf("http server: %w", err))
		}
	}

	sm.mu.Lock()
	hooks := append([]namedShutdown(nil), sm.hooks...)
	sm.mu.Unlock()

	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		if err := h.fn(ctx); err != nil {
			sm.logger.WithError(err).WithField("hook", h.name).Error("Shutdown hook failed")
			errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
			continue
		}
		sm.logger.WithField("hook", h.name).Debug("Shutdown hook complete")
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	sm.logger.Info("Graceful shutdown complete")
	return nil
}
