// Package shutdown runs cleanup hooks when the process is asked to stop.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dsqprocess/dsqprocess/internal/logging"
)

// Hook releases one resource
type Hook struct {
	Name string
	Fn   func(context.Context) error
}

// Manager runs registered hooks once, newest first
type Manager struct {
	mu      sync.Mutex
	hooks   []Hook
	timeout time.Duration
	logger  *logging.Logger

	done     chan struct{}
	doneOnce sync.Once
	runOnce  sync.Once
}

// New creates a Manager whose hooks share a timeout
func New(timeout time.Duration, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Manager{
		timeout: timeout,
		logger:  logger.Component("shutdown"),
		done:    make(chan struct{}),
	}
}

// Register adds a hook. Hooks run in reverse registration order.
func (m *Manager) Register(name string, fn func(context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, Hook{Name: name, Fn: fn})
}

// Done is closed once shutdown has been triggered
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Trigger marks shutdown as started without waiting for a signal
func (m *Manager) Trigger() {
	m.doneOnce.Do(func() { close(m.done) })
}

// Wait blocks until SIGINT or SIGTERM, ctx cancellation or Trigger. It returns the signal
// received, or nil.
func (m *Manager) Wait(ctx context.Context) os.Signal {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		m.logger.Info("received signal, shutting down", logging.Fields{"signal": sig.String()})
		m.Trigger()
		return sig
	case <-ctx.Done():
		m.Trigger()
		return nil
	case <-m.done:
		return nil
	}
}

// Shutdown runs every hook once. Errors are logged and joined into the result.
func (m *Manager) Shutdown() error {
	var errs []error
	m.runOnce.Do(func() {
		m.Trigger()

		m.mu.Lock()
		hooks := append([]Hook(nil), m.hooks...)
		m.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()

		for i := len(hooks) - 1; i >= 0; i-- {
			h := hooks[i]
			if err := h.Fn(ctx); err != nil {
				m.logger.Error("shutdown hook failed", logging.Fields{"hook": h.Name, "err": err})
				errs = append(errs, fmt.Errorf("%s: %w", h.Name, err))
				continue
			}
			m.logger.Debug("shutdown hook done", logging.Fields{"hook": h.Name})
		}
		m.logger.Info("graceful shutdown complete")
	})
	return errors.Join(errs...)
}

// StopServer adapts an http.Server style Shutdown method into a hook
func StopServer(server interface{ Shutdown(context.Context) error }) func(context.Context) error {
	return func(ctx context.Context) error {
		return server.Shutdown(ctx)
	}
}

// Func adapts a function without context or error into a hook
func Func(fn func()) func(context.Context) error {
	return func(context.Context) error {
		fn()
		return nil
	}
}
