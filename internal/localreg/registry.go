// Package localreg is the name→handler map for in-process tasks (C4),
// consulted by the Local execution strategy.
package localreg

import (
	"context"
	"fmt"
	"sync"
)

// CancelFunc is polled cooperatively by a running handler; when it returns
// true the handler is expected to stop promptly.
type CancelFunc func() bool

// Handler is an in-process task body. ctx carries the task's deadline;
// isCanceled is polled by long-running handlers at safe points.
type Handler func(ctx context.Context, isCanceled CancelFunc) (string, error)

// Registry maps handler names to Handler functions.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds or replaces the handler for name.
func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// Unregister removes the handler for name, if present.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, name)
}

// Lookup returns the handler registered for name.
func (r *Registry) Lookup(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// ErrNotFound is returned by strategies when a handler name is unregistered.
var ErrNotFound = fmt.Errorf("local handler not registered")
