// Package strategy implements one execution strategy per types.TaskExecType
// (C5): Shell/Script, HttpCall, Local, Remote, Dag and Template. All share
// the Execute(ctx, *Context) contract described in spec §4.2.
package strategy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/taskhub/taskhub/internal/types"
)

// Context is passed to every strategy's Execute call. It exposes the task's
// configuration, its exec params, cancellation state and remaining
// deadline, and the current DAG nesting depth.
type Context struct {
	Cfg        types.TaskConfig
	CancelFlag *CancelFlag
	Deadline   time.Time // zero means "no deadline"
	Depth      int
}

// Get returns an exec param, or def if absent.
func (c *Context) Get(key, def string) string { return c.Cfg.Get(key, def) }

// IsCanceled reports whether the owning CancelFlag has been set.
func (c *Context) IsCanceled() bool { return c.CancelFlag.IsSet() }

// IsTimeout reports whether the context's deadline has passed.
func (c *Context) IsTimeout() bool {
	return !c.Deadline.IsZero() && time.Now().After(c.Deadline)
}

// GetDeadline returns the configured deadline (zero value if none).
func (c *Context) GetDeadline() time.Time { return c.Deadline }

// NestingDepth returns the current DAG nesting depth.
func (c *Context) NestingDepth() int { return c.Depth }

// RemainingTimeout returns the time left until Deadline, or def when there
// is no deadline. Used by HTTP/Remote strategies to size their client
// timeout off the attempt's remaining budget.
func (c *Context) RemainingTimeout(def time.Duration) time.Duration {
	if c.Deadline.IsZero() {
		return def
	}
	remaining := time.Until(c.Deadline)
	if remaining <= 0 {
		return time.Millisecond
	}
	return remaining
}

// CancelFlag is a shared, cooperatively-polled cancellation signal, per
// spec §9's "CancelToken" design note; the deadline lives on Context.
type CancelFlag struct {
	mu     sync.Mutex
	set    bool
}

// NewCancelFlag returns a fresh, unset CancelFlag.
func NewCancelFlag() *CancelFlag { return &CancelFlag{} }

// Cancel marks the flag as set. Idempotent.
func (f *CancelFlag) Cancel() {
	f.mu.Lock()
	f.set = true
	f.mu.Unlock()
}

// IsSet reports whether Cancel has been called.
func (f *CancelFlag) IsSet() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.set
}

// Strategy executes one attempt of a task.
type Strategy interface {
	Execute(ctx context.Context, sctx *Context) types.TaskResult
}

// StrategyFunc adapts a function to the Strategy interface.
type StrategyFunc func(ctx context.Context, sctx *Context) types.TaskResult

// Execute implements Strategy.
func (f StrategyFunc) Execute(ctx context.Context, sctx *Context) types.TaskResult {
	return f(ctx, sctx)
}

// Registry maps a TaskExecType to its Strategy implementation.
type Registry struct {
	mu    sync.RWMutex
	impls map[types.TaskExecType]Strategy
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{impls: make(map[types.TaskExecType]Strategy)}
}

// Register adds or replaces the Strategy for execType.
func (r *Registry) Register(execType types.TaskExecType, s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.impls[execType] = s
}

// Lookup returns the Strategy registered for execType.
func (r *Registry) Lookup(execType types.TaskExecType) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.impls[execType]
	return s, ok
}

// ErrStrategyMissing is returned (wrapped in a Failed TaskResult) when no
// strategy is registered for a TaskConfig's ExecType.
var ErrStrategyMissing = fmt.Errorf("no strategy registered")
