// Package taskexec implements the per-task executor (C6): wraps a
// strategy.Strategy with timeout, retry, backoff and cancellation.
package taskexec

import (
	"context"
	"fmt"
	"time"

	"github.com/taskhub/taskhub/internal/backoff"
	"github.com/taskhub/taskhub/internal/logger"
	"github.com/taskhub/taskhub/internal/strategy"
	"github.com/taskhub/taskhub/internal/tasklog"
	"github.com/taskhub/taskhub/internal/types"
)

// backoffSlice is the granularity at which retry sleeps are chopped so that
// cancellation remains responsive (spec §5(b)).
const backoffSlice = 50 * time.Millisecond

// Executor runs a TaskConfig to completion through a registered strategy,
// handling retries, exponential backoff and cooperative cancellation.
type Executor struct {
	strategies *strategy.Registry
	logs       *tasklog.Pipeline
	log        logger.Logger
}

// New builds an Executor.
func New(strategies *strategy.Registry, logs *tasklog.Pipeline, log logger.Logger) *Executor {
	if log == nil {
		log = logger.Default
	}
	return &Executor{strategies: strategies, logs: logs, log: log}
}

// Run executes cfg to completion, retrying per cfg.RetryCount /
// cfg.RetryDelay / cfg.RetryUseExponentialBackoff. runID is used only for
// log record correlation; dagRunID is accepted but not used; depth is the
// current DAG nesting depth.
func (e *Executor) Run(ctx context.Context, cfg types.TaskConfig, cancelFlag *strategy.CancelFlag, runID, dagRunID string, depth int) types.TaskResult {
	maxAttempts := cfg.RetryCount + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	e.event(cfg.ID, runID, "task_start", nil)

	var last types.TaskResult
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if cancelFlag.IsSet() {
			last = types.Canceled("canceled before attempt")
			break
		}

		deadline := time.Time{}
		if cfg.Timeout > 0 {
			deadline = time.Now().Add(cfg.Timeout)
		}

		e.event(cfg.ID, runID, "attempt_start", map[string]string{"attempt": fmt.Sprint(attempt)})
		last = e.runAttempt(ctx, cfg, cancelFlag, deadline, depth)
		last.Attempt = attempt
		last.MaxAttempts = maxAttempts
		e.event(cfg.ID, runID, "attempt_end", map[string]string{
			"attempt": fmt.Sprint(attempt),
			"status":  last.Status.String(),
		})

		if last.Ok() {
			break
		}
		if !last.Retryable() {
			break
		}
		if attempt == maxAttempts {
			break
		}

		if !e.sleepForRetry(ctx, cfg, cancelFlag, attempt) {
			last = types.Canceled("canceled during retry backoff")
			break
		}
	}

	e.event(cfg.ID, runID, "task_end", map[string]string{"status": last.Status.String()})
	return last
}

// runAttempt executes one attempt via the registered strategy, converting
// any panic into a Failed result so a strategy failure never escapes to the
// caller (spec §4.1's "Failure semantics").
func (e *Executor) runAttempt(ctx context.Context, cfg types.TaskConfig, cancelFlag *strategy.CancelFlag, deadline time.Time, depth int) (result types.TaskResult) {
	s, ok := e.strategies.Lookup(cfg.ExecType)
	if !ok {
		return types.Failed("no strategy")
	}

	defer func() {
		if r := recover(); r != nil {
			result = types.Failed(fmt.Sprintf("exception: %v", r))
		}
	}()

	attemptCtx := ctx
	var cancel context.CancelFunc
	if !deadline.IsZero() {
		attemptCtx, cancel = context.WithDeadline(ctx, deadline)
		defer cancel()
	}

	start := time.Now()
	sctx := &strategy.Context{Cfg: cfg, CancelFlag: cancelFlag, Deadline: deadline, Depth: depth}
	result = s.Execute(attemptCtx, sctx)
	if result.DurationMs == 0 {
		result.DurationMs = time.Since(start).Milliseconds()
	}
	return result
}

// sleepForRetry blocks for the computed retry delay in <=50ms slices,
// returning false if cancellation or context cancellation interrupted it.
func (e *Executor) sleepForRetry(ctx context.Context, cfg types.TaskConfig, cancelFlag *strategy.CancelFlag, attempt int) bool {
	policy := backoffPolicy(cfg)
	delay, err := policy.ComputeNextInterval(attempt-1, 0, nil)
	if err != nil {
		return true // no more retries per policy; caller already checked attempt count
	}

	deadline := time.Now().Add(delay)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return true
		}
		slice := backoffSlice
		if remaining < slice {
			slice = remaining
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(slice):
		}
		if cancelFlag.IsSet() {
			return false
		}
	}
}

func backoffPolicy(cfg types.TaskConfig) interface {
	ComputeNextInterval(retryCount int, elapsed time.Duration, err error) (time.Duration, error)
} {
	if cfg.RetryUseExponentialBackoff {
		return backoff.NewExponentialBackoffPolicy(cfg.RetryDelay)
	}
	return backoff.NewConstantBackoffPolicy(cfg.RetryDelay)
}

func (e *Executor) event(taskID, runID, name string, extra map[string]string) {
	if e.logs != nil {
		e.logs.Event(taskID, runID, name, extra)
	}
}
