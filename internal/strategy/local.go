package strategy

import (
	"context"
	"time"

	"github.com/taskhub/taskhub/internal/localreg"
	"github.com/taskhub/taskhub/internal/types"
)

// NewLocalStrategy returns the Local strategy: looks up
// ctx.Get("handler", cfg.ExecCommand or cfg.ID) in reg and runs it on its
// own goroutine while the calling goroutine polls cancellation/timeout every
// 20ms and flips a cooperative cancel flag the handler is expected to observe.
func NewLocalStrategy(reg *localreg.Registry) Strategy {
	return StrategyFunc(func(ctx context.Context, sctx *Context) types.TaskResult {
		return localExecute(ctx, sctx, reg)
	})
}

func localExecute(ctx context.Context, sctx *Context, reg *localreg.Registry) types.TaskResult {
	name := sctx.Get("handler", sctx.Cfg.ExecCommand)
	if name == "" {
		name = sctx.Cfg.ID
	}
	h, ok := reg.Lookup(name)
	if !ok {
		return types.Failed("no strategy: local handler " + name + " not registered")
	}

	start := time.Now()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		msg string
		err error
	}
	done := make(chan outcome, 1)
	var cooperativeCancel bool
	var timedOut bool

	go func() {
		msg, err := h(runCtx, func() bool { return cooperativeCancel })
		done <- outcome{msg, err}
	}()

	watchdog := time.NewTicker(20 * time.Millisecond)
	defer watchdog.Stop()

	for {
		select {
		case o := <-done:
			if timedOut {
				return types.TimedOut("timeout")
			}
			if cooperativeCancel {
				return types.Canceled("canceled")
			}
			res := types.TaskResult{DurationMs: time.Since(start).Milliseconds()}
			if o.err != nil {
				res.Status = types.StatusFailed
				res.Message = o.err.Error()
			} else {
				res.Status = types.StatusSuccess
				res.Message = o.msg
			}
			return res
		case <-watchdog.C:
			if sctx.IsCanceled() && !cooperativeCancel {
				cooperativeCancel = true
				cancel()
			}
			if sctx.IsTimeout() && !timedOut {
				timedOut = true
				cancel()
			}
		}
	}
}
