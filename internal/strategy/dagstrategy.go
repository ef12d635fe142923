package strategy

import (
	"context"
	"time"

	"github.com/taskhub/taskhub/internal/types"
)

// DagRunFunc executes a nested DAG (parsed from the enclosing TaskConfig's
// "tasks" and optional "config" exec params) on the current runID at the
// given nesting depth, returning an aggregate TaskResult. It is supplied by
// the service facade at wiring time, keeping this package free of an import
// cycle with the dag executor.
type DagRunFunc func(ctx context.Context, cfg types.TaskConfig, runID string, depth int) types.TaskResult

// NewDagStrategy returns the Dag strategy: delegates to run with the
// current runID (generated if absent) and depth+1. Nesting beyond
// types.MaxNestingDepth is rejected before run is ever called.
func NewDagStrategy(run DagRunFunc, genRunID func() string) Strategy {
	return StrategyFunc(func(ctx context.Context, sctx *Context) types.TaskResult {
		if sctx.Depth >= types.MaxNestingDepth {
			return types.Failed("nesting depth exceeded")
		}
		start := time.Now()
		runID := sctx.Cfg.Get("run_id", "")
		if runID == "" {
			runID = genRunID()
		}
		res := run(ctx, sctx.Cfg, runID, sctx.Depth+1)
		if res.DurationMs == 0 {
			res.DurationMs = time.Since(start).Milliseconds()
		}
		return res
	})
}
