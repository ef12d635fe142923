package strategy

import (
	"context"
	"encoding/json"
	"time"

	"github.com/taskhub/taskhub/internal/types"
)

// TemplateRunFunc resolves templateID, renders it with params, persists the
// resulting run/task rows with source="task_template", and executes the
// rendered payload as a DAG (or single task) — mirroring the delegation
// described for the Template strategy in spec §4.2. Supplied by the service
// facade.
type TemplateRunFunc func(ctx context.Context, templateID string, params map[string]any, runID string, depth int) types.TaskResult

// NewTemplateStrategy returns the Template strategy.
func NewTemplateStrategy(run TemplateRunFunc, genRunID func() string) Strategy {
	return StrategyFunc(func(ctx context.Context, sctx *Context) types.TaskResult {
		if sctx.Depth >= types.MaxNestingDepth {
			return types.Failed("nesting depth exceeded")
		}
		templateID := sctx.Get("template_id", "")
		if templateID == "" {
			return types.Failed("no strategy: missing template_id")
		}
		var params map[string]any
		if raw := sctx.Get("params", ""); raw != "" {
			if err := json.Unmarshal([]byte(raw), &params); err != nil {
				return types.Failed("invalid params: " + err.Error())
			}
		}
		start := time.Now()
		runID := sctx.Cfg.Get("run_id", "")
		if runID == "" {
			runID = genRunID()
		}
		res := run(ctx, templateID, params, runID, sctx.Depth+1)
		if res.DurationMs == 0 {
			res.DurationMs = time.Since(start).Milliseconds()
		}
		return res
	})
}
