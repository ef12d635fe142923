package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/taskhub/taskhub/internal/dag"
	"github.com/taskhub/taskhub/internal/notify"
	"github.com/taskhub/taskhub/internal/store"
	"github.com/taskhub/taskhub/internal/strategy"
	"github.com/taskhub/taskhub/internal/types"
)

// DagPayload is the decoded body of a DAG run request: either a single task
// envelope or the full tasks+config envelope described in spec §6.
type DagPayload struct {
	Name   string            `json:"name"`
	Config *types.DagConfig  `json:"config"`
	Tasks  []types.TaskConfig `json:"tasks"`
	Task   *types.TaskConfig `json:"task"`
}

// RunDag builds and executes payload synchronously, persisting the dag_run
// row before and after, and returns the aggregate TaskResult.
func (s *Service) RunDag(ctx context.Context, payload DagPayload, runID, source string) (types.TaskResult, []string) {
	specs, cfg := normalizeDagPayload(payload, runID)
	taskIDs := make([]string, 0, len(specs))
	for _, t := range specs {
		taskIDs = append(taskIDs, t.ID)
	}

	startTs := time.Now().UnixMilli()
	s.persistDagRun(ctx, store.DagRunRecord{
		RunID: runID, Name: payload.Name, Source: source,
		Status: types.StatusRunning, StartTsMs: startTs, Total: len(specs),
	})
	s.metrics.IncDagStarted()

	graph, err := dag.Build(runID, specs)
	if err != nil {
		result := types.Failed(err.Error())
		s.persistDagRun(ctx, store.DagRunRecord{
			RunID: runID, Name: payload.Name, Source: source,
			Status: types.StatusFailed, StartTsMs: startTs, EndTsMs: time.Now().UnixMilli(),
			Total: len(specs), Message: err.Error(),
		})
		s.metrics.IncDagFailed()
		return result, taskIDs
	}

	rc := dag.NewRunContext(cfg, graph)
	executor := dag.NewExecutor(s.pool, s.runNode, &dagPersist{s}, s.logs, s.log)
	result := executor.Execute(ctx, rc, runID, 0)

	summary := dag.Summarize(graph)
	s.persistDagRun(ctx, store.DagRunRecord{
		RunID: runID, Name: payload.Name, Source: source,
		Status: terminalDagStatus(result), StartTsMs: startTs, EndTsMs: time.Now().UnixMilli(),
		Total: summary.Total, SuccessCount: summary.Success, FailedCount: summary.Failed,
		SkippedCount: summary.Skipped, Message: result.Message,
	})
	s.notify(notify.Event{RunID: runID, Name: "dag_finished", Message: result.Message})
	if result.Ok() {
		s.metrics.IncDagSucceeded()
	} else {
		s.metrics.IncDagFailed()
	}
	return result, taskIDs
}

// RunDagAsync launches RunDag on a pool-independent goroutine and returns
// immediately with the run id and task ids, per the async HTTP endpoint.
func (s *Service) RunDagAsync(payload DagPayload, runID, source string) []string {
	specs, _ := normalizeDagPayload(payload, runID)
	taskIDs := make([]string, 0, len(specs))
	for _, t := range specs {
		taskIDs = append(taskIDs, t.ID)
	}
	go s.RunDag(context.Background(), payload, runID, source)
	return taskIDs
}

// runNestedDag implements strategy.DagRunFunc: parses the enclosing node's
// exec params for a nested DAG body and runs it to completion.
func (s *Service) runNestedDag(ctx context.Context, cfg types.TaskConfig, runID string, depth int) types.TaskResult {
	var payload DagPayload
	if raw := cfg.Get("tasks", ""); raw != "" {
		var wire []types.TaskConfigWire
		if err := json.Unmarshal([]byte(raw), &wire); err != nil {
			return types.Failed("invalid nested dag tasks: " + err.Error())
		}
		for _, w := range wire {
			spec, err := w.ToConfig()
			if err != nil {
				return types.Failed("invalid nested dag task: " + err.Error())
			}
			payload.Tasks = append(payload.Tasks, spec)
		}
	}
	if raw := cfg.Get("config", ""); raw != "" {
		var dcw types.DagConfigWire
		if err := json.Unmarshal([]byte(raw), &dcw); err == nil {
			dc := dcw.ToConfig()
			payload.Config = &dc
		}
	}
	payload.Name = cfg.Get("name", cfg.ID)

	specs, dagCfg := normalizeDagPayload(payload, runID)
	graph, err := dag.Build(runID, specs)
	if err != nil {
		return types.Failed(err.Error())
	}
	rc := dag.NewRunContext(dagCfg, graph)
	executor := dag.NewExecutor(s.pool, s.runNode, &dagPersist{s}, s.logs, s.log)
	return executor.Execute(ctx, rc, runID, depth)
}

// runNode implements dag.NodeRunner over the shared taskexec.Executor.
func (s *Service) runNode(ctx context.Context, cfg types.TaskConfig, cancelFlag *strategy.CancelFlag, runID, dagRunID string, depth int) types.TaskResult {
	return s.taskExec.Run(ctx, cfg, cancelFlag, runID, dagRunID, depth)
}

func normalizeDagPayload(payload DagPayload, runID string) ([]types.TaskConfig, types.DagConfig) {
	specs := payload.Tasks
	if payload.Task != nil {
		specs = []types.TaskConfig{*payload.Task}
	}
	for i := range specs {
		specs[i].Priority = specs[i].Priority.ClampForIngress()
	}
	cfg := types.DagConfig{DagID: runID}
	if payload.Config != nil {
		cfg = *payload.Config
		cfg.DagID = runID
	}
	return specs, cfg.Normalize()
}

func terminalDagStatus(result types.TaskResult) types.TaskStatus {
	if result.Ok() {
		return types.StatusSuccess
	}
	return types.StatusFailed
}
