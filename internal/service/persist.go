package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/taskhub/taskhub/internal/dag"
	"github.com/taskhub/taskhub/internal/store"
	"github.com/taskhub/taskhub/internal/types"
)

func (s *Service) persistDagRun(ctx context.Context, rec store.DagRunRecord) {
	if s.store == nil {
		return
	}
	if err := s.store.UpsertDagRun(ctx, rec); err != nil {
		s.log.Warn("persist dag_run failed", "run_id", rec.RunID, "error", err)
	}
}

// dagPersist adapts Service to dag.PersistHooks, writing task_run rows and
// task_event records as nodes transition.
type dagPersist struct{ s *Service }

func (p *dagPersist) MarkRunning(ctx context.Context, dagRunID string, n *dag.Node) {
	if p.s.store == nil {
		return
	}
	rec := taskRunRecordFor(dagRunID, n, types.TaskResult{Status: types.StatusRunning})
	rec.StartTsMs = time.Now().UnixMilli()
	if err := p.s.store.UpsertTaskRun(ctx, rec); err != nil {
		p.s.log.Warn("persist task_run failed", "task_id", n.ID.Value, "error", err)
	}
}

func (p *dagPersist) MarkFinished(ctx context.Context, dagRunID string, n *dag.Node, result types.TaskResult) {
	if p.s.store == nil {
		return
	}
	rec := taskRunRecordFor(dagRunID, n, result)
	rec.EndTsMs = time.Now().UnixMilli()
	if err := p.s.store.UpsertTaskRun(ctx, rec); err != nil {
		p.s.log.Warn("persist task_run failed", "task_id", n.ID.Value, "error", err)
	}
	p.appendEvent(ctx, dagRunID, n.ID.Value, "task_end", map[string]string{"status": result.Status.String()})
}

func (p *dagPersist) MarkSkipped(ctx context.Context, dagRunID string, n *dag.Node, reason string) {
	if p.s.store == nil {
		return
	}
	rec := taskRunRecordFor(dagRunID, n, types.Skipped(reason))
	rec.EndTsMs = time.Now().UnixMilli()
	if err := p.s.store.UpsertTaskRun(ctx, rec); err != nil {
		p.s.log.Warn("persist task_run failed", "task_id", n.ID.Value, "error", err)
	}
	p.appendEvent(ctx, dagRunID, n.ID.Value, "dag_node_skipped", map[string]string{"reason": reason})
}

func (p *dagPersist) appendEvent(ctx context.Context, dagRunID, taskID, name string, extra map[string]string) {
	payload, _ := json.Marshal(extra)
	_ = p.s.store.AppendTaskEvent(ctx, store.TaskEventRecord{
		ID: uuid.NewString(), RunID: dagRunID, TaskID: taskID, Type: "dag", Event: name,
		TsMs: time.Now().UnixMilli(), PayloadJSON: payload,
	})
}

func taskRunRecordFor(dagRunID string, n *dag.Node, result types.TaskResult) store.TaskRunRecord {
	cfg := n.RunnerConfig
	execParams, _ := json.Marshal(cfg.ExecParams)
	deps, _ := json.Marshal(cfg.Deps)
	metadata, _ := json.Marshal(cfg.Metadata)
	return store.TaskRunRecord{
		ID:             dagRunID + ":" + cfg.ID,
		RunID:          dagRunID,
		LogicalID:      cfg.ID,
		TaskID:         cfg.ID,
		Name:           cfg.Name,
		ExecType:       cfg.ExecType,
		ExecCommand:    cfg.ExecCommand,
		ExecParamsJSON: execParams,
		DepsJSON:       deps,
		Status:         result.Status,
		ExitCode:       result.ExitCode,
		DurationMs:     result.DurationMs,
		Message:        result.Message,
		Stdout:         result.StdoutData,
		Stderr:         result.StderrData,
		Attempt:        result.Attempt,
		MaxAttempts:    result.MaxAttempts,
		WorkerID:       result.WorkerID,
		WorkerHost:     result.WorkerHost,
		WorkerPort:     result.WorkerPort,
		MetadataJSON:   metadata,
	}
}
