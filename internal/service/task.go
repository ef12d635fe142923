package service

import (
	"context"
	"sync"
	"time"

	"github.com/taskhub/taskhub/internal/notify"
	"github.com/taskhub/taskhub/internal/store"
	"github.com/taskhub/taskhub/internal/strategy"
	"github.com/taskhub/taskhub/internal/types"
)

// cancelRegistry tracks the CancelFlag for every in-flight single-task
// submission so /api/tasks/{id}/cancel can reach it.
type cancelRegistry struct {
	mu    sync.Mutex
	flags map[string]*strategy.CancelFlag
}

func newCancelRegistry() *cancelRegistry {
	return &cancelRegistry{flags: make(map[string]*strategy.CancelFlag)}
}

func (c *cancelRegistry) put(taskID string) *strategy.CancelFlag {
	flag := strategy.NewCancelFlag()
	c.mu.Lock()
	c.flags[taskID] = flag
	c.mu.Unlock()
	return flag
}

func (c *cancelRegistry) remove(taskID string) {
	c.mu.Lock()
	delete(c.flags, taskID)
	c.mu.Unlock()
}

func (c *cancelRegistry) cancel(taskID string) bool {
	c.mu.Lock()
	flag, ok := c.flags[taskID]
	c.mu.Unlock()
	if !ok {
		return false
	}
	flag.Cancel()
	return true
}

// ScheduleTask enqueues a single command task (POST /api/tasks): runs it on
// a goroutine through the shared executor, persisting task_run rows before
// and after, and returns the generated run id immediately.
func (s *Service) ScheduleTask(cfg types.TaskConfig) string {
	cfg.Priority = cfg.Priority.ClampForIngress()
	runID := newRunID()
	flag := s.cancels.put(cfg.ID)

	s.persistTaskRun(context.Background(), cfg, runID, types.TaskResult{Status: types.StatusRunning})
	s.metrics.IncTaskStarted()

	go func() {
		defer s.cancels.remove(cfg.ID)
		ctx := context.Background()
		result := s.taskExec.Run(ctx, cfg, flag, runID, "", 0)
		s.persistTaskRun(ctx, cfg, runID, result)
		s.notifyTaskResult(cfg.ID, runID, result)
		if result.Ok() {
			s.metrics.IncTaskSucceeded()
		} else {
			s.metrics.IncTaskFailed()
		}
	}()

	return runID
}

// CancelTask sets the cancel flag for a running single-task submission. ok
// is false if no such task is currently tracked.
func (s *Service) CancelTask(taskID string) bool {
	return s.cancels.cancel(taskID)
}

// ExecuteRemoteRequest runs a worker-side execution request (decoded from
// strategy.RemoteRequest by the HTTP worker endpoint) synchronously and
// returns its TaskResult, for this node acting as a remote worker.
func (s *Service) ExecuteRemoteRequest(ctx context.Context, id, name, execType, execCommand string, execParams map[string]string, timeoutMs int64, captureOutput bool) types.TaskResult {
	t, ok := types.ParseExecType(execType)
	if !ok {
		return types.Failed("unknown exec_type " + execType)
	}
	cfg := types.TaskConfig{
		ID: id, Name: name, ExecType: t, ExecCommand: execCommand,
		ExecParams: execParams, Timeout: time.Duration(timeoutMs) * time.Millisecond,
		Cancelable: true, CaptureOutput: captureOutput,
	}
	flag := s.cancels.put(id)
	defer s.cancels.remove(id)
	return s.taskExec.Run(ctx, cfg, flag, newRunID(), "", 0)
}

func (s *Service) notifyTaskResult(taskID, runID string, result types.TaskResult) {
	if result.Ok() {
		return
	}
	s.notify(notify.Event{TaskID: taskID, RunID: runID, Name: "task_failed", Message: result.Message})
}

func (s *Service) persistTaskRun(ctx context.Context, cfg types.TaskConfig, runID string, result types.TaskResult) {
	if s.store == nil {
		return
	}
	rec := store.TaskRunRecord{
		ID: runID, RunID: runID, LogicalID: cfg.ID, TaskID: cfg.ID, Name: cfg.Name,
		ExecType: cfg.ExecType, ExecCommand: cfg.ExecCommand,
		Status: result.Status, ExitCode: result.ExitCode, DurationMs: result.DurationMs,
		Message: result.Message, Stdout: result.StdoutData, Stderr: result.StderrData,
		Attempt: result.Attempt, MaxAttempts: result.MaxAttempts,
		EndTsMs: time.Now().UnixMilli(),
	}
	if err := s.store.UpsertTaskRun(ctx, rec); err != nil {
		s.log.Warn("persist task_run failed", "task_id", cfg.ID, "error", err)
	}
}
