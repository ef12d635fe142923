// Package service is the facade (C15) that owns every concrete collaborator
// -- pool, registries, executors, store, hub, notifiers -- and wires the
// function-injection points (strategy.DagRunFunc, strategy.TemplateRunFunc,
// dag.NodeRunner, dag.PersistHooks, tasklog.Streamer) together. It is the
// only package that imports both internal/dag and internal/strategy.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/taskhub/taskhub/internal/cronsched"
	"github.com/taskhub/taskhub/internal/dag"
	"github.com/taskhub/taskhub/internal/dagpool"
	"github.com/taskhub/taskhub/internal/localreg"
	"github.com/taskhub/taskhub/internal/logger"
	"github.com/taskhub/taskhub/internal/metrics"
	"github.com/taskhub/taskhub/internal/notify"
	"github.com/taskhub/taskhub/internal/store"
	"github.com/taskhub/taskhub/internal/strategy"
	"github.com/taskhub/taskhub/internal/taskexec"
	"github.com/taskhub/taskhub/internal/tasklog"
	"github.com/taskhub/taskhub/internal/template"
	"github.com/taskhub/taskhub/internal/types"
	"github.com/taskhub/taskhub/internal/workerreg"
)

// Service is the top-level facade every HTTP handler, cron dispatch and
// remote-worker callback goes through.
type Service struct {
	log   logger.Logger
	store store.Store
	logs  *tasklog.Pipeline

	pool       *dagpool.Pool
	strategies *strategy.Registry
	localReg   *localreg.Registry
	workerReg  *workerreg.Registry
	taskExec   *taskexec.Executor
	cron       *cronsched.Scheduler
	notifiers  notify.Group
	cancels    *cancelRegistry
	metrics    *metrics.Collector

	selfWorkerID string
}

// Deps bundles the collaborators New needs. Streamer/Sinks are passed in
// already constructed so Service never has to know whether it's running
// against wshub or a test double.
type Deps struct {
	Log          logger.Logger
	Store        store.Store
	Streamer     tasklog.Streamer
	Sinks        []tasklog.Sink
	LogMaxRecords int
	PoolWorkers  int
	WorkerSelect workerreg.SelectStrategy
	SelfWorkerID string
	Notifiers    notify.Group
}

// New constructs a fully wired Service: builds the pool, registries,
// executor, strategy registry (with Dag/Template strategies closed over
// the Service's own runNestedDag/runTemplateStrategy methods) and the cron
// scheduler.
func New(d Deps) *Service {
	if d.Log == nil {
		d.Log = logger.Default
	}
	logs := tasklog.NewPipeline(d.LogMaxRecords, d.Streamer, d.Sinks...)

	s := &Service{
		log:          d.Log,
		store:        d.Store,
		logs:         logs,
		pool:         dagpool.New(d.PoolWorkers, d.Log),
		strategies:   strategy.NewRegistry(),
		localReg:     localreg.New(),
		workerReg:    workerreg.New(d.WorkerSelect, workerreg.WithLogger(d.Log)),
		notifiers:    d.Notifiers,
		cancels:      newCancelRegistry(),
		metrics:      metrics.New(),
		selfWorkerID: d.SelfWorkerID,
	}
	s.taskExec = taskexec.New(s.strategies, logs, d.Log)

	s.strategies.Register(types.ExecShell, strategy.NewShellStrategy())
	s.strategies.Register(types.ExecScript, strategy.NewShellStrategy())
	s.strategies.Register(types.ExecHTTPCall, strategy.NewHTTPCallStrategy())
	s.strategies.Register(types.ExecLocal, strategy.NewLocalStrategy(s.localReg))
	s.strategies.Register(types.ExecRemote, strategy.NewRemoteStrategy(s.workerReg, s.selfWorkerID))
	s.strategies.Register(types.ExecDag, strategy.NewDagStrategy(s.runNestedDag, newRunID))
	s.strategies.Register(types.ExecTemplate, strategy.NewTemplateStrategy(s.runTemplateStrategy, newRunID))

	s.initCron()
	s.workerReg.StartSweeper()
	return s
}

func newRunID() string { return uuid.NewString() }

// Logs exposes the log pipeline for the HTTP layer's /api/tasks/logs query.
func (s *Service) Logs() *tasklog.Pipeline { return s.logs }

// LocalHandlers exposes the in-process handler registry so callers (e.g.
// cmd/taskhub) can register built-in handlers at startup.
func (s *Service) LocalHandlers() *localreg.Registry { return s.localReg }

// WorkerRegistry exposes the remote-worker registry for the HTTP worker
// membership endpoints.
func (s *Service) WorkerRegistry() *workerreg.Registry { return s.workerReg }

// Pool exposes pool load stats for metrics.
func (s *Service) Pool() *dagpool.Pool { return s.pool }

// Metrics exposes the lifetime task/DAG counters for GET /api/metrics.
func (s *Service) Metrics() *metrics.Collector { return s.metrics }

// Store exposes the persistence layer for the HTTP listing endpoints
// (/api/dag/runs, /task_runs, /events) that are pure read-throughs.
func (s *Service) Store() store.Store { return s.store }

// Shutdown stops the pool, cron scheduler and worker sweeper, and closes
// the store.
func (s *Service) Shutdown() {
	if s.cron != nil {
		s.cron.Stop()
	}
	s.workerReg.StopSweeper()
	s.pool.Stop()
	_ = s.store.Close()
}

// notify fires every registered Notifier without blocking the caller.
func (s *Service) notify(ev notify.Event) {
	if len(s.notifiers) == 0 {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.notifiers.Notify(ctx, ev); err != nil {
			s.log.Warn("notifier delivery failed", "error", err)
		}
	}()
}

func marshalOrEmpty(v any) json.RawMessage {
	if v == nil {
		return json.RawMessage("null")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return b
}

// parseTaskConfig validates that a decoded single-task envelope carries at
// least id and exec_type, per spec §4.7's "Output contract".
func parseTaskConfig(cfg types.TaskConfig) error {
	if cfg.ID == "" {
		return fmt.Errorf("task config missing id")
	}
	if cfg.ExecType < types.ExecLocal || cfg.ExecType > types.ExecTemplate {
		return fmt.Errorf("task config has invalid exec_type")
	}
	return nil
}
