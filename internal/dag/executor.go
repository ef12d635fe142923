package dag

import (
	"context"
	"fmt"
	"sync"

	"github.com/taskhub/taskhub/internal/dagpool"
	"github.com/taskhub/taskhub/internal/logger"
	"github.com/taskhub/taskhub/internal/strategy"
	"github.com/taskhub/taskhub/internal/tasklog"
	"github.com/taskhub/taskhub/internal/types"
)

// NodeRunner executes one node's TaskConfig to completion (wrapping
// taskexec.Executor.Run) and returns its TaskResult. Kept as a function
// type so this package doesn't have to depend on taskexec's concrete type,
// matching the rest of the engine's "inject the collaborator" style.
type NodeRunner func(ctx context.Context, cfg types.TaskConfig, cancelFlag *strategy.CancelFlag, runID, dagRunID string, depth int) types.TaskResult

// PersistHooks is the slice of the Store interface (C13) the DAG executor
// needs to keep task-run rows in sync with node lifecycle.
type PersistHooks interface {
	MarkRunning(ctx context.Context, dagRunID string, node *Node)
	MarkFinished(ctx context.Context, dagRunID string, node *Node, result types.TaskResult)
	MarkSkipped(ctx context.Context, dagRunID string, node *Node, reason string)
}

type noopPersist struct{}

func (noopPersist) MarkRunning(context.Context, string, *Node)                     {}
func (noopPersist) MarkFinished(context.Context, string, *Node, types.TaskResult)   {}
func (noopPersist) MarkSkipped(context.Context, string, *Node, string)              {}

// Executor runs one Graph to completion. An Executor is single-use:
// build a fresh one per run so readyQueue state never leaks across nested
// DAGs (spec §4.3).
type Executor struct {
	pool    *dagpool.Pool
	runNode NodeRunner
	persist PersistHooks
	logs    *tasklog.Pipeline
	log     logger.Logger

	mu    sync.Mutex
	cond  *sync.Cond
	ready []*Node
}

// NewExecutor builds an Executor bound to pool, runNode and persist. logs
// may be nil (events are then dropped).
func NewExecutor(pool *dagpool.Pool, runNode NodeRunner, persist PersistHooks, logs *tasklog.Pipeline, log logger.Logger) *Executor {
	if persist == nil {
		persist = noopPersist{}
	}
	if log == nil {
		log = logger.Default
	}
	e := &Executor{pool: pool, runNode: runNode, persist: persist, logs: logs, log: log}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// Execute runs rc.Graph to completion honoring rc.Config.MaxParallel and
// rc.Config.FailPolicy, and returns the DAG's aggregate TaskResult.
func (e *Executor) Execute(ctx context.Context, rc *RunContext, dagRunID string, depth int) types.TaskResult {
	for _, n := range rc.Graph.Roots() {
		if n.Status() == types.StatusPending {
			e.enqueue(n)
		}
	}

	e.mu.Lock()
	for len(e.ready) > 0 || rc.Running() > 0 {
		for rc.Running() < int64(rc.Config.MaxParallel) && len(e.ready) > 0 {
			n := e.dequeueLocked()

			if n.Status() != types.StatusPending {
				continue // already terminal or running — race guard
			}
			if rc.Config.FailPolicy == types.FailFast && rc.Failed() {
				continue // discard without submitting
			}
			if !n.CompareAndSetStatus(types.StatusPending, types.StatusRunning) {
				continue
			}

			rc.incRunning()
			e.persist.MarkRunning(ctx, dagRunID, n)
			e.event(n, dagRunID, "dag_node_running", nil)

			// When Execute itself runs on a pool worker (a nested DAG), every
			// node runs synchronously in place rather than re-submitting;
			// otherwise the node is submitted and Submit's dynamic growth
			// covers saturation.
			job := func(jobCtx context.Context) { e.runAndComplete(jobCtx, rc, n, dagRunID, depth) }
			if dagpool.IsPoolWorker(ctx) {
				e.mu.Unlock()
				job(ctx)
				e.mu.Lock()
			} else {
				e.mu.Unlock()
				e.pool.Submit(n.RunnerConfig.Priority, job)
				e.mu.Lock()
			}
		}
		e.cond.Wait()
	}
	e.mu.Unlock()

	success := !rc.Failed()
	if rc.OnDagFinished != nil {
		rc.OnDagFinished(success)
	}
	if success {
		return types.Success("dag succeeded")
	}
	return types.Failed("dag failed")
}

func (e *Executor) enqueue(n *Node) {
	e.mu.Lock()
	e.ready = append(e.ready, n)
	e.cond.Signal()
	e.mu.Unlock()
	e.event(n, "", "dag_node_ready", nil)
}

func (e *Executor) dequeueLocked() *Node {
	n := e.ready[0]
	e.ready = e.ready[1:]
	return n
}

// runAndComplete runs one node via runNode and then applies the completion
// handler described in spec §4.3.
func (e *Executor) runAndComplete(ctx context.Context, rc *RunContext, n *Node, dagRunID string, depth int) {
	cancelFlag := strategy.NewCancelFlag()
	result := e.runNode(ctx, n.RunnerConfig, cancelFlag, n.ID.RunID, dagRunID, depth)

	finalStatus := result.Status
	n.SetStatus(finalStatus)
	rc.RecordResult(n.ID.Value, result)
	e.persist.MarkFinished(ctx, dagRunID, n, result)
	e.event(n, dagRunID, "dag_node_end", map[string]string{"status": finalStatus.String()})
	if rc.OnNodeEnd != nil {
		rc.OnNodeEnd(n, result)
	}

	if result.Ok() {
		e.advanceDownstream(ctx, rc, n, dagRunID)
	} else {
		rc.markFailed()
		if rc.Config.FailPolicy == types.SkipDownstream {
			e.skipDownstream(ctx, rc, n, dagRunID)
		}
	}

	e.mu.Lock()
	rc.decRunning()
	e.cond.Broadcast()
	e.mu.Unlock()
}

// advanceDownstream decrements every downstream node's indegree; a child
// whose indegree reaches 0 and is still Pending is enqueued.
func (e *Executor) advanceDownstream(ctx context.Context, rc *RunContext, n *Node, dagRunID string) {
	for _, childID := range n.Downstream {
		child, ok := rc.Graph.Get(childID.Value)
		if !ok {
			continue
		}
		if child.DecrementIndegree() == 0 && child.Status() == types.StatusPending {
			e.enqueue(child)
		}
	}
}

// skipDownstream BFS-walks every node transitively reachable from a failed
// node and marks it Skipped exactly once (guarded by the visited set and by
// the node's own CompareAndSetStatus).
func (e *Executor) skipDownstream(ctx context.Context, rc *RunContext, failed *Node, dagRunID string) {
	visited := make(map[string]bool)
	queue := append([]types.TaskID{}, failed.Downstream...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id.Value] {
			continue
		}
		visited[id.Value] = true

		child, ok := rc.Graph.Get(id.Value)
		if !ok {
			continue
		}
		if child.CompareAndSetStatus(types.StatusPending, types.StatusSkipped) {
			reason := fmt.Sprintf("skip_downstream upstream=%s", failed.ID.Value)
			result := types.Skipped(reason)
			rc.RecordResult(child.ID.Value, result)
			e.persist.MarkSkipped(ctx, dagRunID, child, reason)
			e.event(child, dagRunID, "dag_node_skipped", map[string]string{"upstream": failed.ID.Value})
			queue = append(queue, child.Downstream...)
		}
	}
}

func (e *Executor) event(n *Node, dagRunID, name string, extra map[string]string) {
	if e.logs == nil {
		return
	}
	e.logs.Event(n.ID.Value, dagRunID, name, extra)
}
