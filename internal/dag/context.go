package dag

import (
	"sync"
	"sync/atomic"

	"github.com/taskhub/taskhub/internal/types"
)

// RunContext is the mutable state owned by exactly one Execute call.
// Concurrent reads from worker goroutines are allowed on Graph and Running
// (atomics); mutations to TaskResults are serialized by mu.
type RunContext struct {
	Config types.DagConfig
	Graph  *Graph

	running atomic.Int64
	failed  atomic.Bool

	mu          sync.Mutex
	taskResults map[string]types.TaskResult

	// Callbacks, invoked without mu held. Executor invokes OnNodeEnd and
	// OnDagFinished; it does not invoke OnNodeReady or OnNodeSkipped.
	OnNodeReady   func(n *Node)
	OnNodeEnd     func(n *Node, result types.TaskResult)
	OnNodeSkipped func(n *Node, reason string)
	OnDagFinished func(success bool)
}

// NewRunContext builds a fresh RunContext for one execution of graph.
func NewRunContext(cfg types.DagConfig, graph *Graph) *RunContext {
	return &RunContext{Config: cfg.Normalize(), Graph: graph, taskResults: make(map[string]types.TaskResult)}
}

// Running returns the number of in-flight node submissions.
func (c *RunContext) Running() int64 { return c.running.Load() }

func (c *RunContext) incRunning() { c.running.Add(1) }
func (c *RunContext) decRunning() { c.running.Add(-1) }

// Failed reports whether any node has finished in a non-ok terminal status.
func (c *RunContext) Failed() bool { return c.failed.Load() }

func (c *RunContext) markFailed() { c.failed.Store(true) }

// RecordResult stores the TaskResult for a node id.
func (c *RunContext) RecordResult(id string, result types.TaskResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.taskResults[id] = result
}

// Results returns a snapshot of all recorded TaskResults.
func (c *RunContext) Results() map[string]types.TaskResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]types.TaskResult, len(c.taskResults))
	for k, v := range c.taskResults {
		out[k] = v
	}
	return out
}

// Summary tallies terminal statuses across the graph for reporting (spec §8
// "Summary: total=…").
type Summary struct {
	Total, Success, Failed, Skipped, Canceled, Timeout int
}

// Summarize computes a Summary from the graph's current node statuses.
func Summarize(g *Graph) Summary {
	var s Summary
	for _, n := range g.All() {
		s.Total++
		switch n.Status() {
		case types.StatusSuccess:
			s.Success++
		case types.StatusFailed:
			s.Failed++
		case types.StatusSkipped:
			s.Skipped++
		case types.StatusCanceled:
			s.Canceled++
		case types.StatusTimeout:
			s.Timeout++
		}
	}
	return s
}
