// Package dag implements the DAG builder/graph (C8) and the DAG executor
// (C9): a spec-to-graph builder with cycle/dangling-dep validation, and a
// topological scheduler honoring maxParallel and FailPolicy.
package dag

import (
	"fmt"
	"sync/atomic"

	"github.com/taskhub/taskhub/internal/types"
)

// Node is one vertex of a Graph. Deps/Downstream are fixed at build time;
// Indegree and Status are the only fields mutated during execution, and
// only through SetStatus/CompareAndSetStatus/DecrementIndegree.
// RunnerConfig is frozen after build.
type Node struct {
	ID           types.TaskID
	Deps         []types.TaskID
	Downstream   []types.TaskID
	RunnerConfig types.TaskConfig

	indegree atomic.Int64
	status   atomic.Int32
}

// NewNode constructs a Node in StatusPending with indegree 0; Build sets the
// indegree once deps are wired.
func NewNode(id types.TaskID, cfg types.TaskConfig) *Node {
	n := &Node{ID: id, RunnerConfig: cfg}
	n.status.Store(int32(types.StatusPending))
	return n
}

// Status returns the node's current status.
func (n *Node) Status() types.TaskStatus { return types.TaskStatus(n.status.Load()) }

// SetStatus sets the node's status.
func (n *Node) SetStatus(s types.TaskStatus) { n.status.Store(int32(s)) }

// CompareAndSetStatus atomically transitions the node from expect to next,
// returning false without effect if the current status was not expect.
// Used to guarantee a node is submitted for execution at most once.
func (n *Node) CompareAndSetStatus(expect, next types.TaskStatus) bool {
	return n.status.CompareAndSwap(int32(expect), int32(next))
}

// Indegree returns the current indegree.
func (n *Node) Indegree() int64 { return n.indegree.Load() }

// setIndegree initializes the indegree at build time.
func (n *Node) setIndegree(v int64) { n.indegree.Store(v) }

// DecrementIndegree atomically decrements the indegree and returns the new
// value. Debug invariant: the result never goes negative.
func (n *Node) DecrementIndegree() int64 {
	v := n.indegree.Add(-1)
	if v < 0 {
		panic(fmt.Sprintf("dag: indegree went negative for node %s", n.ID))
	}
	return v
}

// Graph is a built, validated DAG: id.Value -> *Node.
type Graph struct {
	Nodes map[string]*Node
	order []string // insertion order, used for deterministic iteration in tests
}

// Get returns the node for the given logical id value.
func (g *Graph) Get(value string) (*Node, bool) {
	n, ok := g.Nodes[value]
	return n, ok
}

// All returns every node in insertion order.
func (g *Graph) All() []*Node {
	out := make([]*Node, 0, len(g.order))
	for _, v := range g.order {
		out = append(out, g.Nodes[v])
	}
	return out
}

// Roots returns every node with indegree 0 at build time.
func (g *Graph) Roots() []*Node {
	var out []*Node
	for _, n := range g.All() {
		if n.Indegree() == 0 {
			out = append(out, n)
		}
	}
	return out
}
