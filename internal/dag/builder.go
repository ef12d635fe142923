package dag

import (
	"fmt"

	"github.com/taskhub/taskhub/internal/types"
)

// ErrCycleDetected is returned when the spec's dependency edges form a
// cycle.
type ErrCycleDetected struct {
	Cycle []string
}

func (e *ErrCycleDetected) Error() string {
	return fmt.Sprintf("cycle detected: %v", e.Cycle)
}

// ErrMissingDep is returned when a step depends on an id not present in the
// spec.
type ErrMissingDep struct {
	Node string
	Dep  string
}

func (e *ErrMissingDep) Error() string {
	return fmt.Sprintf("node %q depends on missing node %q", e.Node, e.Dep)
}

// Build constructs and validates a Graph from a set of TaskConfigs, each
// carrying its own Deps (logical ids of upstream nodes). runID is stamped
// into every node's TaskID so concurrent executions of the same spec don't
// collide.
func Build(runID string, specs []types.TaskConfig) (*Graph, error) {
	g := &Graph{Nodes: make(map[string]*Node, len(specs))}

	for _, cfg := range specs {
		if cfg.ID == "" {
			return nil, fmt.Errorf("task spec missing id")
		}
		if _, dup := g.Nodes[cfg.ID]; dup {
			return nil, fmt.Errorf("duplicate task id %q", cfg.ID)
		}
		id := types.TaskID{Value: cfg.ID, RunID: runID}
		g.Nodes[cfg.ID] = NewNode(id, cfg)
		g.order = append(g.order, cfg.ID)
	}

	// Wire deps/downstream and validate dangling deps.
	for _, cfg := range specs {
		n := g.Nodes[cfg.ID]
		for _, depValue := range cfg.Deps {
			dep, ok := g.Nodes[depValue]
			if !ok {
				return nil, &ErrMissingDep{Node: cfg.ID, Dep: depValue}
			}
			n.Deps = append(n.Deps, dep.ID)
			dep.Downstream = append(dep.Downstream, n.ID)
		}
		n.setIndegree(int64(len(cfg.Deps)))
	}

	if cycle := detectCycle(g); cycle != nil {
		return nil, &ErrCycleDetected{Cycle: cycle}
	}

	return g, nil
}

// detectCycle returns the offending cycle as a slice of node ids, or nil if
// the graph is acyclic. Uses recursive DFS with a three-color scheme.
func detectCycle(g *Graph) []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.Nodes))
	var stack []string

	var visit func(id string) []string
	visit = func(id string) []string {
		color[id] = gray
		stack = append(stack, id)
		n := g.Nodes[id]
		for _, dep := range n.Deps {
			switch color[dep.Value] {
			case white:
				if cyc := visit(dep.Value); cyc != nil {
					return cyc
				}
			case gray:
				// Found the back-edge; slice the stack from dep.Value onward.
				for i, s := range stack {
					if s == dep.Value {
						return append(append([]string{}, stack[i:]...), dep.Value)
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return nil
	}

	for _, id := range g.order {
		if color[id] == white {
			if cyc := visit(id); cyc != nil {
				return cyc
			}
		}
	}
	return nil
}
