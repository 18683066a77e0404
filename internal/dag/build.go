package dag

import (
	"context"
	"fmt"
	"strings"

	"github.com/specialistvlad/conveyorgo/internal/ctxlog"
	"github.com/specialistvlad/conveyorgo/internal/model"
)

// Build constructs a complete, validated dependency graph from a workflow.
// Every defect it can detect is a model.ValidationError: a needs reference
// to an unknown job, a self-reference, or a dependency cycle.
func Build(ctx context.Context, wf *model.Workflow) (*Graph, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Build: Starting graph construction.")

	graph := &Graph{nodes: make(map[string]*Node, len(wf.Jobs))}

	// First pass: create all nodes in declaration order.
	for i, job := range wf.Jobs {
		n := &Node{Job: job, index: i}
		graph.nodes[job.ID] = n
		graph.order = append(graph.order, n)
	}
	logger.Debug("Build: Node creation complete.", "node_count", len(graph.order))

	// Second pass: link needs edges.
	for _, n := range graph.order {
		for _, need := range n.Job.Needs {
			if need == n.Job.ID {
				return nil, &model.ValidationError{
					Workflow: wf.Name,
					Reason:   fmt.Sprintf("job '%s' depends on itself", n.Job.ID),
				}
			}
			dep, ok := graph.nodes[need]
			if !ok {
				return nil, &model.ValidationError{
					Workflow: wf.Name,
					Reason:   fmt.Sprintf("job '%s' needs unknown job '%s'", n.Job.ID, need),
				}
			}
			n.deps = append(n.deps, dep)
			dep.dependents = append(dep.dependents, n)
		}
	}
	logger.Debug("Build: Node linking complete.")

	// Third pass: initialize counters.
	for _, n := range graph.order {
		n.depCount.Store(int32(len(n.deps)))
	}

	if err := graph.detectCycles(wf.Name); err != nil {
		return nil, err
	}
	logger.Debug("Build: Cycle detection passed.")

	logger.Debug("Build: Graph construction successful.")
	return graph, nil
}

// detectCycles checks for circular dependencies using DFS. The returned
// error names the full cycle path, not just one participant, because a
// cycle through five jobs is not findable from a single id.
func (g *Graph) detectCycles(workflow string) error {
	visiting := make(map[string]bool)
	visited := make(map[string]bool)
	var stack []string

	var visit func(n *Node) error
	visit = func(n *Node) error {
		visiting[n.Job.ID] = true
		stack = append(stack, n.Job.ID)

		for _, dep := range n.deps {
			if visiting[dep.Job.ID] {
				return &model.ValidationError{
					Workflow: workflow,
					Reason:   "dependency cycle: " + strings.Join(cyclePath(stack, dep.Job.ID), " -> "),
				}
			}
			if !visited[dep.Job.ID] {
				if err := visit(dep); err != nil {
					return err
				}
			}
		}

		stack = stack[:len(stack)-1]
		delete(visiting, n.Job.ID)
		visited[n.Job.ID] = true
		return nil
	}

	for _, n := range g.order {
		if !visited[n.Job.ID] {
			if err := visit(n); err != nil {
				return err
			}
		}
	}
	return nil
}

// cyclePath trims the DFS stack to the segment that forms the cycle and
// closes the loop, producing e.g. [a b c a].
func cyclePath(stack []string, start string) []string {
	for i, id := range stack {
		if id == start {
			path := append([]string{}, stack[i:]...)
			return append(path, start)
		}
	}
	return []string{start, start}
}
