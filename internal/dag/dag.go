package dag

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/specialistvlad/conveyorgo/internal/model"
)

// Graph is the validated dependency graph of one workflow. The structure is
// immutable after Build; only the per-node execution state changes during a
// run.
type Graph struct {
	nodes map[string]*Node
	// order holds the nodes in job declaration order, the tie-break order
	// for scheduling and the row order for reporting.
	order []*Node
}

// Len returns the number of jobs in the graph.
func (g *Graph) Len() int {
	return len(g.order)
}

// Node returns the node for the given job id, if it exists.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Jobs returns the nodes in declaration order. The slice is shared; callers
// must not modify it.
func (g *Graph) Jobs() []*Node {
	return g.order
}

// TopoOrder returns a valid topological order of the graph, stable with
// respect to declaration order: among jobs whose dependencies are satisfied,
// the one declared first comes first.
func (g *Graph) TopoOrder() []*Node {
	remaining := make(map[string]int, len(g.order))
	for _, n := range g.order {
		remaining[n.Job.ID] = len(n.deps)
	}
	placed := make(map[string]bool, len(g.order))
	out := make([]*Node, 0, len(g.order))

	// Repeated stable scans over the declaration order. Quadratic, but the
	// graph is the size of one workflow.
	for len(out) < len(g.order) {
		progressed := false
		for _, n := range g.order {
			if placed[n.Job.ID] || remaining[n.Job.ID] != 0 {
				continue
			}
			out = append(out, n)
			placed[n.Job.ID] = true
			progressed = true
			for _, d := range n.dependents {
				remaining[d.Job.ID]--
			}
		}
		if !progressed {
			// Unreachable once Build has rejected cycles.
			break
		}
	}
	return out
}

// Node is a single job vertex plus its execution state. The dependency links
// are immutable after Build. Execution state is written by the one worker
// that owns the node while it runs; status is atomic so that other workers
// and the status endpoint can observe it concurrently.
type Node struct {
	// Job is the immutable definition this node executes.
	Job *model.Job

	index      int
	deps       []*Node
	dependents []*Node

	depCount   atomic.Int32
	status     atomic.Int32
	tolerated  atomic.Bool
	finishOnce sync.Once

	// The fields below are written only by the owning worker and must be
	// read only after the node reports a terminal status.

	// Steps records one result per declared step once the job has run.
	Steps []model.StepResult
	// Err is the failure or cancellation cause for a terminal node.
	Err error
	// SkipReason explains a Skipped terminal state.
	SkipReason string
	// Started and Finished bound the job's execution. Zero for jobs that
	// never ran.
	Started  time.Time
	Finished time.Time
}

// Deps returns the nodes this node depends on, in needs declaration order.
func (n *Node) Deps() []*Node {
	return n.deps
}

// Dependents returns the nodes that depend on this node, in declaration
// order.
func (n *Node) Dependents() []*Node {
	return n.dependents
}

// Index returns the node's position in job declaration order.
func (n *Node) Index() int {
	return n.index
}

// Status atomically reads the node's current status.
func (n *Node) Status() model.JobStatus {
	return model.JobStatus(n.status.Load())
}

// SetRunning marks the node as picked up by a worker.
func (n *Node) SetRunning() {
	n.status.Store(int32(model.JobRunning))
}

// Finish transitions the node to a terminal status exactly once and reports
// whether this call was the transition. The error may be nil for Success and
// Skipped.
func (n *Node) Finish(status model.JobStatus, err error) bool {
	var first bool
	n.finishOnce.Do(func() {
		n.Err = err
		n.status.Store(int32(status))
		first = true
	})
	return first
}

// DepCount atomically returns the number of unmet dependencies.
func (n *Node) DepCount() int32 {
	return n.depCount.Load()
}

// DecrementDeps atomically decrements the dependency counter and returns the
// new value. The caller that observes zero enqueues the node.
func (n *Node) DecrementDeps() int32 {
	return n.depCount.Add(-1)
}

// MarkTolerated records that a step failure was absorbed by
// continue_on_error. The run reporter downgrades a fully green run to
// partially succeeded when any node carries this mark.
func (n *Node) MarkTolerated() {
	n.tolerated.Store(true)
}

// Tolerated reports whether any step failure was absorbed.
func (n *Node) Tolerated() bool {
	return n.tolerated.Load()
}
