// Package scheduler drives one run of a job graph. A fixed pool of workers
// consumes a ready channel; every job passes through a worker exactly once,
// where its gate is decided and, if it runs, its steps execute in order.
// Terminal transitions unlock dependents by decrementing their dependency
// counters, so skip cascades and normal progress flow through the same
// mechanism.
package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/specialistvlad/conveyorgo/internal/artifact"
	"github.com/specialistvlad/conveyorgo/internal/dag"
	"github.com/specialistvlad/conveyorgo/internal/expr"
	"github.com/specialistvlad/conveyorgo/internal/model"
	"github.com/specialistvlad/conveyorgo/internal/registry"
	"github.com/specialistvlad/conveyorgo/internal/secrets"
)

const (
	defaultWorkers     = 4
	defaultStepTimeout = 10 * time.Minute
)

// Options configures a Scheduler.
type Options struct {
	// Workers bounds the number of jobs executing concurrently.
	Workers int
	// StepTimeout bounds each step invocation that does not declare its own
	// timeout.
	StepTimeout time.Duration
	// Runners resolves step actions.
	Runners *registry.Registry
	// Artifacts is the run's artifact store, shared with every task.
	Artifacts *artifact.Store
	// Secrets resolves injected secret names. May be nil.
	Secrets secrets.Source
	// WorkflowEnv is the workflow-level environment layer.
	WorkflowEnv map[string]string
}

// Scheduler executes one graph. It is single-use: create one per run.
type Scheduler struct {
	graph       *dag.Graph
	runners     *registry.Registry
	store       *artifact.Store
	secrets     secrets.Source
	env         map[string]string
	workers     int
	stepTimeout time.Duration
	wg          sync.WaitGroup
}

// New creates a scheduler for the given graph.
func New(graph *dag.Graph, opts Options) *Scheduler {
	workers := opts.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	stepTimeout := opts.StepTimeout
	if stepTimeout <= 0 {
		stepTimeout = defaultStepTimeout
	}
	store := opts.Artifacts
	if store == nil {
		store = artifact.NewStore()
	}
	runners := opts.Runners
	if runners == nil {
		runners = registry.New()
	}
	return &Scheduler{
		graph:       graph,
		runners:     runners,
		store:       store,
		secrets:     opts.Secrets,
		env:         opts.WorkflowEnv,
		workers:     workers,
		stepTimeout: stepTimeout,
	}
}

// verdict is one gate decision.
type verdict struct {
	run    bool
	reason string
	// needs carries the terminal statuses of the job's dependencies, reused
	// for step conditions so job and step gates see the same view.
	needs map[string]string
	err   error
}

// gate decides whether a job runs, is skipped, or failed its own
// configuration. It is called when every dependency is terminal.
//
// The implicit gate is "every need succeeded". A condition replaces the
// implicit gate only when it inspects upstream status itself (always,
// success, failure); otherwise the two are combined, so `branch == "master"`
// alone can never resurrect a job whose upstream failed. Conditions of jobs
// that cascade-skip are not evaluated at all.
func (s *Scheduler) gate(node *dag.Node, rc model.RunContext) verdict {
	needs := make(map[string]string, len(node.Deps()))
	blocked := ""
	for _, dep := range node.Deps() {
		status := dep.Status()
		needs[dep.Job.ID] = status.String()
		if status != model.JobSuccess && blocked == "" {
			blocked = fmt.Sprintf("'%s' finished as %s", dep.Job.ID, status)
		}
	}

	cond := node.Job.If
	if cond == nil {
		if blocked != "" {
			return verdict{reason: blocked, needs: needs}
		}
		return verdict{run: true, needs: needs}
	}

	if !cond.HasStatusCheck() && blocked != "" {
		return verdict{reason: blocked, needs: needs}
	}

	ok, err := cond.Eval(s.exprInput(rc, needs))
	if err != nil {
		return verdict{err: fmt.Errorf("job '%s': %w", node.Job.ID, err), needs: needs}
	}
	if !ok {
		return verdict{reason: fmt.Sprintf("condition '%s' is false", cond.Source()), needs: needs}
	}
	return verdict{run: true, needs: needs}
}

// exprInput assembles the evaluation scope for job and step conditions.
func (s *Scheduler) exprInput(rc model.RunContext, needs map[string]string) expr.Input {
	return expr.Input{
		Event:  rc.Event,
		Branch: rc.Branch,
		Needs:  needs,
		Secret: func(name string) (string, bool) {
			if s.secrets == nil {
				return "", false
			}
			return s.secrets.Lookup(name)
		},
	}
}
