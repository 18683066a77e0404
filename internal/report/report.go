// Package report assembles the final account of a run: per-job results, the
// aggregate outcome, produced artifacts, and the process exit code. The same
// snapshot feeds the rendered status table, the status endpoint, and the
// history journal.
package report

import (
	"time"

	"github.com/specialistvlad/conveyorgo/internal/artifact"
	"github.com/specialistvlad/conveyorgo/internal/dag"
	"github.com/specialistvlad/conveyorgo/internal/model"
)

// Meta carries the run identity the graph itself does not know.
type Meta struct {
	RunID    string
	Workflow string
	Event    string
	Branch   string
	Started  time.Time
	Finished time.Time
	// Cancelled is true when the run context was cancelled, regardless of
	// how far execution got.
	Cancelled bool
}

// Job is the reported state of one job.
type Job struct {
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	Status     string             `json:"status"`
	SkipReason string             `json:"skip_reason,omitempty"`
	Error      string             `json:"error,omitempty"`
	Tolerated  bool               `json:"tolerated,omitempty"`
	Steps      []model.StepResult `json:"steps,omitempty"`
	Started    time.Time          `json:"started,omitempty"`
	Finished   time.Time          `json:"finished,omitempty"`
}

// Artifact is one stored artifact version in the report.
type Artifact struct {
	Ref      string `json:"ref"`
	Producer string `json:"producer"`
}

// Run is the full account of one run.
type Run struct {
	RunID     string     `json:"run_id"`
	Workflow  string     `json:"workflow"`
	Event     string     `json:"event"`
	Branch    string     `json:"branch"`
	Outcome   string     `json:"outcome"`
	Complete  bool       `json:"complete"`
	Started   time.Time  `json:"started"`
	Finished  time.Time  `json:"finished,omitempty"`
	Jobs      []Job      `json:"jobs"`
	Artifacts []Artifact `json:"artifacts,omitempty"`

	outcome model.Outcome
}

// Collect walks the graph in declaration order and assembles the report.
// It reads node state atomically, so it is also safe to call mid-run for a
// live snapshot; Complete reports whether every job was terminal at the time
// of collection.
func Collect(graph *dag.Graph, store *artifact.Store, meta Meta) *Run {
	run := &Run{
		RunID:    meta.RunID,
		Workflow: meta.Workflow,
		Event:    meta.Event,
		Branch:   meta.Branch,
		Started:  meta.Started,
		Finished: meta.Finished,
		Complete: true,
		Jobs:     make([]Job, 0, graph.Len()),
	}

	anyFailed := false
	anyCancelled := meta.Cancelled
	anyTolerated := false

	for _, node := range graph.Jobs() {
		status := node.Status()
		if !status.Terminal() {
			run.Complete = false
		}
		switch status {
		case model.JobFailure:
			anyFailed = true
		case model.JobCancelled:
			anyCancelled = true
		}
		if node.Tolerated() {
			anyTolerated = true
		}

		j := Job{
			ID:         node.Job.ID,
			Name:       node.Job.DisplayName(),
			Status:     status.String(),
			SkipReason: node.SkipReason,
			Tolerated:  node.Tolerated(),
			Steps:      node.Steps,
			Started:    node.Started,
			Finished:   node.Finished,
		}
		if node.Err != nil {
			j.Error = node.Err.Error()
		}
		run.Jobs = append(run.Jobs, j)
	}

	switch {
	case anyCancelled:
		run.outcome = model.OutcomeCancelled
	case anyFailed:
		run.outcome = model.OutcomeFailed
	case anyTolerated:
		run.outcome = model.OutcomePartiallySucceeded
	default:
		run.outcome = model.OutcomeSucceeded
	}
	run.Outcome = run.outcome.String()

	if store != nil {
		for _, ref := range store.Refs() {
			producer, err := store.Producer(ref)
			if err != nil {
				continue
			}
			run.Artifacts = append(run.Artifacts, Artifact{Ref: ref.String(), Producer: producer})
		}
	}

	return run
}

// OutcomeValue returns the typed outcome.
func (r *Run) OutcomeValue() model.Outcome {
	return r.outcome
}

// ExitCode maps the outcome to the process exit code: tolerated failures
// still exit zero, a failed run exits one, and a cancelled run exits with
// the conventional interrupt code.
func (r *Run) ExitCode() int {
	switch r.outcome {
	case model.OutcomeFailed:
		return 1
	case model.OutcomeCancelled:
		return 130
	default:
		return 0
	}
}
