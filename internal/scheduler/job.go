package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/specialistvlad/conveyorgo/internal/ctxlog"
	"github.com/specialistvlad/conveyorgo/internal/dag"
	"github.com/specialistvlad/conveyorgo/internal/model"
	"github.com/specialistvlad/conveyorgo/internal/runner"
	"github.com/specialistvlad/conveyorgo/internal/secrets"
)

// runJob executes a job's steps strictly in declaration order. The first
// non-tolerated failure short-circuits the rest; the remaining steps are
// recorded as skipped so the job's report stays complete. The returned error
// is the job's failure cause, nil when the job succeeded.
func (s *Scheduler) runJob(ctx context.Context, node *dag.Node, rc model.RunContext, needs map[string]string) error {
	logger := ctxlog.FromContext(ctx)
	job := node.Job
	node.Steps = make([]model.StepResult, 0, len(job.Steps))

	var failed error

	for i, step := range job.Steps {
		name := step.DisplayName()
		stepLogger := logger.With("step", name, "position", i+1)

		if failed != nil || ctx.Err() != nil {
			node.Steps = append(node.Steps, model.StepResult{Name: name, Status: model.StepSkipped})
			continue
		}

		if step.If != nil {
			proceed, err := step.If.Eval(s.exprInput(rc, needs))
			if err != nil {
				failed = s.failStep(node, step, stepLogger, model.StepResult{Name: name}, err)
				continue
			}
			if !proceed {
				stepLogger.Info("Skipping step, condition is false.", "condition", step.If.Source())
				node.Steps = append(node.Steps, model.StepResult{Name: name, Status: model.StepSkipped})
				continue
			}
		}

		rn, err := s.runnerFor(step)
		if err != nil {
			failed = s.failStep(node, step, stepLogger, model.StepResult{Name: name}, err)
			continue
		}

		task := s.buildTask(ctx, job, step, rc)

		timeout := step.Timeout
		if timeout <= 0 {
			timeout = s.stepTimeout
		}
		stepCtx, cancel := context.WithTimeout(ctx, timeout)

		stepLogger.Info("▶️ Starting step.")
		started := time.Now()
		result, runErr := rn.Run(stepCtx, task)
		finished := time.Now()
		cancel()

		sr := model.StepResult{Name: name, Started: started, Finished: finished}
		if result != nil {
			sr.Stdout = result.Stdout
			sr.Stderr = result.Stderr
			for _, ref := range result.Artifacts {
				sr.Artifacts = append(sr.Artifacts, ref.String())
			}
		}

		if runErr != nil {
			if ctx.Err() != nil {
				// The run was cancelled; this is not a step failure.
				sr.Status = model.StepFailure
				sr.Error = runErr.Error()
				node.Steps = append(node.Steps, sr)
				return runErr
			}
			failed = s.failStep(node, step, stepLogger, sr, runErr)
			continue
		}

		sr.Status = model.StepSuccess
		node.Steps = append(node.Steps, sr)
		stepLogger.Info("✅ Step finished.", "duration", finished.Sub(started).Round(time.Millisecond))
	}

	return failed
}

// failStep appends the failed step result and applies the continue_on_error
// policy. A tolerated failure returns nil, leaving the job healthy but
// marking the run as only partially successful; otherwise the returned error
// becomes the job's failure cause.
func (s *Scheduler) failStep(node *dag.Node, step *model.Step, logger *slog.Logger, sr model.StepResult, cause error) error {
	sr.Status = model.StepFailure
	sr.Error = cause.Error()
	sr.Tolerated = step.ContinueOnError
	node.Steps = append(node.Steps, sr)

	if step.ContinueOnError {
		node.MarkTolerated()
		logger.Warn("Step failed, continuing per continue_on_error.", "error", cause)
		return nil
	}
	logger.Error("Step failed.", "error", cause)
	return fmt.Errorf("step '%s': %w", sr.Name, cause)
}

// runnerFor resolves the action a step references. Run-style steps dispatch
// to the runner registered under "shell".
func (s *Scheduler) runnerFor(step *model.Step) (runner.Runner, error) {
	name := step.Uses
	if name == "" {
		name = "shell"
	}
	rn, ok := s.runners.Runner(name)
	if !ok {
		return nil, fmt.Errorf("no runner registered for action '%s'", name)
	}
	return rn, nil
}

// buildTask prepares one step invocation: environment layers merged lowest
// to highest, secrets resolved, redaction wired. A missing secret injects an
// empty value; the secret's name may be logged, its value never is.
func (s *Scheduler) buildTask(ctx context.Context, job *model.Job, step *model.Step, rc model.RunContext) *runner.Task {
	logger := ctxlog.FromContext(ctx)

	env := make(map[string]string, len(s.env)+len(job.Env)+len(step.Env)+3)
	for k, v := range s.env {
		env[k] = v
	}
	for k, v := range job.Env {
		env[k] = v
	}
	for k, v := range step.Env {
		env[k] = v
	}
	env["CONVEYOR_EVENT"] = rc.Event
	env["CONVEYOR_BRANCH"] = rc.Branch
	env["CONVEYOR_JOB"] = job.ID

	values := make(map[string]string)
	var redact []string
	for _, name := range append(append([]string{}, job.Secrets...), step.Secrets...) {
		if _, seen := values[name]; seen {
			continue
		}
		value, ok := "", false
		if s.secrets != nil {
			value, ok = s.secrets.Lookup(name)
		}
		if !ok {
			logger.Warn("Secret not found, injecting empty value.", "secret", name)
			value = ""
		}
		values[name] = value
		redact = append(redact, value)
	}
	red := secrets.NewRedactor(redact)

	return &runner.Task{
		JobID:     job.ID,
		StepName:  step.DisplayName(),
		Run:       step.Run,
		With:      step.With,
		Env:       env,
		Secrets:   values,
		Artifacts: s.store,
		Redact:    red.Redact,
	}
}
