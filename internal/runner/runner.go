// Package runner defines the boundary between the engine and the actions it
// invokes. The engine hands a Runner a fully prepared Task and observes only
// the Result and error; what the action actually does is opaque.
package runner

import (
	"context"

	"github.com/specialistvlad/conveyorgo/internal/artifact"
)

// Task is one step invocation, prepared by the scheduler: environment layers
// merged, secrets resolved, artifact store attached.
type Task struct {
	// JobID and StepName identify the invocation for logs and errors.
	JobID    string
	StepName string

	// Run holds inline shell text for run-style steps. Empty for uses-style
	// steps.
	Run string
	// With carries the action's arguments for uses-style steps.
	With map[string]string

	// Env is the merged workflow < job < step environment, plus the
	// engine-provided CONVEYOR_* context variables.
	Env map[string]string
	// Secrets maps injected secret names to their values. Runners must not
	// write these to any log; captured output should pass through Redact.
	Secrets map[string]string

	// Artifacts gives the action read access to upstream artifacts and write
	// access for its own products.
	Artifacts *artifact.Store

	// Redact replaces any occurrence of an injected secret value in the
	// given text. Runners apply it to captured output before returning.
	Redact func(string) string
}

// Redacted applies the task's redactor, tolerating tasks built without one.
func (t *Task) Redacted(text string) string {
	if t.Redact == nil {
		return text
	}
	return t.Redact(text)
}

// Result is what an action reports back on completion. A nil error means the
// step succeeded regardless of the result contents.
type Result struct {
	// Stdout and Stderr hold captured output, already redacted.
	Stdout string
	Stderr string
	// Artifacts lists refs the action stored during this invocation.
	Artifacts []artifact.Ref
}

// Runner executes one kind of action. Implementations must honor context
// cancellation: the scheduler uses it for per-step timeouts and run
// cancellation.
type Runner interface {
	Run(ctx context.Context, task *Task) (*Result, error)
}

// Func adapts a plain function to the Runner interface.
type Func func(ctx context.Context, task *Task) (*Result, error)

// Run implements Runner.
func (f Func) Run(ctx context.Context, task *Task) (*Result, error) {
	return f(ctx, task)
}
