// Package registry provides the central "glue" between workflow definitions
// and compiled Go actions.
//
// The Registry stores the mapping from the action names used in step `uses`
// references to the Runner implementations that execute them. It is
// populated once at startup by modules and then validated against the loaded
// workflow, so a reference to an unregistered action is caught before any
// job runs.
package registry

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/specialistvlad/conveyorgo/internal/model"
	"github.com/specialistvlad/conveyorgo/internal/runner"
)

// Module is the interface a runner module implements to be registered.
type Module interface {
	Register(r *Registry)
}

// Registry holds the registered runners for a single application instance.
type Registry struct {
	runners map[string]runner.Runner
}

// New creates and initializes a new Registry instance.
func New() *Registry {
	return &Registry{runners: make(map[string]runner.Runner)}
}

// RegisterRunner registers a runner under an action name. Registering the
// same name twice is a programmer error and panics, matching the fail-fast
// startup contract.
func (r *Registry) RegisterRunner(name string, rn runner.Runner) {
	if _, exists := r.runners[name]; exists {
		panic(fmt.Sprintf("runner with name '%s' already registered", name))
	}
	slog.Debug("Registering runner.", "name", name)
	r.runners[name] = rn
}

// Runner returns the runner registered under the given action name.
func (r *Registry) Runner(name string) (runner.Runner, bool) {
	rn, ok := r.runners[name]
	return rn, ok
}

// Names returns the sorted action names, for logs and error messages.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.runners))
	for name := range r.runners {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateWorkflow checks that every action a workflow references is
// registered and that every step has exactly one action form. Defects are
// validation errors: the workflow is wrong, not the run.
func (r *Registry) ValidateWorkflow(wf *model.Workflow) error {
	for _, job := range wf.Jobs {
		for i, step := range job.Steps {
			hasRun := step.Run != ""
			hasUses := step.Uses != ""
			if hasRun == hasUses {
				return &model.ValidationError{
					Workflow: wf.Name,
					Reason:   fmt.Sprintf("job '%s' step %d must set exactly one of run and uses", job.ID, i+1),
				}
			}
			if hasUses {
				if _, ok := r.runners[step.Uses]; !ok {
					return &model.ValidationError{
						Workflow: wf.Name,
						Reason: fmt.Sprintf("job '%s' step %d uses unknown action '%s' (registered: %v)",
							job.ID, i+1, step.Uses, r.Names()),
					}
				}
			}
		}
	}
	return nil
}
