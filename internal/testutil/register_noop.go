package testutil

import (
	"context"

	"github.com/specialistvlad/conveyorgo/internal/registry"
	"github.com/specialistvlad/conveyorgo/internal/runner"
)

// NoOpModule is a helper that registers a single "noop" runner which succeeds
// without doing anything. It's useful for tests that should fail before
// execution begins but still need a workflow that passes action validation.
type NoOpModule struct{}

// Register registers the "noop" runner.
func (m *NoOpModule) Register(r *registry.Registry) {
	r.RegisterRunner("noop", runner.Func(func(context.Context, *runner.Task) (*runner.Result, error) {
		return &runner.Result{}, nil
	}))
}
