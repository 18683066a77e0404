package testutil

import (
	"github.com/specialistvlad/conveyorgo/internal/registry"
	"github.com/specialistvlad/conveyorgo/internal/runner"
)

// SimpleModule is a test helper for easily creating a mock module that
// registers a single runner under an action name.
type SimpleModule struct {
	Action string
	Fn     runner.Func
}

// Register implements the registry.Module interface.
func (m *SimpleModule) Register(r *registry.Registry) {
	if m.Action != "" && m.Fn != nil {
		r.RegisterRunner(m.Action, m.Fn)
	}
}
