// Package print renders a message into a step's captured output. Pipelines
// use it for annotations and for surfacing computed values in the run
// summary without shelling out to echo.
package print

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/specialistvlad/conveyorgo/internal/ctxlog"
	"github.com/specialistvlad/conveyorgo/internal/registry"
	"github.com/specialistvlad/conveyorgo/internal/runner"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Run renders the step's arguments. The "message" argument prints as-is;
// every other argument prints as a sorted `key = "value"` line.
func Run(ctx context.Context, task *runner.Task) (*runner.Result, error) {
	ctxlog.FromContext(ctx).Debug("Printing step arguments.", "count", len(task.With))

	var sb strings.Builder
	if msg, ok := task.With["message"]; ok {
		sb.WriteString(msg)
		sb.WriteString("\n")
	}

	// Sort keys for consistent output
	keys := make([]string, 0, len(task.With))
	for k := range task.With {
		if k == "message" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		fmt.Fprintf(&sb, "%s = %q\n", k, task.With[k])
	}

	return &runner.Result{Stdout: task.Redacted(sb.String())}, nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("print", runner.Func(Run))
}
