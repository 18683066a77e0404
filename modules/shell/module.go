// Package shell executes inline `run` scripts. It is the implicit action
// behind every run-style step and is also addressable explicitly as
// `uses: shell` with a `script` argument.
package shell

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"

	"github.com/specialistvlad/conveyorgo/internal/ctxlog"
	"github.com/specialistvlad/conveyorgo/internal/registry"
	"github.com/specialistvlad/conveyorgo/internal/runner"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Run executes the task's script with `sh -c`. The step's environment and
// secrets are exported to the process; captured output is redacted before it
// leaves this function, so a secret value echoed by the script never reaches
// a result or a log.
func Run(ctx context.Context, task *runner.Task) (*runner.Result, error) {
	logger := ctxlog.FromContext(ctx)

	script := task.Run
	if script == "" {
		script = task.With["script"]
	}
	if script == "" {
		return nil, errors.New("shell: step provides no script")
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", script)
	cmd.Env = os.Environ()
	for k, v := range task.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	for k, v := range task.Secrets {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Debug("Executing shell script.", "bytes", len(script))
	err := cmd.Run()

	result := &runner.Result{
		Stdout: task.Redacted(stdout.String()),
		Stderr: task.Redacted(stderr.String()),
	}
	if err != nil {
		// err carries the exit code ("exit status 2") or the kill cause.
		return result, err
	}
	return result, nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("shell", runner.Func(Run))
}
