package testutil

import (
	"context"

	"github.com/specialistvlad/conveyorgo/internal/registry"
	"github.com/specialistvlad/conveyorgo/internal/runner"
)

// BlockingModule registers a "block" runner that reports when a job has
// started and then holds until released or cancelled. Cancellation tests use
// it to park a run at a known point.
type BlockingModule struct {
	Started chan string
	Release chan struct{}
}

// NewBlockingModule creates a blocking module with room for 16 concurrent
// start notifications.
func NewBlockingModule() *BlockingModule {
	return &BlockingModule{
		Started: make(chan string, 16),
		Release: make(chan struct{}),
	}
}

// Register registers the "block" runner.
func (m *BlockingModule) Register(r *registry.Registry) {
	r.RegisterRunner("block", runner.Func(func(ctx context.Context, task *runner.Task) (*runner.Result, error) {
		m.Started <- task.JobID
		select {
		case <-m.Release:
			return &runner.Result{}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}))
}
