package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/specialistvlad/conveyorgo/internal/registry"
	"github.com/specialistvlad/conveyorgo/internal/runner"
)

// SleeperModule is a shared, self-contained module for concurrency tests.
// It records the execution window of each job that uses its action.
type SleeperModule struct {
	ExecutionTimes map[string]*ExecutionRecord
	mu             sync.Mutex
	sleepDuration  time.Duration
	completionChan chan<- string
}

// NewSleeperModule creates a new sleeper module for testing.
func NewSleeperModule(completionChan chan<- string, sleep time.Duration) *SleeperModule {
	return &SleeperModule{
		ExecutionTimes: make(map[string]*ExecutionRecord),
		sleepDuration:  sleep,
		completionChan: completionChan,
	}
}

// Register registers the "sleep" runner.
func (m *SleeperModule) Register(r *registry.Registry) {
	r.RegisterRunner("sleep", runner.Func(func(ctx context.Context, task *runner.Task) (*runner.Result, error) {
		start := time.Now()
		select {
		case <-time.After(m.sleepDuration):
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		m.mu.Lock()
		m.ExecutionTimes[task.JobID] = &ExecutionRecord{Start: start, End: time.Now()}
		m.mu.Unlock()

		if m.completionChan != nil {
			m.completionChan <- task.JobID
		}
		return &runner.Result{}, nil
	}))
}
