package integration_tests

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/conveyorgo/internal/app"
	"github.com/specialistvlad/conveyorgo/internal/registry"
	"github.com/specialistvlad/conveyorgo/internal/testutil"
)

// Test for: the worker limit serializes ready jobs instead of running them
// all at once.
func TestDagConcurrency_WorkerLimitSerializesJobs(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// Three independent jobs are all ready immediately; one worker must run
	// them one after another.
	src := `
name: narrow
jobs:
  first:
    steps:
      - uses: sleep
  second:
    steps:
      - uses: sleep
  third:
    steps:
      - uses: sleep
`
	sleeper := testutil.NewSleeperModule(nil, 80*time.Millisecond)

	// --- Act ---
	res := testutil.RunWorkflowTest(t, src, &testutil.HarnessOptions{
		Modules: []registry.Module{sleeper},
		Config:  func(cfg *app.Config, _ string) { cfg.Workers = 1 },
	})

	// --- Assert ---
	require.NoError(t, res.Err)
	require.Equal(t, "succeeded", res.Report.Outcome)
	require.Len(t, sleeper.ExecutionTimes, 3)

	windows := make([]*testutil.ExecutionRecord, 0, 3)
	for _, rec := range sleeper.ExecutionTimes {
		windows = append(windows, rec)
	}
	sort.Slice(windows, func(i, j int) bool { return windows[i].Start.Before(windows[j].Start) })

	for i := 1; i < len(windows); i++ {
		require.False(t, windows[i].Start.Before(windows[i-1].End),
			"two jobs overlapped despite a single worker")
	}
}
