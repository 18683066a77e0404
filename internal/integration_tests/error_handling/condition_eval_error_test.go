package integration_tests

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/conveyorgo/internal/registry"
	"github.com/specialistvlad/conveyorgo/internal/testutil"
)

// Test for: a condition referencing an undeclared dependency fails its job
// at evaluation time and the failure cascades normally.
func TestErrorHandling_ConditionEvalErrorFailsJob(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// The gate job's condition reads a result that is not among its needs,
	// so evaluation itself errors.
	src := `
name: bad-gate
jobs:
  gate:
    if: 'needs.ghost.result == "success"'
    steps:
      - uses: noop
  after:
    needs: [gate]
    steps:
      - uses: noop
`

	// --- Act ---
	res := testutil.RunWorkflowTest(t, src, &testutil.HarnessOptions{
		Modules: []registry.Module{&testutil.NoOpModule{}},
	})

	// --- Assert ---
	require.NoError(t, res.Err)
	require.Equal(t, "failed", res.Report.Outcome)

	testutil.RequireJobStatus(t, res.Report, "gate", "failure")
	require.Contains(t, testutil.JobByID(t, res.Report, "gate").Error, "ghost")

	testutil.RequireJobStatus(t, res.Report, "after", "skipped")
}
