package integration_tests

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/conveyorgo/internal/app"
	"github.com/specialistvlad/conveyorgo/internal/registry"
	"github.com/specialistvlad/conveyorgo/internal/testutil"
)

// Test for: branch filters match glob patterns, with ** crossing slashes.
func TestTriggers_BranchGlobs(t *testing.T) {
	t.Parallel()

	src := `
name: release-branches
on:
  push:
    branches: ["release/**"]
jobs:
  ship:
    steps:
      - uses: noop
`

	cases := []struct {
		name    string
		branch  string
		matches bool
	}{
		{name: "nested release branch", branch: "release/1.4/hotfix", matches: true},
		{name: "flat release branch", branch: "release/2.0", matches: true},
		{name: "feature branch", branch: "feature/login", matches: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			// --- Act ---
			res := testutil.RunWorkflowTest(t, src, &testutil.HarnessOptions{
				Modules: []registry.Module{&testutil.NoOpModule{}},
				Config:  func(cfg *app.Config, _ string) { cfg.Branch = tc.branch },
			})

			// --- Assert ---
			require.NoError(t, res.Err)
			require.Equal(t, "succeeded", res.Report.Outcome)
			if tc.matches {
				testutil.RequireJobStatus(t, res.Report, "ship", "success")
			} else {
				require.Empty(t, res.Report.Jobs, "a non-matching branch must not schedule anything")
			}
		})
	}
}
