package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/conveyorgo/internal/report"
)

// JobByID finds a job entry in a run report, failing the test when either
// the report or the job is missing.
func JobByID(t *testing.T, rep *report.Run, id string) *report.Job {
	t.Helper()
	require.NotNil(t, rep, "run produced no report")
	for i := range rep.Jobs {
		if rep.Jobs[i].ID == id {
			return &rep.Jobs[i]
		}
	}
	require.Failf(t, "job not found", "no job '%s' in report", id)
	return nil
}

// RequireJobStatus asserts the terminal status a job reached.
func RequireJobStatus(t *testing.T, rep *report.Run, id, status string) {
	t.Helper()
	job := JobByID(t, rep, id)
	require.Equalf(t, status, job.Status,
		"job '%s' finished as %s (skip: %q, error: %q)", id, job.Status, job.SkipReason, job.Error)
}
