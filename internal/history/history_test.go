package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/conveyorgo/internal/report"
)

func testRun(id string, started time.Time) *report.Run {
	return &report.Run{
		RunID:    id,
		Workflow: "ci",
		Event:    "push",
		Branch:   "master",
		Outcome:  "failed",
		Started:  started,
		Finished: started.Add(90 * time.Second),
		Jobs: []report.Job{
			{ID: "build", Status: "success", Started: started, Finished: started.Add(30 * time.Second)},
			{ID: "test", Status: "failure", Error: "step 'unit tests': exit status 1"},
			{ID: "deploy", Status: "skipped", SkipReason: "'test' finished as failure"},
		},
	}
}

func TestJournal_RecordAndList(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	ctx := context.Background()
	journal, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer journal.Close()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, journal.Record(ctx, testRun("run-1", base)))
	require.NoError(t, journal.Record(ctx, testRun("run-2", base.Add(time.Hour))))

	// --- Act ---
	entries, err := journal.Runs(ctx, 10)

	// --- Assert ---
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "run-2", entries[0].RunID, "newest run comes first")
	assert.Equal(t, "run-1", entries[1].RunID)

	e := entries[1]
	assert.Equal(t, "ci", e.Workflow)
	assert.Equal(t, "push", e.Event)
	assert.Equal(t, "master", e.Branch)
	assert.Equal(t, "failed", e.Outcome)
	assert.Equal(t, base, e.Started)
	assert.Equal(t, base.Add(90*time.Second), e.Finished)
	assert.Equal(t, 3, e.JobCount)
}

func TestJournal_JobRowsKeepOrderAndDetail(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	ctx := context.Background()
	journal, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer journal.Close()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, journal.Record(ctx, testRun("run-1", base)))

	// --- Act ---
	jobs, err := journal.Jobs(ctx, "run-1")

	// --- Assert ---
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, []string{"build", "test", "deploy"}, []string{jobs[0].JobID, jobs[1].JobID, jobs[2].JobID})
	assert.Equal(t, "success", jobs[0].Status)
	assert.Equal(t, "step 'unit tests': exit status 1", jobs[1].Detail)
	assert.Equal(t, "'test' finished as failure", jobs[2].Detail)
	assert.True(t, jobs[1].Started.IsZero(), "a job that never started keeps a zero start time")
}

func TestJournal_DuplicateRunIDRejected(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	journal, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer journal.Close()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, journal.Record(ctx, testRun("run-1", base)))
	assert.Error(t, journal.Record(ctx, testRun("run-1", base)), "run ids are primary keys")
}

func TestJournal_OpenCreatesParentDirectory(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "deeper", "history.db")
	journal, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, journal.Close())
}

func TestJournal_ListOnEmptyJournal(t *testing.T) {
	t.Parallel()
	journal, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer journal.Close()

	entries, err := journal.Runs(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
