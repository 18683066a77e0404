// Package history persists finished runs to a local SQLite journal, one
// database for any number of workflows. The journal is append-only from the
// engine's point of view: a run is recorded once, after it finished, and
// never updated.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/specialistvlad/conveyorgo/internal/report"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id      TEXT PRIMARY KEY,
	workflow    TEXT NOT NULL,
	event       TEXT,
	branch      TEXT,
	outcome     TEXT NOT NULL,
	started_at  INTEGER,
	finished_at INTEGER,
	job_count   INTEGER
);

CREATE TABLE IF NOT EXISTS run_jobs (
	run_id      TEXT NOT NULL,
	position    INTEGER NOT NULL,
	job_id      TEXT NOT NULL,
	status      TEXT NOT NULL,
	detail      TEXT,
	started_at  INTEGER,
	finished_at INTEGER,
	PRIMARY KEY (run_id, position),
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_run_jobs_run_id ON run_jobs(run_id);
`

// Journal is a handle to the run history database.
type Journal struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the journal database at path.
func Open(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}

	// SQLite performs best with a single writer connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("executing %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing history schema: %w", err)
	}

	return &Journal{db: db, path: path}, nil
}

// Close releases the database handle.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record writes one finished run and its job rows in a single transaction.
func (j *Journal) Record(ctx context.Context, run *report.Run) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning history transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, workflow, event, branch, outcome, started_at, finished_at, job_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.Workflow, run.Event, run.Branch, run.Outcome,
		toUnix(run.Started), toUnix(run.Finished), len(run.Jobs))
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.RunID, err)
	}

	for i := range run.Jobs {
		job := &run.Jobs[i]
		_, err = tx.ExecContext(ctx,
			`INSERT INTO run_jobs (run_id, position, job_id, status, detail, started_at, finished_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			run.RunID, i, job.ID, job.Status, jobDetail(job), toUnix(job.Started), toUnix(job.Finished))
		if err != nil {
			return fmt.Errorf("inserting job %s of run %s: %w", job.ID, run.RunID, err)
		}
	}

	return tx.Commit()
}

// jobDetail picks the one line stored per job: the skip reason or the
// failure cause.
func jobDetail(job *report.Job) string {
	if job.SkipReason != "" {
		return job.SkipReason
	}
	return job.Error
}

// Entry is one row of the run listing.
type Entry struct {
	RunID    string
	Workflow string
	Event    string
	Branch   string
	Outcome  string
	Started  time.Time
	Finished time.Time
	JobCount int
}

// Runs returns the most recent runs, newest first.
func (j *Journal) Runs(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT run_id, workflow, event, branch, outcome, started_at, finished_at, job_count
		 FROM runs ORDER BY started_at DESC, run_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var started, finished int64
		if err := rows.Scan(&e.RunID, &e.Workflow, &e.Event, &e.Branch, &e.Outcome, &started, &finished, &e.JobCount); err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		e.Started = fromUnix(started)
		e.Finished = fromUnix(finished)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// JobEntry is one job row of a recorded run.
type JobEntry struct {
	JobID    string
	Status   string
	Detail   string
	Started  time.Time
	Finished time.Time
}

// Jobs returns the job rows of one recorded run, in declaration order.
func (j *Journal) Jobs(ctx context.Context, runID string) ([]JobEntry, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT job_id, status, detail, started_at, finished_at
		 FROM run_jobs WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying jobs of run %s: %w", runID, err)
	}
	defer rows.Close()

	var entries []JobEntry
	for rows.Next() {
		var e JobEntry
		var started, finished int64
		if err := rows.Scan(&e.JobID, &e.Status, &e.Detail, &started, &finished); err != nil {
			return nil, fmt.Errorf("scanning job row: %w", err)
		}
		e.Started = fromUnix(started)
		e.Finished = fromUnix(finished)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func fromUnix(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(v, 0).UTC()
}
