// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines the record types produced while a run executes.
//
// Why does StepResult store the error as a string?
//
// Results outlive the run: they are rendered into the status table, posted on
// the status endpoint, and written to the history journal. A live error value
// would drag arbitrary references across those boundaries. The message is the
// durable part; the scheduler still handles the typed error at the moment of
// failure.
package model

import "time"

// StepResult records the outcome of one step invocation within a job.
type StepResult struct {
	// Name is the step's display name.
	Name string
	// Status is the step's outcome.
	Status StepStatus
	// Tolerated is true when the step failed but continue_on_error let the
	// job proceed.
	Tolerated bool
	// Stdout and Stderr hold the captured output, with injected secret
	// values redacted.
	Stdout string
	Stderr string
	// Artifacts lists the names and versions of artifacts this step stored,
	// formatted as "name@vN".
	Artifacts []string
	// Error carries the failure message for failed steps, empty otherwise.
	Error string
	// Started and Finished bound the invocation. Zero for skipped steps.
	Started  time.Time
	Finished time.Time
}

// Duration returns the wall-clock time the step took, or zero for steps that
// never ran.
func (r *StepResult) Duration() time.Duration {
	if r.Started.IsZero() || r.Finished.IsZero() {
		return 0
	}
	return r.Finished.Sub(r.Started)
}
