// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines the state vocabulary of a run: the per-job and per-step
// statuses and the aggregate run outcome.
//
// Why are the string forms lowercase?
//
// The same strings serve three audiences: log output, the rendered status
// table, and condition expressions, where users compare against values like
// needs["build-test"].result == "success". One canonical lowercase spelling
// keeps those three views consistent and makes conditions predictable.
package model

// JobStatus is the lifecycle state of a job. Jobs move from Pending to
// exactly one terminal state; the transitions are
// Pending -> Skipped, Pending -> Running, and
// Running -> {Success, Failure, Cancelled}.
type JobStatus int32

const (
	// JobPending means the job is waiting for its dependencies.
	JobPending JobStatus = iota
	// JobRunning means a worker is executing the job's steps.
	JobRunning
	// JobSuccess is terminal: every effective step succeeded or was
	// tolerated.
	JobSuccess
	// JobFailure is terminal: a non-tolerated step failed, or the job's own
	// configuration could not be evaluated.
	JobFailure
	// JobSkipped is terminal: the gate declined the job. The job's steps
	// never ran.
	JobSkipped
	// JobCancelled is terminal: the run was cancelled before or during this
	// job.
	JobCancelled
)

// String returns the canonical lowercase form used in logs, reports, and
// condition expressions.
func (s JobStatus) String() string {
	switch s {
	case JobPending:
		return "pending"
	case JobRunning:
		return "running"
	case JobSuccess:
		return "success"
	case JobFailure:
		return "failure"
	case JobSkipped:
		return "skipped"
	case JobCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobSuccess, JobFailure, JobSkipped, JobCancelled:
		return true
	default:
		return false
	}
}

// StepStatus is the outcome of a single step invocation.
type StepStatus int32

const (
	// StepSuccess means the action reported success.
	StepSuccess StepStatus = iota
	// StepFailure means the action reported failure or timed out.
	StepFailure
	// StepSkipped means the step never ran, either because its condition was
	// false or because an earlier step failed the job.
	StepSkipped
)

// String returns the canonical lowercase form.
func (s StepStatus) String() string {
	switch s {
	case StepSuccess:
		return "success"
	case StepFailure:
		return "failure"
	case StepSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Outcome is the aggregate result of a run.
type Outcome int

const (
	// OutcomeSucceeded means every job ended in Success or Skipped and no
	// failure was tolerated along the way.
	OutcomeSucceeded Outcome = iota
	// OutcomePartiallySucceeded means no job failed, but at least one step
	// failure was tolerated via continue_on_error.
	OutcomePartiallySucceeded
	// OutcomeFailed means at least one job ended in Failure.
	OutcomeFailed
	// OutcomeCancelled means the run was cancelled before completion.
	OutcomeCancelled
)

// String returns the canonical lowercase form.
func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomePartiallySucceeded:
		return "partially-succeeded"
	case OutcomeFailed:
		return "failed"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}
