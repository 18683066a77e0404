// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines the Job structure, one vertex of the dependency graph.
//
// Why store a compiled condition instead of the raw string?
//
// A condition that cannot be parsed is a defect of the definition, not of the
// run, and the contract is that definition defects surface before any job
// starts. Compiling at load time is the mechanism that enforces this: the
// model captures the user's intent as an already-validated expression, and
// the scheduler only ever evaluates it against a concrete run context.
package model

import (
	"time"

	"github.com/specialistvlad/conveyorgo/internal/expr"
)

// Job is the format-agnostic representation of one job in a workflow.
type Job struct {
	// ID is the unique identifier used in `needs` references and reporting.
	ID string
	// Name is the optional human-readable name. Falls back to ID when empty.
	Name string
	// Needs lists the ids of jobs that must reach a terminal state before
	// this job is gated.
	Needs []string
	// If is the compiled gate condition. Nil means the default gate: every
	// needed job succeeded.
	If *expr.Condition
	// Env is the job-level environment layer.
	Env map[string]string
	// Secrets lists the secret names injected into every step of this job.
	Secrets []string
	// Steps holds the steps in declaration order. A job always has at least
	// one; loaders reject empty jobs.
	Steps []*Step
}

// DisplayName returns the human-readable name, or the id when no name was
// given.
func (j *Job) DisplayName() string {
	if j.Name != "" {
		return j.Name
	}
	return j.ID
}

// Step is the atomic unit of work within a Job. It references an opaque
// action; the engine only observes the action's outcome.
type Step struct {
	// Name is the optional display name for reporting and logs.
	Name string
	// Run holds inline shell text. Exactly one of Run and Uses is set.
	Run string
	// Uses names a registered action. Exactly one of Run and Uses is set.
	Uses string
	// With carries the action's arguments. Only Uses steps read it.
	With map[string]string
	// Env is the step-level environment layer, the highest-priority one.
	Env map[string]string
	// If is the compiled step condition. Nil means the step always runs when
	// its job does.
	If *expr.Condition
	// ContinueOnError marks a failure of this step as tolerated: the job
	// proceeds and can still finish successfully.
	ContinueOnError bool
	// Timeout bounds one invocation of the step. Zero means the engine-wide
	// default applies.
	Timeout time.Duration
	// Secrets lists secret names injected into this step only.
	Secrets []string
}

// DisplayName returns the step name, or a stable fallback derived from the
// action reference.
func (s *Step) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	if s.Uses != "" {
		return s.Uses
	}
	return "run"
}
