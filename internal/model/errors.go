// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines ValidationError, the type that separates definition
// defects from run failures.
//
// Why a dedicated type?
//
// The two failure classes map to different process exit codes and different
// user actions. A ValidationError means the workflow file is wrong and
// nothing was executed; a run failure means the definition was fine and some
// step failed. Callers select on the type with errors.As, so the distinction
// survives any amount of wrapping on the way up.
package model

// ValidationError reports a defect in a workflow definition that was
// detected before any job ran: a parse failure, a dependency cycle, a
// dangling needs reference, and the like.
type ValidationError struct {
	// Workflow is the workflow name or file path the defect was found in.
	// May be empty when the defect prevented reading a name at all.
	Workflow string
	// Reason describes the defect.
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Workflow == "" {
		return "invalid workflow: " + e.Reason
	}
	return "invalid workflow '" + e.Workflow + "': " + e.Reason
}
