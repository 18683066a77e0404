// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// Package model provides the Go struct representation of a pipeline
// definition. Its core purpose is to create a strongly-typed, in-memory model
// of the user's workflow, independent of the format it was written in.
//
// # Core Concepts
//
// The model is built around a few key structures:
//
//   - Workflow: The root container for one pipeline. It aggregates the trigger
//     set, workflow-level environment, and the ordered collection of jobs.
//
//   - Job: A named unit of the dependency graph. Jobs declare what they need,
//     when they run (via a condition), and the ordered steps they execute.
//
//   - Step: The atomic unit of work inside a job. A step references an opaque
//     action; the engine never interprets what the action does, only whether
//     it succeeded, failed, or was skipped.
//
//   - RunContext: The read-only view of the triggering event that jobs and
//     conditions observe during a run.
//
// Why a separate model package?
//
// Workflows arrive in more than one format. This package acts as the
// intermediate layer every loader targets, so that validation, graph
// construction, and scheduling never see format-specific types. Once a
// Workflow is constructed it is treated as immutable; every later stage only
// reads it.
package model
