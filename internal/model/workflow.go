// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines the Workflow structure, the root of the pipeline model.
//
// Why an ordered slice of jobs instead of a map?
//
// Job lookup by id is convenient, but a map erases the order the user wrote
// the jobs in. Declaration order is load-bearing here: the scheduler uses it
// to break ties deterministically and the reporter uses it to render a stable
// table. The slice is the source of truth and the index is rebuilt from it,
// so the two can never disagree.
package model

import "github.com/bmatcuk/doublestar/v4"

// Workflow is the format-agnostic representation of one pipeline definition.
// It is immutable after loading.
type Workflow struct {
	// Name is the human-readable workflow name.
	Name string
	// On restricts which trigger contexts start this workflow. A nil trigger
	// matches everything.
	On *Trigger
	// Env is the workflow-level environment, the lowest layer of the
	// workflow < job < step merge.
	Env map[string]string
	// Jobs holds the jobs in declaration order.
	Jobs []*Job

	index map[string]*Job
}

// NewWorkflow assembles a Workflow and builds its job index. Duplicate job
// ids are a loader bug at this point and reported as a validation error.
func NewWorkflow(name string, on *Trigger, env map[string]string, jobs []*Job) (*Workflow, error) {
	w := &Workflow{
		Name:  name,
		On:    on,
		Env:   env,
		Jobs:  jobs,
		index: make(map[string]*Job, len(jobs)),
	}
	for _, j := range jobs {
		if _, exists := w.index[j.ID]; exists {
			return nil, &ValidationError{Workflow: name, Reason: "duplicate job id '" + j.ID + "'"}
		}
		w.index[j.ID] = j
	}
	return w, nil
}

// Job returns the job with the given id, if it exists.
func (w *Workflow) Job(id string) (*Job, bool) {
	j, ok := w.index[id]
	return j, ok
}

// Trigger is the set of contexts a workflow responds to.
type Trigger struct {
	// Events lists the event names that start the workflow. Empty means any
	// event.
	Events []string
	// Branches lists branch filter patterns in doublestar glob syntax
	// (for example "master" or "releases/**"). Empty means any branch.
	Branches []string
}

// Matches reports whether the workflow should run for the given trigger
// context.
func (w *Workflow) Matches(event, branch string) bool {
	if w.On == nil {
		return true
	}
	return w.On.matchesEvent(event) && w.On.matchesBranch(branch)
}

func (t *Trigger) matchesEvent(event string) bool {
	if len(t.Events) == 0 {
		return true
	}
	for _, e := range t.Events {
		if e == event {
			return true
		}
	}
	return false
}

func (t *Trigger) matchesBranch(branch string) bool {
	if len(t.Branches) == 0 {
		return true
	}
	for _, pattern := range t.Branches {
		// Invalid patterns were rejected at load time, so the error here can
		// only be ErrBadPattern for a pattern we already vetted.
		if ok, err := doublestar.Match(pattern, branch); err == nil && ok {
			return true
		}
	}
	return false
}

// RunContext is the read-only view of the triggering event exposed to jobs,
// steps, and condition expressions during a run.
type RunContext struct {
	// Event is the name of the event that started the run (for example
	// "push").
	Event string
	// Branch is the branch the run is operating on.
	Branch string
}
