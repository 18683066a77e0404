// Package dag builds and validates the job dependency graph of a workflow.
// It turns the declarative `needs` edges into linked nodes, rejects dangling
// references, self-references, and cycles, and gives the scheduler the
// per-node dependency counters it drives execution with.
package dag
