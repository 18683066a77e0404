package scheduler

import (
	"context"
	"time"

	"github.com/specialistvlad/conveyorgo/internal/ctxlog"
	"github.com/specialistvlad/conveyorgo/internal/dag"
	"github.com/specialistvlad/conveyorgo/internal/model"
)

// Run executes the entire graph and blocks until every job is terminal. A
// job failure does not stop the run; unaffected branches keep executing and
// affected dependents are skipped at their own gate. Context cancellation is
// the only way to stop the run early, and even then every job is settled
// into a terminal state before Run returns. The returned error is non-nil
// only when the run was cancelled.
func (s *Scheduler) Run(ctx context.Context, rc model.RunContext) error {
	logger := ctxlog.FromContext(ctx)

	ready := make(chan *dag.Node, s.graph.Len())

	logger.Debug("Seeding ready queue with root jobs.")
	rootCount := 0
	for _, node := range s.graph.Jobs() {
		if node.DepCount() == 0 {
			ready <- node
			rootCount++
		}
	}
	logger.Debug("Root jobs queued.", "count", rootCount)

	s.wg.Add(s.graph.Len())

	logger.Debug("Starting worker pool.", "workers", s.workers)
	for i := 0; i < s.workers; i++ {
		go s.worker(ctx, ready, rc, i)
	}

	logger.Debug("Waiting for all jobs to reach a terminal state...")
	s.wg.Wait()
	close(ready)
	logger.Debug("All jobs terminal.")

	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

// worker is the processing loop for a single concurrent worker. Each job it
// dequeues is settled exactly once: cancelled, gated off, or executed.
func (s *Scheduler) worker(ctx context.Context, ready chan *dag.Node, rc model.RunContext, workerID int) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Worker started.", "workerID", workerID)

	for node := range ready {
		jobCtx, jobLogger := ctxlog.With(ctx, "workerID", workerID, "job", node.Job.ID)

		if ctx.Err() != nil {
			if node.Finish(model.JobCancelled, context.Cause(ctx)) {
				jobLogger.Warn("Run cancelled, job will not start.")
			}
			s.settle(node, ready)
			continue
		}

		v := s.gate(node, rc)
		if v.err != nil {
			jobLogger.Error("Job configuration could not be evaluated.", "error", v.err)
			node.Finish(model.JobFailure, v.err)
			s.settle(node, ready)
			continue
		}
		if !v.run {
			node.SkipReason = v.reason
			node.Finish(model.JobSkipped, nil)
			jobLogger.Info("⏭️ Skipping job.", "reason", v.reason)
			s.settle(node, ready)
			continue
		}

		node.SetRunning()
		jobLogger.Info("▶️ Starting job.")
		node.Started = time.Now()
		err := s.runJob(jobCtx, node, rc, v.needs)
		node.Finished = time.Now()

		switch {
		case err == nil:
			node.Finish(model.JobSuccess, nil)
			jobLogger.Info("✅ Job succeeded.", "duration", node.Finished.Sub(node.Started).Round(time.Millisecond))
		case ctx.Err() != nil:
			node.Finish(model.JobCancelled, err)
			jobLogger.Warn("Job cancelled mid-flight.", "error", err)
		default:
			node.Finish(model.JobFailure, err)
			jobLogger.Error("Job failed.", "error", err)
		}
		s.settle(node, ready)
	}
	logger.Debug("Worker finished.", "workerID", workerID)
}

// settle propagates one terminal transition: dependents' counters drop, any
// that reach zero join the ready queue, and the run's WaitGroup is released
// for this node. Every node passes through here exactly once.
func (s *Scheduler) settle(node *dag.Node, ready chan<- *dag.Node) {
	for _, dependent := range node.Dependents() {
		if dependent.DecrementDeps() == 0 {
			ready <- dependent
		}
	}
	s.wg.Done()
}
