package app

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/specialistvlad/conveyorgo/internal/artifact"
	"github.com/specialistvlad/conveyorgo/internal/ctxlog"
	"github.com/specialistvlad/conveyorgo/internal/dag"
	"github.com/specialistvlad/conveyorgo/internal/history"
	"github.com/specialistvlad/conveyorgo/internal/model"
	"github.com/specialistvlad/conveyorgo/internal/report"
	"github.com/specialistvlad/conveyorgo/internal/scheduler"
)

// Run executes the loaded workflow once and returns its report. The returned
// error is reserved for defects that prevented execution (a bad graph); a
// run that executed and failed, or was cancelled, reports that through the
// report's outcome and exit code instead.
func (a *App) Run(ctx context.Context) (*report.Run, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	rc := model.RunContext{Event: a.config.Event, Branch: a.config.Branch}

	if !a.workflow.Matches(rc.Event, rc.Branch) {
		// Not an error: the workflow simply does not respond to this
		// trigger context.
		a.logger.Info("⏭️ Workflow not triggered for this context.",
			"workflow", a.workflow.Name, "event", rc.Event, "branch", rc.Branch)
		return &report.Run{
			RunID:    uuid.NewString(),
			Workflow: a.workflow.Name,
			Event:    rc.Event,
			Branch:   rc.Branch,
			Outcome:  model.OutcomeSucceeded.String(),
			Complete: true,
		}, nil
	}

	a.logger.Debug("Building dependency graph from workflow...")
	graph, err := dag.Build(ctx, a.workflow)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("Dependency graph built.", "node_count", graph.Len())

	runID := uuid.NewString()
	meta := report.Meta{
		RunID:    runID,
		Workflow: a.workflow.Name,
		Event:    rc.Event,
		Branch:   rc.Branch,
		Started:  time.Now(),
	}

	if a.config.StatusPort > 0 {
		// The server snapshots live node state; it never sees the final
		// meta, which is fine for a liveness view.
		snapshotMeta := meta
		srv := a.startStatusServer(a.config.StatusPort, func() *report.Run {
			return report.Collect(graph, a.store, snapshotMeta)
		})
		defer srv.stop()
	}

	a.logger.Info("🚀 Starting run.",
		"run_id", runID, "workflow", a.workflow.Name, "jobs", graph.Len(),
		"event", rc.Event, "branch", rc.Branch)

	sched := scheduler.New(graph, scheduler.Options{
		Workers:     a.config.Workers,
		StepTimeout: a.config.StepTimeout,
		Runners:     a.registry,
		Artifacts:   a.store,
		Secrets:     a.secrets,
		WorkflowEnv: a.workflow.Env,
	})
	runErr := sched.Run(ctx, rc)

	meta.Finished = time.Now()
	meta.Cancelled = runErr != nil
	rep := report.Collect(graph, a.store, meta)
	a.logger.Info("🏁 Run finished.", rep.LogSummary()...)

	if err := rep.WriteText(a.outW); err != nil {
		a.logger.Warn("Failed to render run summary.", "error", err)
	}

	// Post-run bookkeeping proceeds even when the run was cancelled.
	post := context.WithoutCancel(ctx)
	a.flushArtifacts(post)
	a.recordHistory(post, rep)

	return rep, nil
}

func (a *App) flushArtifacts(ctx context.Context) {
	if a.config.ArtifactsDir == "" || len(a.store.Names()) == 0 {
		return
	}
	sink := &artifact.FSSink{Dir: a.config.ArtifactsDir}
	if err := sink.Flush(ctx, a.store); err != nil {
		a.logger.Warn("Failed to write artifacts to disk.", "dir", a.config.ArtifactsDir, "error", err)
		return
	}
	a.logger.Info("Artifacts written.", "dir", a.config.ArtifactsDir, "count", len(a.store.Refs()))
}

func (a *App) recordHistory(ctx context.Context, rep *report.Run) {
	if a.config.HistoryDB == "" {
		return
	}
	journal, err := history.Open(a.config.HistoryDB)
	if err != nil {
		a.logger.Warn("Failed to open history journal.", "path", a.config.HistoryDB, "error", err)
		return
	}
	defer journal.Close()

	if err := journal.Record(ctx, rep); err != nil {
		a.logger.Warn("Failed to record run in history journal.", "run_id", rep.RunID, "error", err)
		return
	}
	a.logger.Debug("Run recorded in history journal.", "run_id", rep.RunID, "path", a.config.HistoryDB)
}
