package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/conveyorgo/internal/artifact"
	"github.com/specialistvlad/conveyorgo/internal/ctxlog"
	"github.com/specialistvlad/conveyorgo/internal/dag"
	"github.com/specialistvlad/conveyorgo/internal/expr"
	"github.com/specialistvlad/conveyorgo/internal/model"
	"github.com/specialistvlad/conveyorgo/internal/registry"
	"github.com/specialistvlad/conveyorgo/internal/runner"
	"github.com/specialistvlad/conveyorgo/internal/secrets"
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return ctxlog.WithLogger(context.Background(), logger)
}

func mustCompile(t *testing.T, src string) *expr.Condition {
	t.Helper()
	cond, err := expr.Compile(src)
	require.NoError(t, err)
	return cond
}

// recorder is a stub runner that records the order jobs reach it.
type recorder struct {
	mu    sync.Mutex
	order []string
	fail  map[string]error
}

func newRecorder() *recorder {
	return &recorder{fail: make(map[string]error)}
}

func (r *recorder) Run(_ context.Context, task *runner.Task) (*runner.Result, error) {
	r.mu.Lock()
	r.order = append(r.order, task.JobID)
	r.mu.Unlock()
	if err, ok := r.fail[task.JobID]; ok {
		return nil, err
	}
	return &runner.Result{Stdout: "ok"}, nil
}

func (r *recorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

func (r *recorder) indexOf(jobID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, id := range r.order {
		if id == jobID {
			return i
		}
	}
	return -1
}

func singleStepJob(id string, needs ...string) *model.Job {
	return &model.Job{
		ID:    id,
		Needs: needs,
		Steps: []*model.Step{{Uses: "record"}},
	}
}

func buildGraph(t *testing.T, ctx context.Context, jobs ...*model.Job) *dag.Graph {
	t.Helper()
	wf, err := model.NewWorkflow("test", nil, nil, jobs)
	require.NoError(t, err)
	graph, err := dag.Build(ctx, wf)
	require.NoError(t, err)
	return graph
}

func registryWith(rn runner.Runner) *registry.Registry {
	reg := registry.New()
	reg.RegisterRunner("record", rn)
	return reg
}

func TestRun_ExecutesInDependencyOrder(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	ctx := testContext(t)
	rec := newRecorder()
	graph := buildGraph(t, ctx,
		singleStepJob("a"),
		singleStepJob("b", "a"),
		singleStepJob("c", "b"),
	)
	s := New(graph, Options{Runners: registryWith(rec)})

	// --- Act ---
	err := s.Run(ctx, model.RunContext{Event: "push", Branch: "main"})

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, rec.seen())
	for _, id := range []string{"a", "b", "c"} {
		node, ok := graph.Node(id)
		require.True(t, ok)
		assert.Equal(t, model.JobSuccess, node.Status(), "job %s", id)
	}
}

func TestRun_FailureSkipsDependentsButRunContinues(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	ctx := testContext(t)
	rec := newRecorder()
	rec.fail["build"] = errors.New("compiler exploded")
	graph := buildGraph(t, ctx,
		singleStepJob("build"),
		singleStepJob("lint"),
		singleStepJob("test", "build"),
		singleStepJob("deploy", "test"),
	)
	s := New(graph, Options{Runners: registryWith(rec)})

	// --- Act ---
	err := s.Run(ctx, model.RunContext{Event: "push", Branch: "main"})

	// --- Assert ---
	require.NoError(t, err, "a job failure must not abort the run")

	build, _ := graph.Node("build")
	assert.Equal(t, model.JobFailure, build.Status())
	require.Error(t, build.Err)
	assert.Contains(t, build.Err.Error(), "compiler exploded")

	// The unrelated branch still ran.
	lint, _ := graph.Node("lint")
	assert.Equal(t, model.JobSuccess, lint.Status())

	// The dependents cascaded to skipped, transitively.
	test, _ := graph.Node("test")
	assert.Equal(t, model.JobSkipped, test.Status())
	assert.Contains(t, test.SkipReason, "'build' finished as failure")

	deploy, _ := graph.Node("deploy")
	assert.Equal(t, model.JobSkipped, deploy.Status())
	assert.Contains(t, deploy.SkipReason, "'test' finished as skipped")

	// Skipped jobs never reached a runner.
	assert.NotContains(t, rec.seen(), "test")
	assert.NotContains(t, rec.seen(), "deploy")
}

func TestRun_AlwaysOverridesFailedDependency(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	ctx := testContext(t)
	rec := newRecorder()
	rec.fail["build"] = errors.New("boom")
	cleanup := singleStepJob("cleanup", "build")
	cleanup.If = mustCompile(t, `always()`)
	graph := buildGraph(t, ctx, singleStepJob("build"), cleanup)
	s := New(graph, Options{Runners: registryWith(rec)})

	// --- Act ---
	err := s.Run(ctx, model.RunContext{Event: "push", Branch: "main"})

	// --- Assert ---
	require.NoError(t, err)
	node, _ := graph.Node("cleanup")
	assert.Equal(t, model.JobSuccess, node.Status())
	assert.Contains(t, rec.seen(), "cleanup")
}

func TestRun_StatusFunctionsSelectPathAfterFailure(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	ctx := testContext(t)
	rec := newRecorder()
	rec.fail["build"] = errors.New("boom")
	notify := singleStepJob("notify", "build")
	notify.If = mustCompile(t, `failure()`)
	publish := singleStepJob("publish", "build")
	publish.If = mustCompile(t, `success()`)
	graph := buildGraph(t, ctx, singleStepJob("build"), notify, publish)
	s := New(graph, Options{Runners: registryWith(rec)})

	// --- Act ---
	err := s.Run(ctx, model.RunContext{Event: "push", Branch: "main"})

	// --- Assert ---
	require.NoError(t, err)

	notifyNode, _ := graph.Node("notify")
	assert.Equal(t, model.JobSuccess, notifyNode.Status(), "failure() branch must run")

	publishNode, _ := graph.Node("publish")
	assert.Equal(t, model.JobSkipped, publishNode.Status(), "success() branch must be skipped")
	assert.Contains(t, publishNode.SkipReason, "success()")
}

func TestRun_PlainConditionCannotResurrectFailedPath(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	ctx := testContext(t)
	rec := newRecorder()
	rec.fail["build"] = errors.New("boom")
	deploy := singleStepJob("deploy", "build")
	deploy.If = mustCompile(t, `branch == "master"`)
	graph := buildGraph(t, ctx, singleStepJob("build"), deploy)
	s := New(graph, Options{Runners: registryWith(rec)})

	// --- Act ---
	err := s.Run(ctx, model.RunContext{Event: "push", Branch: "master"})

	// --- Assert ---
	require.NoError(t, err)
	node, _ := graph.Node("deploy")
	assert.Equal(t, model.JobSkipped, node.Status(),
		"a condition without a status function keeps the implicit all-needs-succeeded gate")
	assert.NotContains(t, rec.seen(), "deploy")
}

func TestRun_BranchGateSkipsWithoutAffectingOthers(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	ctx := testContext(t)
	rec := newRecorder()
	push := singleStepJob("push-image", "build")
	push.If = mustCompile(t, `branch == "master"`)
	graph := buildGraph(t, ctx, singleStepJob("build"), push, singleStepJob("scan", "build"))
	s := New(graph, Options{Runners: registryWith(rec)})

	// --- Act ---
	err := s.Run(ctx, model.RunContext{Event: "push", Branch: "feature/x"})

	// --- Assert ---
	require.NoError(t, err)

	pushNode, _ := graph.Node("push-image")
	assert.Equal(t, model.JobSkipped, pushNode.Status())
	assert.Contains(t, pushNode.SkipReason, `condition 'branch == "master"' is false`)

	scanNode, _ := graph.Node("scan")
	assert.Equal(t, model.JobSuccess, scanNode.Status())
}

func TestRun_ConditionEvalErrorFailsJobAndCascades(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	ctx := testContext(t)
	rec := newRecorder()
	bad := singleStepJob("bad")
	// Valid syntax, but `needs` is empty for a root job, so evaluation fails.
	bad.If = mustCompile(t, `needs.ghost.result == "success"`)
	graph := buildGraph(t, ctx, bad, singleStepJob("after", "bad"))
	s := New(graph, Options{Runners: registryWith(rec)})

	// --- Act ---
	err := s.Run(ctx, model.RunContext{Event: "push", Branch: "main"})

	// --- Assert ---
	require.NoError(t, err)

	badNode, _ := graph.Node("bad")
	assert.Equal(t, model.JobFailure, badNode.Status())
	require.Error(t, badNode.Err)

	afterNode, _ := graph.Node("after")
	assert.Equal(t, model.JobSkipped, afterNode.Status())
	assert.Empty(t, rec.seen(), "neither job may reach a runner")
}

func TestRun_NeedsResultsVisibleToConditions(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	ctx := testContext(t)
	rec := newRecorder()
	rec.fail["build-test"] = errors.New("boom")
	report := singleStepJob("report", "build-test")
	// Index syntax because the id contains a dash.
	report.If = mustCompile(t, `always() && needs["build-test"].result == "failure"`)
	graph := buildGraph(t, ctx, singleStepJob("build-test"), report)
	s := New(graph, Options{Runners: registryWith(rec)})

	// --- Act ---
	err := s.Run(ctx, model.RunContext{Event: "push", Branch: "main"})

	// --- Assert ---
	require.NoError(t, err)
	node, _ := graph.Node("report")
	assert.Equal(t, model.JobSuccess, node.Status())
}

func TestRun_ContinueOnErrorToleratesStepFailure(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	ctx := testContext(t)
	rec := newRecorder()
	flaky := runner.Func(func(context.Context, *runner.Task) (*runner.Result, error) {
		return &runner.Result{Stderr: "scanner found 3 issues"}, errors.New("exit status 1")
	})
	reg := registryWith(rec)
	reg.RegisterRunner("flaky", flaky)

	job := &model.Job{
		ID: "scan",
		Steps: []*model.Step{
			{Name: "advisory scan", Uses: "flaky", ContinueOnError: true},
			{Name: "upload results", Uses: "record"},
		},
	}
	graph := buildGraph(t, ctx, job)
	s := New(graph, Options{Runners: reg})

	// --- Act ---
	err := s.Run(ctx, model.RunContext{Event: "push", Branch: "main"})

	// --- Assert ---
	require.NoError(t, err)

	node, _ := graph.Node("scan")
	assert.Equal(t, model.JobSuccess, node.Status(), "a tolerated failure leaves the job successful")
	assert.True(t, node.Tolerated())

	require.Len(t, node.Steps, 2)
	assert.Equal(t, model.StepFailure, node.Steps[0].Status)
	assert.True(t, node.Steps[0].Tolerated)
	assert.Equal(t, "exit status 1", node.Steps[0].Error)
	assert.Equal(t, model.StepSuccess, node.Steps[1].Status)
	assert.Equal(t, []string{"scan"}, rec.seen(), "the second step still ran")
}

func TestRun_StepFailureSkipsRemainingSteps(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	ctx := testContext(t)
	rec := newRecorder()
	broken := runner.Func(func(context.Context, *runner.Task) (*runner.Result, error) {
		return nil, errors.New("exit status 2")
	})
	reg := registryWith(rec)
	reg.RegisterRunner("broken", broken)

	job := &model.Job{
		ID: "build",
		Steps: []*model.Step{
			{Name: "compile", Uses: "broken"},
			{Name: "package", Uses: "record"},
		},
	}
	graph := buildGraph(t, ctx, job)
	s := New(graph, Options{Runners: reg})

	// --- Act ---
	err := s.Run(ctx, model.RunContext{Event: "push", Branch: "main"})

	// --- Assert ---
	require.NoError(t, err)

	node, _ := graph.Node("build")
	assert.Equal(t, model.JobFailure, node.Status())
	require.Error(t, node.Err)
	assert.Contains(t, node.Err.Error(), "step 'compile'")

	require.Len(t, node.Steps, 2)
	assert.Equal(t, model.StepFailure, node.Steps[0].Status)
	assert.Equal(t, model.StepSkipped, node.Steps[1].Status)
	assert.Empty(t, rec.seen())
}

func TestRun_StepConditionFalseSkipsStepOnly(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	ctx := testContext(t)
	rec := newRecorder()
	job := &model.Job{
		ID: "ci",
		Steps: []*model.Step{
			{Name: "deploy preview", Uses: "record", If: mustCompile(t, `event == "pull_request"`)},
			{Name: "unit tests", Uses: "record"},
		},
	}
	graph := buildGraph(t, ctx, job)
	s := New(graph, Options{Runners: registryWith(rec)})

	// --- Act ---
	err := s.Run(ctx, model.RunContext{Event: "push", Branch: "main"})

	// --- Assert ---
	require.NoError(t, err)

	node, _ := graph.Node("ci")
	assert.Equal(t, model.JobSuccess, node.Status())
	require.Len(t, node.Steps, 2)
	assert.Equal(t, model.StepSkipped, node.Steps[0].Status)
	assert.Equal(t, model.StepSuccess, node.Steps[1].Status)
}

func TestRun_UnknownActionFailsJob(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	ctx := testContext(t)
	job := &model.Job{ID: "a", Steps: []*model.Step{{Uses: "ghost"}}}
	graph := buildGraph(t, ctx, job)
	s := New(graph, Options{Runners: registry.New()})

	// --- Act ---
	err := s.Run(ctx, model.RunContext{Event: "push", Branch: "main"})

	// --- Assert ---
	require.NoError(t, err)
	node, _ := graph.Node("a")
	assert.Equal(t, model.JobFailure, node.Status())
	assert.Contains(t, node.Err.Error(), "no runner registered for action 'ghost'")
}

func TestRun_CancellationSettlesEveryJob(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	ctx, cancel := context.WithCancel(testContext(t))
	defer cancel()

	started := make(chan struct{})
	blocking := runner.Func(func(runCtx context.Context, _ *runner.Task) (*runner.Result, error) {
		close(started)
		<-runCtx.Done()
		return nil, runCtx.Err()
	})
	reg := registry.New()
	reg.RegisterRunner("block", blocking)

	job := &model.Job{ID: "long", Steps: []*model.Step{{Uses: "block"}}}
	graph := buildGraph(t, ctx, job, singleStepJob("after", "long"))
	// The follow-up job's runner is never reached, but it must be registered.
	reg.RegisterRunner("record", newRecorder())
	s := New(graph, Options{Runners: reg})

	go func() {
		<-started
		cancel()
	}()

	// --- Act ---
	err := s.Run(ctx, model.RunContext{Event: "push", Branch: "main"})

	// --- Assert ---
	require.ErrorIs(t, err, context.Canceled)

	long, _ := graph.Node("long")
	assert.Equal(t, model.JobCancelled, long.Status())

	after, _ := graph.Node("after")
	assert.Equal(t, model.JobCancelled, after.Status(), "queued jobs settle as cancelled, not pending")
}

func TestRun_StepTimeoutFailsJobWithoutCancellingRun(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	ctx := testContext(t)
	slow := runner.Func(func(runCtx context.Context, _ *runner.Task) (*runner.Result, error) {
		<-runCtx.Done()
		return nil, runCtx.Err()
	})
	reg := registry.New()
	reg.RegisterRunner("slow", slow)
	rec := newRecorder()
	reg.RegisterRunner("record", rec)

	job := &model.Job{
		ID:    "hang",
		Steps: []*model.Step{{Name: "hangs", Uses: "slow", Timeout: 20 * time.Millisecond}},
	}
	graph := buildGraph(t, ctx, job, singleStepJob("other"))
	s := New(graph, Options{Runners: reg})

	// --- Act ---
	err := s.Run(ctx, model.RunContext{Event: "push", Branch: "main"})

	// --- Assert ---
	require.NoError(t, err, "a step timeout is a job failure, not a run cancellation")

	hang, _ := graph.Node("hang")
	assert.Equal(t, model.JobFailure, hang.Status())
	assert.ErrorIs(t, hang.Err, context.DeadlineExceeded)

	other, _ := graph.Node("other")
	assert.Equal(t, model.JobSuccess, other.Status())
}

func TestRun_WorkerLimitBoundsConcurrency(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	ctx := testContext(t)
	var active, peak atomic.Int32
	gauge := runner.Func(func(context.Context, *runner.Task) (*runner.Result, error) {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		active.Add(-1)
		return &runner.Result{}, nil
	})
	reg := registry.New()
	reg.RegisterRunner("gauge", gauge)

	jobs := make([]*model.Job, 0, 6)
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		jobs = append(jobs, &model.Job{ID: id, Steps: []*model.Step{{Uses: "gauge"}}})
	}
	graph := buildGraph(t, ctx, jobs...)
	s := New(graph, Options{Workers: 2, Runners: reg})

	// --- Act ---
	err := s.Run(ctx, model.RunContext{Event: "push", Branch: "main"})

	// --- Assert ---
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(2), "at most two jobs may overlap")
}

func TestRun_SecretsResolvedAndEnvLayered(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	ctx := testContext(t)
	var captured *runner.Task
	capture := runner.Func(func(_ context.Context, task *runner.Task) (*runner.Result, error) {
		captured = task
		return &runner.Result{}, nil
	})
	reg := registry.New()
	reg.RegisterRunner("capture", capture)

	job := &model.Job{
		ID:      "deploy",
		Env:     map[string]string{"REGION": "eu-west-1", "STAGE": "job"},
		Secrets: []string{"REGISTRY_TOKEN", "MISSING_ONE"},
		Steps: []*model.Step{{
			Uses: "capture",
			Env:  map[string]string{"STAGE": "step"},
		}},
	}
	graph := buildGraph(t, ctx, job)
	s := New(graph, Options{
		Runners:     reg,
		Secrets:     secrets.Static{"REGISTRY_TOKEN": "hunter2"},
		WorkflowEnv: map[string]string{"STAGE": "workflow", "GLOBAL": "yes"},
	})

	// --- Act ---
	err := s.Run(ctx, model.RunContext{Event: "push", Branch: "master"})

	// --- Assert ---
	require.NoError(t, err)
	require.NotNil(t, captured)

	assert.Equal(t, "hunter2", captured.Secrets["REGISTRY_TOKEN"])
	assert.Equal(t, "", captured.Secrets["MISSING_ONE"], "missing secrets inject an empty value")

	assert.Equal(t, "step", captured.Env["STAGE"], "step env wins over job and workflow")
	assert.Equal(t, "eu-west-1", captured.Env["REGION"])
	assert.Equal(t, "yes", captured.Env["GLOBAL"])
	assert.Equal(t, "push", captured.Env["CONVEYOR_EVENT"])
	assert.Equal(t, "master", captured.Env["CONVEYOR_BRANCH"])
	assert.Equal(t, "deploy", captured.Env["CONVEYOR_JOB"])

	assert.Equal(t, "say ***", captured.Redact("say hunter2"), "captured output must be redactable")
}

func TestRun_ArtifactsFlowDownstreamThroughSharedStore(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	ctx := testContext(t)
	store := artifact.NewStore()
	producer := runner.Func(func(_ context.Context, task *runner.Task) (*runner.Result, error) {
		ref := task.Artifacts.Put("image-digest", []byte("sha256:abc"), task.JobID)
		return &runner.Result{Artifacts: []artifact.Ref{ref}}, nil
	})
	var downstream []byte
	consumer := runner.Func(func(_ context.Context, task *runner.Task) (*runner.Result, error) {
		ref, err := task.Artifacts.Latest("image-digest")
		if err != nil {
			return nil, err
		}
		downstream, err = task.Artifacts.Get(ref)
		return &runner.Result{}, err
	})
	reg := registry.New()
	reg.RegisterRunner("produce", producer)
	reg.RegisterRunner("consume", consumer)

	graph := buildGraph(t, ctx,
		&model.Job{ID: "build", Steps: []*model.Step{{Uses: "produce"}}},
		&model.Job{ID: "push", Needs: []string{"build"}, Steps: []*model.Step{{Uses: "consume"}}},
	)
	s := New(graph, Options{Runners: reg, Artifacts: store})

	// --- Act ---
	err := s.Run(ctx, model.RunContext{Event: "push", Branch: "master"})

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, []byte("sha256:abc"), downstream)

	build, _ := graph.Node("build")
	require.Len(t, build.Steps, 1)
	assert.Equal(t, []string{"image-digest@v1"}, build.Steps[0].Artifacts,
		"produced refs are recorded on the step result")

	prod, err := store.Producer(artifact.Ref{Name: "image-digest", Version: 1})
	require.NoError(t, err)
	assert.Equal(t, "build", prod)
}
