package testutil

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/conveyorgo/internal/app"
	"github.com/specialistvlad/conveyorgo/internal/registry"
	"github.com/specialistvlad/conveyorgo/internal/report"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// HarnessOptions adjusts a harness run. The zero value runs a YAML workflow
// for a push to master, with artifacts and the history journal enabled under
// the test's temporary directory.
type HarnessOptions struct {
	// Filename names the workflow file; its extension selects the format.
	// Defaults to "workflow.yaml".
	Filename string

	// Files holds extra files written next to the workflow, keyed by
	// relative path. Useful for secrets files.
	Files map[string]string

	// Config mutates the prepared configuration before the app starts. The
	// dir argument is the temporary root every default path lives under.
	Config func(cfg *app.Config, dir string)

	// Modules replaces the default action modules when non-empty.
	Modules []registry.Module
}

// HarnessResult holds the outcomes of an integration test run.
type HarnessResult struct {
	Report    *report.Run
	LogOutput string
	Err       error
	Dir       string
	App       *app.App
}

// RunWorkflowTest provides a standardized harness for running integration
// tests using a default background context.
func RunWorkflowTest(t *testing.T, source string, opts *HarnessOptions) *HarnessResult {
	t.Helper()
	return RunWorkflowTestWithContext(context.Background(), t, source, opts)
}

// RunWorkflowTestWithContext provides a standardized harness for running
// integration tests with a specific context provided by the caller.
func RunWorkflowTestWithContext(ctx context.Context, t *testing.T, source string, opts *HarnessOptions) *HarnessResult {
	t.Helper()

	if opts == nil {
		opts = &HarnessOptions{}
	}

	// 1. Write the workflow and any companion files to a temporary root.
	dir := t.TempDir()

	filename := opts.Filename
	if filename == "" {
		filename = "workflow.yaml"
	}
	workflowPath := filepath.Join(dir, filename)
	require.NoError(t, os.WriteFile(workflowPath, []byte(source), 0o644))

	for name, content := range opts.Files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	// 2. Point every side effect at the temporary root so runs never
	//    interfere with each other.
	cfg, err := app.NewConfig(app.Config{
		WorkflowPath: workflowPath,
		Event:        "push",
		Branch:       "master",
		Workers:      4,
		ArtifactsDir: filepath.Join(dir, "artifacts"),
		HistoryDB:    filepath.Join(dir, "history.db"),
		LogFormat:    "text",
		LogLevel:     "debug",
	})
	require.NoError(t, err)
	if opts.Config != nil {
		opts.Config(cfg, dir)
	}

	logBuffer := &SafeBuffer{}

	// 3. Start the app, converting a startup panic into a harness error so
	//    load-failure tests can assert on it.
	var testApp *app.App
	var panicErr any
	func() {
		defer func() {
			if r := recover(); r != nil {
				if os.Getenv("CONVEYOR_TEST_LOGS") == "true" {
					t.Logf("--- HARNESS RECOVERED PANIC ---\n%q", fmt.Sprintf("%v", r))
				}
				panicErr = r
			}
		}()
		testApp = app.NewApp(logBuffer, cfg, opts.Modules...)
	}()

	if panicErr != nil {
		return &HarnessResult{
			LogOutput: logBuffer.String(),
			Err:       fmt.Errorf("application startup panicked | %v", panicErr),
			Dir:       dir,
		}
	}

	rep, runErr := testApp.Run(ctx)

	if os.Getenv("CONVEYOR_TEST_LOGS") == "true" {
		t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
	}

	return &HarnessResult{
		Report:    rep,
		LogOutput: logBuffer.String(),
		Err:       runErr,
		Dir:       dir,
		App:       testApp,
	}
}
