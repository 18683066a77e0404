// Package loader reads workflow definition files and translates them into
// the format-agnostic model. Two formats are supported: YAML following the
// familiar GitHub Actions layout, and native HCL. Both funnel into the same
// model types, so nothing downstream of the loader knows which format a
// workflow was written in.
//
// The loader owns load-time validation: syntax errors, duplicate job ids,
// jobs without steps, unparseable conditions, and invalid branch patterns
// are all reported as model.ValidationError before any job runs.
package loader

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/specialistvlad/conveyorgo/internal/ctxlog"
	"github.com/specialistvlad/conveyorgo/internal/expr"
	"github.com/specialistvlad/conveyorgo/internal/model"
)

// maxWorkflowSizeBytes bounds a definition file at 1MB so a runaway or
// malicious file cannot exhaust the parser.
const maxWorkflowSizeBytes = 1 * 1024 * 1024

// Load reads the workflow definition at path and returns the parsed model.
// The format is chosen by file extension: .yaml/.yml or .hcl.
func Load(ctx context.Context, path string) (*model.Workflow, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Loading workflow definition.", "path", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading workflow file: %w", err)
	}
	if err := guardContent(path, data); err != nil {
		return nil, err
	}

	var wf *model.Workflow
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		wf, err = parseYAML(path, data)
	case ".hcl":
		wf, err = parseHCL(path, data)
	default:
		return nil, &model.ValidationError{
			Workflow: path,
			Reason:   fmt.Sprintf("unsupported workflow format '%s' (expected .yaml, .yml or .hcl)", filepath.Ext(path)),
		}
	}
	if err != nil {
		return nil, err
	}

	logger.Debug("Workflow loaded.", "workflow", wf.Name, "jobs", len(wf.Jobs))
	return wf, nil
}

// guardContent rejects files that cannot be a textual workflow definition.
func guardContent(path string, data []byte) error {
	if len(data) > maxWorkflowSizeBytes {
		return &model.ValidationError{
			Workflow: path,
			Reason:   fmt.Sprintf("workflow file exceeds maximum size of %d bytes", maxWorkflowSizeBytes),
		}
	}
	if bytes.Contains(data, []byte{0x00}) {
		return &model.ValidationError{Workflow: path, Reason: "workflow file contains null bytes"}
	}
	return nil
}

// compileCondition parses one `if` expression at load time. The `${{ ... }}`
// wrapper is tolerated for compatibility with definitions migrated from
// other systems.
func compileCondition(workflow, where, src string) (*expr.Condition, error) {
	s := strings.TrimSpace(src)
	if strings.HasPrefix(s, "${{") && strings.HasSuffix(s, "}}") {
		s = strings.TrimSpace(s[3 : len(s)-2])
	}
	if s == "" {
		return nil, nil
	}
	cond, err := expr.Compile(s)
	if err != nil {
		return nil, &model.ValidationError{
			Workflow: workflow,
			Reason:   fmt.Sprintf("%s: invalid condition '%s': %v", where, s, err),
		}
	}
	return cond, nil
}

// newTrigger validates branch patterns and assembles the trigger. Both
// lists empty yields a nil trigger, which matches everything.
func newTrigger(workflow string, events, branches []string) (*model.Trigger, error) {
	if len(events) == 0 && len(branches) == 0 {
		return nil, nil
	}
	for _, pattern := range branches {
		if !doublestar.ValidatePattern(pattern) {
			return nil, &model.ValidationError{
				Workflow: workflow,
				Reason:   fmt.Sprintf("invalid branch pattern '%s'", pattern),
			}
		}
	}
	return &model.Trigger{Events: events, Branches: branches}, nil
}

// finishWorkflow applies the checks shared by both formats and builds the
// final model.
func finishWorkflow(name string, on *model.Trigger, env map[string]string, jobs []*model.Job) (*model.Workflow, error) {
	if len(jobs) == 0 {
		return nil, &model.ValidationError{Workflow: name, Reason: "workflow defines no jobs"}
	}
	for _, job := range jobs {
		if len(job.Steps) == 0 {
			return nil, &model.ValidationError{
				Workflow: name,
				Reason:   fmt.Sprintf("job '%s' defines no steps", job.ID),
			}
		}
	}
	return model.NewWorkflow(name, on, env, jobs)
}
