package loader

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/specialistvlad/conveyorgo/internal/model"
)

// yamlWorkflow mirrors the GitHub Actions workflow layout. Fields this
// engine does not execute (runs-on, permissions, strategy, ...) are simply
// absent here and ignored by the decoder, so existing definitions load
// without modification.
type yamlWorkflow struct {
	Name string              `yaml:"name"`
	On   any                 `yaml:"on"`
	Env  map[string]string   `yaml:"env"`
	Jobs map[string]*yamlJob `yaml:"jobs"`
}

type yamlJob struct {
	Name    string            `yaml:"name"`
	Needs   any               `yaml:"needs"`
	If      string            `yaml:"if"`
	Env     map[string]string `yaml:"env"`
	Secrets []string          `yaml:"secrets"`
	Steps   []*yamlStep       `yaml:"steps"`
}

type yamlStep struct {
	Name            string            `yaml:"name"`
	Run             string            `yaml:"run"`
	Uses            string            `yaml:"uses"`
	With            map[string]any    `yaml:"with"`
	Env             map[string]string `yaml:"env"`
	If              string            `yaml:"if"`
	ContinueOnError bool              `yaml:"continue-on-error"`
	TimeoutMinutes  float64           `yaml:"timeout-minutes"`
	Secrets         []string          `yaml:"secrets"`
}

// parseYAML translates one YAML workflow document into the model.
//
// The document is decoded twice: once into typed structs for the content,
// and once into a yaml.MapSlice to recover the order the jobs were written
// in, which a Go map cannot preserve. Declaration order matters downstream,
// to the scheduler's tie-breaking and the reporter's table.
func parseYAML(path string, data []byte) (*model.Workflow, error) {
	var doc yamlWorkflow
	// Duplicate mapping keys are rejected by the decoder's defaults.
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &model.ValidationError{Workflow: path, Reason: fmt.Sprintf("parsing YAML: %v", err)}
	}

	name := doc.Name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	on, err := yamlTrigger(name, doc.On)
	if err != nil {
		return nil, err
	}

	var ordered struct {
		Jobs yaml.MapSlice `yaml:"jobs"`
	}
	if err := yaml.Unmarshal(data, &ordered); err != nil {
		return nil, &model.ValidationError{Workflow: name, Reason: fmt.Sprintf("parsing YAML: %v", err)}
	}

	jobs := make([]*model.Job, 0, len(ordered.Jobs))
	for _, item := range ordered.Jobs {
		id := fmt.Sprint(item.Key)
		yj := doc.Jobs[id]
		if yj == nil {
			return nil, &model.ValidationError{Workflow: name, Reason: fmt.Sprintf("job '%s' has no body", id)}
		}
		job, err := yamlToJob(name, id, yj)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	return finishWorkflow(name, on, doc.Env, jobs)
}

func yamlToJob(workflow, id string, yj *yamlJob) (*model.Job, error) {
	needs, err := yamlNeeds(workflow, id, yj.Needs)
	if err != nil {
		return nil, err
	}
	cond, err := compileCondition(workflow, fmt.Sprintf("job '%s'", id), yj.If)
	if err != nil {
		return nil, err
	}

	steps := make([]*model.Step, 0, len(yj.Steps))
	for i, ys := range yj.Steps {
		step, err := yamlToStep(workflow, id, i, ys)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}

	return &model.Job{
		ID:      id,
		Name:    yj.Name,
		Needs:   needs,
		If:      cond,
		Env:     yj.Env,
		Secrets: yj.Secrets,
		Steps:   steps,
	}, nil
}

func yamlToStep(workflow, jobID string, index int, ys *yamlStep) (*model.Step, error) {
	where := fmt.Sprintf("job '%s' step %d", jobID, index+1)
	cond, err := compileCondition(workflow, where, ys.If)
	if err != nil {
		return nil, err
	}
	with, err := yamlWith(workflow, where, ys.With)
	if err != nil {
		return nil, err
	}

	var timeout time.Duration
	if ys.TimeoutMinutes > 0 {
		timeout = time.Duration(ys.TimeoutMinutes * float64(time.Minute))
	}

	return &model.Step{
		Name:            ys.Name,
		Run:             ys.Run,
		Uses:            ys.Uses,
		With:            with,
		Env:             ys.Env,
		If:              cond,
		ContinueOnError: ys.ContinueOnError,
		Timeout:         timeout,
		Secrets:         ys.Secrets,
	}, nil
}

// yamlTrigger normalizes the three `on` forms: a single event name, a list
// of event names, or a mapping from event name to filters.
func yamlTrigger(workflow string, on any) (*model.Trigger, error) {
	var events, branches []string

	switch v := on.(type) {
	case nil:
	case string:
		events = []string{v}
	case []any:
		for _, e := range v {
			s, ok := e.(string)
			if !ok {
				return nil, &model.ValidationError{Workflow: workflow, Reason: fmt.Sprintf("'on' list entries must be strings, got %T", e)}
			}
			events = append(events, s)
		}
	case map[string]any:
		for event, filters := range v {
			events = append(events, event)
			fm, ok := filters.(map[string]any)
			if !ok {
				continue
			}
			bs, err := yamlStringList(workflow, fmt.Sprintf("'on.%s.branches'", event), fm["branches"])
			if err != nil {
				return nil, err
			}
			branches = append(branches, bs...)
		}
	default:
		return nil, &model.ValidationError{Workflow: workflow, Reason: fmt.Sprintf("unsupported 'on' form %T", on)}
	}

	return newTrigger(workflow, events, branches)
}

// yamlNeeds accepts the scalar and list forms of `needs`.
func yamlNeeds(workflow, jobID string, needs any) ([]string, error) {
	return yamlStringList(workflow, fmt.Sprintf("job '%s' needs", jobID), needs)
}

func yamlStringList(workflow, where string, v any) ([]string, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{t}, nil
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, &model.ValidationError{Workflow: workflow, Reason: fmt.Sprintf("%s entries must be strings, got %T", where, e)}
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, &model.ValidationError{Workflow: workflow, Reason: fmt.Sprintf("%s must be a string or a list of strings", where)}
	}
}

// yamlWith coerces scalar `with` values to strings the way templated CI
// systems do. Nested structures are rejected.
func yamlWith(workflow, where string, with map[string]any) (map[string]string, error) {
	if len(with) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(with))
	for k, v := range with {
		switch t := v.(type) {
		case string:
			out[k] = t
		case bool, int, int64, uint64, float64:
			out[k] = fmt.Sprintf("%v", t)
		default:
			return nil, &model.ValidationError{Workflow: workflow, Reason: fmt.Sprintf("%s: 'with.%s' must be a scalar, got %T", where, k, v)}
		}
	}
	return out, nil
}
