package loader

import (
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/specialistvlad/conveyorgo/internal/model"
)

// hclWorkflowFile represents the top-level structure of a native workflow
// file for decoding.
type hclWorkflowFile struct {
	Workflows []*hclWorkflow `hcl:"workflow,block"`
}

type hclWorkflow struct {
	Name string            `hcl:"name,label"`
	On   *hclTrigger       `hcl:"on,block"`
	Env  map[string]string `hcl:"env,optional"`
	Jobs []*hclJob         `hcl:"job,block"`
}

type hclTrigger struct {
	Events   []string `hcl:"events,optional"`
	Branches []string `hcl:"branches,optional"`
}

type hclJob struct {
	ID      string            `hcl:"id,label"`
	Name    string            `hcl:"name,optional"`
	Needs   []string          `hcl:"needs,optional"`
	If      string            `hcl:"if,optional"`
	Env     map[string]string `hcl:"env,optional"`
	Secrets []string          `hcl:"secrets,optional"`
	Steps   []*hclStep        `hcl:"step,block"`
}

type hclStep struct {
	Name            string            `hcl:"name,optional"`
	Run             string            `hcl:"run,optional"`
	Uses            string            `hcl:"uses,optional"`
	With            map[string]string `hcl:"with,optional"`
	Env             map[string]string `hcl:"env,optional"`
	If              string            `hcl:"if,optional"`
	ContinueOnError bool              `hcl:"continue_on_error,optional"`
	Timeout         string            `hcl:"timeout,optional"`
	Secrets         []string          `hcl:"secrets,optional"`
}

// parseHCL translates one native HCL workflow file into the model. Unlike
// YAML, HCL blocks arrive from the decoder already in declaration order, so
// no second pass is needed.
func parseHCL(path string, data []byte) (*model.Workflow, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, path)
	if diags.HasErrors() {
		return nil, &model.ValidationError{Workflow: path, Reason: fmt.Sprintf("parsing HCL: %v", diags)}
	}

	var parsed hclWorkflowFile
	if diags := gohcl.DecodeBody(file.Body, nil, &parsed); diags.HasErrors() {
		return nil, &model.ValidationError{Workflow: path, Reason: fmt.Sprintf("decoding HCL: %v", diags)}
	}

	if len(parsed.Workflows) != 1 {
		return nil, &model.ValidationError{
			Workflow: path,
			Reason:   fmt.Sprintf("expected exactly one workflow block, found %d", len(parsed.Workflows)),
		}
	}
	hw := parsed.Workflows[0]

	var on *model.Trigger
	if hw.On != nil {
		var err error
		if on, err = newTrigger(hw.Name, hw.On.Events, hw.On.Branches); err != nil {
			return nil, err
		}
	}

	jobs := make([]*model.Job, 0, len(hw.Jobs))
	for _, hj := range hw.Jobs {
		job, err := hclToJob(hw.Name, hj)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	return finishWorkflow(hw.Name, on, hw.Env, jobs)
}

func hclToJob(workflow string, hj *hclJob) (*model.Job, error) {
	cond, err := compileCondition(workflow, fmt.Sprintf("job '%s'", hj.ID), hj.If)
	if err != nil {
		return nil, err
	}

	steps := make([]*model.Step, 0, len(hj.Steps))
	for i, hs := range hj.Steps {
		step, err := hclToStep(workflow, hj.ID, i, hs)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}

	return &model.Job{
		ID:      hj.ID,
		Name:    hj.Name,
		Needs:   hj.Needs,
		If:      cond,
		Env:     hj.Env,
		Secrets: hj.Secrets,
		Steps:   steps,
	}, nil
}

func hclToStep(workflow, jobID string, index int, hs *hclStep) (*model.Step, error) {
	where := fmt.Sprintf("job '%s' step %d", jobID, index+1)
	cond, err := compileCondition(workflow, where, hs.If)
	if err != nil {
		return nil, err
	}

	var timeout time.Duration
	if hs.Timeout != "" {
		timeout, err = time.ParseDuration(hs.Timeout)
		if err != nil {
			return nil, &model.ValidationError{
				Workflow: workflow,
				Reason:   fmt.Sprintf("%s: invalid timeout '%s': %v", where, hs.Timeout, err),
			}
		}
	}

	return &model.Step{
		Name:            hs.Name,
		Run:             hs.Run,
		Uses:            hs.Uses,
		With:            hs.With,
		Env:             hs.Env,
		If:              cond,
		ContinueOnError: hs.ContinueOnError,
		Timeout:         timeout,
		Secrets:         hs.Secrets,
	}, nil
}
