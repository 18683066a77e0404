package expr

import (
	"errors"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
)

var ctyBool = cty.Bool

// Input is the scope a condition is evaluated against. It mirrors the
// read-only run context: the trigger, the terminal statuses of the jobs this
// one needs, and an optional secret lookup.
type Input struct {
	// Event is the trigger event name.
	Event string
	// Branch is the branch the run operates on.
	Branch string
	// Needs maps needed job ids to their terminal status strings
	// ("success", "failure", "skipped", "cancelled").
	Needs map[string]string
	// Secret resolves a secret by name. Nil disables the secret() function.
	Secret func(name string) (string, bool)
}

// evalContext assembles the HCL evaluation context for one gate decision.
// Job ids commonly contain dashes, so `needs` is an object addressed with
// index syntax: needs["build-test"].result.
func evalContext(in Input) *hcl.EvalContext {
	needs := make(map[string]cty.Value, len(in.Needs))
	for id, status := range in.Needs {
		needs[id] = cty.ObjectVal(map[string]cty.Value{
			"result": cty.StringVal(status),
		})
	}
	needsVal := cty.EmptyObjectVal
	if len(needs) > 0 {
		needsVal = cty.ObjectVal(needs)
	}

	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"event":  cty.StringVal(in.Event),
			"branch": cty.StringVal(in.Branch),
			"needs":  needsVal,
		},
		Functions: map[string]function.Function{
			"always":  alwaysFunc,
			"success": successFunc(in.Needs),
			"failure": failureFunc(in.Needs),
			"secret":  secretFunc(in.Secret),
		},
	}
}

// alwaysFunc returns true unconditionally. Its presence in a condition also
// disables the implicit success gate, which is what lets cleanup-style jobs
// run after an upstream failure.
var alwaysFunc = function.New(&function.Spec{
	Type: function.StaticReturnType(cty.Bool),
	Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
		return cty.True, nil
	},
})

// successFunc reports whether every needed job succeeded. With no needs it
// is trivially true.
func successFunc(needs map[string]string) function.Function {
	return function.New(&function.Spec{
		Type: function.StaticReturnType(cty.Bool),
		Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
			for _, status := range needs {
				if status != "success" {
					return cty.False, nil
				}
			}
			return cty.True, nil
		},
	})
}

// failureFunc reports whether at least one needed job failed.
func failureFunc(needs map[string]string) function.Function {
	return function.New(&function.Spec{
		Type: function.StaticReturnType(cty.Bool),
		Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
			for _, status := range needs {
				if status == "failure" {
					return cty.True, nil
				}
			}
			return cty.False, nil
		},
	})
}

// secretFunc resolves a secret by name, returning an empty string for
// unknown names so conditions can probe availability with
// secret("NAME") != "".
func secretFunc(lookup func(string) (string, bool)) function.Function {
	return function.New(&function.Spec{
		Params: []function.Parameter{
			{Name: "name", Type: cty.String},
		},
		Type: function.StaticReturnType(cty.String),
		Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
			if lookup == nil {
				return cty.NilVal, errors.New("secrets are not available in this context")
			}
			value, ok := lookup(args[0].AsString())
			if !ok {
				return cty.StringVal(""), nil
			}
			return cty.StringVal(value), nil
		},
	})
}
