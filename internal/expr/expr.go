// Package expr compiles and evaluates gate conditions for jobs and steps.
//
// Conditions use HCL expression syntax over a small, read-only scope: the
// variables `event`, `branch`, and `needs`, plus the functions always(),
// success(), failure(), and secret(name). Compilation and evaluation are
// separate on purpose: a condition that does not parse is a definition
// defect and surfaces at load time, while a condition that parses but cannot
// be evaluated (an unknown reference, a non-boolean result) is a
// configuration failure of the job or step that owns it.
package expr

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
)

// Condition is a compiled, reusable gate expression. It is immutable and
// safe for concurrent evaluation.
type Condition struct {
	src         string
	expr        hclsyntax.Expression
	statusAware bool
}

// Compile parses the expression source. It fails on syntax errors only;
// names are resolved at evaluation time against the run's scope.
func Compile(src string) (*Condition, error) {
	parsed, diags := hclsyntax.ParseExpression([]byte(src), "condition", hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return nil, fmt.Errorf("parsing condition %q: %s", src, diags.Error())
	}
	return &Condition{
		src:         src,
		expr:        parsed,
		statusAware: referencesStatusFunction(parsed),
	}, nil
}

// Source returns the original expression text.
func (c *Condition) Source() string {
	return c.src
}

// HasStatusCheck reports whether the expression calls one of the status
// functions (always, success, failure). The scheduler uses this to decide
// whether the implicit all-needs-succeeded gate still applies: a condition
// that inspects upstream status itself replaces the implicit gate instead of
// being combined with it.
func (c *Condition) HasStatusCheck() bool {
	return c.statusAware
}

// Eval evaluates the condition against one run's scope. The result must be a
// boolean; anything else is reported as an error, never coerced.
func (c *Condition) Eval(in Input) (bool, error) {
	v, diags := c.expr.Value(evalContext(in))
	if diags.HasErrors() {
		return false, fmt.Errorf("evaluating condition %q: %s", c.src, diags.Error())
	}
	if v.IsNull() {
		return false, fmt.Errorf("condition %q evaluated to null", c.src)
	}
	if !v.Type().Equals(ctyBool) {
		return false, fmt.Errorf("condition %q evaluated to %s, want bool", c.src, v.Type().FriendlyName())
	}
	return v.True(), nil
}

// statusFuncWalker scans an expression tree for calls to status functions.
type statusFuncWalker struct {
	found bool
}

func (w *statusFuncWalker) Enter(node hclsyntax.Node) hcl.Diagnostics {
	if call, ok := node.(*hclsyntax.FunctionCallExpr); ok {
		switch call.Name {
		case "always", "success", "failure":
			w.found = true
		}
	}
	return nil
}

func (w *statusFuncWalker) Exit(node hclsyntax.Node) hcl.Diagnostics {
	return nil
}

func referencesStatusFunction(expr hclsyntax.Expression) bool {
	w := &statusFuncWalker{}
	hclsyntax.Walk(expr, w)
	return w.found
}
