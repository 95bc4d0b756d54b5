// Package cel validates profile payloads against a CEL boolean expression before they are saved.
package cel

import (
	"encoding/json"
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/sharedcode/profiles"
)

// Validator holds the CEL expression and the program evaluating it against a payload.
type Validator struct {
	Name       string
	Expression string
	program    cel.Program
}

var _ profiles.Validator = (*Validator)(nil)

// NewValidator compiles expression, a CEL expression over the variable `profile` (the decoded
// payload as map(string, dyn)) that must yield a bool, e.g. "profile.coins >= 0.0".
func NewValidator(name string, expression string) (*Validator, error) {
	if name == "" {
		return nil, fmt.Errorf("name can't be empty string")
	}
	if expression == "" {
		return nil, fmt.Errorf("expression can't be empty string")
	}

	env, err := cel.NewEnv(
		cel.Variable("profile", cel.MapType(cel.StringType, cel.DynType)),
		cel.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		return nil, fmt.Errorf("error creating CEL environment: %w", err)
	}
	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("error compiling CEL expression: %w", issues.Err())
	}
	if !ast.OutputType().IsExactType(types.BoolType) && !ast.OutputType().IsExactType(types.DynType) {
		return nil, fmt.Errorf("CEL expression %q yields %s, not bool", expression, ast.OutputType())
	}
	p, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("error creating Program: %w", err)
	}
	return &Validator{
		Name:       name,
		Expression: expression,
		program:    p,
	}, nil
}

// Validate returns an error when the payload is not a JSON object or the expression does not
// evaluate to true for it.
func (v *Validator) Validate(payload []byte) error {
	var profile map[string]any
	if err := json.Unmarshal(payload, &profile); err != nil {
		return fmt.Errorf("validator %s: payload is not a JSON object: %w", v.Name, err)
	}
	if profile == nil {
		profile = map[string]any{}
	}
	out, _, err := v.program.Eval(map[string]any{
		"profile": profile,
	})
	if err != nil {
		return fmt.Errorf("validator %s: error evaluating CEL expression: %w", v.Name, err)
	}
	ok, isBool := out.Value().(bool)
	if !isBool {
		return fmt.Errorf("validator %s: expression yields %v, not bool", v.Name, out.Value())
	}
	if !ok {
		return fmt.Errorf("validator %s: payload violates %q", v.Name, v.Expression)
	}
	return nil
}
