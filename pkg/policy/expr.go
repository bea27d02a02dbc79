package policy

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"mercator-hq/deepguard/pkg/decision"
)

// MaxRiskShift bounds the risk_shift action.
const MaxRiskShift = 2

// Action is what an ExprRule does when its predicate holds. Set fields are
// applied in order: verdict, risk, shift, flag.
type Action struct {
	SetVerdict decision.Verdict
	SetRisk    decision.RiskLevel
	RiskShift  int
	Flag       string
}

// Validate checks that the action does something and that its values are known.
func (a Action) Validate() error {
	if a.SetVerdict == "" && a.SetRisk == "" && a.RiskShift == 0 && a.Flag == "" {
		return fmt.Errorf("rule has no action")
	}
	if a.SetVerdict != "" && !a.SetVerdict.Valid() {
		return fmt.Errorf("unknown verdict %q", a.SetVerdict)
	}
	if a.SetRisk != "" && !a.SetRisk.Valid() {
		return fmt.Errorf("unknown risk level %q", a.SetRisk)
	}
	if a.RiskShift < -MaxRiskShift || a.RiskShift > MaxRiskShift {
		return fmt.Errorf("risk_shift must be within [-%d, %d], got %d", MaxRiskShift, MaxRiskShift, a.RiskShift)
	}
	return nil
}

func (a Action) apply(in decision.Assessment) decision.Assessment {
	if a.SetVerdict != "" {
		in.Verdict = a.SetVerdict
	}
	if a.SetRisk != "" {
		in.Risk = a.SetRisk
	}
	if a.RiskShift != 0 {
		in.Risk = in.Risk.Shift(a.RiskShift)
	}
	return in.WithFlag(a.Flag)
}

// ExprRule is a declarative rule: a CEL predicate plus an action. The
// predicate is compiled once and may reference verdict, risk, confidence,
// attributes and flags.
type ExprRule struct {
	name       string
	expression string
	program    cel.Program
	action     Action
}

// NewExprRule compiles the predicate and validates the action.
func NewExprRule(name, expression string, action Action) (*ExprRule, error) {
	if name == "" {
		return nil, fmt.Errorf("rule name is required")
	}
	if expression == "" {
		return nil, fmt.Errorf("rule %q: when expression is required", name)
	}
	if err := action.Validate(); err != nil {
		return nil, fmt.Errorf("rule %q: %w", name, err)
	}

	env, err := cel.NewEnv(
		cel.Variable("verdict", cel.StringType),
		cel.Variable("risk", cel.StringType),
		cel.Variable("confidence", cel.DoubleType),
		cel.Variable("attributes", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("flags", cel.ListType(cel.StringType)),
	)
	if err != nil {
		return nil, fmt.Errorf("error creating CEL environment: %w", err)
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("rule %q: error compiling when expression: %w", name, issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("rule %q: when expression must return bool, got %s", name, ast.OutputType())
	}

	p, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("rule %q: error creating program: %w", name, err)
	}

	return &ExprRule{
		name:       name,
		expression: expression,
		program:    p,
		action:     action,
	}, nil
}

// Name returns the rule name.
func (r *ExprRule) Name() string { return r.name }

// Expression returns the source of the predicate.
func (r *ExprRule) Expression() string { return r.expression }

// Apply evaluates the predicate and applies the action when it holds.
func (r *ExprRule) Apply(a decision.Assessment) (decision.Assessment, error) {
	attrs := a.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	flags := a.Flags
	if flags == nil {
		flags = []string{}
	}

	out, _, err := r.program.Eval(map[string]any{
		"verdict":    string(a.Verdict),
		"risk":       string(a.Risk),
		"confidence": a.Confidence,
		"attributes": attrs,
		"flags":      flags,
	})
	if err != nil {
		return a, fmt.Errorf("error evaluating when expression: %w", err)
	}

	matched, ok := out.Value().(bool)
	if !ok {
		return a, fmt.Errorf("when expression returned %T, want bool", out.Value())
	}
	if !matched {
		return a, nil
	}
	return r.action.apply(a), nil
}
