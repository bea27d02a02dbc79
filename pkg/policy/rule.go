package policy

import (
	"mercator-hq/deepguard/pkg/decision"
)

// Rule transforms an assessment. Implementations must be pure and total:
// no I/O, no shared mutable state, and no mutation of the input.
type Rule interface {
	// Name identifies the rule in audit events and metrics.
	Name() string

	// Apply returns the possibly modified assessment.
	Apply(a decision.Assessment) (decision.Assessment, error)
}

// RuleFunc adapts a function to the Rule interface.
type RuleFunc struct {
	RuleName string
	Fn       func(a decision.Assessment) (decision.Assessment, error)
}

// Name returns the rule name.
func (r RuleFunc) Name() string { return r.RuleName }

// Apply calls the wrapped function.
func (r RuleFunc) Apply(a decision.Assessment) (decision.Assessment, error) {
	return r.Fn(a)
}

// Noop is a rule that never changes the assessment.
type Noop struct {
	RuleName string
}

// Name returns the rule name.
func (r Noop) Name() string { return r.RuleName }

// Apply returns the assessment unchanged.
func (r Noop) Apply(a decision.Assessment) (decision.Assessment, error) {
	return a, nil
}
