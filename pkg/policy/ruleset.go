package policy

import (
	"fmt"
	"strings"

	"mercator-hq/deepguard/pkg/decision"
)

// Result is the outcome of applying a rule set.
type Result struct {
	// Assessment is the final assessment after every rule ran.
	decision.Assessment

	// Applied lists, in order, the rules that changed the verdict, the risk
	// level or the flags.
	Applied []string
}

// RuleSet is an ordered, immutable collection of rules.
type RuleSet struct {
	rules   []Rule
	version string
}

// RuleNameSeparator may not appear in rule names; audit storage joins
// applied rule names with it.
const RuleNameSeparator = "|"

// NewRuleSet creates a rule set that evaluates rules in the given order.
// Rule names must be non-empty and unique.
func NewRuleSet(rules ...Rule) (*RuleSet, error) {
	seen := make(map[string]bool, len(rules))
	for i, rule := range rules {
		if rule == nil {
			return nil, &decision.ConfigurationError{Field: fmt.Sprintf("rules[%d]", i), Reason: "rule is nil"}
		}
		name := rule.Name()
		if name == "" {
			return nil, &decision.ConfigurationError{Field: fmt.Sprintf("rules[%d]", i), Reason: "rule name is required"}
		}
		if strings.Contains(name, RuleNameSeparator) {
			return nil, &decision.ConfigurationError{Field: fmt.Sprintf("rules[%d]", i), Reason: fmt.Sprintf("rule name %q must not contain %q", name, RuleNameSeparator)}
		}
		if seen[name] {
			return nil, &decision.ConfigurationError{Field: fmt.Sprintf("rules[%d]", i), Reason: fmt.Sprintf("duplicate rule name %q", name)}
		}
		seen[name] = true
	}

	return &RuleSet{
		rules:   append([]Rule(nil), rules...),
		version: "builtin",
	}, nil
}

// Empty returns a rule set with no rules.
func Empty() *RuleSet {
	return &RuleSet{version: "empty"}
}

// Len returns the number of rules.
func (s *RuleSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.rules)
}

// Names returns the rule names in evaluation order.
func (s *RuleSet) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, len(s.rules))
	for i, r := range s.rules {
		names[i] = r.Name()
	}
	return names
}

// Version identifies the rule set content. File-backed rule sets use a
// digest of the file; programmatic ones report "builtin".
func (s *RuleSet) Version() string {
	if s == nil {
		return "empty"
	}
	return s.version
}

// Apply runs every rule in order. A nil or empty rule set returns the input
// unchanged.
func (s *RuleSet) Apply(a decision.Assessment) (Result, error) {
	current := a.Clone()
	result := Result{}

	if s != nil {
		for _, rule := range s.rules {
			next, err := applyRule(rule, current)
			if err != nil {
				return Result{}, err
			}

			// Confidence and attributes are read-only for rules.
			next.Confidence = a.Confidence
			next.Attributes = current.Attributes

			if !next.Verdict.Valid() || !next.Risk.Valid() {
				return Result{}, &decision.PolicyRuleError{
					Rule:  rule.Name(),
					Cause: fmt.Errorf("produced invalid classification %q/%q", next.Verdict, next.Risk),
				}
			}

			if changed(current, next) {
				result.Applied = append(result.Applied, rule.Name())
			}
			current = next
		}
	}

	result.Assessment = current
	return result, nil
}

// Apply3 applies the rule set to a bare (verdict, confidence, risk) triple.
func (s *RuleSet) Apply3(verdict decision.Verdict, confidence float64, risk decision.RiskLevel) (decision.Verdict, decision.RiskLevel, error) {
	res, err := s.Apply(decision.Assessment{Verdict: verdict, Confidence: confidence, Risk: risk})
	if err != nil {
		return "", "", err
	}
	return res.Verdict, res.Risk, nil
}

// applyRule runs a single rule on a private copy of the assessment and
// converts errors and panics into *decision.PolicyRuleError.
func applyRule(rule Rule, a decision.Assessment) (out decision.Assessment, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &decision.PolicyRuleError{Rule: rule.Name(), Cause: fmt.Errorf("panic: %v", r)}
		}
	}()

	out, err = rule.Apply(a.Clone())
	if err != nil {
		return decision.Assessment{}, &decision.PolicyRuleError{Rule: rule.Name(), Cause: err}
	}
	return out, nil
}

func changed(before, after decision.Assessment) bool {
	if before.Verdict != after.Verdict || before.Risk != after.Risk {
		return true
	}
	if len(before.Flags) != len(after.Flags) {
		return true
	}
	for i := range before.Flags {
		if before.Flags[i] != after.Flags[i] {
			return true
		}
	}
	return false
}
