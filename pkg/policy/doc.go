// Package policy implements the ordered override rules applied to a base
// classification before the explanation is rendered.
//
// # Rules
//
// A Rule is a pure, total transformation of a decision.Assessment. Rules run
// strictly in registration order and each receives the output of the previous
// rule, so overrides compose:
//
//	rules, err := policy.NewRuleSet(
//	    policy.NearThreshold{RuleName: "near-high", Pivot: 0.75, Margin: 0.05},
//	    policy.AttributeCap{RuleName: "low-quality", Key: "quality", Values: []string{"low"}},
//	)
//	result, err := rules.Apply(assessment)
//
// An empty rule set is the identity transform.
//
// # Declarative Rules
//
// Rules can also be declared in YAML with a CEL predicate and an action.
// The predicate sees verdict, risk, confidence, attributes and flags:
//
//	rules:
//	  - name: watched-source
//	    when: "'source' in attributes && attributes['source'] == 'social'"
//	    risk_shift: 1
//	    flag: watched_source
//	  - name: near-threshold
//	    builtin: near_threshold
//	    pivot: 0.75
//	    margin: 0.05
//
// File order is registration order. Load with LoadFile.
//
// # Failure Semantics
//
// A rule that returns an error or panics surfaces as *decision.PolicyRuleError.
// Confidence and attributes are read-only: changes a rule makes to them are
// discarded.
//
// # Thread Safety
//
// A RuleSet is immutable after construction and safe for concurrent use.
package policy
