package policy

import (
	"errors"
	"reflect"
	"testing"

	"mercator-hq/deepguard/pkg/decision"
)

func TestRuleSet_EmptyIsIdentity(t *testing.T) {
	for _, set := range []*RuleSet{nil, Empty()} {
		for _, v := range decision.Verdicts {
			for _, r := range decision.RiskLevels {
				gotV, gotR, err := set.Apply3(v, 0.5, r)
				if err != nil {
					t.Fatalf("Apply3() error = %v", err)
				}
				if gotV != v || gotR != r {
					t.Errorf("Apply3(%s, %s) = (%s, %s), want identity", v, r, gotV, gotR)
				}
			}
		}
	}
}

func TestRuleSet_AppliesInRegistrationOrder(t *testing.T) {
	var order []string
	record := func(name string, risk decision.RiskLevel) Rule {
		return RuleFunc{RuleName: name, Fn: func(a decision.Assessment) (decision.Assessment, error) {
			order = append(order, name)
			a.Risk = risk
			return a, nil
		}}
	}

	set, err := NewRuleSet(record("first", decision.RiskHigh), record("second", decision.RiskLow))
	if err != nil {
		t.Fatalf("NewRuleSet() error = %v", err)
	}

	res, err := set.Apply(decision.Assessment{Verdict: decision.VerdictUncertain, Confidence: 0.5, Risk: decision.RiskMedium})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if !reflect.DeepEqual(order, []string{"first", "second"}) {
		t.Errorf("rule order = %v, want [first second]", order)
	}
	if res.Risk != decision.RiskLow {
		t.Errorf("final risk = %s, want LOW (last rule wins)", res.Risk)
	}
	if !reflect.DeepEqual(res.Applied, []string{"first", "second"}) {
		t.Errorf("Applied = %v, want [first second]", res.Applied)
	}
}

func TestRuleSet_AppliedOnlyListsChangingRules(t *testing.T) {
	set, err := NewRuleSet(
		Noop{RuleName: "noop"},
		AttributeEscalate{RuleName: "watched", Key: "source", Values: []string{"social"}},
	)
	if err != nil {
		t.Fatalf("NewRuleSet() error = %v", err)
	}

	res, err := set.Apply(decision.Assessment{
		Verdict:    decision.VerdictReal,
		Confidence: 0.1,
		Risk:       decision.RiskLow,
		Attributes: map[string]string{"source": "social"},
	})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if !reflect.DeepEqual(res.Applied, []string{"watched"}) {
		t.Errorf("Applied = %v, want [watched]", res.Applied)
	}
	if res.Risk != decision.RiskMedium {
		t.Errorf("Risk = %s, want MEDIUM", res.Risk)
	}
}

func TestRuleSet_RuleErrors(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name string
		rule Rule
	}{
		{"returns error", RuleFunc{RuleName: "failing", Fn: func(a decision.Assessment) (decision.Assessment, error) {
			return a, boom
		}}},
		{"panics", RuleFunc{RuleName: "failing", Fn: func(a decision.Assessment) (decision.Assessment, error) {
			panic("unexpected")
		}}},
		{"invalid verdict", RuleFunc{RuleName: "failing", Fn: func(a decision.Assessment) (decision.Assessment, error) {
			a.Verdict = "MAYBE"
			return a, nil
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := NewRuleSet(tt.rule)
			if err != nil {
				t.Fatalf("NewRuleSet() error = %v", err)
			}

			_, err = set.Apply(decision.Assessment{Verdict: decision.VerdictReal, Risk: decision.RiskLow})
			if err == nil {
				t.Fatal("Apply() error = nil, want error")
			}

			var ruleErr *decision.PolicyRuleError
			if !errors.As(err, &ruleErr) {
				t.Fatalf("Apply() error type = %T, want *PolicyRuleError", err)
			}
			if ruleErr.Rule != "failing" {
				t.Errorf("PolicyRuleError.Rule = %q, want failing", ruleErr.Rule)
			}
			if !errors.Is(err, decision.ErrPolicyRule) {
				t.Error("error does not match ErrPolicyRule")
			}
		})
	}
}

func TestRuleSet_ConfidenceAndAttributesAreReadOnly(t *testing.T) {
	set, err := NewRuleSet(RuleFunc{RuleName: "meddler", Fn: func(a decision.Assessment) (decision.Assessment, error) {
		a.Confidence = 0.01
		a.Attributes["source"] = "changed"
		return a, nil
	}})
	if err != nil {
		t.Fatalf("NewRuleSet() error = %v", err)
	}

	attrs := map[string]string{"source": "upload"}
	res, err := set.Apply(decision.Assessment{
		Verdict:    decision.VerdictDeepfake,
		Confidence: 0.92,
		Risk:       decision.RiskHigh,
		Attributes: attrs,
	})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if res.Confidence != 0.92 {
		t.Errorf("Confidence = %v, want 0.92", res.Confidence)
	}
	if attrs["source"] != "upload" {
		t.Error("rule mutated the caller's attribute map")
	}
	if res.Attributes["source"] != "upload" {
		t.Errorf("result attributes = %v, want source=upload", res.Attributes)
	}
}

func TestNewRuleSet_Validation(t *testing.T) {
	tests := []struct {
		name  string
		rules []Rule
	}{
		{"nil rule", []Rule{nil}},
		{"empty name", []Rule{Noop{}}},
		{"duplicate name", []Rule{Noop{RuleName: "a"}, Noop{RuleName: "a"}}},
		{"separator in name", []Rule{Noop{RuleName: "a|b"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRuleSet(tt.rules...)
			if !errors.Is(err, decision.ErrConfiguration) {
				t.Errorf("NewRuleSet() error = %v, want configuration error", err)
			}
		})
	}
}

func TestBuiltinRules(t *testing.T) {
	tests := []struct {
		name      string
		rule      Rule
		in        decision.Assessment
		wantV     decision.Verdict
		wantR     decision.RiskLevel
		wantFlags []string
	}{
		{
			name:      "near threshold escalates",
			rule:      NearThreshold{RuleName: "near", Pivot: 0.75, Margin: 0.05},
			in:        decision.Assessment{Verdict: decision.VerdictUncertain, Confidence: 0.72, Risk: decision.RiskMedium},
			wantV:     decision.VerdictUncertain,
			wantR:     decision.RiskHigh,
			wantFlags: []string{FlagNearThreshold},
		},
		{
			name:  "near threshold ignores distant score",
			rule:  NearThreshold{RuleName: "near", Pivot: 0.75, Margin: 0.05},
			in:    decision.Assessment{Verdict: decision.VerdictUncertain, Confidence: 0.5, Risk: decision.RiskMedium},
			wantV: decision.VerdictUncertain,
			wantR: decision.RiskMedium,
		},
		{
			name:  "near threshold ignores extreme verdict",
			rule:  NearThreshold{RuleName: "near", Pivot: 0.75, Margin: 0.05},
			in:    decision.Assessment{Verdict: decision.VerdictDeepfake, Confidence: 0.8, Risk: decision.RiskHigh},
			wantV: decision.VerdictDeepfake,
			wantR: decision.RiskHigh,
		},
		{
			name:      "cap on low quality",
			rule:      AttributeCap{RuleName: "cap", Key: "quality", Values: []string{"low"}},
			in:        decision.Assessment{Verdict: decision.VerdictDeepfake, Confidence: 0.9, Risk: decision.RiskHigh, Attributes: map[string]string{"quality": "low"}},
			wantV:     decision.VerdictUncertain,
			wantR:     decision.RiskMedium,
			wantFlags: []string{"capped:quality"},
		},
		{
			name:  "cap without attribute",
			rule:  AttributeCap{RuleName: "cap", Key: "quality", Values: []string{"low"}},
			in:    decision.Assessment{Verdict: decision.VerdictReal, Confidence: 0.1, Risk: decision.RiskLow},
			wantV: decision.VerdictReal,
			wantR: decision.RiskLow,
		},
		{
			name:      "escalate saturates at HIGH",
			rule:      AttributeEscalate{RuleName: "esc", Key: "source", Values: []string{"social", "forum"}},
			in:        decision.Assessment{Verdict: decision.VerdictDeepfake, Confidence: 0.9, Risk: decision.RiskHigh, Attributes: map[string]string{"source": "forum"}},
			wantV:     decision.VerdictDeepfake,
			wantR:     decision.RiskHigh,
			wantFlags: []string{"escalated:source"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := tt.rule.Apply(tt.in)
			if err != nil {
				t.Fatalf("Apply() error = %v", err)
			}
			if out.Verdict != tt.wantV || out.Risk != tt.wantR {
				t.Errorf("Apply() = (%s, %s), want (%s, %s)", out.Verdict, out.Risk, tt.wantV, tt.wantR)
			}
			if len(out.Flags) != len(tt.wantFlags) {
				t.Fatalf("Flags = %v, want %v", out.Flags, tt.wantFlags)
			}
			for i := range tt.wantFlags {
				if out.Flags[i] != tt.wantFlags[i] {
					t.Errorf("Flags = %v, want %v", out.Flags, tt.wantFlags)
				}
			}
		})
	}
}

func TestRuleSet_Composition(t *testing.T) {
	// A low quality DEEPFAKE is capped, then the near-threshold rule sees an
	// UNCERTAIN verdict with high confidence and raises its risk.
	set, err := NewRuleSet(
		AttributeCap{RuleName: "cap", Key: "quality", Values: []string{"low"}},
		NearThreshold{RuleName: "near", Pivot: 0.75, Margin: 0.05},
	)
	if err != nil {
		t.Fatalf("NewRuleSet() error = %v", err)
	}

	v, r, err := set.Apply3(decision.VerdictDeepfake, 0.92, decision.RiskHigh)
	if err != nil {
		t.Fatalf("Apply3() error = %v", err)
	}
	if v != decision.VerdictDeepfake || r != decision.RiskHigh {
		t.Errorf("Apply3() without attributes = (%s, %s), want unchanged", v, r)
	}

	res, err := set.Apply(decision.Assessment{
		Verdict:    decision.VerdictDeepfake,
		Confidence: 0.92,
		Risk:       decision.RiskHigh,
		Attributes: map[string]string{"quality": "low"},
	})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if res.Verdict != decision.VerdictUncertain || res.Risk != decision.RiskHigh {
		t.Errorf("Apply() = (%s, %s), want (UNCERTAIN, HIGH)", res.Verdict, res.Risk)
	}
	if !reflect.DeepEqual(res.Applied, []string{"cap", "near"}) {
		t.Errorf("Applied = %v, want [cap near]", res.Applied)
	}
}

func TestRuleSet_Apply3(t *testing.T) {
	rs, err := NewRuleSet(NearThreshold{RuleName: "near", Pivot: 0.75, Margin: 0.05})
	if err != nil {
		t.Fatalf("NewRuleSet() error = %v", err)
	}

	v, r, err := rs.Apply3(decision.VerdictUncertain, 0.72, decision.RiskMedium)
	if err != nil {
		t.Fatalf("Apply3() error = %v", err)
	}
	if v != decision.VerdictUncertain || r != decision.RiskHigh {
		t.Errorf("Apply3() = (%s, %s), want (UNCERTAIN, HIGH)", v, r)
	}

	v, r, err = Empty().Apply3(decision.VerdictReal, 0.1, decision.RiskLow)
	if err != nil || v != decision.VerdictReal || r != decision.RiskLow {
		t.Errorf("Empty().Apply3() = (%s, %s, %v), want identity", v, r, err)
	}
}
