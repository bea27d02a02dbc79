package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"mercator-hq/deepguard/pkg/decision"
)

// Built-in rule types accepted in rule files.
const (
	BuiltinNearThreshold     = "near_threshold"
	BuiltinAttributeCap      = "attribute_cap"
	BuiltinAttributeEscalate = "attribute_escalate"
)

// RulesFile is the root of a YAML rule file.
type RulesFile struct {
	Version int        `yaml:"version,omitempty"`
	Rules   []RuleSpec `yaml:"rules"`
}

// RuleSpec declares one rule. Either Builtin or When must be set.
type RuleSpec struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Enabled     *bool  `yaml:"enabled,omitempty"`

	// Declarative rule.
	When       string `yaml:"when,omitempty"`
	SetVerdict string `yaml:"set_verdict,omitempty"`
	SetRisk    string `yaml:"set_risk,omitempty"`
	RiskShift  int    `yaml:"risk_shift,omitempty"`
	Flag       string `yaml:"flag,omitempty"`

	// Built-in rule.
	Builtin string   `yaml:"builtin,omitempty"`
	Pivot   *float64 `yaml:"pivot,omitempty"`
	Margin  float64  `yaml:"margin,omitempty"`
	Key     string   `yaml:"key,omitempty"`
	Values  []string `yaml:"values,omitempty"`
}

// IsEnabled reports whether the rule is enabled. Rules are enabled unless
// explicitly disabled.
func (s RuleSpec) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// Build compiles the declaration into a Rule.
func (s RuleSpec) Build() (Rule, error) {
	if s.Name == "" {
		return nil, fmt.Errorf("rule name is required")
	}

	if s.Builtin != "" {
		if s.When != "" {
			return nil, fmt.Errorf("rule %q: builtin and when are mutually exclusive", s.Name)
		}
		if s.SetVerdict != "" || s.SetRisk != "" || s.RiskShift != 0 || s.Flag != "" {
			return nil, fmt.Errorf("rule %q: set_verdict, set_risk, risk_shift and flag do not apply to builtin rules", s.Name)
		}
		return s.buildBuiltin()
	}

	action := Action{
		SetVerdict: decision.Verdict(s.SetVerdict),
		SetRisk:    decision.RiskLevel(s.SetRisk),
		RiskShift:  s.RiskShift,
		Flag:       s.Flag,
	}
	if s.SetVerdict != "" {
		v, err := decision.ParseVerdict(s.SetVerdict)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", s.Name, err)
		}
		action.SetVerdict = v
	}
	if s.SetRisk != "" {
		r, err := decision.ParseRiskLevel(s.SetRisk)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", s.Name, err)
		}
		action.SetRisk = r
	}
	return NewExprRule(s.Name, s.When, action)
}

func (s RuleSpec) buildBuiltin() (Rule, error) {
	type validator interface {
		Rule
		Validate() error
	}

	var rule validator
	switch s.Builtin {
	case BuiltinNearThreshold:
		if s.Pivot == nil {
			return nil, fmt.Errorf("rule %q: pivot is required for %s", s.Name, BuiltinNearThreshold)
		}
		rule = NearThreshold{RuleName: s.Name, Pivot: *s.Pivot, Margin: s.Margin}
	case BuiltinAttributeCap:
		rule = AttributeCap{RuleName: s.Name, Key: s.Key, Values: s.Values}
	case BuiltinAttributeEscalate:
		rule = AttributeEscalate{RuleName: s.Name, Key: s.Key, Values: s.Values}
	default:
		return nil, fmt.Errorf("rule %q: unknown builtin %q", s.Name, s.Builtin)
	}

	if err := rule.Validate(); err != nil {
		return nil, fmt.Errorf("rule %q: %w", s.Name, err)
	}
	return rule, nil
}

// LoadFile reads a YAML rule file and builds a rule set. The rule set
// version is a digest of the file content.
func LoadFile(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &decision.ConfigurationError{Field: "policy.rules_file", Reason: "failed to read rule file", Cause: err}
	}
	return Parse(data, path)
}

// Parse builds a rule set from YAML rule file content. Source names the
// origin in error messages.
func Parse(data []byte, source string) (*RuleSet, error) {
	var f RulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, &decision.ConfigurationError{Field: source, Reason: "failed to parse rule file", Cause: err}
	}

	rules := make([]Rule, 0, len(f.Rules))
	for i, rs := range f.Rules {
		if !rs.IsEnabled() {
			continue
		}
		rule, err := rs.Build()
		if err != nil {
			return nil, &decision.ConfigurationError{Field: fmt.Sprintf("%s: rules[%d]", source, i), Reason: "invalid rule", Cause: err}
		}
		rules = append(rules, rule)
	}

	set, err := NewRuleSet(rules...)
	if err != nil {
		return nil, err
	}
	set.version = Digest(data)
	return set, nil
}

// Digest returns the short content hash used as a rule set version.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:12]
}
