package policy

import (
	"fmt"

	"mercator-hq/deepguard/pkg/decision"
)

// Flags raised by the built-in rules.
const (
	FlagNearThreshold   = "near_threshold"
	flagCappedPrefix    = "capped:"
	flagEscalatedPrefix = "escalated:"
)

// NearThreshold raises the risk of an UNCERTAIN verdict whose confidence is
// at least Pivot-Margin, where Pivot is typically the high threshold. The
// verdict stays UNCERTAIN; only the severity changes.
type NearThreshold struct {
	RuleName string
	Pivot    float64
	Margin   float64
}

// Name returns the rule name.
func (r NearThreshold) Name() string { return r.RuleName }

// Validate checks the rule parameters.
func (r NearThreshold) Validate() error {
	if r.Pivot < 0 || r.Pivot > 1 {
		return fmt.Errorf("pivot must be within [0, 1], got %v", r.Pivot)
	}
	if r.Margin <= 0 || r.Margin > 1 {
		return fmt.Errorf("margin must be within (0, 1], got %v", r.Margin)
	}
	return nil
}

// Apply escalates the risk to HIGH when the confidence is near the pivot.
func (r NearThreshold) Apply(a decision.Assessment) (decision.Assessment, error) {
	if a.Verdict != decision.VerdictUncertain {
		return a, nil
	}
	if a.Confidence < r.Pivot-r.Margin {
		return a, nil
	}
	a.Risk = decision.RiskHigh
	return a.WithFlag(FlagNearThreshold), nil
}

// AttributeCap refuses to commit to an extreme verdict when a media
// attribute matches one of Values, for example quality=low. REAL and
// DEEPFAKE become UNCERTAIN with MEDIUM risk.
type AttributeCap struct {
	RuleName string
	Key      string
	Values   []string
}

// Name returns the rule name.
func (r AttributeCap) Name() string { return r.RuleName }

// Validate checks the rule parameters.
func (r AttributeCap) Validate() error {
	return validateAttributeMatch(r.Key, r.Values)
}

// Apply caps the verdict when the attribute matches.
func (r AttributeCap) Apply(a decision.Assessment) (decision.Assessment, error) {
	if !attributeMatches(a.Attributes, r.Key, r.Values) {
		return a, nil
	}
	if a.Verdict == decision.VerdictUncertain {
		return a, nil
	}
	a.Verdict = decision.VerdictUncertain
	a.Risk = decision.RiskMedium
	return a.WithFlag(flagCappedPrefix + r.Key), nil
}

// AttributeEscalate raises the risk by one level when a media attribute
// matches one of Values, for example a watched source.
type AttributeEscalate struct {
	RuleName string
	Key      string
	Values   []string
}

// Name returns the rule name.
func (r AttributeEscalate) Name() string { return r.RuleName }

// Validate checks the rule parameters.
func (r AttributeEscalate) Validate() error {
	return validateAttributeMatch(r.Key, r.Values)
}

// Apply escalates the risk when the attribute matches.
func (r AttributeEscalate) Apply(a decision.Assessment) (decision.Assessment, error) {
	if !attributeMatches(a.Attributes, r.Key, r.Values) {
		return a, nil
	}
	a.Risk = a.Risk.Escalate()
	return a.WithFlag(flagEscalatedPrefix + r.Key), nil
}

func validateAttributeMatch(key string, values []string) error {
	if key == "" {
		return fmt.Errorf("key is required")
	}
	if len(values) == 0 {
		return fmt.Errorf("at least one value is required")
	}
	return nil
}

func attributeMatches(attrs map[string]string, key string, values []string) bool {
	got, ok := attrs[key]
	if !ok {
		return false
	}
	for _, v := range values {
		if v == got {
			return true
		}
	}
	return false
}
