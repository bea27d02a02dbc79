package decision

import (
	"fmt"
	"math"
)

// Default thresholds, matching the sensitivity the edge dashboard ships with.
const (
	DefaultHighThreshold = 0.75
	DefaultLowThreshold  = 0.25
)

// Thresholds holds the two cut points used for base classification.
// Invariant: 0 <= Low <= High <= 1.
type Thresholds struct {
	High float64 `yaml:"high" json:"high"`
	Low  float64 `yaml:"low" json:"low"`
}

// DefaultThresholds returns the default threshold configuration.
func DefaultThresholds() Thresholds {
	return Thresholds{High: DefaultHighThreshold, Low: DefaultLowThreshold}
}

// Validate checks the threshold invariant.
func (t Thresholds) Validate() error {
	for _, f := range []struct {
		name  string
		value float64
	}{{"thresholds.high", t.High}, {"thresholds.low", t.Low}} {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return &ConfigurationError{Field: f.name, Reason: "must be a finite number"}
		}
		if f.value < 0 || f.value > 1 {
			return &ConfigurationError{Field: f.name, Reason: fmt.Sprintf("must be within [0, 1], got %v", f.value)}
		}
	}
	if t.Low > t.High {
		return &ConfigurationError{
			Field:  "thresholds",
			Reason: fmt.Sprintf("low (%v) must not exceed high (%v)", t.Low, t.High),
		}
	}
	return nil
}

// Classify performs base classification of a score. The score is assumed
// to be validated already.
func (t Thresholds) Classify(score float64) (Verdict, RiskLevel) {
	switch {
	case score >= t.High:
		return VerdictDeepfake, RiskHigh
	case score <= t.Low:
		return VerdictReal, RiskLow
	default:
		return VerdictUncertain, RiskMedium
	}
}
