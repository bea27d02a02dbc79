package decision

import (
	"errors"
	"fmt"
	"math"
	"testing"
)

// TestThresholds_Classify tests base classification bands and boundaries.
func TestThresholds_Classify(t *testing.T) {
	th := Thresholds{High: 0.75, Low: 0.25}

	tests := []struct {
		name        string
		score       float64
		wantVerdict Verdict
		wantRisk    RiskLevel
	}{
		{"zero", 0.0, VerdictReal, RiskLow},
		{"below low", 0.10, VerdictReal, RiskLow},
		{"exact low", 0.25, VerdictReal, RiskLow},
		{"just above low", 0.2501, VerdictUncertain, RiskMedium},
		{"middle", 0.50, VerdictUncertain, RiskMedium},
		{"just below high", 0.7499, VerdictUncertain, RiskMedium},
		{"exact high", 0.75, VerdictDeepfake, RiskHigh},
		{"above high", 0.92, VerdictDeepfake, RiskHigh},
		{"one", 1.0, VerdictDeepfake, RiskHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, r := th.Classify(tt.score)
			if v != tt.wantVerdict || r != tt.wantRisk {
				t.Errorf("Classify(%v) = (%s, %s), want (%s, %s)", tt.score, v, r, tt.wantVerdict, tt.wantRisk)
			}
			if !IsBasePairing(v, r) {
				t.Errorf("Classify(%v) produced decoupled pair %s/%s", tt.score, v, r)
			}
		})
	}
}

// TestThresholds_ClassifyEqualThresholds tests that a collapsed band resolves to DEEPFAKE.
func TestThresholds_ClassifyEqualThresholds(t *testing.T) {
	th := Thresholds{High: 0.5, Low: 0.5}

	if v, _ := th.Classify(0.5); v != VerdictDeepfake {
		t.Errorf("Classify(0.5) = %s, want DEEPFAKE", v)
	}
	if v, _ := th.Classify(0.4999); v != VerdictReal {
		t.Errorf("Classify(0.4999) = %s, want REAL", v)
	}
}

// TestThresholds_Validate tests the threshold invariant.
func TestThresholds_Validate(t *testing.T) {
	tests := []struct {
		name    string
		th      Thresholds
		wantErr bool
	}{
		{"defaults", DefaultThresholds(), false},
		{"equal", Thresholds{High: 0.5, Low: 0.5}, false},
		{"full range", Thresholds{High: 1, Low: 0}, false},
		{"low above high", Thresholds{High: 0.3, Low: 0.7}, true},
		{"high above one", Thresholds{High: 1.2, Low: 0.2}, true},
		{"negative low", Thresholds{High: 0.8, Low: -0.1}, true},
		{"nan", Thresholds{High: math.NaN(), Low: 0.2}, true},
		{"inf", Thresholds{High: 0.8, Low: math.Inf(-1)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.th.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				return
			}
			var cfgErr *ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Errorf("Validate() error type = %T, want *ConfigurationError", err)
			}
			if !errors.Is(err, ErrConfiguration) {
				t.Error("Validate() error does not match ErrConfiguration")
			}
		})
	}
}

// TestValidateScore tests score domain validation.
func TestValidateScore(t *testing.T) {
	valid := []float64{0, 0.25, 0.5, 1}
	for _, s := range valid {
		if err := ValidateScore(s); err != nil {
			t.Errorf("ValidateScore(%v) = %v, want nil", s, err)
		}
	}

	invalid := []float64{-0.01, 1.5, math.NaN(), math.Inf(1), math.Inf(-1)}
	for _, s := range invalid {
		err := ValidateScore(s)
		if err == nil {
			t.Errorf("ValidateScore(%v) = nil, want error", s)
			continue
		}
		if !errors.Is(err, ErrValidation) {
			t.Errorf("ValidateScore(%v) error does not match ErrValidation", s)
		}
	}
}

// TestRoundConfidence tests rounding to four decimal places.
func TestRoundConfidence(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{0.92, 0.92},
		{0.1, 0.1},
		{0.5, 0.5},
		{0.123456, 0.1235},
		{0.12344, 0.1234},
		{0.99996, 1.0},
		{0, 0},
		{1, 1},
	}

	for _, tt := range tests {
		if got := RoundConfidence(tt.in); got != tt.want {
			t.Errorf("RoundConfidence(%v) = %v, want %v", tt.in, got, tt.want)
		}
		if got := RoundConfidence(RoundConfidence(tt.in)); got != RoundConfidence(tt.in) {
			t.Errorf("RoundConfidence is not stable for %v", tt.in)
		}
	}
}

// TestRiskLevel_Shift tests saturating risk shifts.
func TestRiskLevel_Shift(t *testing.T) {
	tests := []struct {
		from RiskLevel
		n    int
		want RiskLevel
	}{
		{RiskLow, 1, RiskMedium},
		{RiskMedium, 1, RiskHigh},
		{RiskHigh, 1, RiskHigh},
		{RiskHigh, -1, RiskMedium},
		{RiskLow, -1, RiskLow},
		{RiskLow, 2, RiskHigh},
		{RiskHigh, -5, RiskLow},
		{RiskLevel("BOGUS"), 1, RiskLevel("BOGUS")},
	}

	for _, tt := range tests {
		if got := tt.from.Shift(tt.n); got != tt.want {
			t.Errorf("%s.Shift(%d) = %s, want %s", tt.from, tt.n, got, tt.want)
		}
	}
}

// TestParse tests verdict and risk parsing.
func TestParse(t *testing.T) {
	if v, err := ParseVerdict(" deepfake "); err != nil || v != VerdictDeepfake {
		t.Errorf("ParseVerdict() = %q, %v", v, err)
	}
	if _, err := ParseVerdict("fake"); err == nil {
		t.Error("ParseVerdict(fake) expected error")
	}
	if r, err := ParseRiskLevel("medium"); err != nil || r != RiskMedium {
		t.Errorf("ParseRiskLevel() = %q, %v", r, err)
	}
	if _, err := ParseRiskLevel("critical"); err == nil {
		t.Error("ParseRiskLevel(critical) expected error")
	}
}

// TestAssessment_CloneIsolation tests that clones do not share mutable state.
func TestAssessment_CloneIsolation(t *testing.T) {
	orig := Assessment{
		Verdict:    VerdictUncertain,
		Risk:       RiskMedium,
		Attributes: map[string]string{"source": "upload"},
		Flags:      []string{"a"},
	}

	c := orig.Clone()
	c.Attributes["source"] = "camera"
	c.Flags[0] = "b"

	if orig.Attributes["source"] != "upload" {
		t.Error("Clone shares attribute map with original")
	}
	if orig.Flags[0] != "a" {
		t.Error("Clone shares flag slice with original")
	}

	flagged := orig.WithFlag("review")
	if orig.HasFlag("review") {
		t.Error("WithFlag mutated original")
	}
	if !flagged.HasFlag("review") {
		t.Error("WithFlag did not add flag")
	}
	if again := flagged.WithFlag("review"); len(again.Flags) != len(flagged.Flags) {
		t.Error("WithFlag duplicated an existing flag")
	}
}

// TestKind tests error categorisation.
func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&ValidationError{Score: 2, Reason: "x"}, "validation"},
		{&ConfigurationError{Reason: "x"}, "configuration"},
		{fmt.Errorf("wrapped: %w", &PolicyRuleError{Rule: "r", Cause: errors.New("boom")}), "policy_rule"},
		{&SynthesisError{Verdict: VerdictReal, Risk: RiskLow, Cause: errors.New("x")}, "synthesis"},
		{&AuditError{EventType: "DECISION_MADE", Cause: errors.New("x")}, "audit"},
		{errors.New("other"), "internal"},
	}

	for _, tt := range tests {
		if got := Kind(tt.err); got != tt.want {
			t.Errorf("Kind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
