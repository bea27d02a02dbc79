package decision

import (
	"fmt"
	"math"
	"strings"
)

// Verdict is the classification outcome for a media item.
type Verdict string

const (
	// VerdictReal means the media is considered authentic.
	VerdictReal Verdict = "REAL"

	// VerdictDeepfake means the media is considered manipulated.
	VerdictDeepfake Verdict = "DEEPFAKE"

	// VerdictUncertain means the score fell between the thresholds or a
	// policy rule declined to commit to an extreme verdict.
	VerdictUncertain Verdict = "UNCERTAIN"
)

// Verdicts lists every verdict in a stable order.
var Verdicts = []Verdict{VerdictReal, VerdictDeepfake, VerdictUncertain}

// Valid reports whether v is one of the known verdicts.
func (v Verdict) Valid() bool {
	switch v {
	case VerdictReal, VerdictDeepfake, VerdictUncertain:
		return true
	}
	return false
}

// ParseVerdict parses a verdict name case-insensitively.
func ParseVerdict(s string) (Verdict, error) {
	v := Verdict(strings.ToUpper(strings.TrimSpace(s)))
	if !v.Valid() {
		return "", fmt.Errorf("unknown verdict %q", s)
	}
	return v, nil
}

// RiskLevel is the severity bucket associated with a verdict.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// RiskLevels lists every risk level from least to most severe.
var RiskLevels = []RiskLevel{RiskLow, RiskMedium, RiskHigh}

// Valid reports whether r is one of the known risk levels.
func (r RiskLevel) Valid() bool {
	return r.rank() >= 0
}

// ParseRiskLevel parses a risk level name case-insensitively.
func ParseRiskLevel(s string) (RiskLevel, error) {
	r := RiskLevel(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown risk level %q", s)
	}
	return r, nil
}

// Shift moves the risk level by n steps, saturating at LOW and HIGH.
// An unknown level is returned unchanged.
func (r RiskLevel) Shift(n int) RiskLevel {
	rank := r.rank()
	if rank < 0 {
		return r
	}
	rank += n
	if rank < 0 {
		rank = 0
	}
	if rank >= len(RiskLevels) {
		rank = len(RiskLevels) - 1
	}
	return RiskLevels[rank]
}

// Escalate returns the next more severe risk level.
func (r RiskLevel) Escalate() RiskLevel { return r.Shift(1) }

// Deescalate returns the next less severe risk level.
func (r RiskLevel) Deescalate() RiskLevel { return r.Shift(-1) }

func (r RiskLevel) rank() int {
	for i, level := range RiskLevels {
		if level == r {
			return i
		}
	}
	return -1
}

// BaseRisk returns the risk level a verdict carries at the base
// classification stage.
func BaseRisk(v Verdict) RiskLevel {
	switch v {
	case VerdictDeepfake:
		return RiskHigh
	case VerdictReal:
		return RiskLow
	default:
		return RiskMedium
	}
}

// IsBasePairing reports whether the verdict and risk level are the pairing
// produced by threshold classification, i.e. no policy rule decoupled them.
func IsBasePairing(v Verdict, r RiskLevel) bool {
	return BaseRisk(v) == r
}

// Request is a single classification request from the upstream inference
// collaborator.
type Request struct {
	// RequestID correlates the decision with the caller's request.
	// Generated by the engine when empty.
	RequestID string `json:"request_id,omitempty"`

	// MediaID identifies the analysed media item (file name, hash, upload id).
	MediaID string `json:"media_id,omitempty"`

	// Score is the aggregated deepfake confidence in [0, 1].
	Score float64 `json:"score"`

	// Attributes carries media metadata that policy rules may inspect
	// (e.g. "source", "quality"). Never mutated by the decision path.
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Assessment is the state policy rules transform: the current verdict and
// risk level, the raw confidence, the request attributes and any flags
// raised by earlier rules.
type Assessment struct {
	Verdict    Verdict
	Confidence float64
	Risk       RiskLevel
	Attributes map[string]string
	Flags      []string
}

// Clone returns a deep copy of the assessment so a rule can modify it
// without affecting its caller.
func (a Assessment) Clone() Assessment {
	out := a
	if a.Attributes != nil {
		out.Attributes = make(map[string]string, len(a.Attributes))
		for k, v := range a.Attributes {
			out.Attributes[k] = v
		}
	}
	if a.Flags != nil {
		out.Flags = append([]string(nil), a.Flags...)
	}
	return out
}

// HasFlag reports whether the assessment carries the given flag.
func (a Assessment) HasFlag(flag string) bool {
	for _, f := range a.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// WithFlag returns a copy of the assessment with flag appended, unless it is
// already present.
func (a Assessment) WithFlag(flag string) Assessment {
	if flag == "" || a.HasFlag(flag) {
		return a
	}
	out := a.Clone()
	out.Flags = append(out.Flags, flag)
	return out
}

// Record is the caller-facing result of one classification call.
type Record struct {
	Verdict     Verdict   `json:"verdict"`
	Confidence  float64   `json:"confidence"`
	RiskLevel   RiskLevel `json:"risk_level"`
	Explanation string    `json:"explanation"`
}

// String renders the record for text output.
func (r Record) String() string {
	return fmt.Sprintf("verdict=%s confidence=%.4f risk_level=%s\n%s", r.Verdict, r.Confidence, r.RiskLevel, r.Explanation)
}

// ConfidencePrecision is the number of decimal places kept in Record.Confidence.
const ConfidencePrecision = 4

// RoundConfidence rounds a score to ConfidencePrecision decimal places,
// half away from zero.
func RoundConfidence(score float64) float64 {
	scale := math.Pow10(ConfidencePrecision)
	return math.Round(score*scale) / scale
}

// ValidateScore checks that a score is finite and inside [0, 1].
func ValidateScore(score float64) error {
	switch {
	case math.IsNaN(score):
		return &ValidationError{Score: score, Reason: "score is NaN"}
	case math.IsInf(score, 0):
		return &ValidationError{Score: score, Reason: "score is infinite"}
	case score < 0 || score > 1:
		return &ValidationError{Score: score, Reason: "score must be within [0, 1]"}
	}
	return nil
}
