// Package decision defines the core vocabulary of the deepfake decision layer:
// verdicts, risk levels, threshold configuration, the assessment that policy
// rules operate on, the caller-facing decision record, and the error taxonomy
// shared by the engine, the rule set and the explanation synthesizer.
//
// # Base Classification
//
// A score in [0, 1] is bucketed with two thresholds:
//
//	score >= High  →  DEEPFAKE, HIGH
//	score <= Low   →  REAL, LOW
//	otherwise      →  UNCERTAIN, MEDIUM
//
// Equality favours the extreme classification, so a score exactly equal to a
// threshold never falls into UNCERTAIN.
//
// # Decision Record
//
// The Record returned to callers always has the same four fields:
//
//	{
//	    "verdict": "DEEPFAKE",
//	    "confidence": 0.92,
//	    "risk_level": "HIGH",
//	    "explanation": "..."
//	}
//
// Policy rules may change the values but never the shape.
//
// # Errors
//
// All errors returned by the decision path are one of *ValidationError,
// *ConfigurationError, *PolicyRuleError, *SynthesisError or *AuditError.
// Each matches its sentinel through errors.Is:
//
//	if errors.Is(err, decision.ErrValidation) {
//	    // reject the request, nothing was recorded
//	}
package decision
