// Package engine implements the decision engine: the orchestrator that turns
// a deepfake confidence score into a verdict, a risk level and an
// explanation, and reports every decision to the audit sink.
//
// # Pipeline
//
// For each call the engine:
//
//  1. Rejects scores that are NaN, infinite or outside [0, 1] with
//     *decision.ValidationError.
//  2. Classifies the score against the thresholds (DEEPFAKE/HIGH at or
//     above high, REAL/LOW at or below low, UNCERTAIN/MEDIUM between).
//  3. Hands the assessment to the rule set, which may override verdict and
//     risk independently.
//  4. Renders the explanation from the post-rule verdict and risk.
//  5. Records exactly one DECISION_MADE event and returns the record.
//
// A failing rule or template aborts the call before step 5, so a failed
// decision never leaves an audit event behind.
//
// # Usage
//
//	eng, err := engine.New(engine.DefaultConfig(), rules, explain.Default(), recorder)
//	if err != nil {
//	    return err
//	}
//	rec, err := eng.Decide(ctx, 0.92)
//	// rec.Verdict == DEEPFAKE, rec.RiskLevel == HIGH, rec.Confidence == 0.92
//
// # Audit Failures
//
// By default a sink error is logged and counted and the record is still
// returned. With RequireAudit the call fails with *decision.AuditError.
//
// # Reload
//
// An Engine never changes after construction. Wrap it in a Handle and Swap
// in a freshly built engine when thresholds or rules change.
package engine
