package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/deepguard/pkg/decision"
)

// Attribute keys set on decision spans. Custom keys use the "deepguard."
// namespace.
const (
	AttrScore        = "deepguard.score"
	AttrMediaID      = "deepguard.media_id"
	AttrRequestID    = "deepguard.request_id"
	AttrVerdict      = "deepguard.verdict"
	AttrRiskLevel    = "deepguard.risk_level"
	AttrConfidence   = "deepguard.confidence"
	AttrAppliedRules = "deepguard.applied_rules"
	AttrRuleSet      = "deepguard.rule_set"
	AttrErrorKind    = "deepguard.error.kind"

	AttrErrorMessage = "error.message"
)

// RequestAttributes returns the attributes describing a decision request.
func RequestAttributes(req *decision.Request) []attribute.KeyValue {
	if req == nil {
		return nil
	}
	attrs := []attribute.KeyValue{
		attribute.Float64(AttrScore, req.Score),
	}
	if req.MediaID != "" {
		attrs = append(attrs, attribute.String(AttrMediaID, req.MediaID))
	}
	if req.RequestID != "" {
		attrs = append(attrs, attribute.String(AttrRequestID, req.RequestID))
	}
	return attrs
}

// SetDecisionAttributes records the outcome of a decision on span.
func SetDecisionAttributes(span trace.Span, rec decision.Record, appliedRules []string) {
	if appliedRules == nil {
		appliedRules = []string{}
	}
	span.SetAttributes(
		attribute.String(AttrVerdict, string(rec.Verdict)),
		attribute.String(AttrRiskLevel, string(rec.RiskLevel)),
		attribute.Float64(AttrConfidence, rec.Confidence),
		attribute.StringSlice(AttrAppliedRules, appliedRules),
	)
}

// SetErrorKind records the error classification on span.
func SetErrorKind(span trace.Span, kind string) {
	span.SetAttributes(attribute.String(AttrErrorKind, kind))
}
