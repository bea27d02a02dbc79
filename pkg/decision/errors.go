package decision

import (
	"errors"
	"fmt"
)

// Sentinel errors matched by the typed errors below through errors.Is.
var (
	// ErrValidation indicates the input score was rejected.
	ErrValidation = errors.New("validation error")

	// ErrConfiguration indicates invalid engine configuration.
	ErrConfiguration = errors.New("configuration error")

	// ErrPolicyRule indicates a policy rule violated its contract.
	ErrPolicyRule = errors.New("policy rule error")

	// ErrSynthesis indicates explanation generation failed.
	ErrSynthesis = errors.New("synthesis error")

	// ErrAudit indicates the audit event could not be recorded.
	ErrAudit = errors.New("audit error")
)

// ValidationError indicates the input score is outside the bounded domain.
// No decision is produced and no audit event is emitted.
type ValidationError struct {
	Score  float64
	Reason string
}

// Error returns the error message.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid score %v: %s", e.Score, e.Reason)
}

// Is matches ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ConfigurationError indicates a configuration invariant was violated at
// construction time, e.g. low > high.
type ConfigurationError struct {
	Field  string
	Reason string
	Cause  error
}

// Error returns the error message.
func (e *ConfigurationError) Error() string {
	msg := e.Reason
	if e.Field != "" {
		msg = fmt.Sprintf("%s: %s", e.Field, e.Reason)
	}
	if e.Cause != nil {
		return fmt.Sprintf("configuration error: %s: %v", msg, e.Cause)
	}
	return fmt.Sprintf("configuration error: %s", msg)
}

// Unwrap returns the underlying cause.
func (e *ConfigurationError) Unwrap() error {
	return e.Cause
}

// Is matches ErrConfiguration.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// PolicyRuleError indicates a policy rule failed or panicked. Rules are
// specified as total, so this is a programming defect rather than an
// expected runtime condition.
type PolicyRuleError struct {
	Rule  string
	Cause error
}

// Error returns the error message.
func (e *PolicyRuleError) Error() string {
	return fmt.Sprintf("policy rule %q failed: %v", e.Rule, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *PolicyRuleError) Unwrap() error {
	return e.Cause
}

// Is matches ErrPolicyRule.
func (e *PolicyRuleError) Is(target error) bool {
	return target == ErrPolicyRule
}

// SynthesisError indicates the explanation for a verdict/risk pair could
// not be rendered.
type SynthesisError struct {
	Verdict Verdict
	Risk    RiskLevel
	Cause   error
}

// Error returns the error message.
func (e *SynthesisError) Error() string {
	return fmt.Sprintf("explanation for %s/%s failed: %v", e.Verdict, e.Risk, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *SynthesisError) Unwrap() error {
	return e.Cause
}

// Is matches ErrSynthesis.
func (e *SynthesisError) Is(target error) bool {
	return target == ErrSynthesis
}

// AuditError indicates the audit sink rejected a decision event. It is only
// returned by engines configured to require auditing.
type AuditError struct {
	EventType string
	Cause     error
}

// Error returns the error message.
func (e *AuditError) Error() string {
	return fmt.Sprintf("failed to record %s event: %v", e.EventType, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *AuditError) Unwrap() error {
	return e.Cause
}

// Is matches ErrAudit.
func (e *AuditError) Is(target error) bool {
	return target == ErrAudit
}

// Kind returns a short label for the error category, used for metrics and
// structured output. Unknown errors map to "internal".
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrPolicyRule):
		return "policy_rule"
	case errors.Is(err, ErrSynthesis):
		return "synthesis"
	case errors.Is(err, ErrAudit):
		return "audit"
	default:
		return "internal"
	}
}
