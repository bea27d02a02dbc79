package audit

import (
	"context"
	"time"

	"mercator-hq/deepguard/pkg/decision"
)

// EventDecisionMade is the event type emitted once per successful decision.
const EventDecisionMade = "DECISION_MADE"

// Payload is the body of a DECISION_MADE event.
type Payload struct {
	// RequestID correlates the event with the caller's request.
	RequestID string `json:"request_id"`

	// MediaID identifies the media item, when the caller supplied one.
	MediaID string `json:"media_id,omitempty"`

	// Record is the caller-facing result, exactly as returned.
	decision.Record

	// Score is the raw, unrounded input score.
	Score float64 `json:"score"`

	// Base classification before policy rules ran.
	BaseVerdict   decision.Verdict   `json:"base_verdict"`
	BaseRiskLevel decision.RiskLevel `json:"base_risk_level"`

	// AppliedRules lists, in order, the rules that changed the outcome.
	AppliedRules []string `json:"applied_rules,omitempty"`

	// Flags raised by policy rules.
	Flags []string `json:"flags,omitempty"`

	// Attributes supplied with the request.
	Attributes map[string]string `json:"attributes,omitempty"`

	// Thresholds in force for this decision.
	Thresholds decision.Thresholds `json:"thresholds"`

	// RuleSetVersion identifies the rule set content.
	RuleSetVersion string `json:"rule_set_version,omitempty"`

	// DecidedAt is when the engine produced the record.
	DecidedAt time.Time `json:"decided_at"`
}

// Event is a persisted audit entry.
type Event struct {
	ID          string    `json:"id"`
	Type        string    `json:"event_type"`
	RecordedAt  time.Time `json:"recorded_at"`
	Payload     Payload   `json:"payload"`
	PayloadHash string    `json:"payload_hash"`
}

// HasRule reports whether the named rule changed the outcome of this event.
func (e *Event) HasRule(name string) bool {
	for _, r := range e.Payload.AppliedRules {
		if r == name {
			return true
		}
	}
	return false
}

// Query filters events. Zero values match everything.
type Query struct {
	// Time range over RecordedAt, inclusive at both ends.
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`

	EventType string             `json:"event_type,omitempty"`
	Verdict   decision.Verdict   `json:"verdict,omitempty"`
	RiskLevel decision.RiskLevel `json:"risk_level,omitempty"`
	MediaID   string             `json:"media_id,omitempty"`
	RequestID string             `json:"request_id,omitempty"`

	// Rule matches events whose applied rules include this name.
	Rule string `json:"rule,omitempty"`

	// Pagination.
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`

	// SortOrder is "asc" or "desc" over RecordedAt.
	SortOrder string `json:"sort_order,omitempty"`
}

// Storage is an append-only event store. Implementations must be safe for
// concurrent use.
type Storage interface {
	// Append persists an event. Appending an event whose ID already exists
	// is an error.
	Append(ctx context.Context, event *Event) error

	// Query returns events matching q. Returns an empty slice if nothing
	// matches.
	Query(ctx context.Context, q *Query) ([]*Event, error)

	// QueryStream streams matching events for large result sets. Both
	// channels are closed when the query completes; errCh carries at most
	// one error.
	QueryStream(ctx context.Context, q *Query) (<-chan *Event, <-chan error, error)

	// Count returns the number of events matching q, ignoring pagination.
	Count(ctx context.Context, q *Query) (int64, error)

	// Close releases resources held by the backend.
	Close() error
}
