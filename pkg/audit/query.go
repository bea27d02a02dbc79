package audit

import (
	"fmt"
	"sort"
	"strings"
)

const (
	// DefaultLimit is the number of events returned when a query sets none.
	DefaultLimit = 100

	// MaxLimit is the largest page a single query may request.
	MaxLimit = 10000
)

// Sort orders.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// Validate checks the query parameters.
func (q *Query) Validate() error {
	if q.Limit < 0 {
		return NewQueryError(q, fmt.Errorf("limit must be >= 0, got %d", q.Limit))
	}
	if q.Limit > MaxLimit {
		return NewQueryError(q, fmt.Errorf("limit must be <= %d, got %d", MaxLimit, q.Limit))
	}
	if q.Offset < 0 {
		return NewQueryError(q, fmt.Errorf("offset must be >= 0, got %d", q.Offset))
	}
	if q.SortOrder != "" && q.SortOrder != SortAsc && q.SortOrder != SortDesc {
		return NewQueryError(q, fmt.Errorf("invalid sort order: %s (must be 'asc' or 'desc')", q.SortOrder))
	}
	if q.StartTime != nil && q.EndTime != nil && q.StartTime.After(*q.EndTime) {
		return NewQueryError(q, fmt.Errorf("start_time must be before end_time"))
	}
	if q.Verdict != "" && !q.Verdict.Valid() {
		return NewQueryError(q, fmt.Errorf("invalid verdict: %s", q.Verdict))
	}
	if q.RiskLevel != "" && !q.RiskLevel.Valid() {
		return NewQueryError(q, fmt.Errorf("invalid risk level: %s", q.RiskLevel))
	}
	if strings.Contains(q.Rule, "|") {
		return NewQueryError(q, fmt.Errorf("invalid rule name: %q", q.Rule))
	}
	return nil
}

// ApplyDefaults fills in the default limit and sort order.
func (q *Query) ApplyDefaults() {
	if q.Limit == 0 {
		q.Limit = DefaultLimit
	}
	if q.SortOrder == "" {
		q.SortOrder = SortDesc
	}
}

// Matches reports whether the event satisfies every filter in q. Pagination
// is ignored.
func (q *Query) Matches(e *Event) bool {
	if q == nil {
		return true
	}
	if q.StartTime != nil && e.RecordedAt.Before(*q.StartTime) {
		return false
	}
	if q.EndTime != nil && e.RecordedAt.After(*q.EndTime) {
		return false
	}
	if q.EventType != "" && e.Type != q.EventType {
		return false
	}
	if q.Verdict != "" && e.Payload.Verdict != q.Verdict {
		return false
	}
	if q.RiskLevel != "" && e.Payload.RiskLevel != q.RiskLevel {
		return false
	}
	if q.MediaID != "" && e.Payload.MediaID != q.MediaID {
		return false
	}
	if q.RequestID != "" && e.Payload.RequestID != q.RequestID {
		return false
	}
	if q.Rule != "" && !e.HasRule(q.Rule) {
		return false
	}
	return true
}

// Select filters, sorts and paginates events in memory. Backends without a
// query engine share it.
func Select(events []*Event, q *Query) []*Event {
	out := make([]*Event, 0)
	for _, e := range events {
		if q.Matches(e) {
			out = append(out, e)
		}
	}

	desc := q != nil && q.SortOrder == SortDesc
	sort.SliceStable(out, func(i, j int) bool {
		if desc {
			return out[i].RecordedAt.After(out[j].RecordedAt)
		}
		return out[i].RecordedAt.Before(out[j].RecordedAt)
	})

	if q == nil {
		return out
	}
	if q.Offset >= len(out) {
		return []*Event{}
	}
	out = out[q.Offset:]
	if q.Limit > 0 && q.Limit < len(out) {
		out = out[:q.Limit]
	}
	return out
}

// Clone returns a deep copy of the event.
func (e *Event) Clone() *Event {
	c := *e
	if e.Payload.AppliedRules != nil {
		c.Payload.AppliedRules = append([]string(nil), e.Payload.AppliedRules...)
	}
	if e.Payload.Flags != nil {
		c.Payload.Flags = append([]string(nil), e.Payload.Flags...)
	}
	if e.Payload.Attributes != nil {
		c.Payload.Attributes = make(map[string]string, len(e.Payload.Attributes))
		for k, v := range e.Payload.Attributes {
			c.Payload.Attributes[k] = v
		}
	}
	return &c
}
