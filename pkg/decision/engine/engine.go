package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/deepguard/pkg/audit"
	"mercator-hq/deepguard/pkg/decision"
	"mercator-hq/deepguard/pkg/policy"
	"mercator-hq/deepguard/pkg/telemetry/tracing"
)

// SpanName is the name of the span wrapping each decision.
const SpanName = "decision.decide"

// Rules transforms a base assessment. *policy.RuleSet implements it.
type Rules interface {
	Apply(a decision.Assessment) (policy.Result, error)
	Version() string
}

// Explainer renders the explanation for a final verdict and risk level.
// *explain.Synthesizer implements it.
type Explainer interface {
	Explain(verdict decision.Verdict, confidence float64, risk decision.RiskLevel) (string, error)
}

// Observer receives decision outcomes, typically a metrics collector.
type Observer interface {
	// ObserveDecision is called once per successful decision.
	ObserveDecision(rec decision.Record, appliedRules []string, duration time.Duration)

	// ObserveError is called with decision.Kind(err) for each failure,
	// including audit failures that did not fail the decision.
	ObserveError(kind string)
}

// Decider is the operation exposed by Engine and Handle.
type Decider interface {
	Evaluate(ctx context.Context, req *decision.Request) (decision.Record, error)
}

// Engine turns a score into a decision record. It is immutable after
// construction and safe for concurrent use.
type Engine struct {
	config    Config
	rules     Rules
	explainer Explainer
	sink      audit.Sink
	logger    *slog.Logger
	tracer    trace.Tracer
	observer  Observer

	now   func() time.Time
	newID func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithTracer sets the tracer used for the decision span.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		if tracer != nil {
			e.tracer = tracer
		}
	}
}

// WithObserver sets the outcome observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New creates a decision engine. A nil config uses DefaultConfig, nil rules
// apply no overrides. The explainer and sink are required; pass audit.Discard
// to run without an audit trail.
func New(config *Config, rules Rules, explainer Explainer, sink audit.Sink, opts ...Option) (*Engine, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if explainer == nil {
		return nil, &decision.ConfigurationError{Field: "explainer", Reason: "explanation synthesizer is required"}
	}
	if sink == nil {
		return nil, &decision.ConfigurationError{Field: "audit", Reason: "audit sink is required"}
	}
	if rules == nil {
		rules = policy.Empty()
	}

	e := &Engine{
		config:    *config,
		rules:     rules,
		explainer: explainer,
		sink:      sink,
		logger:    slog.Default(),
		tracer:    otel.Tracer("mercator-hq/deepguard/engine"),
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "decision.engine")

	e.logger.Debug("decision engine created",
		"high_threshold", e.config.Thresholds.High,
		"low_threshold", e.config.Thresholds.Low,
		"require_audit", e.config.RequireAudit,
		"rule_set_version", rules.Version(),
	)

	return e, nil
}

// Thresholds returns the thresholds in force.
func (e *Engine) Thresholds() decision.Thresholds {
	return e.config.Thresholds
}

// RuleSetVersion returns the version of the rule set in force.
func (e *Engine) RuleSetVersion() string {
	return e.rules.Version()
}

// Decide classifies a bare score.
func (e *Engine) Decide(ctx context.Context, score float64) (decision.Record, error) {
	return e.Evaluate(ctx, &decision.Request{Score: score})
}

// Evaluate classifies a request: validate, classify against the thresholds,
// apply the rules, render the explanation from the post-rule state, record
// exactly one audit event, and return the record.
//
// On validation, rule or synthesis failure no event is emitted.
func (e *Engine) Evaluate(ctx context.Context, req *decision.Request) (decision.Record, error) {
	if req == nil {
		err := &decision.ValidationError{Reason: "request is nil"}
		if e.observer != nil {
			e.observer.ObserveError(decision.Kind(err))
		}
		return decision.Record{}, err
	}
	start := e.now()

	ctx, span := e.tracer.Start(ctx, SpanName, trace.WithAttributes(tracing.RequestAttributes(req)...))
	defer span.End()

	rec, applied, err := e.evaluate(ctx, req, start)
	if err != nil {
		kind := decision.Kind(err)
		tracing.SetError(span, err)
		tracing.SetErrorKind(span, kind)
		tracing.SetStatus(span, err)
		if e.observer != nil {
			e.observer.ObserveError(kind)
		}
		e.logger.Warn("decision failed",
			"request_id", req.RequestID,
			"media_id", req.MediaID,
			"kind", kind,
			"error", err,
		)
		return decision.Record{}, err
	}

	tracing.SetDecisionAttributes(span, rec, applied)
	tracing.SetStatus(span, nil)

	if e.observer != nil {
		e.observer.ObserveDecision(rec, applied, e.now().Sub(start))
	}
	return rec, nil
}

func (e *Engine) evaluate(ctx context.Context, req *decision.Request, start time.Time) (decision.Record, []string, error) {
	if err := decision.ValidateScore(req.Score); err != nil {
		return decision.Record{}, nil, err
	}

	baseVerdict, baseRisk := e.config.Thresholds.Classify(req.Score)

	result, err := e.rules.Apply(decision.Assessment{
		Verdict:    baseVerdict,
		Confidence: req.Score,
		Risk:       baseRisk,
		Attributes: req.Attributes,
	})
	if err != nil {
		return decision.Record{}, nil, err
	}

	text, err := e.explainer.Explain(result.Verdict, req.Score, result.Risk)
	if err != nil {
		return decision.Record{}, nil, err
	}

	rec := decision.Record{
		Verdict:     result.Verdict,
		Confidence:  decision.RoundConfidence(req.Score),
		RiskLevel:   result.Risk,
		Explanation: text,
	}

	requestID := req.RequestID
	if requestID == "" {
		requestID = e.newID()
	}

	payload := &audit.Payload{
		RequestID:      requestID,
		MediaID:        req.MediaID,
		Record:         rec,
		Score:          req.Score,
		BaseVerdict:    baseVerdict,
		BaseRiskLevel:  baseRisk,
		AppliedRules:   result.Applied,
		Flags:          result.Flags,
		Attributes:     req.Attributes,
		Thresholds:     e.config.Thresholds,
		RuleSetVersion: e.rules.Version(),
		DecidedAt:      start.UTC(),
	}

	if err := e.sink.Record(ctx, audit.EventDecisionMade, payload); err != nil {
		auditErr := &decision.AuditError{EventType: audit.EventDecisionMade, Cause: err}
		if e.config.RequireAudit {
			return decision.Record{}, nil, auditErr
		}
		if e.observer != nil {
			e.observer.ObserveError(decision.Kind(auditErr))
		}
		e.logger.Error("audit event not recorded",
			"request_id", requestID,
			"verdict", rec.Verdict,
			"error", err,
		)
	}

	e.logger.Debug("decision made",
		"request_id", requestID,
		"media_id", req.MediaID,
		"score", req.Score,
		"base_verdict", baseVerdict,
		"verdict", rec.Verdict,
		"risk_level", rec.RiskLevel,
		"applied_rules", result.Applied,
	)

	return rec, result.Applied, nil
}
