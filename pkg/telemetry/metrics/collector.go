package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"mercator-hq/deepguard/pkg/config"
	"mercator-hq/deepguard/pkg/decision"
)

// maxRuleLabels bounds the number of distinct rule label values.
const maxRuleLabels = 256

// otherRule is the label used once maxRuleLabels is reached.
const otherRule = "other"

// Collector owns the agent's Prometheus metrics. It implements the decision
// engine's Observer and the audit recorder's Observer.
//
// Metrics (namespace and subsystem from config, default deepguard_agent_):
//   - decisions_total{verdict,risk_level}
//   - decision_duration_seconds
//   - decision_confidence
//   - decision_errors_total{kind}
//   - rule_overrides_total{rule}
//   - audit_events_total{status}
//   - thresholds{bound}
//   - reloads_total{result}
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	decisionsTotal   *prometheus.CounterVec
	decisionDuration prometheus.Histogram
	confidence       prometheus.Histogram
	errorsTotal      *prometheus.CounterVec
	overridesTotal   *prometheus.CounterVec
	auditTotal       *prometheus.CounterVec
	thresholds       *prometheus.GaugeVec
	reloadsTotal     *prometheus.CounterVec

	ruleLimiter *CardinalityLimiter
}

// NewCollector creates a metrics collector registered with registry. If
// registry is nil a new one is created with the Go and process collectors.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	c := *cfg
	if c.Namespace == "" {
		c.Namespace = config.DefaultMetricsNamespace
	}
	if c.Subsystem == "" {
		c.Subsystem = config.DefaultMetricsSubsystem
	}

	opts := func(name, help string) prometheus.Opts {
		return prometheus.Opts{Namespace: c.Namespace, Subsystem: c.Subsystem, Name: name, Help: help}
	}

	col := &Collector{
		config:   &c,
		registry: registry,

		decisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts(opts("decisions_total", "Total decisions by final verdict and risk level")),
			[]string{"verdict", "risk_level"},
		),
		decisionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: c.Namespace,
			Subsystem: c.Subsystem,
			Name:      "decision_duration_seconds",
			Help:      "Time to produce a decision, including the audit enqueue",
			// Decisions are in-memory; 10µs to ~160ms.
			Buckets: prometheus.ExponentialBuckets(0.00001, 2, 15),
		}),
		confidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: c.Namespace,
			Subsystem: c.Subsystem,
			Name:      "decision_confidence",
			Help:      "Distribution of input confidence scores",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 9),
		}),
		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts(opts("decision_errors_total", "Failed decisions and audit failures by error kind")),
			[]string{"kind"},
		),
		overridesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts(opts("rule_overrides_total", "Decisions changed by each policy rule")),
			[]string{"rule"},
		),
		auditTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts(opts("audit_events_total", "Audit events by outcome (recorded, dropped, failed)")),
			[]string{"status"},
		),
		thresholds: prometheus.NewGaugeVec(
			prometheus.GaugeOpts(opts("thresholds", "Classification thresholds in force")),
			[]string{"bound"},
		),
		reloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts(opts("reloads_total", "Configuration and rule reloads by result")),
			[]string{"result"},
		),

		ruleLimiter: NewCardinalityLimiter(maxRuleLabels),
	}

	registry.MustRegister(
		col.decisionsTotal,
		col.decisionDuration,
		col.confidence,
		col.errorsTotal,
		col.overridesTotal,
		col.auditTotal,
		col.thresholds,
		col.reloadsTotal,
	)

	return col
}

// Registry returns the registry the collector is registered with.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveDecision records a successful decision.
func (c *Collector) ObserveDecision(rec decision.Record, appliedRules []string, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.decisionsTotal.WithLabelValues(string(rec.Verdict), string(rec.RiskLevel)).Inc()
	c.decisionDuration.Observe(duration.Seconds())
	c.confidence.Observe(rec.Confidence)
	for _, rule := range appliedRules {
		if !c.ruleLimiter.Allow(rule) {
			rule = otherRule
		}
		c.overridesTotal.WithLabelValues(rule).Inc()
	}
}

// ObserveError records a failure by kind (see decision.Kind).
func (c *Collector) ObserveError(kind string) {
	if !c.config.Enabled {
		return
	}
	c.errorsTotal.WithLabelValues(kind).Inc()
}

// ObserveAudit records the outcome of one audit event.
func (c *Collector) ObserveAudit(status string) {
	if !c.config.Enabled {
		return
	}
	c.auditTotal.WithLabelValues(status).Inc()
}

// SetThresholds publishes the thresholds in force.
func (c *Collector) SetThresholds(t decision.Thresholds) {
	if !c.config.Enabled {
		return
	}
	c.thresholds.WithLabelValues("high").Set(t.High)
	c.thresholds.WithLabelValues("low").Set(t.Low)
}

// ObserveReload records a reload attempt.
func (c *Collector) ObserveReload(err error) {
	if !c.config.Enabled {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	c.reloadsTotal.WithLabelValues(result).Inc()
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique label values.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the specified
// maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether a label value may be used: it was seen before or
// the limit has not been reached.
func (cl *CardinalityLimiter) Allow(label string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[label]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.current[label]; exists {
		return true
	}
	if len(cl.current) >= cl.maxCardinality {
		return false
	}
	cl.current[label] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
