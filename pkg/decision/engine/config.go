package engine

import (
	"mercator-hq/deepguard/pkg/decision"
)

// Config contains configuration for the decision engine.
type Config struct {
	// Thresholds are the cut points for base classification. Copied at
	// construction; the engine never observes later changes.
	// Default: high 0.75, low 0.25.
	Thresholds decision.Thresholds

	// RequireAudit makes a failed audit write fail the decision with
	// *decision.AuditError. When false, the failure is logged and counted
	// and the record is returned.
	// Default: false.
	RequireAudit bool
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() *Config {
	return &Config{
		Thresholds:   decision.DefaultThresholds(),
		RequireAudit: false,
	}
}

// Validate validates the engine configuration.
func (c *Config) Validate() error {
	return c.Thresholds.Validate()
}

// WithThresholds sets the classification thresholds.
func (c *Config) WithThresholds(high, low float64) *Config {
	c.Thresholds = decision.Thresholds{High: high, Low: low}
	return c
}

// WithRequireAudit sets whether audit failures fail the decision.
func (c *Config) WithRequireAudit(require bool) *Config {
	c.RequireAudit = require
	return c
}
