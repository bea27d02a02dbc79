package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/robfig/cron/v3"

	"mercator-hq/deepguard/pkg/decision"
	"mercator-hq/deepguard/pkg/explain"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "audit.backend").
	Field string

	// Message is a human-readable error message.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Unwrap exposes the field causes, so errors.As finds a
// *decision.ConfigurationError behind a threshold violation.
func (e ValidationError) Unwrap() []error {
	var causes []error
	for _, fe := range e.Errors {
		if fe.Cause != nil {
			causes = append(causes, fe.Cause)
		}
	}
	return causes
}

// Validate validates the entire configuration. All errors are collected and
// returned together as a ValidationError.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateDecision(&cfg.Decision)...)
	errs = append(errs, validatePolicy(&cfg.Policy)...)
	errs = append(errs, validateExplanation(&cfg.Explanation)...)
	errs = append(errs, validateAudit(&cfg.Audit)...)
	errs = append(errs, validateAgent(&cfg.Agent)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateDecision(cfg *DecisionConfig) []FieldError {
	if err := cfg.Thresholds.Validate(); err != nil {
		field := "decision.thresholds"
		var cfgErr *decision.ConfigurationError
		if errors.As(err, &cfgErr) {
			field = "decision." + cfgErr.Field
		}
		return []FieldError{{Field: field, Message: err.Error(), Cause: err}}
	}
	return nil
}

func validatePolicy(cfg *PolicyConfig) []FieldError {
	var errs []FieldError
	if cfg.Debounce < 0 {
		errs = append(errs, FieldError{Field: "policy.debounce", Message: "debounce must be positive"})
	}
	if cfg.Watch && cfg.RulesFile == "" {
		errs = append(errs, FieldError{Field: "policy.watch", Message: "watch requires policy.rules_file"})
	}
	return errs
}

func validateExplanation(cfg *ExplanationConfig) []FieldError {
	if _, err := explain.New(cfg.Templates); err != nil {
		return []FieldError{{Field: "explanation.templates", Message: err.Error(), Cause: err}}
	}
	return nil
}

func validateAudit(cfg *AuditConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "memory":
	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{Field: "audit.sqlite.path", Message: "path is required"})
		}
		if cfg.SQLite.Driver != "sqlite" && cfg.SQLite.Driver != "sqlite3" {
			errs = append(errs, FieldError{
				Field:   "audit.sqlite.driver",
				Message: fmt.Sprintf("invalid driver %q (must be 'sqlite' or 'sqlite3')", cfg.SQLite.Driver),
			})
		}
		if cfg.SQLite.MaxOpenConns < 1 {
			errs = append(errs, FieldError{Field: "audit.sqlite.max_open_conns", Message: "must be at least 1"})
		}
		if cfg.SQLite.MaxIdleConns < 0 || cfg.SQLite.MaxIdleConns > cfg.SQLite.MaxOpenConns {
			errs = append(errs, FieldError{Field: "audit.sqlite.max_idle_conns", Message: "must be between 0 and max_open_conns"})
		}
		if cfg.SQLite.BusyTimeout < 0 {
			errs = append(errs, FieldError{Field: "audit.sqlite.busy_timeout", Message: "busy timeout must be positive"})
		}
	case "jsonl":
		if cfg.JSONL.Path == "" {
			errs = append(errs, FieldError{Field: "audit.jsonl.path", Message: "path is required"})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "audit.backend",
			Message: fmt.Sprintf("invalid backend %q (must be 'memory', 'sqlite' or 'jsonl')", cfg.Backend),
		})
	}

	if cfg.Recorder.BufferSize < 1 {
		errs = append(errs, FieldError{Field: "audit.recorder.buffer_size", Message: "must be at least 1"})
	}
	if cfg.Recorder.EnqueueTimeout < 0 {
		errs = append(errs, FieldError{Field: "audit.recorder.enqueue_timeout", Message: "must be positive"})
	}
	if cfg.Recorder.WriteTimeout < 0 {
		errs = append(errs, FieldError{Field: "audit.recorder.write_timeout", Message: "must be positive"})
	}

	if cfg.Archive.Schedule != "" {
		if _, err := cron.ParseStandard(cfg.Archive.Schedule); err != nil {
			errs = append(errs, FieldError{Field: "audit.archive.schedule", Message: fmt.Sprintf("invalid cron expression: %v", err), Cause: err})
		}
		if cfg.Archive.Path == "" {
			errs = append(errs, FieldError{Field: "audit.archive.path", Message: "path is required when a schedule is set"})
		}
	}
	switch cfg.Archive.Format {
	case "json", "jsonl", "csv":
	default:
		errs = append(errs, FieldError{
			Field:   "audit.archive.format",
			Message: fmt.Sprintf("invalid format %q (must be 'json', 'jsonl' or 'csv')", cfg.Archive.Format),
		})
	}

	return errs
}

func validateAgent(cfg *AgentConfig) []FieldError {
	var errs []FieldError
	if cfg.Workers < 1 {
		errs = append(errs, FieldError{Field: "agent.workers", Message: "must be at least 1"})
	}
	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid level %q (must be 'debug', 'info', 'warn' or 'error')", cfg.Logging.Level),
		})
	}
	switch strings.ToLower(cfg.Logging.Format) {
	case "json", "text", "console":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid format %q (must be 'json', 'text' or 'console')", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.Enabled {
		if _, _, err := net.SplitHostPort(cfg.Metrics.ListenAddress); err != nil {
			errs = append(errs, FieldError{Field: "telemetry.metrics.listen_address", Message: fmt.Sprintf("invalid address: %v", err)})
		}
		if !strings.HasPrefix(cfg.Metrics.Path, "/") {
			errs = append(errs, FieldError{Field: "telemetry.metrics.path", Message: "path must start with /"})
		}
	}

	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, FieldError{Field: "telemetry.tracing.endpoint", Message: "endpoint is required when tracing is enabled"})
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		errs = append(errs, FieldError{Field: "telemetry.tracing.sample_ratio", Message: "must be between 0.0 and 1.0"})
	}

	if cfg.Health.CheckTimeout < 0 {
		errs = append(errs, FieldError{Field: "telemetry.health.check_timeout", Message: "must be positive"})
	}

	return errs
}
