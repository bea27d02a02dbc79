package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment variable overrides.
const EnvPrefix = "DEEPGUARD_"

// LoadConfig loads configuration from a YAML file at the specified path.
// Values omitted from the file keep their defaults. The result is validated.
// Environment variables are not consulted; use LoadConfigWithEnvOverrides.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Parse decodes YAML on top of the defaults without validating.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Variables follow DEEPGUARD_SECTION_FIELD
// (e.g. DEEPGUARD_DECISION_HIGH_THRESHOLD) and always win over the file.
// An empty path starts from the defaults.
//
// The loading sequence is:
// 1. Load YAML from file (or defaults)
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	var cfg *Config
	if path == "" {
		cfg = Default()
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		}
		cfg, err = Parse(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// envOverride binds one environment variable to a config field.
type envOverride struct {
	name  string
	apply func(cfg *Config, val string) error
}

func stringVar(set func(*Config, string)) func(*Config, string) error {
	return func(cfg *Config, val string) error {
		set(cfg, val)
		return nil
	}
}

func boolVar(set func(*Config, bool)) func(*Config, string) error {
	return func(cfg *Config, val string) error {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return err
		}
		set(cfg, b)
		return nil
	}
}

func intVar(set func(*Config, int)) func(*Config, string) error {
	return func(cfg *Config, val string) error {
		i, err := strconv.Atoi(val)
		if err != nil {
			return err
		}
		set(cfg, i)
		return nil
	}
}

func floatVar(set func(*Config, float64)) func(*Config, string) error {
	return func(cfg *Config, val string) error {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return err
		}
		set(cfg, f)
		return nil
	}
}

func durationVar(set func(*Config, time.Duration)) func(*Config, string) error {
	return func(cfg *Config, val string) error {
		d, err := time.ParseDuration(val)
		if err != nil {
			return err
		}
		set(cfg, d)
		return nil
	}
}

var envOverrides = []envOverride{
	// Decision
	{"DECISION_HIGH_THRESHOLD", floatVar(func(c *Config, v float64) { c.Decision.Thresholds.High = v })},
	{"DECISION_LOW_THRESHOLD", floatVar(func(c *Config, v float64) { c.Decision.Thresholds.Low = v })},
	{"DECISION_REQUIRE_AUDIT", boolVar(func(c *Config, v bool) { c.Decision.RequireAudit = v })},

	// Policy
	{"POLICY_RULES_FILE", stringVar(func(c *Config, v string) { c.Policy.RulesFile = v })},
	{"POLICY_WATCH", boolVar(func(c *Config, v bool) { c.Policy.Watch = v })},
	{"POLICY_DEBOUNCE", durationVar(func(c *Config, v time.Duration) { c.Policy.Debounce = v })},

	// Audit
	{"AUDIT_ENABLED", boolVar(func(c *Config, v bool) { c.Audit.Enabled = v })},
	{"AUDIT_BACKEND", stringVar(func(c *Config, v string) { c.Audit.Backend = v })},
	{"AUDIT_SQLITE_PATH", stringVar(func(c *Config, v string) { c.Audit.SQLite.Path = v })},
	{"AUDIT_SQLITE_DRIVER", stringVar(func(c *Config, v string) { c.Audit.SQLite.Driver = v })},
	{"AUDIT_JSONL_PATH", stringVar(func(c *Config, v string) { c.Audit.JSONL.Path = v })},
	{"AUDIT_JSONL_SYNC", boolVar(func(c *Config, v bool) { c.Audit.JSONL.Sync = v })},
	{"AUDIT_RECORDER_BUFFER_SIZE", intVar(func(c *Config, v int) { c.Audit.Recorder.BufferSize = v })},
	{"AUDIT_ARCHIVE_SCHEDULE", stringVar(func(c *Config, v string) { c.Audit.Archive.Schedule = v })},
	{"AUDIT_ARCHIVE_PATH", stringVar(func(c *Config, v string) { c.Audit.Archive.Path = v })},

	// Agent
	{"AGENT_WORKERS", intVar(func(c *Config, v int) { c.Agent.Workers = v })},
	{"AGENT_INPUT", stringVar(func(c *Config, v string) { c.Agent.Input = v })},
	{"AGENT_OUTPUT", stringVar(func(c *Config, v string) { c.Agent.Output = v })},

	// Telemetry
	{"TELEMETRY_LOGGING_LEVEL", stringVar(func(c *Config, v string) { c.Telemetry.Logging.Level = v })},
	{"TELEMETRY_LOGGING_FORMAT", stringVar(func(c *Config, v string) { c.Telemetry.Logging.Format = v })},
	{"TELEMETRY_METRICS_ENABLED", boolVar(func(c *Config, v bool) { c.Telemetry.Metrics.Enabled = v })},
	{"TELEMETRY_METRICS_LISTEN_ADDRESS", stringVar(func(c *Config, v string) { c.Telemetry.Metrics.ListenAddress = v })},
	{"TELEMETRY_TRACING_ENABLED", boolVar(func(c *Config, v bool) { c.Telemetry.Tracing.Enabled = v })},
	{"TELEMETRY_TRACING_ENDPOINT", stringVar(func(c *Config, v string) { c.Telemetry.Tracing.Endpoint = v })},
	{"TELEMETRY_TRACING_SAMPLE_RATIO", floatVar(func(c *Config, v float64) { c.Telemetry.Tracing.SampleRatio = v })},
}

// applyEnvOverrides applies DEEPGUARD_* environment variables. A value that
// does not parse is an error rather than silently ignored.
func applyEnvOverrides(cfg *Config) error {
	var errs []FieldError
	for _, o := range envOverrides {
		val, ok := os.LookupEnv(EnvPrefix + o.name)
		if !ok || val == "" {
			continue
		}
		if err := o.apply(cfg, val); err != nil {
			errs = append(errs, FieldError{Field: EnvPrefix + o.name, Message: fmt.Sprintf("invalid value %q", val), Cause: err})
		}
	}
	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}
