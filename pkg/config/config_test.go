package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mercator-hq/deepguard/pkg/decision"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "deepguard.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Decision.Thresholds != decision.DefaultThresholds() {
		t.Errorf("Thresholds = %+v, want defaults", cfg.Decision.Thresholds)
	}
	if !cfg.Audit.Enabled {
		t.Error("Audit.Enabled should default to true")
	}
	if cfg.Audit.Backend != DefaultAuditBackend {
		t.Errorf("Audit.Backend = %q, want %q", cfg.Audit.Backend, DefaultAuditBackend)
	}
	if !cfg.Audit.SQLite.WALMode {
		t.Error("Audit.SQLite.WALMode should default to true")
	}
	if cfg.Agent.Workers != DefaultAgentWorkers {
		t.Errorf("Agent.Workers = %d, want %d", cfg.Agent.Workers, DefaultAgentWorkers)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("Validate(Default()) error = %v", err)
	}
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
decision:
  thresholds:
    high: 0.8
    low: 0.2
  require_audit: true
policy:
  rules_file: rules.yaml
  watch: true
explanation:
  templates:
    risk:
      high: "Risk level is {{.Risk}}: block it."
audit:
  backend: jsonl
  jsonl:
    path: /tmp/audit.jsonl
  recorder:
    buffer_size: 50
agent:
  workers: 8
telemetry:
  logging:
    level: debug
    format: text
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Decision.Thresholds.High != 0.8 || cfg.Decision.Thresholds.Low != 0.2 {
		t.Errorf("Thresholds = %+v", cfg.Decision.Thresholds)
	}
	if !cfg.Decision.RequireAudit {
		t.Error("RequireAudit = false, want true")
	}
	if cfg.Policy.RulesFile != "rules.yaml" || !cfg.Policy.Watch {
		t.Errorf("Policy = %+v", cfg.Policy)
	}
	if cfg.Policy.Debounce != DefaultPolicyDebounce {
		t.Errorf("Debounce = %v, want default", cfg.Policy.Debounce)
	}
	if cfg.Audit.Backend != "jsonl" || cfg.Audit.JSONL.Path != "/tmp/audit.jsonl" {
		t.Errorf("Audit = %+v", cfg.Audit)
	}
	if !cfg.Audit.Enabled {
		t.Error("Audit.Enabled omitted from file should keep default true")
	}
	if cfg.Audit.Recorder.BufferSize != 50 || cfg.Audit.Recorder.WriteTimeout != DefaultRecorderWriteTimeout {
		t.Errorf("Recorder = %+v", cfg.Audit.Recorder)
	}
	if cfg.Explanation.Templates.Risk["high"] == "" {
		t.Error("explanation override not loaded")
	}
	if cfg.Agent.Workers != 8 {
		t.Errorf("Workers = %d, want 8", cfg.Agent.Workers)
	}
	if cfg.Telemetry.Logging.Level != "debug" || cfg.Telemetry.Logging.Format != "text" {
		t.Errorf("Logging = %+v", cfg.Telemetry.Logging)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"malformed yaml", "decision: [", "failed to parse"},
		{"inverted thresholds", "decision:\n  thresholds:\n    high: 0.3\n    low: 0.6\n", "decision.thresholds"},
		{"threshold out of range", "decision:\n  thresholds:\n    high: 1.5\n    low: 0.2\n", "decision.thresholds.high"},
		{"unknown backend", "audit:\n  backend: postgres\n", "audit.backend"},
		{"bad driver", "audit:\n  sqlite:\n    driver: mysql\n", "audit.sqlite.driver"},
		{"bad schedule", "audit:\n  archive:\n    schedule: sometimes\n", "audit.archive.schedule"},
		{"bad level", "telemetry:\n  logging:\n    level: loud\n", "telemetry.logging.level"},
		{"tracing without endpoint", "telemetry:\n  tracing:\n    enabled: true\n", "telemetry.tracing.endpoint"},
		{"watch without file", "policy:\n  watch: true\n", "policy.watch"},
		{"negative workers", "agent:\n  workers: -1\n", "agent.workers"},
		{"bad template", "explanation:\n  templates:\n    verdict:\n      deepfake: \"{{.Nope\"\n", "explanation.templates"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("LoadConfig() error = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("LoadConfig() error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestLoadConfig_ThresholdsAreConfigurationErrors(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "decision:\n  thresholds:\n    high: 0.3\n    low: 0.6\n"))

	var cfgErr *decision.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("error = %v, want *decision.ConfigurationError in chain", err)
	}
	if !errors.Is(err, decision.ErrConfiguration) {
		t.Error("errors.Is(err, ErrConfiguration) = false")
	}
}

func TestLoadConfig_NotFound(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("LoadConfig() error = %v, want os.ErrNotExist", err)
	}
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	path := writeConfig(t, "audit:\n  backend: sqlite\n")

	t.Setenv("DEEPGUARD_DECISION_HIGH_THRESHOLD", "0.9")
	t.Setenv("DEEPGUARD_DECISION_LOW_THRESHOLD", "0.1")
	t.Setenv("DEEPGUARD_AUDIT_BACKEND", "memory")
	t.Setenv("DEEPGUARD_AUDIT_ENABLED", "false")
	t.Setenv("DEEPGUARD_POLICY_DEBOUNCE", "1s")
	t.Setenv("DEEPGUARD_AGENT_WORKERS", "2")
	t.Setenv("DEEPGUARD_TELEMETRY_LOGGING_LEVEL", "warn")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides() error = %v", err)
	}

	if cfg.Decision.Thresholds.High != 0.9 || cfg.Decision.Thresholds.Low != 0.1 {
		t.Errorf("Thresholds = %+v", cfg.Decision.Thresholds)
	}
	if cfg.Audit.Backend != "memory" || cfg.Audit.Enabled {
		t.Errorf("Audit = backend %q enabled %t", cfg.Audit.Backend, cfg.Audit.Enabled)
	}
	if cfg.Policy.Debounce != time.Second {
		t.Errorf("Debounce = %v, want 1s", cfg.Policy.Debounce)
	}
	if cfg.Agent.Workers != 2 {
		t.Errorf("Workers = %d, want 2", cfg.Agent.Workers)
	}
	if cfg.Telemetry.Logging.Level != "warn" {
		t.Errorf("Level = %q, want warn", cfg.Telemetry.Logging.Level)
	}
}

func TestLoadConfigWithEnvOverrides_NoFile(t *testing.T) {
	t.Setenv("DEEPGUARD_AUDIT_BACKEND", "memory")

	cfg, err := LoadConfigWithEnvOverrides("")
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides(\"\") error = %v", err)
	}
	if cfg.Audit.Backend != "memory" {
		t.Errorf("Backend = %q, want memory", cfg.Audit.Backend)
	}
}

func TestLoadConfigWithEnvOverrides_BadValue(t *testing.T) {
	t.Setenv("DEEPGUARD_AGENT_WORKERS", "many")

	_, err := LoadConfigWithEnvOverrides("")
	if err == nil || !strings.Contains(err.Error(), "DEEPGUARD_AGENT_WORKERS") {
		t.Errorf("error = %v, want mention of DEEPGUARD_AGENT_WORKERS", err)
	}
}

func TestValidationError_Format(t *testing.T) {
	err := ValidationError{Errors: []FieldError{
		{Field: "a", Message: "first"},
		{Field: "b", Message: "second"},
	}}
	msg := err.Error()
	if !strings.Contains(msg, "2 errors") || !strings.Contains(msg, "a: first") || !strings.Contains(msg, "b: second") {
		t.Errorf("Error() = %q", msg)
	}
}

func TestLoadConfig_SampleFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("..", "..", "configs", "deepguard.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig(sample) error = %v", err)
	}
	if cfg.Policy.Debounce != 250*time.Millisecond {
		t.Errorf("Policy.Debounce = %v, want 250ms", cfg.Policy.Debounce)
	}
	if cfg.Telemetry.Health.CheckTimeout != 2*time.Second {
		t.Errorf("Health.CheckTimeout = %v, want 2s", cfg.Telemetry.Health.CheckTimeout)
	}
}
