package config

import (
	"time"

	"mercator-hq/deepguard/pkg/decision"
	"mercator-hq/deepguard/pkg/explain"
)

// Config is the root configuration structure for the DeepGuard agent.
type Config struct {
	// Decision contains the classification thresholds and audit policy.
	Decision DecisionConfig `yaml:"decision"`

	// Policy contains the rule file location and reload settings.
	Policy PolicyConfig `yaml:"policy"`

	// Explanation contains template overrides for the explanation text.
	Explanation ExplanationConfig `yaml:"explanation"`

	// Audit contains audit storage, recorder and archive configuration.
	Audit AuditConfig `yaml:"audit"`

	// Agent contains the NDJSON agent loop configuration.
	Agent AgentConfig `yaml:"agent"`

	// Telemetry contains logging, metrics, tracing and health configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// DecisionConfig contains decision engine configuration.
type DecisionConfig struct {
	// Thresholds are the classification cut points.
	// Default: high 0.75, low 0.25
	Thresholds decision.Thresholds `yaml:"thresholds"`

	// RequireAudit fails a decision when its audit event cannot be recorded.
	// Default: false
	RequireAudit bool `yaml:"require_audit"`
}

// PolicyConfig contains policy rule configuration.
type PolicyConfig struct {
	// RulesFile is the path to the YAML rules file. Empty runs with no
	// override rules.
	RulesFile string `yaml:"rules_file"`

	// Watch reloads the rules file when it changes.
	// Default: false
	Watch bool `yaml:"watch"`

	// Debounce collapses bursts of file events into one reload.
	// Default: 250ms
	Debounce time.Duration `yaml:"debounce"`
}

// ExplanationConfig contains explanation synthesizer configuration.
type ExplanationConfig struct {
	// Templates override the built-in sentences per verdict and risk level.
	Templates explain.Templates `yaml:"templates"`
}

// AuditConfig contains audit trail configuration.
type AuditConfig struct {
	// Enabled controls whether decisions are recorded.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Backend selects the storage backend.
	// Options: "memory", "sqlite", "jsonl"
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// SQLite contains SQLite backend configuration.
	SQLite SQLiteConfig `yaml:"sqlite"`

	// JSONL contains JSON Lines backend configuration.
	JSONL JSONLConfig `yaml:"jsonl"`

	// Recorder contains async recorder configuration.
	Recorder RecorderConfig `yaml:"recorder"`

	// Archive contains scheduled archive configuration.
	Archive ArchiveConfig `yaml:"archive"`
}

// SQLiteConfig contains SQLite-specific configuration.
type SQLiteConfig struct {
	// Path is the database file.
	// Default: "data/audit.db"
	Path string `yaml:"path"`

	// Driver selects the database/sql driver.
	// Options: "sqlite" (pure Go), "sqlite3" (cgo)
	// Default: "sqlite"
	Driver string `yaml:"driver"`

	// MaxOpenConns is the maximum number of open connections.
	// Default: 10
	MaxOpenConns int `yaml:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int `yaml:"max_idle_conns"`

	// WALMode enables write-ahead logging.
	// Default: true
	WALMode bool `yaml:"wal_mode"`

	// BusyTimeout is how long to wait on a locked database.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// JSONLConfig contains JSON Lines backend configuration.
type JSONLConfig struct {
	// Path is the log file.
	// Default: "data/audit.jsonl"
	Path string `yaml:"path"`

	// Sync fsyncs after every append.
	// Default: false
	Sync bool `yaml:"sync"`
}

// RecorderConfig contains async recorder configuration.
type RecorderConfig struct {
	// BufferSize is the capacity of the event queue.
	// Default: 1000
	BufferSize int `yaml:"buffer_size"`

	// EnqueueTimeout bounds how long Record waits on a full queue.
	// Default: 100ms
	EnqueueTimeout time.Duration `yaml:"enqueue_timeout"`

	// WriteTimeout bounds each storage write.
	// Default: 5s
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// ArchiveConfig contains scheduled archive configuration.
type ArchiveConfig struct {
	// Schedule is a cron expression. Empty disables scheduled archiving.
	// Example: "0 3 * * *"
	Schedule string `yaml:"schedule"`

	// Path is the archive directory.
	// Default: "data/archive"
	Path string `yaml:"path"`

	// Format is the archive file format.
	// Options: "json", "jsonl", "csv"
	// Default: "jsonl"
	Format string `yaml:"format"`
}

// AgentConfig contains agent loop configuration.
type AgentConfig struct {
	// Workers is the number of concurrent decision workers.
	// Default: 4
	Workers int `yaml:"workers"`

	// Input is the NDJSON request source. "-" reads stdin.
	// Default: "-"
	Input string `yaml:"input"`

	// Output is the NDJSON result sink. "-" writes stdout.
	// Default: "-"
	Output string `yaml:"output"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
	Health  HealthConfig  `yaml:"health"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text", "console"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig contains metrics and ops server configuration.
type MetricsConfig struct {
	// Enabled controls whether the ops server (metrics and health) runs.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// ListenAddress is the ops server address.
	// Default: "127.0.0.1:9090"
	ListenAddress string `yaml:"listen_address"`

	// Path is the Prometheus endpoint path.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "deepguard"
	Namespace string `yaml:"namespace"`

	// Subsystem is the metric subsystem name.
	// Default: "agent"
	Subsystem string `yaml:"subsystem"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether spans are exported.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP gRPC collector endpoint.
	// Example: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS for the OTLP connection.
	// Default: true
	Insecure bool `yaml:"insecure"`

	// SampleRatio is the fraction of decisions traced (0.0 to 1.0).
	// Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio"`

	// ServiceName is the service name in traces.
	// Default: "deepguard"
	ServiceName string `yaml:"service_name"`
}

// HealthConfig contains health check configuration.
type HealthConfig struct {
	// CheckTimeout bounds each component health check.
	// Default: 5s
	CheckTimeout time.Duration `yaml:"check_timeout"`
}
