package config

import "time"

// Default values for configuration fields.
const (
	// Decision defaults
	DefaultHighThreshold = 0.75
	DefaultLowThreshold  = 0.25
	DefaultRequireAudit  = false

	// Policy defaults
	DefaultPolicyWatch    = false
	DefaultPolicyDebounce = 250 * time.Millisecond

	// Audit defaults
	DefaultAuditEnabled           = true
	DefaultAuditBackend           = "sqlite"
	DefaultAuditSQLitePath        = "data/audit.db"
	DefaultAuditSQLiteDriver      = "sqlite"
	DefaultAuditSQLiteMaxOpen     = 10
	DefaultAuditSQLiteMaxIdle     = 5
	DefaultAuditSQLiteWALMode     = true
	DefaultAuditSQLiteBusy        = 5 * time.Second
	DefaultAuditJSONLPath         = "data/audit.jsonl"
	DefaultRecorderBufferSize     = 1000
	DefaultRecorderEnqueueTimeout = 100 * time.Millisecond
	DefaultRecorderWriteTimeout   = 5 * time.Second
	DefaultArchivePath            = "data/archive"
	DefaultArchiveFormat          = "jsonl"

	// Agent defaults
	DefaultAgentWorkers = 4
	DefaultAgentInput   = "-"
	DefaultAgentOutput  = "-"

	// Telemetry defaults
	DefaultLoggingLevel        = "info"
	DefaultLoggingFormat       = "json"
	DefaultMetricsEnabled      = true
	DefaultMetricsListen       = "127.0.0.1:9090"
	DefaultPrometheusPath      = "/metrics"
	DefaultMetricsNamespace    = "deepguard"
	DefaultMetricsSubsystem    = "agent"
	DefaultTracingEnabled      = false
	DefaultTracingInsecure     = true
	DefaultTracingSamplingRate = 1.0
	DefaultTracingServiceName  = "deepguard"
	DefaultHealthCheckTimeout  = 5 * time.Second
)

// Default returns a configuration with every field set to its default.
// LoadConfig decodes YAML on top of it, so booleans omitted from the file
// keep their defaults.
func Default() *Config {
	cfg := &Config{}
	cfg.Decision.RequireAudit = DefaultRequireAudit
	cfg.Policy.Watch = DefaultPolicyWatch
	cfg.Audit.Enabled = DefaultAuditEnabled
	cfg.Audit.SQLite.WALMode = DefaultAuditSQLiteWALMode
	cfg.Telemetry.Metrics.Enabled = DefaultMetricsEnabled
	cfg.Telemetry.Tracing.Enabled = DefaultTracingEnabled
	cfg.Telemetry.Tracing.Insecure = DefaultTracingInsecure
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields with their defaults. Boolean fields
// are left alone; see Default.
func ApplyDefaults(cfg *Config) {
	// Decision defaults. Both thresholds zero means the section was omitted.
	if cfg.Decision.Thresholds.High == 0 && cfg.Decision.Thresholds.Low == 0 {
		cfg.Decision.Thresholds.High = DefaultHighThreshold
		cfg.Decision.Thresholds.Low = DefaultLowThreshold
	}

	// Policy defaults
	if cfg.Policy.Debounce == 0 {
		cfg.Policy.Debounce = DefaultPolicyDebounce
	}

	// Audit defaults
	if cfg.Audit.Backend == "" {
		cfg.Audit.Backend = DefaultAuditBackend
	}
	if cfg.Audit.SQLite.Path == "" {
		cfg.Audit.SQLite.Path = DefaultAuditSQLitePath
	}
	if cfg.Audit.SQLite.Driver == "" {
		cfg.Audit.SQLite.Driver = DefaultAuditSQLiteDriver
	}
	if cfg.Audit.SQLite.MaxOpenConns == 0 {
		cfg.Audit.SQLite.MaxOpenConns = DefaultAuditSQLiteMaxOpen
	}
	if cfg.Audit.SQLite.MaxIdleConns == 0 {
		cfg.Audit.SQLite.MaxIdleConns = DefaultAuditSQLiteMaxIdle
	}
	if cfg.Audit.SQLite.BusyTimeout == 0 {
		cfg.Audit.SQLite.BusyTimeout = DefaultAuditSQLiteBusy
	}
	if cfg.Audit.JSONL.Path == "" {
		cfg.Audit.JSONL.Path = DefaultAuditJSONLPath
	}
	if cfg.Audit.Recorder.BufferSize == 0 {
		cfg.Audit.Recorder.BufferSize = DefaultRecorderBufferSize
	}
	if cfg.Audit.Recorder.EnqueueTimeout == 0 {
		cfg.Audit.Recorder.EnqueueTimeout = DefaultRecorderEnqueueTimeout
	}
	if cfg.Audit.Recorder.WriteTimeout == 0 {
		cfg.Audit.Recorder.WriteTimeout = DefaultRecorderWriteTimeout
	}
	if cfg.Audit.Archive.Path == "" {
		cfg.Audit.Archive.Path = DefaultArchivePath
	}
	if cfg.Audit.Archive.Format == "" {
		cfg.Audit.Archive.Format = DefaultArchiveFormat
	}

	// Agent defaults
	if cfg.Agent.Workers == 0 {
		cfg.Agent.Workers = DefaultAgentWorkers
	}
	if cfg.Agent.Input == "" {
		cfg.Agent.Input = DefaultAgentInput
	}
	if cfg.Agent.Output == "" {
		cfg.Agent.Output = DefaultAgentOutput
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.ListenAddress == "" {
		cfg.Telemetry.Metrics.ListenAddress = DefaultMetricsListen
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultPrometheusPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Telemetry.Metrics.Subsystem == "" {
		cfg.Telemetry.Metrics.Subsystem = DefaultMetricsSubsystem
	}
	if cfg.Telemetry.Tracing.SampleRatio == 0 {
		cfg.Telemetry.Tracing.SampleRatio = DefaultTracingSamplingRate
	}
	if cfg.Telemetry.Tracing.ServiceName == "" {
		cfg.Telemetry.Tracing.ServiceName = DefaultTracingServiceName
	}
	if cfg.Telemetry.Health.CheckTimeout == 0 {
		cfg.Telemetry.Health.CheckTimeout = DefaultHealthCheckTimeout
	}
}
