// Package config provides configuration management for the DeepGuard agent.
//
// Configuration is loaded from a YAML file with environment variable
// overrides:
//
//	cfg, err := config.LoadConfigWithEnvOverrides("deepguard.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention DEEPGUARD_SECTION_FIELD:
//
//   - DEEPGUARD_DECISION_HIGH_THRESHOLD overrides decision.thresholds.high
//   - DEEPGUARD_AUDIT_BACKEND overrides audit.backend
//   - DEEPGUARD_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// Environment variables always take precedence over file-based configuration.
// A value that does not parse fails the load.
//
// # Configuration Precedence
//
//  1. Default values (defaults.go)
//  2. Values from the YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// There is no global instance. The CLI loads a Config once and passes it to
// the components it builds; a reload builds a new Config.
//
// # Example Configuration
//
//	decision:
//	  thresholds:
//	    high: 0.75
//	    low: 0.25
//	  require_audit: false
//
//	policy:
//	  rules_file: "./rules.yaml"
//	  watch: true
//
//	audit:
//	  backend: "sqlite"
//	  sqlite:
//	    path: "data/audit.db"
//	  archive:
//	    schedule: "0 3 * * *"
//	    path: "data/archive"
//
//	telemetry:
//	  logging:
//	    level: "info"
//	    format: "json"
package config
