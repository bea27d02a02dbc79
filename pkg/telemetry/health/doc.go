// Package health provides liveness and readiness probes for the agent.
//
// Endpoints:
//
//   - /health: the process is up
//   - /ready: the engine is loaded and the audit trail is writable
//   - /version: build information
//
// Usage:
//
//	checker := health.New(cfg.Telemetry.Health.CheckTimeout)
//	checker.RegisterCheck("engine", health.EngineCheck(handle))
//	checker.RegisterCheck("audit_storage", health.StorageCheck(store))
//	checker.RegisterCheck("audit_recorder", health.RecorderCheck(rec))
//	health.Register(mux, checker, version, commit, buildTime)
package health
