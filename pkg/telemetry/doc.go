// Package telemetry groups the agent's observability packages.
//
//   - logging: slog construction and request-scoped attributes
//   - metrics: Prometheus collector for decisions, audit and reloads
//   - tracing: OpenTelemetry spans around each decision
//   - health: liveness and readiness checks served by the ops server
//
// Each subpackage is configured from the telemetry section of the agent
// configuration and wired together in cmd/deepguard.
package telemetry
