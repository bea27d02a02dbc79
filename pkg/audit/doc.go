// Package audit defines the audit trail for decisions: the event shape, the
// sink the decision engine reports to, and the append-only storage contract.
//
// # Events
//
// Every successful decision produces exactly one DECISION_MADE event. The
// payload carries the caller-facing record plus its provenance: the raw
// score, the base classification, the rules that changed it, the thresholds
// and the rule set version in force.
//
// # Sinks
//
// The engine depends only on Sink. Implementations include:
//   - recorder.Recorder: asynchronous, buffered writer to a Storage backend
//   - SinkFunc: adapter for tests and custom integrations
//   - Discard: drops every event
//   - Multi: fans an event out to several sinks
//
// # Storage
//
// Storage is append-only. Backends live in the storage subpackage (memory,
// SQLite, JSON Lines). There is no delete operation; old events are copied
// out by the archive subpackage instead.
package audit
