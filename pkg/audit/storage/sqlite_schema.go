package storage

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema creates the audit tables. recorded_at holds Unix nanoseconds so
// both drivers store and compare it identically. applied_rules_index holds
// the applied rule names as "|a|b|" for exact-name lookups.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_events (
    id TEXT PRIMARY KEY,
    event_type TEXT NOT NULL,
    recorded_at INTEGER NOT NULL,

    request_id TEXT NOT NULL,
    media_id TEXT,
    verdict TEXT NOT NULL,
    risk_level TEXT NOT NULL,
    confidence REAL NOT NULL,
    score REAL NOT NULL,
    rule_set_version TEXT,
    applied_rules_index TEXT NOT NULL DEFAULT '||',

    payload TEXT NOT NULL,
    payload_hash TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
);

CREATE TRIGGER IF NOT EXISTS audit_events_no_update
BEFORE UPDATE ON audit_events
BEGIN
    SELECT RAISE(ABORT, 'audit events are append-only');
END;

CREATE TRIGGER IF NOT EXISTS audit_events_no_delete
BEFORE DELETE ON audit_events
BEGIN
    SELECT RAISE(ABORT, 'audit events are append-only');
END;

CREATE INDEX IF NOT EXISTS idx_audit_events_recorded_at ON audit_events(recorded_at);
CREATE INDEX IF NOT EXISTS idx_audit_events_verdict ON audit_events(verdict);
CREATE INDEX IF NOT EXISTS idx_audit_events_risk_level ON audit_events(risk_level);
CREATE INDEX IF NOT EXISTS idx_audit_events_media_id ON audit_events(media_id);
CREATE INDEX IF NOT EXISTS idx_audit_events_request_id ON audit_events(request_id);
`

// InsertSchemaVersion records the schema version.
const InsertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

// GetSchemaVersion retrieves the current schema version.
const GetSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`

const insertEvent = `
INSERT INTO audit_events (
    id, event_type, recorded_at,
    request_id, media_id, verdict, risk_level, confidence, score,
    rule_set_version, applied_rules_index,
    payload, payload_hash
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const selectColumns = `id, event_type, recorded_at, payload, payload_hash`
