// Package storage provides append-only backends for audit events.
//
// # Backends
//
//   - MemoryStorage: in-process, for tests and the one-shot CLI
//   - SQLiteStorage: durable, indexed, WAL mode; runs on either the cgo
//     driver (github.com/mattn/go-sqlite3, driver name "sqlite3") or the pure
//     Go driver (modernc.org/sqlite, driver name "sqlite")
//   - JSONLStorage: one JSON event per line, easy to ship to log pipelines
//
// No backend supports deletion or update. The SQLite schema enforces this
// with triggers, so even direct SQL cannot rewrite history.
//
// # Usage
//
//	store, err := storage.NewSQLiteStorage(&storage.SQLiteConfig{Path: "data/audit.db"})
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	events, err := store.Query(ctx, &audit.Query{Verdict: decision.VerdictDeepfake, Limit: 50})
package storage
