package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"mercator-hq/deepguard/pkg/audit"
)

// Supported database/sql driver names.
const (
	DriverCGO    = "sqlite3" // github.com/mattn/go-sqlite3
	DriverPureGo = "sqlite"  // modernc.org/sqlite
)

// SQLiteConfig contains configuration for the SQLite storage backend.
type SQLiteConfig struct {
	// Path is the database file path, or ":memory:".
	Path string

	// Driver selects the database/sql driver: "sqlite3" or "sqlite".
	// Default: "sqlite3"
	Driver string

	// MaxOpenConns is the maximum number of open connections.
	// Default: 10
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int

	// WALMode enables Write-Ahead Logging for concurrent readers.
	// Default: true
	WALMode bool

	// BusyTimeout is how long to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "data/audit.db",
		Driver:       DriverCGO,
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLiteStorage implements audit.Storage on SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	config *SQLiteConfig
	logger *slog.Logger
}

// NewSQLiteStorage opens the database, enables WAL if configured, and
// creates the schema.
func NewSQLiteStorage(config *SQLiteConfig) (*SQLiteStorage, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}
	if config.Driver == "" {
		config.Driver = DriverCGO
	}
	if config.Driver != DriverCGO && config.Driver != DriverPureGo {
		return nil, audit.NewStorageError("sqlite", "open", fmt.Errorf("unsupported driver %q", config.Driver))
	}

	logger := slog.Default().With("component", "audit.storage.sqlite")

	db, err := sql.Open(config.Driver, dsn(config))
	if err != nil {
		return nil, audit.NewStorageError("sqlite", "open", err)
	}

	// Each connection to ":memory:" is a separate database.
	if config.Path == ":memory:" {
		db.SetMaxOpenConns(1)
	} else {
		if config.MaxOpenConns > 0 {
			db.SetMaxOpenConns(config.MaxOpenConns)
		}
		if config.MaxIdleConns > 0 {
			db.SetMaxIdleConns(config.MaxIdleConns)
		}
	}

	s := &SQLiteStorage{db: db, config: config, logger: logger}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite storage initialized",
		"path", config.Path,
		"driver", config.Driver,
		"wal_mode", config.WALMode,
		"max_open_conns", config.MaxOpenConns,
	)

	return s, nil
}

// dsn builds a data source name that applies the busy timeout to every
// pooled connection. The two drivers spell pragmas differently.
func dsn(config *SQLiteConfig) string {
	if config.Path == ":memory:" || config.BusyTimeout <= 0 {
		return config.Path
	}
	ms := config.BusyTimeout.Milliseconds()
	if config.Driver == DriverPureGo {
		return fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)", config.Path, ms)
	}
	return fmt.Sprintf("file:%s?_busy_timeout=%d", config.Path, ms)
}

func (s *SQLiteStorage) initialize() error {
	if s.config.WALMode && s.config.Path != ":memory:" {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return audit.NewStorageError("sqlite", "enable_wal", err)
		}
	}

	if s.config.BusyTimeout > 0 {
		if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", s.config.BusyTimeout.Milliseconds())); err != nil {
			return audit.NewStorageError("sqlite", "set_busy_timeout", err)
		}
	}

	if _, err := s.db.Exec(Schema); err != nil {
		return audit.NewStorageError("sqlite", "create_schema", err)
	}

	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return audit.NewStorageError("sqlite", "insert_schema_version", err)
	}

	var version int
	if err := s.db.QueryRow(GetSchemaVersion).Scan(&version); err != nil && err != sql.ErrNoRows {
		return audit.NewStorageError("sqlite", "get_schema_version", err)
	}
	if version != SchemaVersion {
		return audit.NewStorageError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}

	return nil
}

// Append inserts an event.
func (s *SQLiteStorage) Append(ctx context.Context, event *audit.Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return audit.NewStorageError("sqlite", "append", err)
	}

	var mediaID any
	if event.Payload.MediaID != "" {
		mediaID = event.Payload.MediaID
	}

	_, err = s.db.ExecContext(ctx, insertEvent,
		event.ID, event.Type, event.RecordedAt.UnixNano(),
		event.Payload.RequestID, mediaID,
		string(event.Payload.Verdict), string(event.Payload.RiskLevel),
		event.Payload.Confidence, event.Payload.Score,
		event.Payload.RuleSetVersion, rulesIndex(event.Payload.AppliedRules),
		string(payload), event.PayloadHash,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return audit.NewStorageError("sqlite", "append", fmt.Errorf("%w: %s", audit.ErrDuplicateEvent, event.ID))
		}
		return audit.NewStorageError("sqlite", "append", err)
	}
	return nil
}

// Query returns matching events.
func (s *SQLiteStorage) Query(ctx context.Context, q *audit.Query) ([]*audit.Event, error) {
	sqlQuery, args, err := s.buildSelect(q)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, audit.NewStorageError("sqlite", "query", err)
	}
	defer rows.Close()

	events := []*audit.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, audit.NewStorageError("sqlite", "scan", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, audit.NewStorageError("sqlite", "query", err)
	}
	return events, nil
}

// QueryStream streams matching events row by row.
func (s *SQLiteStorage) QueryStream(ctx context.Context, q *audit.Query) (<-chan *audit.Event, <-chan error, error) {
	sqlQuery, args, err := s.buildSelect(q)
	if err != nil {
		return nil, nil, err
	}

	eventsCh := make(chan *audit.Event, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(eventsCh)
		defer close(errCh)

		rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
		if err != nil {
			errCh <- audit.NewStorageError("sqlite", "query_stream", err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			e, err := scanEvent(rows)
			if err != nil {
				errCh <- audit.NewStorageError("sqlite", "scan", err)
				return
			}
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case eventsCh <- e:
			}
		}
		if err := rows.Err(); err != nil {
			errCh <- audit.NewStorageError("sqlite", "query_stream", err)
		}
	}()

	return eventsCh, errCh, nil
}

// Count returns the number of matching events.
func (s *SQLiteStorage) Count(ctx context.Context, q *audit.Query) (int64, error) {
	where, args := buildWhereClause(q)
	sqlQuery := "SELECT COUNT(*) FROM audit_events"
	if where != "" {
		sqlQuery += " WHERE " + where
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, sqlQuery, args...).Scan(&count); err != nil {
		return 0, audit.NewStorageError("sqlite", "count", err)
	}
	return count, nil
}

// Ping checks database connectivity.
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return audit.NewStorageError("sqlite", "ping", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	if err := s.db.Close(); err != nil {
		return audit.NewStorageError("sqlite", "close", err)
	}
	s.logger.Info("SQLite storage closed")
	return nil
}

func (s *SQLiteStorage) buildSelect(q *audit.Query) (string, []any, error) {
	if q == nil {
		q = &audit.Query{}
	}
	if err := q.Validate(); err != nil {
		return "", nil, err
	}

	where, args := buildWhereClause(q)
	sqlQuery := "SELECT " + selectColumns + " FROM audit_events"
	if where != "" {
		sqlQuery += " WHERE " + where
	}

	// rowid breaks ties between events recorded in the same nanosecond.
	order := "ASC"
	if q.SortOrder == audit.SortDesc {
		order = "DESC"
	}
	sqlQuery += fmt.Sprintf(" ORDER BY recorded_at %s, rowid %s", order, order)

	if q.Limit > 0 {
		sqlQuery += fmt.Sprintf(" LIMIT %d", q.Limit)
	} else if q.Offset > 0 {
		sqlQuery += " LIMIT -1"
	}
	if q.Offset > 0 {
		sqlQuery += fmt.Sprintf(" OFFSET %d", q.Offset)
	}

	return sqlQuery, args, nil
}

// buildWhereClause builds a WHERE clause (without the keyword) and its
// arguments from the query filters.
func buildWhereClause(q *audit.Query) (string, []any) {
	if q == nil {
		return "", nil
	}

	var conditions []string
	var args []any

	if q.StartTime != nil {
		conditions = append(conditions, "recorded_at >= ?")
		args = append(args, q.StartTime.UnixNano())
	}
	if q.EndTime != nil {
		conditions = append(conditions, "recorded_at <= ?")
		args = append(args, q.EndTime.UnixNano())
	}
	if q.EventType != "" {
		conditions = append(conditions, "event_type = ?")
		args = append(args, q.EventType)
	}
	if q.Verdict != "" {
		conditions = append(conditions, "verdict = ?")
		args = append(args, string(q.Verdict))
	}
	if q.RiskLevel != "" {
		conditions = append(conditions, "risk_level = ?")
		args = append(args, string(q.RiskLevel))
	}
	if q.MediaID != "" {
		conditions = append(conditions, "media_id = ?")
		args = append(args, q.MediaID)
	}
	if q.RequestID != "" {
		conditions = append(conditions, "request_id = ?")
		args = append(args, q.RequestID)
	}
	if q.Rule != "" {
		conditions = append(conditions, "instr(applied_rules_index, ?) > 0")
		args = append(args, "|"+q.Rule+"|")
	}

	return strings.Join(conditions, " AND "), args
}

func rulesIndex(rules []string) string {
	return "|" + strings.Join(rules, "|") + "|"
}

func scanEvent(rows *sql.Rows) (*audit.Event, error) {
	var (
		e          audit.Event
		recordedAt int64
		payload    string
	)
	if err := rows.Scan(&e.ID, &e.Type, &recordedAt, &payload, &e.PayloadHash); err != nil {
		return nil, err
	}
	e.RecordedAt = time.Unix(0, recordedAt).UTC()
	if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
		return nil, fmt.Errorf("failed to decode payload of %s: %w", e.ID, err)
	}
	return &e, nil
}
