package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"mercator-hq/deepguard/pkg/audit"
)

// JSONLConfig configures JSONLStorage.
type JSONLConfig struct {
	// Path is the log file. Parent directories are created.
	Path string

	// Sync calls fsync after every append.
	Sync bool
}

// JSONLStorage appends one JSON-encoded event per line. Queries scan the
// file linearly.
type JSONLStorage struct {
	config JSONLConfig
	logger *slog.Logger

	mu  sync.Mutex
	f   *os.File
	ids map[string]struct{}
}

// NewJSONLStorage opens or creates the log file. Existing events are
// indexed so duplicate IDs are rejected across restarts.
func NewJSONLStorage(config JSONLConfig) (*JSONLStorage, error) {
	if config.Path == "" {
		return nil, audit.NewStorageError("jsonl", "open", fmt.Errorf("path is required"))
	}
	if err := os.MkdirAll(filepath.Dir(config.Path), 0o755); err != nil {
		return nil, audit.NewStorageError("jsonl", "open", err)
	}

	s := &JSONLStorage{
		config: config,
		logger: slog.Default().With("component", "audit.storage.jsonl"),
		ids:    make(map[string]struct{}),
	}

	existing, err := s.readAll(context.Background())
	if err != nil {
		return nil, err
	}
	for _, e := range existing {
		s.ids[e.ID] = struct{}{}
	}

	f, err := os.OpenFile(config.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, audit.NewStorageError("jsonl", "open", err)
	}
	s.f = f
	if err := s.terminateTail(); err != nil {
		f.Close()
		return nil, err
	}

	s.logger.Info("JSONL storage initialized", "path", config.Path, "existing_events", len(existing), "sync", config.Sync)
	return s, nil
}

// terminateTail ends a torn final line so the next append starts on a
// line of its own.
func (s *JSONLStorage) terminateTail() error {
	info, err := s.f.Stat()
	if err != nil {
		return audit.NewStorageError("jsonl", "open", err)
	}
	if info.Size() == 0 {
		return nil
	}

	r, err := os.Open(s.config.Path)
	if err != nil {
		return audit.NewStorageError("jsonl", "open", err)
	}
	defer r.Close()

	last := make([]byte, 1)
	if _, err := r.ReadAt(last, info.Size()-1); err != nil {
		return audit.NewStorageError("jsonl", "open", err)
	}
	if last[0] == '\n' {
		return nil
	}
	s.logger.Warn("audit log ends in a partial line, terminating it", "path", s.config.Path)
	if _, err := s.f.Write([]byte{'\n'}); err != nil {
		return audit.NewStorageError("jsonl", "open", err)
	}
	return nil
}

// Append writes the event as one line.
func (s *JSONLStorage) Append(ctx context.Context, event *audit.Event) error {
	if err := ctx.Err(); err != nil {
		return audit.NewStorageError("jsonl", "append", err)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return audit.NewStorageError("jsonl", "append", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		return audit.NewStorageError("jsonl", "append", os.ErrClosed)
	}
	if _, ok := s.ids[event.ID]; ok {
		return audit.NewStorageError("jsonl", "append", audit.ErrDuplicateEvent)
	}
	if _, err := s.f.Write(data); err != nil {
		return audit.NewStorageError("jsonl", "append", err)
	}
	if s.config.Sync {
		if err := s.f.Sync(); err != nil {
			return audit.NewStorageError("jsonl", "sync", err)
		}
	}
	s.ids[event.ID] = struct{}{}
	return nil
}

// Query scans the file and returns matching events.
func (s *JSONLStorage) Query(ctx context.Context, q *audit.Query) ([]*audit.Event, error) {
	if q != nil {
		if err := q.Validate(); err != nil {
			return nil, err
		}
	}
	events, err := s.readAll(ctx)
	if err != nil {
		return nil, err
	}
	return audit.Select(events, q), nil
}

// QueryStream streams matching events.
func (s *JSONLStorage) QueryStream(ctx context.Context, q *audit.Query) (<-chan *audit.Event, <-chan error, error) {
	events, err := s.Query(ctx, q)
	if err != nil {
		return nil, nil, err
	}
	eventsCh, errCh := streamSlice(ctx, events)
	return eventsCh, errCh, nil
}

// Count returns the number of matching events.
func (s *JSONLStorage) Count(ctx context.Context, q *audit.Query) (int64, error) {
	events, err := s.readAll(ctx)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, e := range events {
		if q.Matches(e) {
			n++
		}
	}
	return n, nil
}

// Close closes the file.
func (s *JSONLStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	if err != nil {
		return audit.NewStorageError("jsonl", "close", err)
	}
	return nil
}

// readAll decodes every event in the file. Malformed lines are logged and
// skipped so one torn write does not hide the rest of the trail.
func (s *JSONLStorage) readAll(ctx context.Context) ([]*audit.Event, error) {
	f, err := os.Open(s.config.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, audit.NewStorageError("jsonl", "read", err)
	}
	defer f.Close()

	return decodeLines(ctx, f, s.logger)
}

func decodeLines(ctx context.Context, r io.Reader, logger *slog.Logger) ([]*audit.Event, error) {
	// ReadBytes rather than a Scanner: events have no size cap, and one
	// long line must not make the rest of the trail unreadable.
	br := bufio.NewReaderSize(r, 64*1024)

	var events []*audit.Event
	line := 0
	for {
		raw, err := br.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, audit.NewStorageError("jsonl", "read", err)
		}
		eof := err != nil

		if len(raw) > 0 {
			line++
			if line%1000 == 0 {
				if err := ctx.Err(); err != nil {
					return nil, audit.NewStorageError("jsonl", "read", err)
				}
			}
			raw = bytes.TrimRight(raw, "\r\n")
			if len(raw) > 0 {
				var e audit.Event
				if err := json.Unmarshal(raw, &e); err != nil {
					logger.Warn("skipping malformed audit line", "line", line, "error", err)
				} else {
					events = append(events, &e)
				}
			}
		}
		if eof {
			return events, nil
		}
	}
}
