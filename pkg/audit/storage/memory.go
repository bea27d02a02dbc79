package storage

import (
	"context"
	"sync"

	"mercator-hq/deepguard/pkg/audit"
)

// MemoryStorage keeps events in insertion order in memory.
type MemoryStorage struct {
	mu     sync.RWMutex
	events []*audit.Event
	ids    map[string]struct{}
}

// NewMemoryStorage creates an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{ids: make(map[string]struct{})}
}

// Append stores a copy of the event.
func (s *MemoryStorage) Append(ctx context.Context, event *audit.Event) error {
	if err := ctx.Err(); err != nil {
		return audit.NewStorageError("memory", "append", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[event.ID]; ok {
		return audit.NewStorageError("memory", "append", audit.ErrDuplicateEvent)
	}
	s.ids[event.ID] = struct{}{}
	s.events = append(s.events, event.Clone())
	return nil
}

// Query returns copies of the matching events.
func (s *MemoryStorage) Query(ctx context.Context, q *audit.Query) ([]*audit.Event, error) {
	if q != nil {
		if err := q.Validate(); err != nil {
			return nil, err
		}
	}

	s.mu.RLock()
	selected := audit.Select(s.events, q)
	s.mu.RUnlock()

	out := make([]*audit.Event, len(selected))
	for i, e := range selected {
		out[i] = e.Clone()
	}
	return out, nil
}

// QueryStream streams the matching events.
func (s *MemoryStorage) QueryStream(ctx context.Context, q *audit.Query) (<-chan *audit.Event, <-chan error, error) {
	events, err := s.Query(ctx, q)
	if err != nil {
		return nil, nil, err
	}
	eventsCh, errCh := streamSlice(ctx, events)
	return eventsCh, errCh, nil
}

// Count returns the number of matching events.
func (s *MemoryStorage) Count(ctx context.Context, q *audit.Query) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, e := range s.events {
		if q.Matches(e) {
			n++
		}
	}
	return n, nil
}

// Close is a no-op; events stay readable.
func (s *MemoryStorage) Close() error {
	return nil
}

// streamSlice feeds a slice into a channel, honouring cancellation.
func streamSlice(ctx context.Context, events []*audit.Event) (<-chan *audit.Event, <-chan error) {
	eventsCh := make(chan *audit.Event, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(eventsCh)
		defer close(errCh)

		for _, e := range events {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case eventsCh <- e:
			}
		}
	}()

	return eventsCh, errCh
}
