// Package recorder provides the asynchronous audit sink used in production.
//
// Record builds the event (id, timestamp, payload hash) on the caller's
// goroutine and enqueues it on a buffered channel. A single background
// worker appends events to storage, so a slow backend never delays a
// decision beyond EnqueueTimeout. Close drains the queue before returning.
package recorder

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"mercator-hq/deepguard/pkg/audit"
)

// Outcome labels reported to an Observer.
const (
	StatusRecorded = "recorded"
	StatusDropped  = "dropped"
	StatusFailed   = "failed"
)

// Config contains configuration for the recorder.
type Config struct {
	// BufferSize is the capacity of the async queue.
	// Default: 1000
	BufferSize int

	// EnqueueTimeout bounds how long Record waits for queue space before
	// dropping the event.
	// Default: 100ms
	EnqueueTimeout time.Duration

	// WriteTimeout bounds a single storage append.
	// Default: 5 seconds
	WriteTimeout time.Duration
}

// DefaultConfig returns the default recorder configuration.
func DefaultConfig() *Config {
	return &Config{
		BufferSize:     1000,
		EnqueueTimeout: 100 * time.Millisecond,
		WriteTimeout:   5 * time.Second,
	}
}

// Observer receives recorder outcomes, typically a metrics collector.
type Observer interface {
	ObserveAudit(status string)
}

// Stats is a snapshot of recorder counters.
type Stats struct {
	Recorded int64
	Dropped  int64
	Failed   int64
	Pending  int
	Capacity int
}

// Recorder is an asynchronous audit.Sink backed by an audit.Storage.
type Recorder struct {
	storage  audit.Storage
	config   *Config
	eventCh  chan *audit.Event
	done     chan struct{}
	wg       sync.WaitGroup
	logger   *slog.Logger
	observer Observer

	// mu orders enqueues against Close: Record holds it shared while it
	// sends, Close holds it exclusively while it marks the recorder closed.
	mu       sync.RWMutex
	closed   bool
	recorded atomic.Int64
	dropped  atomic.Int64
	failed   atomic.Int64

	// now is replaced in tests.
	now func() time.Time
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger.With("component", "audit.recorder")
		}
	}
}

// WithObserver sets the outcome observer.
func WithObserver(o Observer) Option {
	return func(r *Recorder) { r.observer = o }
}

// New creates a recorder and starts its worker.
func New(storage audit.Storage, config *Config, opts ...Option) *Recorder {
	if config == nil {
		config = DefaultConfig()
	}
	defaults := DefaultConfig()
	if config.BufferSize <= 0 {
		config.BufferSize = defaults.BufferSize
	}
	if config.EnqueueTimeout <= 0 {
		config.EnqueueTimeout = defaults.EnqueueTimeout
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}

	r := &Recorder{
		storage: storage,
		config:  config,
		eventCh: make(chan *audit.Event, config.BufferSize),
		done:    make(chan struct{}),
		logger:  slog.Default().With("component", "audit.recorder"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	r.wg.Add(1)
	go r.worker()

	r.logger.Info("audit recorder initialized",
		"buffer_size", config.BufferSize,
		"enqueue_timeout", config.EnqueueTimeout,
		"write_timeout", config.WriteTimeout,
	)

	return r
}

// Record builds an event from the payload and enqueues it. It returns an
// error if the queue stays full past EnqueueTimeout, ctx is done, or the
// recorder is closed. The payload is copied; the caller may reuse it.
func (r *Recorder) Record(ctx context.Context, eventType string, payload *audit.Payload) error {
	event := &audit.Event{
		ID:         uuid.New().String(),
		Type:       eventType,
		RecordedAt: r.now().UTC(),
		Payload:    *payload,
	}
	event = event.Clone()

	hash, err := HashPayload(&event.Payload)
	if err != nil {
		r.observe(StatusFailed)
		return audit.NewRecorderError(event.ID, err)
	}
	event.PayloadHash = hash

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.observe(StatusDropped)
		return audit.NewRecorderError(event.ID, context.Canceled)
	}

	timer := time.NewTimer(r.config.EnqueueTimeout)
	defer timer.Stop()

	select {
	case r.eventCh <- event:
		r.logger.Debug("audit event enqueued",
			"event_id", event.ID,
			"request_id", payload.RequestID,
		)
		return nil
	case <-ctx.Done():
		r.observe(StatusDropped)
		return audit.NewRecorderError(event.ID, ctx.Err())
	case <-timer.C:
		r.logger.Error("audit queue full, dropping event",
			"event_id", event.ID,
			"request_id", payload.RequestID,
			"buffer_size", r.config.BufferSize,
		)
		r.observe(StatusDropped)
		return audit.NewRecorderError(event.ID, context.DeadlineExceeded)
	}
}

// Stats returns a snapshot of the recorder counters.
func (r *Recorder) Stats() Stats {
	return Stats{
		Recorded: r.recorded.Load(),
		Dropped:  r.dropped.Load(),
		Failed:   r.failed.Load(),
		Pending:  len(r.eventCh),
		Capacity: cap(r.eventCh),
	}
}

// Close stops accepting events, drains the queue and waits for pending
// writes. It does not close the storage.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.done)
	r.mu.Unlock()

	r.logger.Info("shutting down audit recorder", "pending_count", len(r.eventCh))
	r.wg.Wait()
	r.logger.Info("audit recorder shut down complete", "recorded", r.recorded.Load())
	return nil
}

func (r *Recorder) worker() {
	defer r.wg.Done()

	for {
		select {
		case event := <-r.eventCh:
			r.write(event)

		case <-r.done:
			for {
				select {
				case event := <-r.eventCh:
					r.write(event)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(event *audit.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
	defer cancel()

	start := time.Now()
	if err := r.storage.Append(ctx, event); err != nil {
		r.logger.Error("failed to append audit event",
			"event_id", event.ID,
			"request_id", event.Payload.RequestID,
			"error", err,
		)
		r.observe(StatusFailed)
		return
	}

	duration := time.Since(start)
	r.observe(StatusRecorded)

	r.logger.Debug("audit event recorded",
		"event_id", event.ID,
		"request_id", event.Payload.RequestID,
		"verdict", event.Payload.Verdict,
		"duration_ms", duration.Milliseconds(),
	)

	if duration > r.config.WriteTimeout/2 {
		r.logger.Warn("slow audit write",
			"event_id", event.ID,
			"duration_ms", duration.Milliseconds(),
			"threshold_ms", (r.config.WriteTimeout / 2).Milliseconds(),
		)
	}
}

func (r *Recorder) observe(status string) {
	switch status {
	case StatusRecorded:
		r.recorded.Add(1)
	case StatusDropped:
		r.dropped.Add(1)
	case StatusFailed:
		r.failed.Add(1)
	}
	if r.observer != nil {
		r.observer.ObserveAudit(status)
	}
}
