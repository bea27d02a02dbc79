package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"mercator-hq/deepguard/pkg/decision"
	"mercator-hq/deepguard/pkg/decision/engine"
	"mercator-hq/deepguard/pkg/telemetry/logging"
)

// DefaultWorkers is the number of concurrent decisions.
const DefaultWorkers = 4

// maxLineSize bounds a single input line.
const maxLineSize = 1 << 20

// KindInput is the error kind for lines that could not be parsed.
const KindInput = "input"

// Result is one output line.
type Result struct {
	Line      int              `json:"line"`
	RequestID string           `json:"request_id,omitempty"`
	MediaID   string           `json:"media_id,omitempty"`
	Decision  *decision.Record `json:"decision,omitempty"`
	Error     *ErrorInfo       `json:"error,omitempty"`
}

// ErrorInfo describes a failed line.
type ErrorInfo struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Stats summarises a run.
type Stats struct {
	Decided int
	Failed  int
}

// Agent reads scores from a stream, decides them concurrently and writes
// one result per input line, in input order.
type Agent struct {
	decider engine.Decider
	workers int
	logger  *slog.Logger
}

// Option configures an Agent.
type Option func(*Agent)

// WithWorkers sets the number of concurrent decisions.
func WithWorkers(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.workers = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) {
		if logger != nil {
			a.logger = logger.With("component", "agent")
		}
	}
}

// New creates an agent over decider, typically an *engine.Handle so that
// reloads take effect between lines.
func New(decider engine.Decider, opts ...Option) *Agent {
	a := &Agent{
		decider: decider,
		workers: DefaultWorkers,
		logger:  slog.Default().With("component", "agent"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run processes r until EOF or ctx is cancelled. Per-line failures are
// written as error results and do not stop the run; read and write
// failures do.
func (a *Agent) Run(ctx context.Context, r io.Reader, w io.Writer) (Stats, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	// Slots are queued in input order; the writer waits on each in turn.
	pending := make(chan chan Result, a.workers*2)

	var stats Stats
	var writerErr error
	var writerWG sync.WaitGroup
	writerWG.Add(1)
	go func() {
		defer writerWG.Done()
		stats, writerErr = a.writeResults(pending, w)
		if writerErr != nil {
			cancel(writerErr)
		}
	}()

	var workers errgroup.Group
	workers.SetLimit(a.workers)

	readErr := a.readLines(ctx, r, pending, &workers)

	workers.Wait()
	close(pending)
	writerWG.Wait()

	a.logger.Info("input processed", "decided", stats.Decided, "failed", stats.Failed)

	switch {
	case writerErr != nil:
		return stats, writerErr
	case readErr != nil:
		return stats, readErr
	}
	return stats, ctx.Err()
}

func (a *Agent) readLines(ctx context.Context, r io.Reader, pending chan<- chan Result, workers *errgroup.Group) error {
	// Scan blocks on the reader and ignores ctx, so it runs on its own
	// goroutine. On cancellation that goroutine is left parked in Read until
	// the input produces data or is closed.
	lines := make(chan []byte)
	scanErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		for scanner.Scan() {
			select {
			case lines <- bytes.Clone(scanner.Bytes()):
			case <-done:
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	lineNo := 0
	for {
		var line []byte
		var more bool
		select {
		case <-ctx.Done():
			return nil
		case line, more = <-lines:
		}
		if !more {
			if err := <-scanErr; err != nil {
				return fmt.Errorf("failed to read input at line %d: %w", lineNo+1, err)
			}
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
		lineNo++

		req, ok, parseErr := ParseLine(line)
		if !ok {
			continue
		}

		slot := make(chan Result, 1)
		select {
		case pending <- slot:
		case <-ctx.Done():
			return nil
		}

		n := lineNo
		if parseErr != nil {
			slot <- Result{Line: n, Error: &ErrorInfo{Kind: KindInput, Message: parseErr.Error()}}
			continue
		}
		workers.Go(func() error {
			slot <- a.decide(ctx, n, req)
			return nil
		})
	}
}

func (a *Agent) decide(ctx context.Context, line int, req *decision.Request) Result {
	// Assigned here so the output line and the audit event share the id.
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	ctx = logging.WithMediaID(logging.WithRequestID(ctx, req.RequestID), req.MediaID)

	res := Result{Line: line, RequestID: req.RequestID, MediaID: req.MediaID}
	rec, err := a.decider.Evaluate(ctx, req)
	if err != nil {
		res.Error = &ErrorInfo{Kind: decision.Kind(err), Message: err.Error()}
		return res
	}
	res.Decision = &rec
	return res
}

// writeResults drains pending in order. After a write error it keeps
// draining so that producers never block.
func (a *Agent) writeResults(pending <-chan chan Result, w io.Writer) (Stats, error) {
	var stats Stats
	var writeErr error

	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)

	for slot := range pending {
		res := <-slot
		if writeErr != nil {
			continue
		}

		if res.Error != nil {
			stats.Failed++
		} else {
			stats.Decided++
		}

		if err := enc.Encode(res); err != nil {
			writeErr = fmt.Errorf("failed to write result for line %d: %w", res.Line, err)
			continue
		}
		// Flush when caught up so results stream out promptly.
		if len(pending) == 0 {
			if err := bw.Flush(); err != nil {
				writeErr = fmt.Errorf("failed to write result for line %d: %w", res.Line, err)
			}
		}
	}

	if writeErr == nil {
		if err := bw.Flush(); err != nil {
			writeErr = fmt.Errorf("failed to flush output: %w", err)
		}
	}
	return stats, writeErr
}
