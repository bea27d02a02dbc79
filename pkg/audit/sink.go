package audit

import (
	"context"
	"errors"
)

// Sink receives audit events from the decision engine. Implementations must
// be safe for concurrent use and should not block on slow I/O.
type Sink interface {
	Record(ctx context.Context, eventType string, payload *Payload) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, eventType string, payload *Payload) error

// Record calls f.
func (f SinkFunc) Record(ctx context.Context, eventType string, payload *Payload) error {
	return f(ctx, eventType, payload)
}

// Discard is a sink that drops every event.
var Discard Sink = SinkFunc(func(context.Context, string, *Payload) error { return nil })

// Multi returns a sink that records to every sink in order. All sinks are
// attempted; their errors are joined.
func Multi(sinks ...Sink) Sink {
	return multiSink(append([]Sink(nil), sinks...))
}

type multiSink []Sink

func (m multiSink) Record(ctx context.Context, eventType string, payload *Payload) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, eventType, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
