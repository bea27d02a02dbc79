package health

import (
	"context"
	"errors"
	"fmt"

	"mercator-hq/deepguard/pkg/audit/recorder"
	"mercator-hq/deepguard/pkg/decision/engine"
)

// Pinger is implemented by audit storages that hold a connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StorageCheck verifies the audit store is reachable. Storages without a
// Ping method are always healthy.
func StorageCheck(store any) CheckFunc {
	return func(ctx context.Context) error {
		p, ok := store.(Pinger)
		if !ok {
			return nil
		}
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("audit storage unreachable: %w", err)
		}
		return nil
	}
}

// RecorderCheck fails while the audit queue is full, since new events are
// being dropped.
func RecorderCheck(r *recorder.Recorder) CheckFunc {
	return func(ctx context.Context) error {
		s := r.Stats()
		if s.Capacity > 0 && s.Pending >= s.Capacity {
			return fmt.Errorf("audit queue full (%d events pending)", s.Pending)
		}
		return nil
	}
}

// EngineCheck fails until a decision engine has been installed in h.
func EngineCheck(h *engine.Handle) CheckFunc {
	return func(ctx context.Context) error {
		if h.Load() == nil {
			return errors.New("decision engine not loaded")
		}
		return nil
	}
}
