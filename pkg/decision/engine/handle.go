package engine

import (
	"context"
	"sync/atomic"

	"mercator-hq/deepguard/pkg/decision"
)

// Handle holds the current engine and lets a reload replace it atomically.
// In-flight calls finish on the engine they started with.
type Handle struct {
	current atomic.Pointer[Engine]
}

// NewHandle creates a handle pointing at e.
func NewHandle(e *Engine) *Handle {
	h := &Handle{}
	h.current.Store(e)
	return h
}

// Load returns the current engine.
func (h *Handle) Load() *Engine {
	return h.current.Load()
}

// Swap installs e and returns the previous engine.
func (h *Handle) Swap(e *Engine) *Engine {
	return h.current.Swap(e)
}

// Evaluate delegates to the current engine.
func (h *Handle) Evaluate(ctx context.Context, req *decision.Request) (decision.Record, error) {
	return h.current.Load().Evaluate(ctx, req)
}

// Decide delegates to the current engine.
func (h *Handle) Decide(ctx context.Context, score float64) (decision.Record, error) {
	return h.current.Load().Decide(ctx, score)
}
