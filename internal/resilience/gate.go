// Package resilience provides the circuit-breaker gate that protects fragile
// external dependencies from concurrent hammering.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// ErrCircuitOpen is returned when a call is rejected during the cooldown
// window. Callers treat it as "no result", not as an error worth logging.
var ErrCircuitOpen = eris.New("resilience: circuit open")

// Gate serializes calls through a single slot and short-circuits every call
// for a cooldown window after one of them times out. Fast failures (immediate
// error responses) do not trip the gate: they indicate a transient per-call
// issue, not systemic unavailability.
type Gate struct {
	slot        chan struct{}
	callTimeout time.Duration
	cooldown    time.Duration

	mu        sync.Mutex
	openUntil time.Time

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewGate creates a Gate with the given per-call timeout and post-timeout
// cooldown window.
func NewGate(callTimeout, cooldown time.Duration) *Gate {
	return &Gate{
		slot:        make(chan struct{}, 1),
		callTimeout: callTimeout,
		cooldown:    cooldown,
		nowFunc:     time.Now,
	}
}

// WithNow sets a fixed clock for testing.
func (g *Gate) WithNow(now func() time.Time) *Gate {
	g.nowFunc = now
	return g
}

// Open reports whether the gate is currently short-circuiting.
func (g *Gate) Open() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.nowFunc().Before(g.openUntil)
}

func (g *Gate) trip() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.openUntil = g.nowFunc().Add(g.cooldown)
}

// Do runs fn through the gate. Only one call runs at a time across the whole
// process; a call exceeding the gate's timeout opens the circuit for the
// cooldown window, during which every call returns ErrCircuitOpen without
// touching the dependency. The single slot is what lets the first timeout
// trip the gate before queued calls are attempted.
func Do[T any](ctx context.Context, g *Gate, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if g.Open() {
		return zero, ErrCircuitOpen
	}

	select {
	case g.slot <- struct{}{}:
	case <-ctx.Done():
		return zero, eris.Wrap(ctx.Err(), "resilience: wait for slot")
	}
	defer func() { <-g.slot }()

	// A call queued behind a timed-out one must re-check before running.
	if g.Open() {
		return zero, ErrCircuitOpen
	}

	callCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	val, err := fn(callCtx)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		g.trip()
	}
	return val, err
}
