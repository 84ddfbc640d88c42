// Package tracker deduplicates background extraction work across concurrent
// searches: at most one extraction attempt per provider per process lifetime,
// and at most one in-flight attempt per provider at any moment.
package tracker

import "sync"

// Tracker is a lock-guarded claim/release set pair. Claim grants only ids
// that are neither in flight nor already attempted; Release moves ids from
// in-flight to done regardless of outcome.
type Tracker struct {
	mu       sync.Mutex
	inFlight map[string]bool
	done     map[string]bool
}

// New creates an empty Tracker.
func New() *Tracker {
	return &Tracker{
		inFlight: make(map[string]bool),
		done:     make(map[string]bool),
	}
}

// Claim filters ids down to those not currently in flight and never attempted,
// marks the remainder in flight, and returns them. Order is preserved.
func (t *Tracker) Claim(ids []string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var granted []string
	for _, id := range ids {
		if t.inFlight[id] || t.done[id] {
			continue
		}
		t.inFlight[id] = true
		granted = append(granted, id)
	}
	return granted
}

// Release marks ids as attempted and clears their in-flight state. Call it
// on every completion path, success or failure.
func (t *Tracker) Release(ids []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, id := range ids {
		delete(t.inFlight, id)
		t.done[id] = true
	}
}

// InFlight reports whether any of ids is currently being worked on.
func (t *Tracker) InFlight(ids []string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, id := range ids {
		if t.inFlight[id] {
			return true
		}
	}
	return false
}
