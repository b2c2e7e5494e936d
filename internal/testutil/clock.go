package testutil

import (
	"sync"
	"time"
)

// Clock provides a settable wall clock for tests.
//
// The engine takes a `func() time.Time` so tests can pin "now" and advance
// it between events, making first-seen stamps and cutoff instants exact.
//
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a clock pinned to start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current pinned instant. Pass this method as the engine's
// now function.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d. Negative d moves it backward, which
// tests use to simulate a device clock stepping back.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set pins the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
