package testutil

import (
	"sync"
	"time"
)

// FixedClock is a settable wall clock for tests.
//
// It satisfies compiler.Clock, so relative-time conditions such as
// created_at > NOW() - $1::INTERVAL compile to predictable cutoffs.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FixedClock struct {
	mu  sync.Mutex
	now time.Time
}

// DefaultTime is the instant NewFixedClock uses when given the zero time.
var DefaultTime = time.Date(2024, time.January, 15, 12, 0, 0, 0, time.UTC)

// NewFixedClock creates a clock frozen at t (UTC).
//
// If t is zero, the clock starts at DefaultTime.
func NewFixedClock(t time.Time) *FixedClock {
	if t.IsZero() {
		t = DefaultTime
	}
	return &FixedClock{now: t.UTC()}
}

// Now returns the frozen instant.
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t.
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.UTC()
}

// Advance moves the clock forward by d and returns the new instant.
func (c *FixedClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}
