package trace

import "sync/atomic"

// Clock is a monotonic logical clock for event ordering.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
// In practice the world only calls Next() while holding its lock.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number and increments the clock.
// The first call returns 1.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
