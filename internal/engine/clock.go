package engine

import "sync/atomic"

// Sequencer stamps transitions with a strictly increasing seq number.
// Implemented by Clock (production) and testutil.DeterministicClock
// (harness and tests).
type Sequencer interface {
	Next() int64
}

// Clock is a monotonic logical clock for transition ordering.
//
// All recorded transitions are stamped with a strictly increasing seq
// number from this clock. This ensures deterministic ordering with no
// wall-clock race conditions, even with units running in parallel.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations);
// parallel unit goroutines all stamp from the same clock.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number and increments the clock.
// Calls are linearizable - each call returns a unique, increasing value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
