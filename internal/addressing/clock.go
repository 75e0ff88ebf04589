package addressing

import (
	"sync/atomic"
	"time"
)

// MonotonicClock produces strictly increasing nanosecond timestamps.
// If the wall clock stalls or steps backwards, the next timestamp is
// still one past the last issued value, so timestamps stay unique
// engine-wide.
type MonotonicClock struct {
	last atomic.Int64
}

// NewMonotonicClock creates a monotonic timestamp source
func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{}
}

// Next returns the next unique timestamp in nanoseconds
func (c *MonotonicClock) Next() int64 {
	for {
		now := time.Now().UnixNano()
		last := c.last.Load()
		if now <= last {
			now = last + 1
		}
		if c.last.CompareAndSwap(last, now) {
			return now
		}
	}
}

// Observe advances the clock past an externally sourced timestamp.
// Used during replay so post-recovery writes never collide with
// replayed ones.
func (c *MonotonicClock) Observe(timestamp int64) {
	for {
		last := c.last.Load()
		if timestamp <= last || c.last.CompareAndSwap(last, timestamp) {
			return
		}
	}
}
