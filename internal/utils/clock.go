package utils

import (
	"sync"
	"time"
)

// Clock hands out server timestamps.
type Clock interface {
	Now() time.Time
}

// MonotonicClock returns strictly increasing UTC timestamps truncated to a
// fixed resolution. When the wall clock has not advanced past the previous
// value (same tick, or a backwards step) the previous value plus one
// resolution step is returned instead.
type MonotonicClock struct {
	mu         sync.Mutex
	resolution time.Duration
	last       time.Time
	now        func() time.Time
}

func NewMonotonicClock(resolution time.Duration) *MonotonicClock {
	if resolution <= 0 {
		resolution = time.Microsecond
	}
	return &MonotonicClock{resolution: resolution, now: time.Now}
}

func (c *MonotonicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now().UTC().Truncate(c.resolution)
	if !t.After(c.last) {
		t = c.last.Add(c.resolution)
	}
	c.last = t
	return t
}
