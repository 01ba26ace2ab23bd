package clock

import "sync"

// Manual is a Clock whose reading only changes when it is set or
// advanced. Replays drive it from recorded sample times; tests use it to
// step through a timeline.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Manual struct {
	mu  sync.Mutex
	now Millis
}

// NewManual creates a clock reading start.
func NewManual(start Millis) *Manual {
	return &Manual{now: start}
}

// Now returns the current reading.
func (c *Manual) Now() Millis {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t. Moving backwards is allowed.
func (c *Manual) Set(t Millis) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance moves the clock forward by d and returns the new reading.
func (c *Manual) Advance(d Millis) Millis {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += d
	return c.now
}

var _ Clock = (*Manual)(nil)
