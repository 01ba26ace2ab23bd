// Package clock provides the millisecond time base shared by transforms,
// the tracking loops and staleness checks.
//
// There is no process-wide clock. A Clock is created once at startup
// (NewMonotonic) and handed to every component that stamps or checks
// transforms. Tests and replays substitute Manual.
package clock

import (
	"math"
	"time"
)

// Millis is a point on the monotonic time line, in milliseconds.
// Fractional values are allowed; tracking devices routinely report
// sub-millisecond timestamps.
type Millis float64

// Sentinels for unbounded validity windows.
var (
	NegativeInfinity = Millis(math.Inf(-1))
	PositiveInfinity = Millis(math.Inf(1))
)

// Clock reports the current time in milliseconds.
type Clock interface {
	Now() Millis
}

// Monotonic is a Clock backed by Go's monotonic clock reading.
// Time zero is the moment the clock was created.
//
// Thread-safety: Monotonic is immutable after construction and safe for
// concurrent use.
type Monotonic struct {
	origin time.Time
}

// NewMonotonic creates a clock whose zero is now.
func NewMonotonic() *Monotonic {
	return &Monotonic{origin: time.Now()}
}

// Now returns milliseconds elapsed since the clock was created.
func (m *Monotonic) Now() Millis {
	return FromDuration(time.Since(m.origin))
}

// FromDuration converts a duration to milliseconds.
func FromDuration(d time.Duration) Millis {
	return Millis(float64(d) / float64(time.Millisecond))
}

// Duration converts m back to a time.Duration. Infinite values saturate.
func (m Millis) Duration() time.Duration {
	switch {
	case math.IsInf(float64(m), 1):
		return time.Duration(math.MaxInt64)
	case math.IsInf(float64(m), -1):
		return time.Duration(math.MinInt64)
	}
	return time.Duration(float64(m) * float64(time.Millisecond))
}

// IsInf reports whether m is one of the unbounded sentinels.
func (m Millis) IsInf() bool {
	return math.IsInf(float64(m), 0)
}

// PeriodForFrequency returns the expected interval between samples of a
// device running at hz. Non-positive frequencies yield zero.
func PeriodForFrequency(hz float64) Millis {
	if hz <= 0 {
		return 0
	}
	return Millis(1000 / hz)
}
