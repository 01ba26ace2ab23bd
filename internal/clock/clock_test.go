package clock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMonotonic_StartsNearZero(t *testing.T) {
	c := NewMonotonic()
	now := c.Now()
	assert.GreaterOrEqual(t, float64(now), 0.0)
	assert.Less(t, float64(now), 1000.0)
}

func TestMonotonic_NeverDecreases(t *testing.T) {
	c := NewMonotonic()
	prev := c.Now()
	for i := 0; i < 100; i++ {
		next := c.Now()
		assert.GreaterOrEqual(t, float64(next), float64(prev))
		prev = next
	}
}

func TestFromDuration(t *testing.T) {
	assert.Equal(t, Millis(1500), FromDuration(1500*time.Millisecond))
	assert.Equal(t, Millis(0.5), FromDuration(500*time.Microsecond))
}

func TestMillis_Duration(t *testing.T) {
	assert.Equal(t, 250*time.Millisecond, Millis(250).Duration())
	assert.Equal(t, time.Duration(1<<63-1), PositiveInfinity.Duration())
	assert.Equal(t, time.Duration(-1<<63), NegativeInfinity.Duration())
}

func TestMillis_IsInf(t *testing.T) {
	assert.True(t, PositiveInfinity.IsInf())
	assert.True(t, NegativeInfinity.IsInf())
	assert.False(t, Millis(42).IsInf())
}

func TestPeriodForFrequency(t *testing.T) {
	assert.Equal(t, Millis(20), PeriodForFrequency(50))
	assert.Equal(t, Millis(0), PeriodForFrequency(0))
	assert.Equal(t, Millis(0), PeriodForFrequency(-3))
}

func TestManual_StartsAtGivenReading(t *testing.T) {
	c := NewManual(42)
	assert.Equal(t, Millis(42), c.Now())
}

func TestManual_SetAndAdvance(t *testing.T) {
	c := NewManual(0)

	c.Set(100)
	assert.Equal(t, Millis(100), c.Now())

	assert.Equal(t, Millis(116), c.Advance(16))
	assert.Equal(t, Millis(116), c.Now())

	// Backwards is allowed
	c.Set(10)
	assert.Equal(t, Millis(10), c.Now())
}

func TestManual_ConcurrentAdvance(t *testing.T) {
	c := NewManual(0)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Advance(2)
		}()
	}
	wg.Wait()

	assert.Equal(t, Millis(100), c.Now())
}
