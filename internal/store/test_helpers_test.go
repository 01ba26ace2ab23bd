package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/roach88/coordsys/internal/clock"
	"github.com/roach88/coordsys/internal/tracking"
)

// createTestStore creates a new store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var testEpoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// createTestSample creates a pure-translation sample.
func createTestSample(tool string, x float64, at clock.Millis) tracking.Sample {
	return tracking.Sample{
		Tool:        tool,
		Rotation:    mgl64.QuatIdent(),
		Translation: mgl64.Vec3{x, 0, 0},
		Error:       0.1,
		Time:        at,
	}
}

func testMillis(i int) clock.Millis {
	return clock.Millis(16 * i)
}
