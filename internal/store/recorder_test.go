package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/coordsys/internal/delegator"
	"github.com/roach88/coordsys/internal/graph"
	"github.com/roach88/coordsys/internal/metrics"
	"github.com/roach88/coordsys/internal/token"
	"github.com/roach88/coordsys/internal/tracking"
	"github.com/roach88/coordsys/internal/transform"
)

func newTestRecorder(t *testing.T, s *Store) *Recorder {
	t.Helper()
	r, err := NewRecorder(context.Background(), s, "bench",
		WithSessionIDGenerator(token.NewFixedGenerator("session-1")),
		WithWallClock(func() time.Time { return testEpoch }),
	)
	require.NoError(t, err)
	return r
}

func TestRecorder_RecordsHubEvents(t *testing.T) {
	s := createTestStore(t)
	r := newTestRecorder(t, s)
	assert.Equal(t, "session-1", r.SessionID())

	hub := delegator.NewHub()
	r.Attach(hub)

	g := graph.New()
	world, err := delegator.New(g, "World", "frame", delegator.WithHub(hub))
	require.NoError(t, err)
	tip, err := delegator.New(g, "Tip", "tool", delegator.WithHub(hub))
	require.NoError(t, err)

	tip.RequestSetTransformAndParent(transform.Translate(1, 0, 0), world)
	tip.RequestSetTransformAndParent(transform.Identity(), tip)
	tip.RequestComputeTransformTo(world, 0)

	require.NoError(t, r.Close(context.Background()))
	// Detached: no longer recorded.
	tip.RequestGetTransformToParent()

	events, err := s.ReadEvents(context.Background(), "session-1")
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "TransformSetEvent", events[0].Kind)
	assert.Equal(t, "ThisParentEvent", events[1].Kind)
	assert.Equal(t, "TransformToEvent", events[2].Kind)
	assert.Equal(t, "World", events[2].Target)

	sess, err := s.GetSession(context.Background(), "session-1")
	require.NoError(t, err)
	assert.False(t, sess.EndedAt.IsZero())
}

func TestRecorder_IsSampleSink(t *testing.T) {
	s := createTestStore(t)
	r := newTestRecorder(t, s)

	var sink tracking.SampleSink = r
	require.NoError(t, sink.RecordSample(createTestSample("needle", 1, 10)))
	require.NoError(t, r.Close(context.Background()))

	samples, err := s.ReadSamples(context.Background(), "session-1")
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, "needle", samples[0].Tool)
}

// lockDatabase takes the SQLite write lock on path from a second
// connection and returns a func releasing it.
func lockDatabase(t *testing.T, path string) func() {
	t.Helper()
	other, err := Open(path)
	require.NoError(t, err)

	ctx := context.Background()
	conn, err := other.db.Conn(ctx)
	require.NoError(t, err)
	_, err = conn.ExecContext(ctx, "BEGIN IMMEDIATE")
	require.NoError(t, err)

	released := false
	release := func() {
		if released {
			return
		}
		released = true
		_, err := conn.ExecContext(ctx, "ROLLBACK")
		require.NoError(t, err)
		require.NoError(t, conn.Close())
		require.NoError(t, other.Close())
	}
	t.Cleanup(release)
	return release
}

func TestRecorder_RequestsDoNotWaitOnLockedDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	r := newTestRecorder(t, s)

	hub := delegator.NewHub()
	r.Attach(hub)
	g := graph.New()
	world, err := delegator.New(g, "World", "frame", delegator.WithHub(hub))
	require.NoError(t, err)
	tip, err := delegator.New(g, "Tip", "tool", delegator.WithHub(hub))
	require.NoError(t, err)

	release := lockDatabase(t, path)

	start := time.Now()
	tip.RequestSetTransformAndParent(transform.Translate(1, 0, 0), world)
	tip.RequestComputeTransformTo(world, 0)
	require.NoError(t, r.RecordSample(createTestSample("Tip", 1, 0)))
	assert.Less(t, time.Since(start), time.Second, "requests waited on the database lock")

	release()
	require.NoError(t, r.Close(context.Background()))

	events, err := s.ReadEvents(context.Background(), "session-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "TransformSetEvent", events[0].Kind)
	assert.Equal(t, "TransformToEvent", events[1].Kind)

	samples, err := s.ReadSamples(context.Background(), "session-1")
	require.NoError(t, err)
	assert.Len(t, samples, 1)
}

func TestRecorder_FullQueueDrops(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	m := metrics.New()
	r, err := NewRecorder(context.Background(), s, "bench",
		WithSessionIDGenerator(token.NewFixedGenerator("session-1")),
		WithRecorderMetrics(m),
		WithQueueSize(1),
	)
	require.NoError(t, err)

	release := lockDatabase(t, path)

	// The writer holds at most one record while it waits on the lock and
	// the queue holds one more.
	var full int
	for i := 0; i < 10; i++ {
		if err := r.RecordSample(createTestSample("needle", float64(i), testMillis(i))); err != nil {
			assert.ErrorIs(t, err, ErrQueueFull)
			full++
		}
	}
	assert.GreaterOrEqual(t, full, 8)
	assert.Equal(t, float64(full), promtestutil.ToFloat64(m.RecorderDropped.WithLabelValues("sample")))

	release()
	require.NoError(t, r.Close(context.Background()))

	samples, err := s.ReadSamples(context.Background(), "session-1")
	require.NoError(t, err)
	assert.Len(t, samples, 10-full)
}

func TestRecorder_RecordAfterClose(t *testing.T) {
	s := createTestStore(t)
	r := newTestRecorder(t, s)
	require.NoError(t, r.Close(context.Background()))

	assert.ErrorIs(t, r.RecordSample(createTestSample("needle", 0, 0)), ErrRecorderClosed)
	require.NoError(t, r.Close(context.Background()), "closing twice is harmless")
}

func TestReplay_FeedsSamplesInOrder(t *testing.T) {
	s := createTestStore(t)
	r := newTestRecorder(t, s)
	for i, tool := range []string{"needle", "probe", "needle", "ghost"} {
		require.NoError(t, r.RecordSample(createTestSample(tool, float64(i), testMillis(i))))
	}
	require.NoError(t, r.Close(context.Background()))

	var seen []string
	summary, err := s.Replay(context.Background(), "session-1", func(sample tracking.Sample) bool {
		seen = append(seen, sample.Tool)
		return sample.Tool != "ghost"
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"needle", "probe", "needle", "ghost"}, seen)
	assert.Equal(t, 4, summary.Samples)
	assert.Equal(t, 3, summary.Applied)
	assert.Equal(t, testMillis(3), summary.LastTime)
}

func TestReplay_UnknownSession(t *testing.T) {
	s := createTestStore(t)

	_, err := s.Replay(context.Background(), "missing", func(tracking.Sample) bool { return true })
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestReplay_Cancelled(t *testing.T) {
	s := createTestStore(t)
	r := newTestRecorder(t, s)
	require.NoError(t, r.RecordSample(createTestSample("needle", 0, 0)))
	require.NoError(t, r.Close(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Replay(ctx, "session-1", func(tracking.Sample) bool { return true })
	assert.ErrorIs(t, err, context.Canceled)
}
