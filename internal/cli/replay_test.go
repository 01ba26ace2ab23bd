package cli

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/coordsys/internal/store"
	"github.com/roach88/coordsys/internal/tracking"
)

func TestReplayReproducesRun(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "bench.db")
	recorded := runBench(t, dbPath)

	out, err := execute(NewReplayCommand(testRootOptions(t, "json")), "--db", dbPath, benchYAML)
	require.NoError(t, err)

	var result ReplayResult
	decodeData(t, out, &result)
	assert.True(t, result.Deterministic)
	assert.Equal(t, recorded.SessionID, result.SessionID)
	// Only applied samples are recorded.
	assert.Equal(t, recorded.Applied, result.Samples)
	assert.Equal(t, recorded.Applied, result.Applied)
	assert.Positive(t, result.Events)

	// Same samples, same windows, same query times: same poses.
	assert.Equal(t, recorded.Tools, result.Tools)
}

func TestReplaySelectsSession(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "bench.db")
	ctx := context.Background()

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.CreateSession(ctx, "old", "bench", time.Unix(100, 0)))
	require.NoError(t, st.CreateSession(ctx, "new", "bench", time.Unix(200, 0)))
	_, err = st.WriteSample(ctx, "old", tracking.SimulatedPose(tracking.SimulatedTool{Name: "Needle", Radius: 40, Period: 1000}, 250))
	require.NoError(t, err)
	require.NoError(t, st.Close())

	out, err := execute(NewReplayCommand(testRootOptions(t, "json")), "--db", dbPath, "--session", "old", benchYAML)
	require.NoError(t, err)

	var result ReplayResult
	decodeData(t, out, &result)
	assert.Equal(t, "old", result.SessionID)
	assert.Equal(t, 1, result.Samples)
	require.Len(t, result.Tools, 2)

	needle, probe := result.Tools[0], result.Tools[1]
	assert.Equal(t, "Needle", needle.Tool)
	assert.True(t, needle.Connected)
	assert.False(t, needle.Stale)
	assert.Equal(t, 250.0, needle.At)
	require.NotNil(t, needle.Transform)
	// Pose at a quarter period: (0, 40, 0) on the tracker, 1500 above World.
	assert.InDeltaSlice(t, []float64{0, 40, 1500}, needle.Transform.Translation[:], 1e-9)

	assert.Equal(t, "Probe", probe.Tool)
	assert.False(t, probe.Connected)

	// Without --session the latest one is replayed; it has no samples.
	out, err = execute(NewReplayCommand(testRootOptions(t, "json")), "--db", dbPath, benchYAML)
	require.NoError(t, err)
	decodeData(t, out, &result)
	assert.Equal(t, "new", result.SessionID)
	assert.Equal(t, 0, result.Samples)
}

func TestReplayText(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "bench.db")
	runBench(t, dbPath)

	out, err := execute(NewReplayCommand(testRootOptions(t, "text")), "--db", dbPath, benchYAML)
	require.NoError(t, err)
	assert.Contains(t, out, "Session session-1 (scene \"bench\")")
	assert.Contains(t, out, "Needle -> World at t=")
	assert.Contains(t, out, "✓ Replay deterministic")
}

func TestReplayMissingDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "missing.db")

	out, err := execute(NewReplayCommand(testRootOptions(t, "text")), "--db", dbPath, benchYAML)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, ErrCodeNotFound)
}

func TestReplayEmptyDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "empty.db")
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	out, err := execute(NewReplayCommand(testRootOptions(t, "text")), "--db", dbPath, benchYAML)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, ErrCodeNotFound)
}

func TestReplayUnknownSession(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "bench.db")
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	_, err = execute(NewReplayCommand(testRootOptions(t, "text")), "--db", dbPath, "--session", "nope", benchYAML)
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrSessionNotFound)
}
