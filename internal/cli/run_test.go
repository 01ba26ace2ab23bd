package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/coordsys/internal/store"
	"github.com/roach88/coordsys/internal/token"
)

// runBench records a short session of the bench scene into dbPath and
// returns the decoded result.
func runBench(t *testing.T, dbPath string, extra ...string) SessionResult {
	t.Helper()

	cmd := newRunCommand(&RunOptions{
		RootOptions:      testRootOptions(t, "json"),
		SessionGenerator: token.NewFixedGenerator("session-1"),
	})

	args := append([]string{"--db", dbPath, "--duration", "200ms", "--poll-interval", "5ms"}, extra...)
	args = append(args, benchYAML)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	require.NoError(t, cmd.ExecuteContext(ctx))

	var result SessionResult
	decodeData(t, out.String(), &result)
	return result
}

func TestRunRecordsSession(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "bench.db")

	result := runBench(t, dbPath)
	assert.Equal(t, "session-1", result.SessionID)
	assert.Equal(t, "bench", result.Scene)
	assert.Equal(t, "World", result.Reference)
	assert.Positive(t, result.Applied)
	// The poller only sees the latest sample per tool and tick.
	assert.GreaterOrEqual(t, result.Samples, result.Applied)
	assert.Positive(t, result.Events)

	require.Len(t, result.Tools, 2)
	for _, pose := range result.Tools {
		assert.True(t, pose.Connected, "%s should be attached after a run", pose.Tool)
		assert.False(t, pose.Stale, "%s resolved at its last sample time", pose.Tool)
		require.NotNil(t, pose.Transform)
		// Tools circle the tracker, which sits 1500mm above World.
		assert.InDelta(t, 1500, pose.Transform.Translation[2], 1e-6)
		require.NotNil(t, pose.Transform.Expiration)
	}

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	sess, err := st.GetSession(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, "bench", sess.Scene)
	assert.False(t, sess.EndedAt.IsZero(), "session should be ended")

	samples, err := st.ReadSamples(ctx, "session-1")
	require.NoError(t, err)
	assert.Len(t, samples, result.Applied)

	counts, err := st.CountEventsByKind(ctx, "session-1")
	require.NoError(t, err)
	assert.Positive(t, counts["TransformSetEvent"])
	assert.Positive(t, counts["TransformToEvent"])
}

func TestRunServesMetrics(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "bench.db")
	result := runBench(t, dbPath, "--metrics-addr", "127.0.0.1:0")
	assert.Positive(t, result.Samples)
}

func TestRunInvalidScene(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "bench.db")

	_, err := execute(NewRunCommand(testRootOptions(t, "text")), "--db", dbPath, brokenYAML)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	_, statErr := os.Stat(dbPath)
	assert.True(t, os.IsNotExist(statErr), "no database for a scene that failed to load")
}

func TestRunMissingScene(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "bench.db")

	_, err := execute(NewRunCommand(testRootOptions(t, "text")), "--db", dbPath, "/nonexistent/scene.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRunDefaultsFromConfig(t *testing.T) {
	opts := &RunOptions{RootOptions: testRootOptions(t, "text"), MarginMS: -1}
	opts.Config.DBPath = "from-env.db"
	opts.Config.ValidityMarginMS = 8

	require.NoError(t, opts.applyDefaults())
	assert.Equal(t, "from-env.db", opts.Database)
	assert.Equal(t, 16*time.Millisecond, opts.PollInterval)
	assert.Equal(t, 8.0, opts.MarginMS)

	explicit := &RunOptions{RootOptions: testRootOptions(t, "text"), Database: "flag.db", MarginMS: 0}
	require.NoError(t, explicit.applyDefaults())
	assert.Equal(t, "flag.db", explicit.Database)
	assert.Equal(t, 0.0, explicit.MarginMS)
}

func TestRunHelpText(t *testing.T) {
	out, err := execute(NewRunCommand(testRootOptions(t, "text")), "--help")
	require.NoError(t, err)

	assert.Contains(t, out, "simulated tracker")
	assert.Contains(t, out, "--db")
	assert.Contains(t, out, "--metrics-addr")
}
