package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateValidScene(t *testing.T) {
	for _, path := range []string{benchYAML, benchCUE} {
		t.Run(filepath.Ext(path), func(t *testing.T) {
			out, err := execute(NewValidateCommand(testRootOptions(t, "text")), path)
			require.NoError(t, err)
			assert.Equal(t, "✓ Scene \"bench\" valid (3 nodes, 2 tools)\n", out)
		})
	}
}

func TestValidateValidSceneJSON(t *testing.T) {
	out, err := execute(NewValidateCommand(testRootOptions(t, "json")), benchYAML)
	require.NoError(t, err)

	var result ValidationResult
	resp := decodeData(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, result.Valid)
	assert.Equal(t, "bench", result.Scene)
	assert.Equal(t, "World", result.Reference)
	assert.Equal(t, 3, result.Nodes)
	assert.Equal(t, 2, result.Tools)
}

func TestValidateReportsEveryProblem(t *testing.T) {
	out, err := execute(NewValidateCommand(testRootOptions(t, "text")), brokenYAML)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	assert.Contains(t, out, "E205") // duplicate Tracker
	assert.Contains(t, out, "E206") // unknown parent Ceiling
	assert.Contains(t, out, "E209") // zero frequency
	assert.Contains(t, out, "E210") // unknown reference Room
}

func TestValidateReportsProblemsJSON(t *testing.T) {
	out, err := execute(NewValidateCommand(testRootOptions(t, "json")), brokenYAML)
	require.Error(t, err)

	resp := decodeData(t, out, nil)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Message, "problem(s)")

	details, ok := resp.Error.Details.([]any)
	require.True(t, ok, "details should be a list of problems")
	assert.GreaterOrEqual(t, len(details), 4)
}

func TestValidateMissingFile(t *testing.T) {
	out, err := execute(NewValidateCommand(testRootOptions(t, "text")), filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "E201")
}

func TestValidateRequiresOneArg(t *testing.T) {
	_, err := execute(NewValidateCommand(testRootOptions(t, "text")))
	require.Error(t, err)
}
