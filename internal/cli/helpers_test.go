package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/coordsys/internal/config"
)

var (
	benchYAML    = filepath.Join("testdata", "bench.yaml")
	benchCUE     = filepath.Join("testdata", "bench.cue")
	brokenYAML   = filepath.Join("testdata", "broken.yaml")
	floatingYAML = filepath.Join("testdata", "floating.yaml")
)

// testRootOptions returns options with a default configuration so tests
// never read the process environment.
func testRootOptions(t *testing.T, format string) *RootOptions {
	t.Helper()
	cfg, err := config.ParseMap(map[string]string{})
	require.NoError(t, err)
	return &RootOptions{Format: format, Config: &cfg}
}

// execute runs cmd with args and returns stdout; stderr is discarded.
func execute(cmd *cobra.Command, args ...string) (string, error) {
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// decodeData unmarshals the data payload of a JSON CLI response into v.
func decodeData(t *testing.T, out string, v any) CLIResponse {
	t.Helper()
	var raw struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
		Error  *CLIError       `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &raw), "output: %s", out)
	if v != nil && len(raw.Data) > 0 {
		require.NoError(t, json.Unmarshal(raw.Data, v))
	}
	return CLIResponse{Status: raw.Status, Error: raw.Error}
}
