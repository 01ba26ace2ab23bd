package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScenario writes content to dir/test.yaml next to a minimal scene.
func writeScenario(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	scenePath := filepath.Join(dir, "scene.yaml")
	require.NoError(t, os.WriteFile(scenePath, []byte("name: s\nnodes:\n  - name: World\n"), 0644))

	path := filepath.Join(dir, "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	path := writeScenario(t, `
name: test_scenario
description: "Test scenario for validation"
scene: scene.yaml
steps:
  - at: 5
    op: set_parent
    node: Tip
    parent: World
    transform: { translation: [1, 2, 3], error: 0.5 }
    valid_for: 20
assertions:
  - type: event_contains
    event: TransformSetEvent
    node: Tip
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "scene.yaml"), scenario.Scene)
	require.Len(t, scenario.Steps, 1)
	st := scenario.Steps[0]
	assert.Equal(t, OpSetParent, st.Op)
	assert.Equal(t, 5.0, st.At)
	assert.Equal(t, 20.0, st.ValidFor)
	require.NotNil(t, st.Transform)
	assert.Equal(t, []float64{1, 2, 3}, st.Transform.Translation)
	assert.Len(t, scenario.Assertions, 1)
}

func TestLoadScenario_Testdata(t *testing.T) {
	for _, name := range []string{"tip_goes_stale", "cycle_rejected"} {
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
			require.NoError(t, err)
			assert.Equal(t, name, scenario.Name)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_UnknownField(t *testing.T) {
	path := writeScenario(t, `
name: typo
description: "d"
scene: scene.yaml
step:
  - op: detach
    node: World
assertions:
  - type: event_count
    event: NullParentEvent
    count: 1
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_Invalid(t *testing.T) {
	const steps = `
steps:
  - op: detach
    node: World
`
	const assertions = `
assertions:
  - type: event_count
    event: NullParentEvent
    count: 1
`
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "missing name",
			content: "description: d\nscene: scene.yaml\n" + steps + assertions,
			want:    "name is required",
		},
		{
			name:    "missing description",
			content: "name: n\nscene: scene.yaml\n" + steps + assertions,
			want:    "description is required",
		},
		{
			name:    "missing scene",
			content: "name: n\ndescription: d\n" + steps + assertions,
			want:    "scene is required",
		},
		{
			name:    "scene not found",
			content: "name: n\ndescription: d\nscene: nowhere.yaml\n" + steps + assertions,
			want:    "scene file not found",
		},
		{
			name:    "no steps",
			content: "name: n\ndescription: d\nscene: scene.yaml\n" + assertions,
			want:    "steps list is required",
		},
		{
			name:    "no assertions",
			content: "name: n\ndescription: d\nscene: scene.yaml\n" + steps,
			want:    "assertions list is required",
		},
		{
			name:    "unknown op",
			content: "name: n\ndescription: d\nscene: scene.yaml\nsteps:\n  - op: teleport\n    node: World\n" + assertions,
			want:    `steps[0]: unknown op "teleport"`,
		},
		{
			name:    "missing op",
			content: "name: n\ndescription: d\nscene: scene.yaml\nsteps:\n  - node: World\n" + assertions,
			want:    "steps[0]: op is required",
		},
		{
			name:    "missing node",
			content: "name: n\ndescription: d\nscene: scene.yaml\nsteps:\n  - op: detach\n" + assertions,
			want:    "steps[0]: node is required",
		},
		{
			name:    "negative valid_for",
			content: "name: n\ndescription: d\nscene: scene.yaml\nsteps:\n  - op: update\n    node: World\n    valid_for: -1\n" + assertions,
			want:    "valid_for must be non-negative",
		},
		{
			name:    "bad rotation",
			content: "name: n\ndescription: d\nscene: scene.yaml\nsteps:\n  - op: update\n    node: World\n    transform: { rotation: [1, 0] }\n" + assertions,
			want:    "steps[0].transform",
		},
		{
			name:    "unknown assertion",
			content: "name: n\ndescription: d\nscene: scene.yaml\n" + steps + "assertions:\n  - type: trace_contains\n",
			want:    `unknown assertion type "trace_contains"`,
		},
		{
			name:    "event_order without events",
			content: "name: n\ndescription: d\nscene: scene.yaml\n" + steps + "assertions:\n  - type: event_order\n",
			want:    "events list is required",
		},
		{
			name:    "final_state without state",
			content: "name: n\ndescription: d\nscene: scene.yaml\n" + steps + "assertions:\n  - type: final_state\n    node: World\n",
			want:    "state is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid scenario")
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
