package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/coordsys/internal/scene"
)

// Scenario is a scripted sequence of delegator requests against one scene.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Scene is the scene file to build. LoadScenario resolves it relative
	// to the scenario file.
	Scene string `yaml:"scene"`

	// Steps are issued in order, each at its own clock reading.
	Steps []Step `yaml:"steps"`

	// Assertions validate the trace and the final graph.
	Assertions []Assertion `yaml:"assertions"`
}

// Step operations.
const (
	OpSetParent    = "set_parent"
	OpDetach       = "detach"
	OpGetTransform = "get_transform"
	OpUpdate       = "update"
	OpResolve      = "resolve"
	OpRemove       = "remove"
)

// Step is one request issued to one node.
type Step struct {
	// At is the clock reading, in milliseconds, when the request is made.
	// Resolve steps also query at this time.
	At float64 `yaml:"at"`

	Op   string `yaml:"op"`
	Node string `yaml:"node"`

	// Parent is the requested parent for set_parent. Empty means null.
	Parent string `yaml:"parent,omitempty"`

	// Target is the resolve target. Empty means null.
	Target string `yaml:"target,omitempty"`

	// Transform is used by set_parent and update. Nil means identity.
	Transform *scene.TransformSpec `yaml:"transform,omitempty"`

	// ValidFor bounds the transform's window to [At, At+ValidFor] when
	// positive.
	ValidFor float64 `yaml:"valid_for,omitempty"`
}

// Assertion validates the trace or the final graph.
type Assertion struct {
	// Type is one of event_contains, event_order, event_count, final_state.
	Type string `yaml:"type"`

	// Event is the event kind (event_contains, event_count).
	Event string `yaml:"event,omitempty"`

	// Node filters events by emitting node, or names the node for
	// final_state.
	Node string `yaml:"node,omitempty"`

	// Parent filters events by parent, or is the expected parent for
	// final_state.
	Parent string `yaml:"parent,omitempty"`

	// Target filters events by resolve target.
	Target string `yaml:"target,omitempty"`

	// Stale filters events by staleness when set.
	Stale *bool `yaml:"stale,omitempty"`

	// Count is the expected number of matches (event_count).
	Count int `yaml:"count,omitempty"`

	// Events is the expected kind order (event_order).
	Events []string `yaml:"events,omitempty"`

	// State is the expected machine state (final_state).
	State string `yaml:"state,omitempty"`
}

// Assertion type constants.
const (
	AssertEventContains = "event_contains"
	AssertEventOrder    = "event_order"
	AssertEventCount    = "event_count"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Resolve the scene path BEFORE validation so existence can be checked
	if scenario.Scene != "" && !filepath.IsAbs(scenario.Scene) {
		scenario.Scene = filepath.Join(filepath.Dir(path), scenario.Scene)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Scene == "" {
		return fmt.Errorf("scene is required")
	}
	if _, err := os.Stat(s.Scene); os.IsNotExist(err) {
		return fmt.Errorf("scene file not found: %s", s.Scene)
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(index int, st *Step) error {
	if st.Node == "" {
		return fmt.Errorf("steps[%d]: node is required", index)
	}
	if st.ValidFor < 0 {
		return fmt.Errorf("steps[%d]: valid_for must be non-negative", index)
	}

	switch st.Op {
	case OpSetParent, OpUpdate:
		if st.Transform != nil {
			if _, err := st.Transform.Static(); err != nil {
				return fmt.Errorf("steps[%d].transform: %w", index, err)
			}
		}
	case OpDetach, OpGetTransform, OpResolve, OpRemove:
	case "":
		return fmt.Errorf("steps[%d]: op is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", index, st.Op)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertEventContains:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for event_contains", index)
		}
	case AssertEventOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for event_order", index)
		}
	case AssertEventCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for event_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for event_count", index)
		}
	case AssertFinalState:
		if a.Node == "" {
			return fmt.Errorf("assertions[%d]: node is required for final_state", index)
		}
		if a.State == "" {
			return fmt.Errorf("assertions[%d]: state is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
