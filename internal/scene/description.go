package scene

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/roach88/coordsys/internal/graph"
	"github.com/roach88/coordsys/internal/transform"
)

// Description is a parsed scene file.
type Description struct {
	Name string `yaml:"name" json:"name"`
	// Reference is the frame resolve queries default to.
	Reference string     `yaml:"reference,omitempty" json:"reference,omitempty"`
	Nodes     []NodeSpec `yaml:"nodes" json:"nodes"`
	Tools     []ToolSpec `yaml:"tools,omitempty" json:"tools,omitempty"`
}

// NodeSpec declares a frame with an optional static transform to its
// parent.
type NodeSpec struct {
	Name      string         `yaml:"name" json:"name"`
	Kind      string         `yaml:"kind,omitempty" json:"kind,omitempty"`
	Parent    string         `yaml:"parent,omitempty" json:"parent,omitempty"`
	Transform *TransformSpec `yaml:"transform,omitempty" json:"transform,omitempty"`
}

// TransformSpec is a static calibration transform.
type TransformSpec struct {
	// Rotation is a quaternion [w, x, y, z]. Empty means identity.
	Rotation    []float64 `yaml:"rotation,omitempty" json:"rotation,omitempty"`
	Translation []float64 `yaml:"translation,omitempty" json:"translation,omitempty"`
	Error       float64   `yaml:"error,omitempty" json:"error,omitempty"`
}

// ToolSpec declares a tracked tool reported relative to Parent.
type ToolSpec struct {
	Name      string  `yaml:"name" json:"name"`
	Parent    string  `yaml:"parent" json:"parent"`
	Frequency float64 `yaml:"frequency" json:"frequency"`
	// Radius and Period drive the simulated source: the tool circles the
	// tracker origin at Radius, once every Period milliseconds.
	Radius float64 `yaml:"radius,omitempty" json:"radius,omitempty"`
	Period float64 `yaml:"period,omitempty" json:"period,omitempty"`
	Error  float64 `yaml:"error,omitempty" json:"error,omitempty"`
}

// Static converts t into a transform valid for all time. A nil t is the
// identity.
func (t *TransformSpec) Static() (transform.Transform, error) {
	if t == nil {
		return transform.Identity(), nil
	}

	rot := mgl64.QuatIdent()
	switch len(t.Rotation) {
	case 0:
	case 4:
		rot = mgl64.Quat{W: t.Rotation[0], V: mgl64.Vec3{t.Rotation[1], t.Rotation[2], t.Rotation[3]}}
		if rot.Len() == 0 {
			return transform.Transform{}, fmt.Errorf("rotation must be non-zero")
		}
	default:
		return transform.Transform{}, fmt.Errorf("rotation needs 4 components [w x y z], got %d", len(t.Rotation))
	}

	var trans mgl64.Vec3
	switch len(t.Translation) {
	case 0:
	case 3:
		trans = mgl64.Vec3{t.Translation[0], t.Translation[1], t.Translation[2]}
	default:
		return transform.Transform{}, fmt.Errorf("translation needs 3 components, got %d", len(t.Translation))
	}

	if t.Error < 0 {
		return transform.Transform{}, fmt.Errorf("error must be >= 0, got %g", t.Error)
	}
	return transform.Static(rot, trans, t.Error), nil
}

// normalize canonicalizes names and fills defaults, so YAML scenes end up
// in the same shape as schema-defaulted CUE scenes.
func (d *Description) normalize() {
	d.Name = graph.CanonicalName(d.Name)
	d.Reference = graph.CanonicalName(d.Reference)
	for i := range d.Nodes {
		n := &d.Nodes[i]
		n.Name = graph.CanonicalName(n.Name)
		n.Parent = graph.CanonicalName(n.Parent)
		if n.Kind == "" {
			n.Kind = "frame"
		}
		if t := n.Transform; t != nil {
			if len(t.Rotation) == 0 {
				t.Rotation = []float64{1, 0, 0, 0}
			}
			if len(t.Translation) == 0 {
				t.Translation = []float64{0, 0, 0}
			}
		}
	}
	for i := range d.Tools {
		tool := &d.Tools[i]
		tool.Name = graph.CanonicalName(tool.Name)
		tool.Parent = graph.CanonicalName(tool.Parent)
		if tool.Radius == 0 {
			tool.Radius = 50
		}
		if tool.Period == 0 {
			tool.Period = 2000
		}
	}
}

// Validate checks the description and returns every problem found, or nil.
func (d *Description) Validate() error {
	var errs LoadErrors
	add := func(code, field, format string, args ...any) {
		errs = append(errs, &LoadError{Code: code, Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if d.Name == "" {
		add(ErrCodeSchema, "name", "scene name is required")
	}
	if len(d.Nodes) == 0 {
		add(ErrCodeSchema, "nodes", "at least one node is required")
	}

	declared := make(map[string]string) // name -> field of first declaration
	nodes := make(map[string]NodeSpec)
	for i, n := range d.Nodes {
		field := fmt.Sprintf("nodes[%d]", i)
		if n.Name == "" {
			add(ErrCodeSchema, field+".name", "node name is required")
			continue
		}
		if first, dup := declared[n.Name]; dup {
			add(ErrCodeDuplicateName, field+".name", "%q already declared at %s", n.Name, first)
			continue
		}
		declared[n.Name] = field
		nodes[n.Name] = n

		if _, err := n.Transform.Static(); err != nil {
			add(ErrCodeInvalidTransform, field+".transform", "%v", err)
		}
	}

	for i, n := range d.Nodes {
		if n.Parent == "" {
			continue
		}
		field := fmt.Sprintf("nodes[%d].parent", i)
		switch {
		case n.Parent == n.Name:
			add(ErrCodeCycle, field, "%q cannot be its own parent", n.Name)
		case nodes[n.Parent].Name == "":
			add(ErrCodeUnknownParent, field, "parent %q of %q is not a declared node", n.Parent, n.Name)
		}
	}

	for _, name := range d.cyclicNodes(nodes) {
		add(ErrCodeCycle, "nodes", "parent chain of %q loops", name)
	}

	for i, tool := range d.Tools {
		field := fmt.Sprintf("tools[%d]", i)
		if tool.Name == "" {
			add(ErrCodeSchema, field+".name", "tool name is required")
			continue
		}
		if first, dup := declared[tool.Name]; dup {
			add(ErrCodeDuplicateName, field+".name", "%q already declared at %s", tool.Name, first)
		} else {
			declared[tool.Name] = field
		}
		if _, ok := nodes[tool.Parent]; !ok {
			add(ErrCodeUnknownParent, field+".parent", "tracker %q of tool %q is not a declared node", tool.Parent, tool.Name)
		}
		if tool.Frequency <= 0 {
			add(ErrCodeInvalidTool, field+".frequency", "frequency must be > 0, got %g", tool.Frequency)
		}
		if tool.Period < 0 {
			add(ErrCodeInvalidTool, field+".period", "period must be > 0, got %g", tool.Period)
		}
		if tool.Error < 0 {
			add(ErrCodeInvalidTool, field+".error", "error must be >= 0, got %g", tool.Error)
		}
	}

	if d.Reference != "" {
		if _, ok := declared[d.Reference]; !ok {
			add(ErrCodeUnknownReference, "reference", "reference %q is not declared", d.Reference)
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// cyclicNodes returns, in declaration order, the first node of every
// parent loop among nodes. Self-parents are reported separately.
func (d *Description) cyclicNodes(nodes map[string]NodeSpec) []string {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(nodes))

	var loops []string
	for _, start := range d.Nodes {
		if state[start.Name] != unvisited {
			continue
		}
		var path []string
		name := start.Name
		for name != "" && state[name] == unvisited {
			state[name] = visiting
			path = append(path, name)
			parent := nodes[name].Parent
			if parent == name {
				break
			}
			name = parent
		}
		if name != "" && state[name] == visiting && nodes[name].Parent != name {
			loops = append(loops, name)
		}
		for _, p := range path {
			state[p] = done
		}
	}
	return loops
}
