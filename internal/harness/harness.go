package harness

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/coordsys/internal/clock"
	"github.com/roach88/coordsys/internal/delegator"
	"github.com/roach88/coordsys/internal/graph"
	"github.com/roach88/coordsys/internal/scene"
	"github.com/roach88/coordsys/internal/token"
	"github.com/roach88/coordsys/internal/transform"
)

// Harness executes one scenario against a freshly built scene.
type Harness struct {
	scene  *scene.Scene
	clock  *clock.Manual
	logger *slog.Logger
}

// Option configures Run.
type Option func(*Harness)

// WithLogger sets the logger handed to the scene. Defaults to discarding
// everything.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) {
		if l != nil {
			h.logger = l
		}
	}
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh scene on a manual clock with fixed node
// identities, so the same scenario always produces the same trace.
//
// Execution flow:
// 1. Load and build the scene
// 2. Issue every step at its clock reading, recording emitted events
// 3. Snapshot every node's final state
// 4. Evaluate assertions
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	h := &Harness{
		clock:  clock.NewManual(0),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}
	for _, opt := range opts {
		opt(h)
	}

	desc, err := scene.Load(scenario.Scene)
	if err != nil {
		return nil, fmt.Errorf("failed to load scene: %w", err)
	}

	ids := make([]string, len(desc.Nodes)+len(desc.Tools))
	for i := range ids {
		ids[i] = fmt.Sprintf("%s-%d", scenario.Name, i)
	}
	s, err := scene.Build(desc,
		scene.WithClock(h.clock),
		scene.WithLogger(h.logger),
		scene.WithIDGenerator(token.NewFixedGenerator(ids...)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build scene: %w", err)
	}
	defer s.Close()
	h.scene = s

	result := NewResult()
	step := 0
	sub := s.Hub().SubscribeAll(func(ev delegator.Event) {
		result.AddEvent(step, ev)
	})

	for i, st := range scenario.Steps {
		step = i + 1
		if err := h.execute(st); err != nil {
			s.Hub().Unsubscribe(sub)
			return nil, fmt.Errorf("step %d: %w", step, err)
		}
	}
	s.Hub().Unsubscribe(sub)

	h.snapshot(result)

	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(errMsg)
	}
	return result, nil
}

// execute issues one step. Every request drains synchronously, so the
// events it causes are recorded before execute returns.
func (h *Harness) execute(st Step) error {
	at := clock.Millis(st.At)
	h.clock.Set(at)

	node, err := h.node(st.Node)
	if err != nil {
		return err
	}

	switch st.Op {
	case OpSetParent:
		t, err := h.transform(st, at)
		if err != nil {
			return err
		}
		var parent *delegator.Delegator
		if st.Parent != "" {
			if parent, err = h.node(st.Parent); err != nil {
				return err
			}
		}
		node.RequestSetTransformAndParent(t, parent)
	case OpDetach:
		node.RequestDetachFromParent()
	case OpGetTransform:
		node.RequestGetTransformToParent()
	case OpUpdate:
		t, err := h.transform(st, at)
		if err != nil {
			return err
		}
		node.RequestUpdateTransform(t)
	case OpResolve:
		var target *delegator.Delegator
		if st.Target != "" {
			if target, err = h.node(st.Target); err != nil {
				return err
			}
		}
		node.RequestComputeTransformTo(target, at)
	case OpRemove:
		return node.Close()
	default:
		return fmt.Errorf("unknown op %q", st.Op)
	}
	return nil
}

func (h *Harness) node(name string) (*delegator.Delegator, error) {
	d, ok := h.scene.Node(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", graph.ErrUnknownNode, name)
	}
	return d, nil
}

func (h *Harness) transform(st Step, at clock.Millis) (transform.Transform, error) {
	t, err := st.Transform.Static()
	if err != nil {
		return transform.Transform{}, err
	}
	if st.ValidFor > 0 {
		t = t.WithWindow(at, at+clock.Millis(st.ValidFor))
	}
	return t, nil
}

// snapshot records the state and parent of every node still in the graph.
func (h *Harness) snapshot(result *Result) {
	g := h.scene.Graph()
	for _, name := range h.scene.Names() {
		d, _ := h.scene.Node(name)
		info, err := g.Info(d.Node())
		if err != nil {
			result.Final[name] = NodeState{State: "Removed"}
			continue
		}
		ns := NodeState{State: d.State()}
		if info.Attached() {
			if p, err := g.Info(info.Parent); err == nil {
				ns.Parent = p.Name
			}
		}
		result.Final[name] = ns
	}
}
