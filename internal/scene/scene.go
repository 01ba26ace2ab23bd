package scene

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/roach88/coordsys/internal/clock"
	"github.com/roach88/coordsys/internal/delegator"
	"github.com/roach88/coordsys/internal/graph"
	"github.com/roach88/coordsys/internal/metrics"
	"github.com/roach88/coordsys/internal/token"
	"github.com/roach88/coordsys/internal/tracking"
)

// Scene is a built coordinate graph: one delegator per declared node and
// tool, all publishing to a shared hub.
type Scene struct {
	Name      string
	Reference string

	graph *graph.Graph
	hub   *delegator.Hub
	clock clock.Clock

	byName map[string]*delegator.Delegator
	order  []string
	tools  []ToolSpec
}

type buildConfig struct {
	clock   clock.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics
	ids     token.Generator
	hub     *delegator.Hub
}

// BuildOption configures Build.
type BuildOption func(*buildConfig)

// WithClock sets the clock shared by every delegator.
func WithClock(c clock.Clock) BuildOption {
	return func(cfg *buildConfig) { cfg.clock = c }
}

// WithLogger sets the logger handed to every delegator.
func WithLogger(l *slog.Logger) BuildOption {
	return func(cfg *buildConfig) { cfg.logger = l }
}

// WithMetrics enables delegator metrics.
func WithMetrics(m *metrics.Metrics) BuildOption {
	return func(cfg *buildConfig) { cfg.metrics = m }
}

// WithIDGenerator sets the node UUID generator.
func WithIDGenerator(gen token.Generator) BuildOption {
	return func(cfg *buildConfig) { cfg.ids = gen }
}

// WithHub publishes to h instead of a fresh hub, so subscribers can be
// attached before the build requests are issued.
func WithHub(h *delegator.Hub) BuildOption {
	return func(cfg *buildConfig) { cfg.hub = h }
}

// Build creates the graph described by desc. Static transforms are
// installed through the delegators; tools start detached and attach to
// their tracker with the first applied sample.
func Build(desc *Description, opts ...BuildOption) (*Scene, error) {
	cfg := buildConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.clock == nil {
		cfg.clock = clock.NewMonotonic()
	}
	if cfg.hub == nil {
		cfg.hub = delegator.NewHub()
	}

	s := &Scene{
		Name:      desc.Name,
		Reference: desc.Reference,
		graph:     graph.New(graph.WithIDGenerator(cfg.ids)),
		hub:       cfg.hub,
		clock:     cfg.clock,
		byName:    make(map[string]*delegator.Delegator, len(desc.Nodes)+len(desc.Tools)),
		tools:     append([]ToolSpec(nil), desc.Tools...),
	}

	dopts := []delegator.Option{
		delegator.WithClock(cfg.clock),
		delegator.WithLogger(cfg.logger),
		delegator.WithMetrics(cfg.metrics),
		delegator.WithHub(cfg.hub),
	}
	add := func(name, kind string) error {
		d, err := delegator.New(s.graph, name, kind, dopts...)
		if err != nil {
			return err
		}
		s.byName[name] = d
		s.order = append(s.order, name)
		return nil
	}

	for _, n := range desc.Nodes {
		if err := add(n.Name, n.Kind); err != nil {
			return nil, fmt.Errorf("build scene %q: %w", desc.Name, err)
		}
	}
	for _, tool := range desc.Tools {
		if err := add(tool.Name, "tool"); err != nil {
			return nil, fmt.Errorf("build scene %q: %w", desc.Name, err)
		}
	}

	var rejected LoadErrors
	sub := s.hub.SubscribeAll(func(ev delegator.Event) {
		if ev.Kind.IsRejection() {
			rejected = append(rejected, &LoadError{
				Code:    ErrCodeRejected,
				Field:   ev.Node.Name,
				Message: fmt.Sprintf("%s (parent %q)", ev.Kind, ev.Parent.Name),
			})
		}
	})
	defer s.hub.Unsubscribe(sub)

	for _, n := range desc.Nodes {
		if n.Parent == "" {
			continue
		}
		t, err := n.Transform.Static()
		if err != nil {
			return nil, &LoadError{Code: ErrCodeInvalidTransform, Field: n.Name, Message: err.Error()}
		}
		s.byName[n.Name].RequestSetTransformAndParent(t, s.byName[n.Parent])
	}

	if len(rejected) > 0 {
		return nil, rejected
	}
	return s, nil
}

// Node returns the delegator for name.
func (s *Scene) Node(name string) (*delegator.Delegator, bool) {
	d, ok := s.byName[graph.CanonicalName(name)]
	return d, ok
}

// Names returns node and tool names in declaration order.
func (s *Scene) Names() []string {
	return append([]string(nil), s.order...)
}

// Graph returns the scene graph.
func (s *Scene) Graph() *graph.Graph { return s.graph }

// Hub returns the hub every delegator publishes to.
func (s *Scene) Hub() *delegator.Hub { return s.hub }

// Clock returns the scene clock.
func (s *Scene) Clock() clock.Clock { return s.clock }

// Tools returns the declared tools.
func (s *Scene) Tools() []ToolSpec {
	return append([]ToolSpec(nil), s.tools...)
}

// Bindings maps each tool to its delegators for a tracking.Poller.
func (s *Scene) Bindings() map[string]tracking.Binding {
	out := make(map[string]tracking.Binding, len(s.tools))
	for _, tool := range s.tools {
		out[tool.Name] = tracking.Binding{
			Tool:      s.byName[tool.Name],
			Parent:    s.byName[tool.Parent],
			Frequency: tool.Frequency,
		}
	}
	return out
}

// Device is a simulated tracker: every tool reported relative to one
// tracker node, sampled at the highest frequency among them.
type Device struct {
	Source    *tracking.SimulatedSource
	Frequency float64
}

// SimulatedDevices groups tools by tracker, ordered by tracker name.
func (s *Scene) SimulatedDevices() []Device {
	byTracker := make(map[string][]tracking.SimulatedTool)
	freq := make(map[string]float64)
	for _, tool := range s.tools {
		byTracker[tool.Parent] = append(byTracker[tool.Parent], simulatedTool(tool))
		if tool.Frequency > freq[tool.Parent] {
			freq[tool.Parent] = tool.Frequency
		}
	}

	trackers := make([]string, 0, len(byTracker))
	for name := range byTracker {
		trackers = append(trackers, name)
	}
	sort.Strings(trackers)

	devices := make([]Device, 0, len(trackers))
	for _, name := range trackers {
		devices = append(devices, Device{
			Source:    tracking.NewSimulatedSource(name, s.clock, byTracker[name]...),
			Frequency: freq[name],
		})
	}
	return devices
}

func simulatedTool(t ToolSpec) tracking.SimulatedTool {
	return tracking.SimulatedTool{
		Name:   t.Name,
		Radius: t.Radius,
		Period: clock.Millis(t.Period),
		Error:  t.Error,
	}
}

// Resolve computes the transform from one node to another at time at and
// waits for the resulting event. The returned event is a
// TransformToEvent or TransformToDisconnectedEvent.
func (s *Scene) Resolve(ctx context.Context, from, to string, at clock.Millis) (delegator.Event, error) {
	src, ok := s.Node(from)
	if !ok {
		return delegator.Event{}, fmt.Errorf("resolve: %w: %q", graph.ErrUnknownNode, from)
	}
	dst, ok := s.Node(to)
	if !ok {
		return delegator.Event{}, fmt.Errorf("resolve: %w: %q", graph.ErrUnknownNode, to)
	}

	result := make(chan delegator.Event, 1)
	match := func(ev delegator.Event) {
		if ev.Target.ID != dst.Node() || ev.At != at {
			return
		}
		select {
		case result <- ev:
		default:
		}
	}
	subTo := src.Subscribe(delegator.TransformToEvent, match)
	defer src.Unsubscribe(subTo)
	subDisc := src.Subscribe(delegator.TransformToDisconnectedEvent, match)
	defer src.Unsubscribe(subDisc)

	src.RequestComputeTransformTo(dst, at)

	select {
	case ev := <-result:
		return ev, nil
	case <-ctx.Done():
		return delegator.Event{}, fmt.Errorf("resolve %s -> %s: %w", from, to, ctx.Err())
	}
}

// Close removes every node in reverse declaration order.
func (s *Scene) Close() error {
	for i := len(s.order) - 1; i >= 0; i-- {
		if err := s.byName[s.order[i]].Close(); err != nil {
			return err
		}
	}
	return nil
}
