package delegator

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/roach88/coordsys/internal/clock"
	"github.com/roach88/coordsys/internal/fsm"
	"github.com/roach88/coordsys/internal/graph"
	"github.com/roach88/coordsys/internal/metrics"
	"github.com/roach88/coordsys/internal/transform"
)

// request is the payload carried by every delegator input.
type request struct {
	transform transform.Transform
	parent    *Delegator
	target    *Delegator
	at        clock.Millis
}

// Delegator mediates all mutation of one coordinate-system node.
type Delegator struct {
	graph *graph.Graph
	node  graph.NodeID
	ref   NodeRef

	clock   clock.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics
	hub     *Hub

	machine *fsm.Machine[request]
	states  machineStates
	inputs  machineInputs

	obs    observers
	closed atomic.Bool
}

// Option configures a Delegator.
type Option func(*Delegator)

// WithClock sets the clock used to stamp events. Defaults to a fresh
// clock.Monotonic; scenes pass their shared clock.
func WithClock(c clock.Clock) Option {
	return func(d *Delegator) {
		if c != nil {
			d.clock = c
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *Delegator) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithMetrics enables event, unhandled-input and resolve metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Delegator) {
		d.metrics = m
	}
}

// WithHub republishes every event to h after the delegator's own observers.
func WithHub(h *Hub) Option {
	return func(d *Delegator) {
		d.hub = h
	}
}

// New creates a node named name in g and the delegator that owns it.
func New(g *graph.Graph, name, kind string, opts ...Option) (*Delegator, error) {
	d := &Delegator{
		graph:  g,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.clock == nil {
		d.clock = clock.NewMonotonic()
	}

	d.node = g.AddNode(name, kind)
	info, err := g.Info(d.node)
	if err != nil {
		return nil, fmt.Errorf("new delegator %q: %w", name, err)
	}
	d.ref = NodeRef{ID: info.ID, UUID: info.UUID, Name: info.Name}

	d.machine = fsm.New[request]("delegator:"+info.Name,
		fsm.WithLogger(d.logger),
		fsm.WithUnhandledHandler(func(u fsm.UnhandledInput) {
			d.metrics.ObserveUnhandled(u.StateName, u.InputName)
		}),
	)
	if err := d.buildMachine(d.machine); err != nil {
		return nil, err
	}

	if err := g.SetOrphanHook(d.node, d.onOrphaned); err != nil {
		return nil, fmt.Errorf("new delegator %q: %w", name, err)
	}
	return d, nil
}

// WriteMachineDOT writes the delegator transition table as Graphviz DOT.
func WriteMachineDOT(w io.Writer) error {
	d := &Delegator{logger: slog.Default()}
	m := fsm.New[request]("CoordinateSystemDelegator", fsm.WithLogger(d.logger))
	if err := d.buildMachine(m); err != nil {
		return err
	}
	return m.ExportDOT(w)
}

// Node returns the graph node owned by the delegator.
func (d *Delegator) Node() graph.NodeID { return d.node }

// Name returns the node name.
func (d *Delegator) Name() string { return d.ref.Name }

// Ref returns the node reference used in events.
func (d *Delegator) Ref() NodeRef { return d.ref }

// Graph returns the graph the node lives in.
func (d *Delegator) Graph() *graph.Graph { return d.graph }

// State returns the name of the machine's current state.
func (d *Delegator) State() string {
	return d.machine.StateName(d.machine.CurrentState())
}

// Subscribe registers fn for one event kind.
func (d *Delegator) Subscribe(kind EventKind, fn Observer) Subscription {
	return d.obs.add(kind, fn)
}

// SubscribeAll registers fn for every event kind.
func (d *Delegator) SubscribeAll(fn Observer) Subscription {
	return d.obs.add(0, fn)
}

// Unsubscribe removes a registration. Returns false if it was not found.
func (d *Delegator) Unsubscribe(id Subscription) bool {
	return d.obs.remove(id)
}

// Close removes the node from the graph. Children are detached and
// receive a DisconnectedEvent. Requests on a closed delegator are dropped.
func (d *Delegator) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	return d.graph.RemoveNode(d.node)
}

// Closed reports whether Close has been called.
func (d *Delegator) Closed() bool {
	return d.closed.Load()
}

// RequestSetTransformAndParent attaches the node under parent with t.
//
// Outcomes: TransformSetEvent; NullParentEvent when parent is nil or
// closed (the node is detached and t discarded); ThisParentEvent when
// parent is this delegator; ParentCycleEvent when parent descends from
// this node; ForeignParentEvent when parent belongs to another graph.
// Rejected requests leave the previous parent in place.
func (d *Delegator) RequestSetTransformAndParent(t transform.Transform, parent *Delegator) {
	if d.dropIfClosed("RequestSetTransformAndParent") {
		return
	}

	input, ok := d.classifyParent(parent)
	if !ok {
		return
	}
	d.push(input, request{transform: t, parent: parent})
}

// RequestDetachFromParent detaches the node, exactly as a nil parent would.
func (d *Delegator) RequestDetachFromParent() {
	if d.dropIfClosed("RequestDetachFromParent") {
		return
	}
	d.push(d.inputs.nullParent, request{})
}

// RequestGetTransformToParent emits TransformToParentEvent, or
// DisconnectedEvent when the node has no parent.
func (d *Delegator) RequestGetTransformToParent() {
	if d.dropIfClosed("RequestGetTransformToParent") {
		return
	}
	d.push(d.inputs.getTransformToParent, request{})
}

// RequestUpdateTransform replaces the transform to the current parent.
// Emits TransformSetEvent, or DisconnectedEvent when detached.
func (d *Delegator) RequestUpdateTransform(t transform.Transform) {
	if d.dropIfClosed("RequestUpdateTransform") {
		return
	}
	d.push(d.inputs.updateTransform, request{transform: t})
}

// RequestComputeTransformTo resolves the transform from this node to
// target at time at. Emits TransformToEvent (with Stale set when at lies
// outside the validity window), TransformToDisconnectedEvent, or
// NullTargetEvent when target is nil.
func (d *Delegator) RequestComputeTransformTo(target *Delegator, at clock.Millis) {
	if d.dropIfClosed("RequestComputeTransformTo") {
		return
	}
	if target == nil {
		d.push(d.inputs.nullTarget, request{at: at})
		return
	}
	d.push(d.inputs.validTarget, request{target: target, at: at})
}

// classifyParent maps a requested parent onto a machine input.
func (d *Delegator) classifyParent(parent *Delegator) (fsm.InputID, bool) {
	switch {
	case parent == nil, parent.Closed():
		return d.inputs.nullParent, true
	case parent == d:
		return d.inputs.thisParent, true
	case parent.graph != d.graph:
		return d.inputs.foreignParent, true
	}

	err := d.graph.CheckParent(d.node, parent.node)
	switch {
	case err == nil:
		return d.inputs.validParent, true
	case errors.Is(err, graph.ErrSelfParent):
		return d.inputs.thisParent, true
	case errors.Is(err, graph.ErrCycle):
		return d.inputs.parentCycle, true
	case errors.Is(err, graph.ErrNodeRemoved):
		// The parent was removed without going through Close.
		return d.inputs.nullParent, true
	default:
		d.logger.Warn("parent request dropped",
			"node", d.ref.Name, "parent", parent.ref.Name, "error", err)
		return 0, false
	}
}

func (d *Delegator) push(input fsm.InputID, req request) {
	if err := d.machine.PushInput(input, req); err != nil {
		d.logger.Error("push input failed", "node", d.ref.Name, "error", err)
		return
	}
	d.machine.ProcessInputs()
}

func (d *Delegator) dropIfClosed(op string) bool {
	if d.closed.Load() {
		d.logger.Warn("request on closed delegator dropped", "node", d.ref.Name, "request", op)
		return true
	}
	return false
}

// onOrphaned runs when the graph removes this node's parent.
func (d *Delegator) onOrphaned() {
	d.push(d.inputs.parentRemoved, request{})
}

// =============================================================================
// Actions (run by the machine's draining goroutine)
// =============================================================================

func (d *Delegator) setParent(req request) {
	err := d.graph.SetParent(d.node, req.parent.node, req.transform)
	if err == nil {
		d.emit(Event{Kind: TransformSetEvent, Parent: req.parent.ref, Transform: req.transform})
		return
	}

	// Another delegator changed the topology between classification and
	// now. The graph refused the edge, so report it like a classified
	// rejection and bring the machine back in line with the graph.
	switch {
	case errors.Is(err, graph.ErrCycle):
		d.emit(Event{Kind: ParentCycleEvent, Parent: req.parent.ref})
	case errors.Is(err, graph.ErrSelfParent):
		d.emit(Event{Kind: ThisParentEvent})
	case errors.Is(err, graph.ErrNodeRemoved):
		d.detach(req)
	default:
		d.logger.Warn("set parent failed", "node", d.ref.Name, "parent", req.parent.ref.Name, "error", err)
	}
	if _, attached, _ := d.graph.TransformToParent(d.node); !attached {
		d.push(d.inputs.resync, request{})
	}
}

func (d *Delegator) detach(request) {
	if err := d.graph.Detach(d.node); err != nil {
		d.logger.Warn("detach failed", "node", d.ref.Name, "error", err)
	}
	d.emit(Event{Kind: NullParentEvent})
}

func (d *Delegator) reportThisParent(request) {
	d.emit(Event{Kind: ThisParentEvent, Parent: d.ref})
}

func (d *Delegator) reportParentCycle(req request) {
	d.emit(Event{Kind: ParentCycleEvent, Parent: req.parent.ref})
}

func (d *Delegator) reportForeignParent(req request) {
	d.emit(Event{Kind: ForeignParentEvent, Parent: req.parent.ref})
}

func (d *Delegator) reportDisconnected(request) {
	d.emit(Event{Kind: DisconnectedEvent})
}

func (d *Delegator) reportTransformToParent(request) {
	info, err := d.graph.Info(d.node)
	if err != nil || !info.Attached() {
		d.emit(Event{Kind: DisconnectedEvent})
		return
	}

	var parent NodeRef
	if p, err := d.graph.Info(info.Parent); err == nil {
		parent = NodeRef{ID: p.ID, UUID: p.UUID, Name: p.Name}
	}
	d.emit(Event{Kind: TransformToParentEvent, Parent: parent, Transform: info.TransformToParent})
}

func (d *Delegator) updateTransform(req request) {
	err := d.graph.SetTransform(d.node, req.transform)
	switch {
	case err == nil:
		d.emit(Event{Kind: TransformSetEvent, Transform: req.transform})
	case errors.Is(err, graph.ErrDetached):
		d.emit(Event{Kind: DisconnectedEvent})
		d.push(d.inputs.resync, request{})
	default:
		d.logger.Warn("update transform failed", "node", d.ref.Name, "error", err)
	}
}

func (d *Delegator) computeTransformTo(req request) {
	if req.target.graph != d.graph {
		d.emit(Event{Kind: TransformToDisconnectedEvent, Target: req.target.ref, At: req.at})
		return
	}

	start := time.Now()
	res, err := d.graph.Resolve(d.node, req.target.node, req.at)
	if err != nil {
		d.metrics.ObserveResolve(time.Since(start), false)
		d.logger.Debug("transform unresolved", "node", d.ref.Name, "target", req.target.ref.Name, "error", err)
		d.emit(Event{Kind: TransformToDisconnectedEvent, Target: req.target.ref, At: req.at})
		return
	}
	d.metrics.ObserveResolve(time.Since(start), res.Stale)

	d.emit(Event{
		Kind:      TransformToEvent,
		Target:    req.target.ref,
		Transform: res.Transform,
		Stale:     res.Stale,
		At:        req.at,
	})
}

func (d *Delegator) reportNullTarget(req request) {
	d.emit(Event{Kind: NullTargetEvent, At: req.at})
}

// emit stamps ev and delivers it to observers, then to the hub.
func (d *Delegator) emit(ev Event) {
	ev.Node = d.ref
	ev.Time = d.clock.Now()

	if ev.Kind.IsRejection() {
		d.logger.Warn("request rejected", "node", d.ref.Name, "event", ev.Kind.String(), "parent", ev.Parent.Name)
	} else {
		d.logger.Debug("event", "node", d.ref.Name, "event", ev.Kind.String())
	}

	d.metrics.ObserveEvent(ev.Kind.String())
	d.obs.emit(ev)
	if d.hub != nil {
		d.hub.Publish(ev)
	}
}
