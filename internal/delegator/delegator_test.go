package delegator

import (
	"bytes"
	"sync"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/coordsys/internal/clock"
	"github.com/roach88/coordsys/internal/graph"
	"github.com/roach88/coordsys/internal/metrics"
	"github.com/roach88/coordsys/internal/testutil"
	"github.com/roach88/coordsys/internal/token"
	"github.com/roach88/coordsys/internal/transform"
)

type fixture struct {
	graph  *graph.Graph
	clock  *clock.Manual
	hub    *Hub
	events *testutil.Recorder[Event]
	m      *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		graph: graph.New(graph.WithIDGenerator(token.NewFixedGenerator(
			"uuid-0", "uuid-1", "uuid-2", "uuid-3", "uuid-4", "uuid-5",
		))),
		clock:  clock.NewManual(0),
		hub:    NewHub(),
		events: testutil.NewRecorder[Event](),
		m:      metrics.New(),
	}
	f.hub.SubscribeAll(f.events.Record)
	return f
}

func (f *fixture) node(t *testing.T, name string) *Delegator {
	t.Helper()
	d, err := New(f.graph, name, "test",
		WithClock(f.clock),
		WithHub(f.hub),
		WithMetrics(f.m),
	)
	require.NoError(t, err)
	return d
}

func (f *fixture) kinds() []EventKind {
	var out []EventKind
	for _, ev := range f.events.All() {
		out = append(out, ev.Kind)
	}
	return out
}

func (f *fixture) last(t *testing.T) Event {
	t.Helper()
	ev, ok := f.events.Last()
	require.True(t, ok, "no event emitted")
	return ev
}

func windowed(x float64, start, expiration clock.Millis) transform.Transform {
	return transform.NewWindow(mgl64.QuatIdent(), mgl64.Vec3{x, 0, 0}, 0.1, start, expiration)
}

// =============================================================================
// Parent requests
// =============================================================================

func TestDelegator_StartsDetached(t *testing.T) {
	f := newFixture(t)
	a := f.node(t, "A")

	assert.Equal(t, StateDetached, a.State())
	assert.Equal(t, "A", a.Name())
	assert.Equal(t, "uuid-0", a.Ref().UUID)
}

func TestDelegator_ValidParent(t *testing.T) {
	f := newFixture(t)
	world := f.node(t, "World")
	tracker := f.node(t, "Tracker")

	f.clock.Set(12)
	tracker.RequestSetTransformAndParent(transform.Translate(1, 2, 3), world)

	ev := f.last(t)
	assert.Equal(t, TransformSetEvent, ev.Kind)
	assert.Equal(t, "Tracker", ev.Node.Name)
	assert.Equal(t, "World", ev.Parent.Name)
	assert.Equal(t, clock.Millis(12), ev.Time)
	assert.Equal(t, StateAttached, tracker.State())

	info, err := f.graph.Info(tracker.Node())
	require.NoError(t, err)
	assert.Equal(t, world.Node(), info.Parent)
	assert.True(t, transform.Equal(transform.Translate(1, 2, 3), info.TransformToParent))
}

func TestDelegator_NullParentDetaches(t *testing.T) {
	f := newFixture(t)
	world := f.node(t, "World")
	tracker := f.node(t, "Tracker")
	tracker.RequestSetTransformAndParent(transform.Translate(1, 0, 0), world)

	tracker.RequestSetTransformAndParent(transform.Translate(5, 0, 0), nil)

	assert.Equal(t, NullParentEvent, f.last(t).Kind)
	assert.Equal(t, StateDetached, tracker.State())
	_, attached, err := f.graph.TransformToParent(tracker.Node())
	require.NoError(t, err)
	assert.False(t, attached)
}

func TestDelegator_RequestDetachFromParent(t *testing.T) {
	f := newFixture(t)
	world := f.node(t, "World")
	tracker := f.node(t, "Tracker")
	tracker.RequestSetTransformAndParent(transform.Identity(), world)

	tracker.RequestDetachFromParent()

	assert.Equal(t, NullParentEvent, f.last(t).Kind)
	assert.Equal(t, StateDetached, tracker.State())
}

func TestDelegator_ThisParentRejected(t *testing.T) {
	f := newFixture(t)
	world := f.node(t, "World")
	a := f.node(t, "A")
	a.RequestSetTransformAndParent(transform.Translate(1, 0, 0), world)

	a.RequestSetTransformAndParent(transform.Translate(9, 9, 9), a)

	ev := f.last(t)
	assert.Equal(t, ThisParentEvent, ev.Kind)
	assert.Equal(t, StateAttached, a.State())

	info, err := f.graph.Info(a.Node())
	require.NoError(t, err)
	assert.Equal(t, world.Node(), info.Parent)
	assert.True(t, transform.Equal(transform.Translate(1, 0, 0), info.TransformToParent))
}

func TestDelegator_ParentCycleRejectedOnce(t *testing.T) {
	f := newFixture(t)
	a := f.node(t, "A")
	b := f.node(t, "B")
	c := f.node(t, "C")
	b.RequestSetTransformAndParent(transform.Identity(), a)
	c.RequestSetTransformAndParent(transform.Identity(), b)

	cycles := testutil.NewRecorder[Event]()
	a.Subscribe(ParentCycleEvent, cycles.Record)

	a.RequestSetTransformAndParent(transform.Identity(), c)

	require.Equal(t, 1, cycles.Len())
	ev, _ := cycles.Last()
	assert.Equal(t, "A", ev.Node.Name)
	assert.Equal(t, "C", ev.Parent.Name)

	info, err := f.graph.Info(a.Node())
	require.NoError(t, err)
	assert.Equal(t, graph.NoNode, info.Parent)
	assert.Equal(t, StateDetached, a.State())
	assert.Equal(t, 1.0, promtest.ToFloat64(f.m.EventsTotal.WithLabelValues("ParentCycleEvent")))
}

func TestDelegator_ReparentKeepsPreviousOnCycle(t *testing.T) {
	f := newFixture(t)
	world := f.node(t, "World")
	a := f.node(t, "A")
	b := f.node(t, "B")
	a.RequestSetTransformAndParent(transform.Translate(1, 0, 0), world)
	b.RequestSetTransformAndParent(transform.Translate(2, 0, 0), a)

	a.RequestSetTransformAndParent(transform.Identity(), b)

	assert.Equal(t, ParentCycleEvent, f.last(t).Kind)
	assert.Equal(t, StateAttached, a.State())
	info, err := f.graph.Info(a.Node())
	require.NoError(t, err)
	assert.Equal(t, world.Node(), info.Parent)
}

func TestDelegator_ForeignGraphParentRejected(t *testing.T) {
	f := newFixture(t)
	world := f.node(t, "World")
	a := f.node(t, "A")
	other, err := New(graph.New(), "Elsewhere", "test")
	require.NoError(t, err)

	a.RequestSetTransformAndParent(transform.Identity(), other)

	require.Equal(t, 1, f.events.Len())
	ev := f.last(t)
	assert.Equal(t, ForeignParentEvent, ev.Kind)
	assert.Equal(t, "Elsewhere", ev.Parent.Name)
	assert.True(t, ev.Kind.IsRejection())
	assert.Equal(t, StateDetached, a.State())

	// An attached node keeps its parent.
	a.RequestSetTransformAndParent(transform.Identity(), world)
	a.RequestSetTransformAndParent(transform.Identity(), other)

	assert.Equal(t, ForeignParentEvent, f.last(t).Kind)
	assert.Equal(t, StateAttached, a.State())
	info, err := f.graph.Info(a.Node())
	require.NoError(t, err)
	assert.Equal(t, world.Node(), info.Parent)
}

func TestDelegator_ClosedParentRequest(t *testing.T) {
	f := newFixture(t)
	world := f.node(t, "World")
	a := f.node(t, "A")
	require.NoError(t, world.Close())

	a.RequestSetTransformAndParent(transform.Translate(1, 0, 0), world)

	assert.Equal(t, []EventKind{NullParentEvent}, f.kinds())
	assert.Equal(t, StateDetached, a.State())
	_, attached, err := f.graph.TransformToParent(a.Node())
	require.NoError(t, err)
	assert.False(t, attached)
}

func TestDelegator_ClosedParentDetachesAttachedNode(t *testing.T) {
	f := newFixture(t)
	world := f.node(t, "World")
	tracker := f.node(t, "Tracker")
	a := f.node(t, "A")
	a.RequestSetTransformAndParent(transform.Identity(), world)
	require.NoError(t, tracker.Close())
	n := f.events.Len()

	a.RequestSetTransformAndParent(transform.Identity(), tracker)

	require.Equal(t, n+1, f.events.Len())
	assert.Equal(t, NullParentEvent, f.last(t).Kind)
	assert.Equal(t, StateDetached, a.State())
}

// =============================================================================
// Transform queries and updates
// =============================================================================

func TestDelegator_GetTransformToParent(t *testing.T) {
	f := newFixture(t)
	world := f.node(t, "World")
	a := f.node(t, "A")

	a.RequestGetTransformToParent()
	assert.Equal(t, DisconnectedEvent, f.last(t).Kind)

	a.RequestSetTransformAndParent(transform.Translate(0, 4, 0), world)
	a.RequestGetTransformToParent()

	ev := f.last(t)
	assert.Equal(t, TransformToParentEvent, ev.Kind)
	assert.Equal(t, "World", ev.Parent.Name)
	assert.True(t, transform.Equal(transform.Translate(0, 4, 0), ev.Transform))
}

func TestDelegator_UpdateTransform(t *testing.T) {
	f := newFixture(t)
	world := f.node(t, "World")
	a := f.node(t, "A")

	a.RequestUpdateTransform(transform.Translate(1, 1, 1))
	assert.Equal(t, DisconnectedEvent, f.last(t).Kind)

	a.RequestSetTransformAndParent(transform.Identity(), world)
	a.RequestUpdateTransform(transform.Translate(1, 1, 1))

	assert.Equal(t, TransformSetEvent, f.last(t).Kind)
	tp, attached, err := f.graph.TransformToParent(a.Node())
	require.NoError(t, err)
	assert.True(t, attached)
	assert.True(t, transform.Equal(transform.Translate(1, 1, 1), tp))
}

func TestDelegator_UpdateTransformResyncsWhenGraphDetached(t *testing.T) {
	f := newFixture(t)
	world := f.node(t, "World")
	a := f.node(t, "A")
	a.RequestSetTransformAndParent(transform.Identity(), world)

	// Mutate the graph behind the delegator's back.
	require.NoError(t, f.graph.Detach(a.Node()))

	a.RequestUpdateTransform(transform.Translate(1, 0, 0))

	assert.Equal(t, DisconnectedEvent, f.last(t).Kind)
	assert.Equal(t, StateDetached, a.State())
}

// =============================================================================
// Resolution
// =============================================================================

func TestDelegator_TipTrackerWorld(t *testing.T) {
	f := newFixture(t)
	world := f.node(t, "World")
	tracker := f.node(t, "Tracker")
	tip := f.node(t, "Tip")

	t1 := windowed(1, 0, 50)
	t2 := windowed(10, 0, 1000)
	tip.RequestSetTransformAndParent(t1, tracker)
	tracker.RequestSetTransformAndParent(t2, world)

	results := testutil.NewRecorder[Event]()
	tip.Subscribe(TransformToEvent, results.Record)

	tip.RequestComputeTransformTo(world, 30)
	tip.RequestComputeTransformTo(world, 60)

	got := results.All()
	require.Len(t, got, 2)

	want := transform.Compose(t2, t1)
	assert.True(t, transform.Equal(want, got[0].Transform))
	assert.Equal(t, clock.Millis(0), got[0].Transform.Start())
	assert.Equal(t, clock.Millis(50), got[0].Transform.Expiration())
	assert.False(t, got[0].Stale)
	assert.Equal(t, clock.Millis(30), got[0].At)
	assert.Equal(t, "World", got[0].Target.Name)

	assert.True(t, transform.Equal(want, got[1].Transform))
	assert.True(t, got[1].Stale)

	assert.Equal(t, 1.0, promtest.ToFloat64(f.m.StaleResolutions))
}

func TestDelegator_DetachedTrackerDisconnectsTip(t *testing.T) {
	f := newFixture(t)
	world := f.node(t, "World")
	tracker := f.node(t, "Tracker")
	tip := f.node(t, "Tip")
	tip.RequestSetTransformAndParent(windowed(1, 0, 50), tracker)
	tracker.RequestSetTransformAndParent(windowed(10, 0, 1000), world)

	tracker.RequestDetachFromParent()
	tip.RequestComputeTransformTo(world, 30)

	ev := f.last(t)
	assert.Equal(t, TransformToDisconnectedEvent, ev.Kind)
	assert.Equal(t, "Tip", ev.Node.Name)
	assert.Equal(t, "World", ev.Target.Name)
}

func TestDelegator_NullTarget(t *testing.T) {
	f := newFixture(t)
	a := f.node(t, "A")

	a.RequestComputeTransformTo(nil, 5)

	ev := f.last(t)
	assert.Equal(t, NullTargetEvent, ev.Kind)
	assert.Equal(t, clock.Millis(5), ev.At)
}

func TestDelegator_ResolveToSelf(t *testing.T) {
	f := newFixture(t)
	a := f.node(t, "A")

	a.RequestComputeTransformTo(a, 1e9)

	ev := f.last(t)
	assert.Equal(t, TransformToEvent, ev.Kind)
	assert.False(t, ev.Stale)
	assert.True(t, ev.Transform.IsValidForAllTime())
}

func TestDelegator_ForeignGraphTargetDisconnected(t *testing.T) {
	f := newFixture(t)
	a := f.node(t, "A")
	other, err := New(graph.New(), "Elsewhere", "test")
	require.NoError(t, err)

	a.RequestComputeTransformTo(other, 0)

	assert.Equal(t, TransformToDisconnectedEvent, f.last(t).Kind)
}

// =============================================================================
// Lifecycle
// =============================================================================

func TestDelegator_CloseOrphansChildren(t *testing.T) {
	f := newFixture(t)
	world := f.node(t, "World")
	tracker := f.node(t, "Tracker")
	tip := f.node(t, "Tip")
	tracker.RequestSetTransformAndParent(transform.Identity(), world)
	tip.RequestSetTransformAndParent(transform.Identity(), tracker)

	disconnected := testutil.NewRecorder[Event]()
	tip.Subscribe(DisconnectedEvent, disconnected.Record)

	require.NoError(t, tracker.Close())

	assert.Equal(t, 1, disconnected.Len())
	assert.Equal(t, StateDetached, tip.State())
	_, attached, err := f.graph.TransformToParent(tip.Node())
	require.NoError(t, err)
	assert.False(t, attached)

	// Close is idempotent; requests on a closed delegator are dropped.
	require.NoError(t, tracker.Close())
	n := f.events.Len()
	tracker.RequestGetTransformToParent()
	assert.Equal(t, n, f.events.Len())
}

func TestDelegator_OrphanedWhileDetachedIsQuiet(t *testing.T) {
	f := newFixture(t)
	world := f.node(t, "World")
	a := f.node(t, "A")
	a.RequestSetTransformAndParent(transform.Identity(), world)

	// The detach lands before the graph reports the parent's removal.
	a.RequestDetachFromParent()
	a.onOrphaned()
	a.push(a.inputs.resync, request{})

	assert.Equal(t, StateDetached, a.State())
	assert.Equal(t, []EventKind{TransformSetEvent, NullParentEvent}, f.kinds())
	assert.Equal(t, 0, promtest.CollectAndCount(f.m.UnhandledInputs))
}

// =============================================================================
// Observers
// =============================================================================

func TestDelegator_SubscribeByKind(t *testing.T) {
	f := newFixture(t)
	world := f.node(t, "World")
	a := f.node(t, "A")

	sets := testutil.NewRecorder[Event]()
	all := testutil.NewRecorder[Event]()
	sub := a.Subscribe(TransformSetEvent, sets.Record)
	a.SubscribeAll(all.Record)

	a.RequestGetTransformToParent()
	a.RequestSetTransformAndParent(transform.Identity(), world)

	assert.Equal(t, 1, sets.Len())
	assert.Equal(t, 2, all.Len())

	assert.True(t, a.Unsubscribe(sub))
	assert.False(t, a.Unsubscribe(sub))
	a.RequestUpdateTransform(transform.Identity())
	assert.Equal(t, 1, sets.Len())
	assert.Equal(t, 3, all.Len())
}

func TestDelegator_ReentrantObserverRunsAfterCurrentEvent(t *testing.T) {
	f := newFixture(t)
	world := f.node(t, "World")
	a := f.node(t, "A")

	var order []EventKind
	a.SubscribeAll(func(ev Event) {
		order = append(order, ev.Kind)
		if ev.Kind == TransformSetEvent {
			// Queued behind the current input, not run inline.
			a.RequestGetTransformToParent()
			order = append(order, 0)
		}
	})

	a.RequestSetTransformAndParent(transform.Identity(), world)

	assert.Equal(t, []EventKind{TransformSetEvent, 0, TransformToParentEvent}, order)
}

func TestDelegator_ConcurrentRequestsKeepTreeAcyclic(t *testing.T) {
	f := newFixture(t)
	nodes := []*Delegator{f.node(t, "N0"), f.node(t, "N1"), f.node(t, "N2"), f.node(t, "N3")}

	var wg sync.WaitGroup
	for i := range nodes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for n := 0; n < 50; n++ {
				nodes[i].RequestSetTransformAndParent(transform.Identity(), nodes[(i+1)%len(nodes)])
				nodes[i].RequestDetachFromParent()
			}
			nodes[i].RequestSetTransformAndParent(transform.Identity(), nodes[(i+1)%len(nodes)])
		}(i)
	}
	wg.Wait()

	attached := 0
	for _, d := range nodes {
		_, ok, err := f.graph.TransformToParent(d.Node())
		require.NoError(t, err)
		if ok {
			attached++
			assert.Equal(t, StateAttached, d.State())
		}
	}
	// A ring of four can hold at most three edges.
	assert.LessOrEqual(t, attached, 3)
}

func TestWriteMachineDOT(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMachineDOT(&buf))

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "machine_dot", buf.Bytes())
}

func TestEventKind_String(t *testing.T) {
	kinds := EventKinds()
	require.Len(t, kinds, 10)
	assert.Equal(t, "NullParentEvent", kinds[0].String())
	assert.Equal(t, "TransformToDisconnectedEvent", kinds[8].String())
	assert.Equal(t, "ForeignParentEvent", kinds[9].String())
	assert.Equal(t, "UnknownEvent", EventKind(0).String())
	assert.True(t, ParentCycleEvent.IsRejection())
	assert.False(t, TransformToEvent.IsRejection())
}

func TestHub_FanIn(t *testing.T) {
	f := newFixture(t)
	a := f.node(t, "A")
	b := f.node(t, "B")

	a.RequestGetTransformToParent()
	b.RequestGetTransformToParent()

	events := f.events.All()
	require.Len(t, events, 2)
	assert.Equal(t, "A", events[0].Node.Name)
	assert.Equal(t, "B", events[1].Node.Name)
}
