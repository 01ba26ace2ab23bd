package delegator

import (
	"github.com/roach88/coordsys/internal/clock"
	"github.com/roach88/coordsys/internal/graph"
	"github.com/roach88/coordsys/internal/transform"
)

// EventKind distinguishes the events a delegator emits.
type EventKind int

const (
	// NullParentEvent: the node was detached by a nil parent or an
	// explicit detach request.
	NullParentEvent EventKind = iota + 1
	// NullTargetEvent: a transform was requested to a nil target.
	NullTargetEvent
	// ThisParentEvent: the node was asked to become its own parent.
	ThisParentEvent
	// ParentCycleEvent: the requested parent already descends from the node.
	ParentCycleEvent
	// TransformSetEvent confirms a new parent and/or transform.
	TransformSetEvent
	// TransformToParentEvent carries the current transform-to-parent.
	TransformToParentEvent
	// DisconnectedEvent: the node has no parent (queried while detached,
	// or orphaned because its parent was removed).
	DisconnectedEvent
	// TransformToEvent carries a resolved transform to a target node.
	TransformToEvent
	// TransformToDisconnectedEvent: no path exists to the target node.
	TransformToDisconnectedEvent
	// ForeignParentEvent: the requested parent belongs to another graph.
	ForeignParentEvent
)

var eventKindNames = map[EventKind]string{
	NullParentEvent:              "NullParentEvent",
	NullTargetEvent:              "NullTargetEvent",
	ThisParentEvent:              "ThisParentEvent",
	ParentCycleEvent:             "ParentCycleEvent",
	TransformSetEvent:            "TransformSetEvent",
	TransformToParentEvent:       "TransformToParentEvent",
	DisconnectedEvent:            "DisconnectedEvent",
	TransformToEvent:             "TransformToEvent",
	TransformToDisconnectedEvent: "TransformToDisconnectedEvent",
	ForeignParentEvent:           "ForeignParentEvent",
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return "UnknownEvent"
}

// EventKinds lists every kind in declaration order.
func EventKinds() []EventKind {
	kinds := make([]EventKind, 0, len(eventKindNames))
	for k := NullParentEvent; k <= ForeignParentEvent; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}

// IsRejection reports whether the kind signals a refused mutation request.
func (k EventKind) IsRejection() bool {
	return k == ThisParentEvent || k == ParentCycleEvent || k == ForeignParentEvent
}

// NodeRef names a node in an event.
type NodeRef struct {
	ID   graph.NodeID
	UUID string
	Name string
}

// Event is one outcome of a delegator request.
//
// Only the fields relevant to Kind are set:
//   - Transform: TransformSetEvent, TransformToParentEvent, TransformToEvent
//   - Parent: TransformSetEvent, ParentCycleEvent, ForeignParentEvent
//   - Target, At, Stale: TransformToEvent, TransformToDisconnectedEvent,
//     NullTargetEvent (At only)
type Event struct {
	Kind      EventKind
	Node      NodeRef
	Parent    NodeRef
	Target    NodeRef
	Transform transform.Transform
	Stale     bool
	At        clock.Millis

	// Time is the clock reading when the event was emitted.
	Time clock.Millis
}
