package harness

import (
	"math"

	"github.com/roach88/coordsys/internal/delegator"
)

// TraceEvent is one delegator event in a scenario trace.
type TraceEvent struct {
	Seq    int    `json:"seq"`
	Step   int    `json:"step"`
	Kind   string `json:"kind"`
	Node   string `json:"node"`
	Parent string `json:"parent,omitempty"`
	Target string `json:"target,omitempty"`
	Stale  bool   `json:"stale,omitempty"`

	// Translation and Error are set for events that carry a transform,
	// rounded to a micrometre so snapshots are stable.
	Translation *[3]float64 `json:"translation,omitempty"`
	Error       *float64    `json:"error,omitempty"`
}

// NodeState is a node's final machine state and parent.
type NodeState struct {
	State  string `json:"state"`
	Parent string `json:"parent,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// Trace holds the events emitted by scripted steps, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors holds assertion failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Final maps every node name to its state after the last step.
	Final map[string]NodeState `json:"final,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		Final:  make(map[string]NodeState),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddEvent appends ev to the trace as produced by the given step.
func (r *Result) AddEvent(step int, ev delegator.Event) {
	te := TraceEvent{
		Seq:    len(r.Trace) + 1,
		Step:   step,
		Kind:   ev.Kind.String(),
		Node:   ev.Node.Name,
		Parent: ev.Parent.Name,
		Target: ev.Target.Name,
		Stale:  ev.Stale,
	}
	switch ev.Kind {
	case delegator.TransformSetEvent, delegator.TransformToParentEvent, delegator.TransformToEvent:
		v := ev.Transform.Translation()
		translation := [3]float64{round(v[0]), round(v[1]), round(v[2])}
		e := round(ev.Transform.Error())
		te.Translation = &translation
		te.Error = &e
	}
	r.Trace = append(r.Trace, te)
}

// round keeps six decimals and folds negative zero.
func round(v float64) float64 {
	return math.Round(v*1e6)/1e6 + 0
}
