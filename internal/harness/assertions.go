package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/coordsys/internal/graph"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] step %d %s %s", ev.Seq, ev.Step, ev.Node, ev.Kind)
			if ev.Parent != "" {
				fmt.Fprintf(&buf, " parent=%s", ev.Parent)
			}
			if ev.Target != "" {
				fmt.Fprintf(&buf, " target=%s stale=%t", ev.Target, ev.Stale)
			}
			buf.WriteString("\n")
		}
	}

	return buf.String()
}

// matches reports whether ev satisfies every filter set on a.
func matches(ev TraceEvent, a Assertion) bool {
	if a.Event != "" && ev.Kind != a.Event {
		return false
	}
	if a.Node != "" && ev.Node != graph.CanonicalName(a.Node) {
		return false
	}
	if a.Parent != "" && ev.Parent != graph.CanonicalName(a.Parent) {
		return false
	}
	if a.Target != "" && ev.Target != graph.CanonicalName(a.Target) {
		return false
	}
	if a.Stale != nil && ev.Stale != *a.Stale {
		return false
	}
	return true
}

func describe(a Assertion) string {
	var parts []string
	parts = append(parts, a.Event)
	if a.Node != "" {
		parts = append(parts, "node="+a.Node)
	}
	if a.Parent != "" {
		parts = append(parts, "parent="+a.Parent)
	}
	if a.Target != "" {
		parts = append(parts, "target="+a.Target)
	}
	if a.Stale != nil {
		parts = append(parts, fmt.Sprintf("stale=%t", *a.Stale))
	}
	return strings.Join(parts, " ")
}

// assertEventContains checks that some event matches every filter.
func assertEventContains(trace []TraceEvent, a Assertion) error {
	for _, ev := range trace {
		if matches(ev, a) {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertEventContains,
		Expected: describe(a),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertEventOrder checks that the kinds first appear in the given order.
// Kinds don't need to be consecutive (intervening events are allowed).
func assertEventOrder(trace []TraceEvent, a Assertion) error {
	// Step 1: Find first position of each expected kind
	positions := make(map[string]int)
	for _, ev := range trace {
		if _, seen := positions[ev.Kind]; !seen {
			positions[ev.Kind] = ev.Seq
		}
	}

	// Step 2: Verify all kinds found
	for _, kind := range a.Events {
		if _, ok := positions[kind]; !ok {
			return &AssertionError{
				Type:     AssertEventOrder,
				Expected: fmt.Sprintf("all events present: %v", a.Events),
				Actual:   fmt.Sprintf("missing event: %s", kind),
				Trace:    trace,
			}
		}
	}

	// Step 3: Verify order
	for i := 1; i < len(a.Events); i++ {
		prev, curr := a.Events[i-1], a.Events[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertEventOrder,
				Expected: fmt.Sprintf("events in order: %v", a.Events),
				Actual: fmt.Sprintf("%s (seq %d) should be before %s (seq %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}

	return nil
}

// assertEventCount checks that exactly Count events match.
func assertEventCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if matches(ev, a) {
			count++
		}
	}

	if count != a.Count {
		return &AssertionError{
			Type:     AssertEventCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, describe(a)),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState checks a node's state and parent after the last step.
func assertFinalState(final map[string]NodeState, a Assertion) error {
	name := graph.CanonicalName(a.Node)
	got, ok := final[name]
	if !ok {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("node %s in scene", a.Node),
			Actual:   "node not found",
		}
	}

	want := NodeState{State: a.State, Parent: graph.CanonicalName(a.Parent)}
	if got != want {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s %s parent=%q", a.Node, want.State, want.Parent),
			Actual:   fmt.Sprintf("%s %s parent=%q", a.Node, got.State, got.Parent),
		}
	}
	return nil
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertEventContains:
			err = assertEventContains(result.Trace, assertion)
		case AssertEventOrder:
			err = assertEventOrder(result.Trace, assertion)
		case AssertEventCount:
			err = assertEventCount(result.Trace, assertion)
		case AssertFinalState:
			err = assertFinalState(result.Final, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
