// Package harness runs scripted request scenarios against a scene and
// checks the events the delegators emit.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: tip_goes_stale
//	description: "A tracked tip resolves fresh inside its window and stale after"
//	scene: ../scenes/bench.yaml   # relative to the scenario file
//	steps:
//	  - at: 0
//	    op: set_parent
//	    node: Tip
//	    parent: Tracker
//	    transform: { translation: [0, 0, 120], error: 0.1 }
//	    valid_for: 50
//	  - at: 30
//	    op: resolve
//	    node: Tip
//	    target: World
//	assertions:
//	  - type: event_contains
//	    event: TransformToEvent
//	    node: Tip
//	    stale: false
//	  - type: final_state
//	    node: Tip
//	    state: Attached
//	    parent: Tracker
//
// Each step first sets the scene clock to at, then issues one request:
// set_parent (an empty parent requests a null parent), detach,
// get_transform, update, resolve (an empty target requests a null target)
// or remove. A transform with valid_for > 0 is valid on [at, at+valid_for];
// otherwise it is valid for all time.
//
// # Assertion Types
//
//   - event_contains: some event matches kind, node, parent, target and stale
//   - event_order: the listed kinds first appear in this order
//   - event_count: exactly count events match kind and node
//   - final_state: a node ends in state with the given parent ("" = none)
//
// Events emitted while the scene is built are not part of the trace; only
// the outcomes of scripted steps are. The trace is deterministic, so it can
// be compared against a golden snapshot with RunWithGolden.
package harness
