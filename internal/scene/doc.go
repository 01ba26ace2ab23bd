// Package scene loads scene descriptions and builds the coordinate graph
// they describe.
//
// A scene declares fixed frames (world, tracker, image volumes) with the
// static calibration transforms between them, and tracked tools whose
// transforms arrive from a tracking device at a given frequency:
//
//	name: bench
//	reference: World
//	nodes:
//	  - name: World
//	  - name: Tracker
//	    parent: World
//	    transform: {translation: [0, 0, 1500]}
//	tools:
//	  - name: Needle
//	    parent: Tracker
//	    frequency: 60
//
// Scenes are written in YAML or CUE. CUE files are validated against the
// embedded schema.cue; both formats then go through the same semantic
// checks (unique names, known parents, acyclic parent chains).
package scene
