// Package tracking feeds tracker samples into the coordinate graph.
//
// Acquisition and application run on different goroutines and meet only
// at a Buffer:
//
//	Source --Acquirer.Run--> Buffer --Poller.Tick--> Delegator requests
//
// The Acquirer polls a device at its own frequency and overwrites the
// latest sample per tool. The Poller drains the buffer on a fixed tick,
// stamps each sample with a validity window derived from the device
// frequency, and issues RequestSetTransformAndParent on the tool's
// delegator. Nothing else writes tracked transforms into the graph.
//
// A sample that is overwritten before the poller drains it is dropped and
// counted; the tool's transform simply goes stale until the next sample.
package tracking
