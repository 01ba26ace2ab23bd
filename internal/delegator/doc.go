// Package delegator implements the per-entity façade through which every
// mutation of a coordinate-system node flows.
//
// Each Delegator owns one graph node and a private fsm.Machine. Public
// Request* methods classify the request (null parent, self parent, cycle,
// valid), push the matching input into the machine and drain it. The
// transition table decides what happens; outcomes are reported only as
// Events to subscribed observers, never as return values. Callers that
// never subscribe simply receive no notification.
//
// Requests may be issued from any goroutine. Each delegator processes its
// own requests in submission order; no order is guaranteed across
// delegators. A request issued while another goroutine is draining the
// same delegator returns immediately and its events are emitted by the
// draining goroutine.
package delegator
