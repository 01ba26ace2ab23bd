package fsm

import (
	"log/slog"
	"sync/atomic"

	"github.com/roach88/coordsys/internal/token"
)

// StateID identifies a state registered on a Machine.
type StateID token.Token

// InputID identifies an input registered on a Machine.
type InputID token.Token

// Action runs when a transition fires. It receives the payload the input
// was pushed with and has no return value: outcomes are communicated by
// the owner (events), not by the machine.
type Action[P any] func(payload P)

// UnhandledInput describes an input that arrived in a state with no
// matching transition.
type UnhandledInput struct {
	Machine   string
	State     StateID
	StateName string
	Input     InputID
	InputName string
}

// TransitionRecord is a named row of the transition table.
type TransitionRecord struct {
	From      string
	Input     string
	To        string
	HasAction bool
}

type transitionKey struct {
	state StateID
	input InputID
}

type transition[P any] struct {
	next   StateID
	action Action[P]
}

// Machine is a table-driven finite state machine whose inputs carry a
// payload of type P. Use struct{} when inputs need no payload.
//
// Configuration (AddState, AddInput, AddTransition, SetInitialState) must
// happen from a single goroutine before SetReadyToRun. After that the
// table is immutable and PushInput/ProcessInputs are safe for concurrent
// use.
type Machine[P any] struct {
	name   string
	logger *slog.Logger

	onUnhandled func(UnhandledInput)

	states     map[StateID]string
	stateIDs   map[string]StateID
	stateOrder []StateID

	inputs     map[InputID]string
	inputIDs   map[string]InputID
	inputOrder []InputID

	table      map[transitionKey]transition[P]
	tableOrder []transitionKey

	initial StateID
	current atomic.Uint64
	ready   atomic.Bool

	queue    *inputQueue[P]
	draining atomic.Bool
}

// New creates an unconfigured machine. name appears in logs and errors.
func New[P any](name string, opts ...Option) *Machine[P] {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	return &Machine[P]{
		name:        name,
		logger:      o.logger,
		onUnhandled: o.onUnhandled,
		states:      make(map[StateID]string),
		stateIDs:    make(map[string]StateID),
		inputs:      make(map[InputID]string),
		inputIDs:    make(map[string]InputID),
		table:       make(map[transitionKey]transition[P]),
		queue:       newInputQueue[P](),
	}
}

// Name returns the machine name.
func (m *Machine[P]) Name() string {
	return m.name
}

// AddState registers a state and returns its token.
func (m *Machine[P]) AddState(name string) (StateID, error) {
	if m.ready.Load() {
		return 0, m.errorf(ErrCodeAlreadyReady, name, "cannot add state after SetReadyToRun")
	}
	if _, exists := m.stateIDs[name]; exists {
		return 0, m.errorf(ErrCodeDuplicateState, name, "state already registered")
	}

	id := StateID(token.Next())
	m.states[id] = name
	m.stateIDs[name] = id
	m.stateOrder = append(m.stateOrder, id)
	return id, nil
}

// AddInput registers an input and returns its token.
func (m *Machine[P]) AddInput(name string) (InputID, error) {
	if m.ready.Load() {
		return 0, m.errorf(ErrCodeAlreadyReady, name, "cannot add input after SetReadyToRun")
	}
	if _, exists := m.inputIDs[name]; exists {
		return 0, m.errorf(ErrCodeDuplicateInput, name, "input already registered")
	}

	id := InputID(token.Next())
	m.inputs[id] = name
	m.inputIDs[name] = id
	m.inputOrder = append(m.inputOrder, id)
	return id, nil
}

// AddTransition declares that input in state from moves the machine to
// state to and runs action. A nil action only changes state; a nil action
// with to == from ignores the input without reporting it as unhandled.
func (m *Machine[P]) AddTransition(from StateID, input InputID, to StateID, action Action[P]) error {
	if m.ready.Load() {
		return m.errorf(ErrCodeAlreadyReady, "", "cannot add transition after SetReadyToRun")
	}
	if _, ok := m.states[from]; !ok {
		return m.errorf(ErrCodeUnknownState, "", "source state %d not registered", from)
	}
	if _, ok := m.states[to]; !ok {
		return m.errorf(ErrCodeUnknownState, "", "target state %d not registered", to)
	}
	if _, ok := m.inputs[input]; !ok {
		return m.errorf(ErrCodeUnknownInput, "", "input %d not registered", input)
	}

	key := transitionKey{state: from, input: input}
	if _, exists := m.table[key]; exists {
		return m.errorf(ErrCodeDuplicateTransition, m.inputs[input],
			"transition already declared for state %q", m.states[from])
	}

	m.table[key] = transition[P]{next: to, action: action}
	m.tableOrder = append(m.tableOrder, key)
	return nil
}

// SetInitialState selects the state the machine starts in.
func (m *Machine[P]) SetInitialState(state StateID) error {
	if m.ready.Load() {
		return m.errorf(ErrCodeAlreadyReady, "", "cannot change initial state after SetReadyToRun")
	}
	if _, ok := m.states[state]; !ok {
		return m.errorf(ErrCodeUnknownState, "", "initial state %d not registered", state)
	}
	m.initial = state
	m.current.Store(uint64(state))
	return nil
}

// SetReadyToRun freezes the configuration. Inputs are refused until this
// has been called.
func (m *Machine[P]) SetReadyToRun() error {
	if m.ready.Load() {
		return m.errorf(ErrCodeAlreadyReady, "", "machine already ready")
	}
	if m.initial == 0 {
		return m.errorf(ErrCodeNoInitialState, "", "initial state not set")
	}
	m.ready.Store(true)
	return nil
}

// IsReady reports whether SetReadyToRun has been called.
func (m *Machine[P]) IsReady() bool {
	return m.ready.Load()
}

// PushInput queues an input with its payload. It does not process it;
// call ProcessInputs.
func (m *Machine[P]) PushInput(input InputID, payload P) error {
	if !m.ready.Load() {
		return m.errorf(ErrCodeNotReady, m.inputs[input], "machine not ready to run")
	}
	if _, ok := m.inputs[input]; !ok {
		return m.errorf(ErrCodeUnknownInput, "", "input %d not registered", input)
	}
	m.queue.Enqueue(pending[P]{input: input, payload: payload})
	return nil
}

// ProcessInputs drains the input queue and returns the number of inputs
// this call consumed. It returns 0 immediately when another call is
// already draining this machine.
func (m *Machine[P]) ProcessInputs() int {
	processed := 0
	for {
		if !m.draining.CompareAndSwap(false, true) {
			return processed
		}

		for {
			p, ok := m.queue.TryDequeue()
			if !ok {
				break
			}
			m.process(p)
			processed++
		}

		m.draining.Store(false)

		// An input pushed by another goroutine between the last dequeue
		// and releasing the drain flag would otherwise be stranded.
		if m.queue.Len() == 0 {
			return processed
		}
	}
}

// Pending returns the number of queued, unprocessed inputs.
func (m *Machine[P]) Pending() int {
	return m.queue.Len()
}

// CurrentState returns the state the machine is in.
func (m *Machine[P]) CurrentState() StateID {
	return StateID(m.current.Load())
}

// StateName returns the registered name for a state, or "" if unknown.
func (m *Machine[P]) StateName(id StateID) string {
	return m.states[id]
}

// InputName returns the registered name for an input, or "" if unknown.
func (m *Machine[P]) InputName(id InputID) string {
	return m.inputs[id]
}

// Table returns the transition table in declaration order.
func (m *Machine[P]) Table() []TransitionRecord {
	records := make([]TransitionRecord, 0, len(m.tableOrder))
	for _, key := range m.tableOrder {
		tr := m.table[key]
		records = append(records, TransitionRecord{
			From:      m.states[key.state],
			Input:     m.inputs[key.input],
			To:        m.states[tr.next],
			HasAction: tr.action != nil,
		})
	}
	return records
}

// process handles exactly one input. Called only by the draining goroutine.
func (m *Machine[P]) process(p pending[P]) {
	from := m.CurrentState()

	tr, ok := m.table[transitionKey{state: from, input: p.input}]
	if !ok {
		m.reportUnhandled(from, p.input)
		return
	}

	m.current.Store(uint64(tr.next))

	if !m.runAction(tr.action, p.payload) {
		m.current.Store(uint64(from))
		return
	}

	m.logger.Debug("input processed",
		"machine", m.name,
		"from", m.states[from],
		"input", m.inputs[p.input],
		"to", m.states[tr.next],
	)
}

// runAction invokes action and recovers from panics so one faulty action
// cannot take down the goroutine serving every other node.
func (m *Machine[P]) runAction(action Action[P], payload P) (ok bool) {
	if action == nil {
		return true
	}

	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("action panicked, state restored",
				"machine", m.name,
				"panic", r,
			)
			ok = false
		}
	}()

	action(payload)
	return true
}

func (m *Machine[P]) reportUnhandled(state StateID, input InputID) {
	u := UnhandledInput{
		Machine:   m.name,
		State:     state,
		StateName: m.states[state],
		Input:     input,
		InputName: m.inputs[input],
	}

	m.logger.Warn("unhandled input",
		"machine", u.Machine,
		"state", u.StateName,
		"input", u.InputName,
	)

	if m.onUnhandled != nil {
		m.onUnhandled(u)
	}
}
