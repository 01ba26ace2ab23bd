package delegator

import (
	"fmt"

	"github.com/roach88/coordsys/internal/fsm"
)

// State and input names of the delegator machine.
const (
	StateDetached = "Detached"
	StateAttached = "Attached"

	InputValidParent          = "ValidParent"
	InputNullParent           = "NullParent"
	InputThisParent           = "ThisParent"
	InputParentCycle          = "ParentCycle"
	InputGetTransformToParent = "GetTransformToParent"
	InputUpdateTransform      = "UpdateTransform"
	InputValidTarget          = "ValidTarget"
	InputNullTarget           = "NullTarget"
	InputParentRemoved        = "ParentRemoved"
	InputResync               = "Resync"
	InputForeignParent        = "ForeignParent"
)

type machineStates struct {
	detached fsm.StateID
	attached fsm.StateID
}

type machineInputs struct {
	validParent          fsm.InputID
	nullParent           fsm.InputID
	thisParent           fsm.InputID
	parentCycle          fsm.InputID
	getTransformToParent fsm.InputID
	updateTransform      fsm.InputID
	validTarget          fsm.InputID
	nullTarget           fsm.InputID
	parentRemoved        fsm.InputID
	resync               fsm.InputID
	foreignParent        fsm.InputID
}

// buildMachine declares the delegator's states, inputs and transition
// table and marks the machine ready.
func (d *Delegator) buildMachine(m *fsm.Machine[request]) error {
	var err error
	add := func(name string) fsm.StateID {
		if err != nil {
			return 0
		}
		var id fsm.StateID
		id, err = m.AddState(name)
		return id
	}
	in := func(name string) fsm.InputID {
		if err != nil {
			return 0
		}
		var id fsm.InputID
		id, err = m.AddInput(name)
		return id
	}

	d.states = machineStates{
		detached: add(StateDetached),
		attached: add(StateAttached),
	}
	d.inputs = machineInputs{
		validParent:          in(InputValidParent),
		nullParent:           in(InputNullParent),
		thisParent:           in(InputThisParent),
		parentCycle:          in(InputParentCycle),
		getTransformToParent: in(InputGetTransformToParent),
		updateTransform:      in(InputUpdateTransform),
		validTarget:          in(InputValidTarget),
		nullTarget:           in(InputNullTarget),
		parentRemoved:        in(InputParentRemoved),
		resync:               in(InputResync),
		foreignParent:        in(InputForeignParent),
	}
	if err != nil {
		return fmt.Errorf("declare delegator machine: %w", err)
	}

	s, i := d.states, d.inputs
	table := []struct {
		from   fsm.StateID
		input  fsm.InputID
		to     fsm.StateID
		action fsm.Action[request]
	}{
		{s.detached, i.validParent, s.attached, d.setParent},
		{s.attached, i.validParent, s.attached, d.setParent},
		{s.detached, i.nullParent, s.detached, d.detach},
		{s.attached, i.nullParent, s.detached, d.detach},
		{s.detached, i.thisParent, s.detached, d.reportThisParent},
		{s.attached, i.thisParent, s.attached, d.reportThisParent},
		{s.detached, i.parentCycle, s.detached, d.reportParentCycle},
		{s.attached, i.parentCycle, s.attached, d.reportParentCycle},
		{s.detached, i.getTransformToParent, s.detached, d.reportDisconnected},
		{s.attached, i.getTransformToParent, s.attached, d.reportTransformToParent},
		{s.detached, i.updateTransform, s.detached, d.reportDisconnected},
		{s.attached, i.updateTransform, s.attached, d.updateTransform},
		{s.detached, i.validTarget, s.detached, d.computeTransformTo},
		{s.attached, i.validTarget, s.attached, d.computeTransformTo},
		{s.detached, i.nullTarget, s.detached, d.reportNullTarget},
		{s.attached, i.nullTarget, s.attached, d.reportNullTarget},
		{s.detached, i.parentRemoved, s.detached, nil},
		{s.attached, i.parentRemoved, s.detached, d.reportDisconnected},
		{s.detached, i.resync, s.detached, nil},
		{s.attached, i.resync, s.detached, nil},
		{s.detached, i.foreignParent, s.detached, d.reportForeignParent},
		{s.attached, i.foreignParent, s.attached, d.reportForeignParent},
	}
	for _, row := range table {
		if err := m.AddTransition(row.from, row.input, row.to, row.action); err != nil {
			return fmt.Errorf("declare delegator machine: %w", err)
		}
	}

	if err := m.SetInitialState(s.detached); err != nil {
		return fmt.Errorf("declare delegator machine: %w", err)
	}
	return m.SetReadyToRun()
}
