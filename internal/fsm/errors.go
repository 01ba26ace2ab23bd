package fsm

import (
	"errors"
	"fmt"
)

// MachineError reports a configuration or usage mistake on a Machine.
//
// Machine errors are returned from the configuration API (AddState,
// AddTransition, SetReadyToRun...) and from PushInput. They never
// originate from input processing: a missing transition is reported
// through the unhandled-input channel instead.
type MachineError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Machine is the name of the machine that rejected the call.
	Machine string

	// Name is the offending state or input name, if any.
	Name string
}

// ErrorCode categorizes machine errors.
type ErrorCode string

const (
	// ErrCodeDuplicateState indicates a state name was registered twice.
	ErrCodeDuplicateState ErrorCode = "DUPLICATE_STATE"

	// ErrCodeDuplicateInput indicates an input name was registered twice.
	ErrCodeDuplicateInput ErrorCode = "DUPLICATE_INPUT"

	// ErrCodeDuplicateTransition indicates a (state, input) pair was declared twice.
	ErrCodeDuplicateTransition ErrorCode = "DUPLICATE_TRANSITION"

	// ErrCodeUnknownState indicates a state token not registered on this machine.
	ErrCodeUnknownState ErrorCode = "UNKNOWN_STATE"

	// ErrCodeUnknownInput indicates an input token not registered on this machine.
	ErrCodeUnknownInput ErrorCode = "UNKNOWN_INPUT"

	// ErrCodeNoInitialState indicates SetReadyToRun was called before SetInitialState.
	ErrCodeNoInitialState ErrorCode = "NO_INITIAL_STATE"

	// ErrCodeNotReady indicates inputs were pushed before SetReadyToRun.
	ErrCodeNotReady ErrorCode = "NOT_READY"

	// ErrCodeAlreadyReady indicates configuration after SetReadyToRun.
	ErrCodeAlreadyReady ErrorCode = "ALREADY_READY"
)

// Error implements the error interface.
func (e *MachineError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s: %s (machine=%s, name=%s)", e.Code, e.Message, e.Machine, e.Name)
	}
	return fmt.Sprintf("%s: %s (machine=%s)", e.Code, e.Message, e.Machine)
}

// HasCode reports whether err is a MachineError with the given code.
// Uses errors.As to handle wrapped errors.
func HasCode(err error, code ErrorCode) bool {
	var me *MachineError
	if errors.As(err, &me) {
		return me.Code == code
	}
	return false
}

// IsDuplicateDefinition reports whether err rejects a re-registered
// state, input or transition.
func IsDuplicateDefinition(err error) bool {
	return HasCode(err, ErrCodeDuplicateState) ||
		HasCode(err, ErrCodeDuplicateInput) ||
		HasCode(err, ErrCodeDuplicateTransition)
}

func (m *Machine[P]) errorf(code ErrorCode, name, format string, args ...any) *MachineError {
	return &MachineError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Machine: m.name,
		Name:    name,
	}
}
