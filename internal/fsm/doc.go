// Package fsm implements the generic finite-state-machine substrate used
// to mutate the coordinate-system graph.
//
// A Machine is configured once with named states, named inputs and a
// transition table mapping (state, input) to (next state, action). The
// table is data: new behavior is added by declaring transitions, never by
// branching in dispatch code.
//
// Processing model:
//
//  1. PushInput appends an input (and its payload) to a FIFO queue.
//  2. ProcessInputs drains the queue one input at a time.
//  3. For each input the transition for (current state, input) is looked
//     up; the machine moves to the next state and runs the action.
//  4. Actions may push further inputs. They are handled after the current
//     input completes (breadth-first), never recursively.
//
// A Machine has exactly one draining goroutine at a time. A ProcessInputs
// call that finds another drain in progress (an action calling back into
// its own machine, or a second goroutine) returns immediately and leaves
// its inputs to the active drainer.
//
// An input with no transition in the current state is an unhandled input.
// It is logged, handed to the UnhandledHandler option and otherwise
// ignored: the machine stays where it is and processing continues.
package fsm
