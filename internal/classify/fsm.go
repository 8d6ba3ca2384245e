// Curator - Human-in-the-Loop Classification Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/curator

package classify

import (
	"fmt"

	"github.com/felixgeelhaar/statekit"
)

// fsmContext carries no data; the machine is pure transition structure.
type fsmContext struct{}

// eventFor names the event that requests a transition into the target state.
func eventFor(to IterationStatus) statekit.EventType {
	return statekit.EventType("to_" + string(to))
}

func sid(s IterationStatus) statekit.StateID {
	return statekit.StateID(s)
}

// newIterationMachine builds an interpreter positioned at the given status.
// The machine encodes every legal transition; sending an event for an
// illegal one leaves the state unchanged.
//
// The forward chain is TRAINING -> RUNNING_INFERENCE ->
// RUNNING_ACTIVE_LEARNING -> CALCULATING_STATISTICS -> READY. Each stage may
// advance to any strictly later stage (the loop normally steps one at a
// time, but a restart may legitimately skip work that already persisted).
// ERROR is reachable from every non-READY state, MODEL_DELETED from every
// state, and MODEL_DELETED itself is terminal.
func newIterationMachine(initial IterationStatus) (*statekit.Interpreter[fsmContext], error) {
	builder := statekit.NewMachine[fsmContext]("iteration").
		WithInitial(sid(initial)).
		WithContext(fsmContext{})

	builder.State(sid(IterationTraining)).
		On(eventFor(IterationRunningInference)).Target(sid(IterationRunningInference)).
		On(eventFor(IterationRunningActiveLearning)).Target(sid(IterationRunningActiveLearning)).
		On(eventFor(IterationCalculatingStatistics)).Target(sid(IterationCalculatingStatistics)).
		On(eventFor(IterationReady)).Target(sid(IterationReady)).
		On(eventFor(IterationError)).Target(sid(IterationError)).
		On(eventFor(IterationModelDeleted)).Target(sid(IterationModelDeleted)).
		Done()

	builder.State(sid(IterationRunningInference)).
		On(eventFor(IterationRunningActiveLearning)).Target(sid(IterationRunningActiveLearning)).
		On(eventFor(IterationCalculatingStatistics)).Target(sid(IterationCalculatingStatistics)).
		On(eventFor(IterationReady)).Target(sid(IterationReady)).
		On(eventFor(IterationError)).Target(sid(IterationError)).
		On(eventFor(IterationModelDeleted)).Target(sid(IterationModelDeleted)).
		Done()

	builder.State(sid(IterationRunningActiveLearning)).
		On(eventFor(IterationCalculatingStatistics)).Target(sid(IterationCalculatingStatistics)).
		On(eventFor(IterationReady)).Target(sid(IterationReady)).
		On(eventFor(IterationError)).Target(sid(IterationError)).
		On(eventFor(IterationModelDeleted)).Target(sid(IterationModelDeleted)).
		Done()

	builder.State(sid(IterationCalculatingStatistics)).
		On(eventFor(IterationReady)).Target(sid(IterationReady)).
		On(eventFor(IterationError)).Target(sid(IterationError)).
		On(eventFor(IterationModelDeleted)).Target(sid(IterationModelDeleted)).
		Done()

	// READY and ERROR are terminal except for model deletion bookkeeping.
	builder.State(sid(IterationReady)).
		On(eventFor(IterationModelDeleted)).Target(sid(IterationModelDeleted)).
		Done()

	builder.State(sid(IterationError)).
		On(eventFor(IterationModelDeleted)).Target(sid(IterationModelDeleted)).
		Done()

	builder.State(sid(IterationModelDeleted)).Done()

	machine, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("build iteration state machine: %w", err)
	}

	interp := statekit.NewInterpreter(machine)
	interp.Start()
	return interp, nil
}

// CanAdvance reports whether an iteration may move from one status to
// another. Self-transitions are rejected.
func CanAdvance(from, to IterationStatus) bool {
	if from == to {
		return false
	}

	interp, err := newIterationMachine(from)
	if err != nil {
		return false
	}

	interp.Send(statekit.Event{Type: eventFor(to)})
	return interp.State().Value == sid(to)
}

// AdvanceStatus validates a transition, returning ErrInvalidArgument when
// the move is not legal.
func AdvanceStatus(from, to IterationStatus) error {
	if !CanAdvance(from, to) {
		return fmt.Errorf("%w: iteration status cannot move %s -> %s", ErrInvalidArgument, from, to)
	}
	return nil
}
