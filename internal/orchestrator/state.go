package orchestrator

import (
	"fmt"

	"github.com/rahul/conductor/internal/capability"
)

type RunState string

const (
	RunStatePending     RunState = "pending"
	RunStateDispatching RunState = "dispatching"
	RunStateCompleted   RunState = "completed"
	RunStateCancelled   RunState = "cancelled"
	RunStateAborted     RunState = "aborted"
)

var allowedTransitions = map[RunState]map[RunState]struct{}{
	RunStatePending: {
		RunStateDispatching: {},
		RunStateCompleted:   {},
		RunStateCancelled:   {},
		RunStateAborted:     {},
	},
	RunStateDispatching: {
		RunStateDispatching: {},
		RunStateCompleted:   {},
		RunStateCancelled:   {},
		RunStateAborted:     {},
	},
	RunStateCompleted: {},
	RunStateCancelled: {},
	RunStateAborted:   {},
}

func ValidateTransition(from, to RunState) error {
	if _, ok := allowedTransitions[from]; !ok {
		return fmt.Errorf("invalid run state: %q", from)
	}
	if _, ok := allowedTransitions[to]; !ok {
		return fmt.Errorf("invalid run state: %q", to)
	}
	if _, ok := allowedTransitions[from][to]; !ok {
		return fmt.Errorf("invalid run transition: %s -> %s", from, to)
	}
	return nil
}

// runMachine tracks one run's state and the step being dispatched.
type runMachine struct {
	state RunState
	step  int
}

func newRunMachine() *runMachine {
	return &runMachine{state: RunStatePending, step: -1}
}

func (m *runMachine) dispatch(step int) error {
	if err := ValidateTransition(m.state, RunStateDispatching); err != nil {
		return err
	}
	if step <= m.step {
		return fmt.Errorf("step %d dispatched after step %d", step, m.step)
	}
	m.state = RunStateDispatching
	m.step = step
	return nil
}

func (m *runMachine) finish(to RunState) error {
	if err := ValidateTransition(m.state, to); err != nil {
		return err
	}
	m.state = to
	return nil
}

// Terminal reports whether no further transitions are possible.
func (s RunState) Terminal() bool {
	return len(allowedTransitions[s]) == 0
}

// Retryable reports whether a failed attempt may be repeated.
func Retryable(kind capability.ErrorKind) bool {
	return kind == capability.Timeout || kind == capability.BackendUnavailable
}

// nextAttempt decides whether to try a step again after a failure.
func nextAttempt(attempt, maxAttempts int, kind capability.ErrorKind) bool {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return Retryable(kind) && attempt < maxAttempts
}
