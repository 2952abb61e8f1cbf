package orchestrator

import (
	"testing"

	"github.com/rahul/conductor/internal/capability"
)

func TestValidateTransition_ValidMatrix(t *testing.T) {
	t.Parallel()

	valid := [][2]RunState{
		{RunStatePending, RunStateDispatching},
		{RunStatePending, RunStateCompleted},
		{RunStatePending, RunStateAborted},
		{RunStatePending, RunStateCancelled},
		{RunStateDispatching, RunStateDispatching},
		{RunStateDispatching, RunStateCompleted},
		{RunStateDispatching, RunStateCancelled},
		{RunStateDispatching, RunStateAborted},
	}
	for _, pair := range valid {
		if err := ValidateTransition(pair[0], pair[1]); err != nil {
			t.Fatalf("expected valid transition %s->%s, got %v", pair[0], pair[1], err)
		}
	}
}

func TestValidateTransition_InvalidTransitions(t *testing.T) {
	t.Parallel()

	invalid := [][2]RunState{
		{RunStateCompleted, RunStateDispatching},
		{RunStateAborted, RunStateCompleted},
		{RunStateCancelled, RunStatePending},
		{RunStateDispatching, RunStatePending},
		{"bogus", RunStateCompleted},
	}
	for _, pair := range invalid {
		if err := ValidateTransition(pair[0], pair[1]); err == nil {
			t.Fatalf("expected invalid transition %s->%s", pair[0], pair[1])
		}
	}
}

func TestRunMachine_StepsMoveForward(t *testing.T) {
	t.Parallel()

	m := newRunMachine()
	if err := m.dispatch(0); err != nil {
		t.Fatalf("dispatch 0: %v", err)
	}
	if err := m.dispatch(1); err != nil {
		t.Fatalf("dispatch 1: %v", err)
	}
	if err := m.dispatch(1); err == nil {
		t.Fatal("re-dispatching a step should fail")
	}
	if err := m.finish(RunStateCompleted); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if !m.state.Terminal() {
		t.Fatal("completed should be terminal")
	}
	if err := m.dispatch(2); err == nil {
		t.Fatal("dispatch after completion should fail")
	}
}

func TestNextAttempt(t *testing.T) {
	t.Parallel()

	if nextAttempt(1, 1, capability.Timeout) {
		t.Fatal("single attempt must not retry")
	}
	if !nextAttempt(1, 2, capability.Timeout) {
		t.Fatal("timeout should be retried")
	}
	if !nextAttempt(2, 3, capability.BackendUnavailable) {
		t.Fatal("backend unavailable should be retried")
	}
	if nextAttempt(1, 3, capability.RemoteFailure) {
		t.Fatal("remote failures are not retried")
	}
	if nextAttempt(1, 0, capability.Timeout) {
		t.Fatal("zero max attempts means one attempt")
	}
}
