package executor

import (
	"encoding/json"
	"time"

	"github.com/rahul/conductor/internal/capability"
	"github.com/rahul/conductor/internal/steps"
)

// Status is the lifecycle state of a single step.
type Status string

const (
	StatusSucceeded    Status = "succeeded"
	StatusFailed       Status = "failed"
	StatusNotAttempted Status = "not_attempted"
)

// Outcome is the recorded result of one step. A finished outcome carries
// exactly one of Result or Err; a not-attempted outcome carries neither.
type Outcome struct {
	Step       steps.Step
	Capability string
	Status     Status
	Result     string
	Err        *capability.ExecutionError
	Attempts   int
	Duration   time.Duration
}

func Succeeded(step steps.Step, capabilityName, result string) Outcome {
	return Outcome{Step: step, Capability: capabilityName, Status: StatusSucceeded, Result: result, Attempts: 1}
}

func Failed(step steps.Step, capabilityName string, err *capability.ExecutionError) Outcome {
	return Outcome{Step: step, Capability: capabilityName, Status: StatusFailed, Err: err, Attempts: 1}
}

func NotAttempted(step steps.Step) Outcome {
	return Outcome{Step: step, Status: StatusNotAttempted}
}

// Attempted reports whether the step was dispatched.
func (o Outcome) Attempted() bool {
	return o.Status != StatusNotAttempted
}

type outcomeError struct {
	Kind    capability.ErrorKind `json:"kind"`
	Message string               `json:"message"`
}

type outcomeJSON struct {
	Index      int             `json:"index"`
	Step       string          `json:"step"`
	Kind       capability.Kind `json:"kind,omitempty"`
	Capability string          `json:"capability,omitempty"`
	Status     Status          `json:"status"`
	Result     string          `json:"result,omitempty"`
	Error      *outcomeError   `json:"error,omitempty"`
	Attempts   int             `json:"attempts,omitempty"`
	DurationMS int64           `json:"duration_ms"`
}

func (o Outcome) MarshalJSON() ([]byte, error) {
	out := outcomeJSON{
		Index:      o.Step.Index,
		Step:       o.Step.Text,
		Kind:       o.Step.Kind,
		Capability: o.Capability,
		Status:     o.Status,
		Result:     o.Result,
		Attempts:   o.Attempts,
		DurationMS: o.Duration.Milliseconds(),
	}
	if o.Err != nil {
		out.Error = &outcomeError{Kind: o.Err.Kind, Message: o.Err.Error()}
	}
	return json.Marshal(out)
}
