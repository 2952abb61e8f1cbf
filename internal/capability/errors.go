package capability

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies why a step failed.
type ErrorKind string

const (
	Timeout            ErrorKind = "Timeout"
	BackendUnavailable ErrorKind = "BackendUnavailable"
	InvalidInstruction ErrorKind = "InvalidInstruction"
	RemoteFailure      ErrorKind = "RemoteFailure"
	PlannerError       ErrorKind = "PlannerError"
	Fatal              ErrorKind = "Fatal"
)

// ExecutionError is a per-step failure. Everything but Fatal is recorded in the
// step outcome and the run carries on.
type ExecutionError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *ExecutionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// Errorf creates an ExecutionError without an underlying cause.
func Errorf(kind ErrorKind, format string, args ...any) *ExecutionError {
	return &ExecutionError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an ExecutionError around cause.
func Wrap(kind ErrorKind, cause error, format string, args ...any) *ExecutionError {
	return &ExecutionError{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Classify turns any error into an ExecutionError. Existing ExecutionErrors are
// returned as is, deadline errors become Timeout, and everything else gets fallback.
func Classify(err error, fallback ErrorKind) *ExecutionError {
	if err == nil {
		return nil
	}
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return execErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &ExecutionError{Kind: Timeout, Message: "timed out", Cause: err}
	}
	return &ExecutionError{Kind: fallback, Message: err.Error()}
}

// KindOf reports the ErrorKind of err, or "" when err is not an ExecutionError.
func KindOf(err error) ErrorKind {
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return execErr.Kind
	}
	return ""
}
