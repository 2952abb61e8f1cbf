// Package planner holds the language-model decisions of a run: which
// capability handles a step, and how to break a free-form task into steps.
package planner

import (
	"context"
	"errors"

	"github.com/rahul/conductor/internal/capability"
)

// ErrNoSelection means the planner could not confidently pick a capability.
var ErrNoSelection = errors.New("planner made no capability selection")

// Selector picks the capability that should handle a step.
type Selector interface {
	SelectCapability(ctx context.Context, stepText string, available []capability.Info) (string, error)
}

// SelectorFunc adapts a function to Selector.
type SelectorFunc func(ctx context.Context, stepText string, available []capability.Info) (string, error)

func (f SelectorFunc) SelectCapability(ctx context.Context, stepText string, available []capability.Info) (string, error) {
	return f(ctx, stepText, available)
}

// Decomposer splits a free-form task into ordered instructions.
type Decomposer interface {
	Decompose(ctx context.Context, description string, available []capability.Info) ([]string, error)
}
