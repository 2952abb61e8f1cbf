// Package executor owns the lifecycle of capability invocations: it acquires
// backend sessions, runs instructions against them under a timeout and turns
// every failure into a step outcome.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/rahul/conductor/internal/capability"
	"github.com/rahul/conductor/internal/steps"
)

// Scope decides how long a backend session lives.
type Scope string

const (
	// ScopeRun keeps one session per capability for the whole run, so state
	// such as a logged-in browser tab carries over to later steps.
	ScopeRun Scope = "run"
	// ScopeStep opens a fresh session for every step.
	ScopeStep Scope = "step"
)

// ParseScope validates a configured scope. Empty means ScopeRun.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case "", ScopeRun:
		return ScopeRun, nil
	case ScopeStep:
		return ScopeStep, nil
	default:
		return "", fmt.Errorf("unknown session scope %q (want %q or %q)", s, ScopeRun, ScopeStep)
	}
}

type Options struct {
	// StepTimeout bounds session acquisition plus invocation. Zero means no
	// limit.
	StepTimeout time.Duration
	// Scopes sets the session scope per capability kind. Kinds not listed use
	// ScopeRun.
	Scopes map[capability.Kind]Scope
}

// Runtime executes the steps of one run. Sessions it opens belong to that run
// and are released by Close.
type Runtime struct {
	opts Options

	mu       sync.Mutex
	sessions map[string]capability.Session
	inflight sync.WaitGroup
}

func NewRuntime(opts Options) *Runtime {
	return &Runtime{
		opts:     opts,
		sessions: make(map[string]capability.Session),
	}
}

func (r *Runtime) scope(kind capability.Kind) Scope {
	if s, ok := r.opts.Scopes[kind]; ok && s != "" {
		return s
	}
	return ScopeRun
}

type invokeResult struct {
	text string
	err  error
}

// Execute runs step against c and always returns an outcome. Cancelling ctx
// does not interrupt a step in progress; only StepTimeout does.
func (r *Runtime) Execute(ctx context.Context, c capability.Capability, step steps.Step) Outcome {
	start := time.Now()
	out := r.execute(ctx, c, step)
	out.Duration = time.Since(start)
	return out
}

func (r *Runtime) execute(ctx context.Context, c capability.Capability, step steps.Step) Outcome {
	name := c.Name()

	stepCtx := context.WithoutCancel(ctx)
	cancel := context.CancelFunc(func() {})
	if r.opts.StepTimeout > 0 {
		stepCtx, cancel = context.WithTimeout(stepCtx, r.opts.StepTimeout)
	}
	defer cancel()

	session, shared, err := r.acquire(stepCtx, c)
	if err != nil {
		return Failed(step, name, capability.Classify(err, capability.BackendUnavailable))
	}

	done := make(chan invokeResult, 1)
	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()
		done <- invoke(stepCtx, session, step.Text)
	}()

	select {
	case res := <-done:
		if !shared {
			r.closeSession(name, session)
		}
		if res.err != nil {
			return Failed(step, name, capability.Classify(res.err, capability.RemoteFailure))
		}
		return Succeeded(step, name, res.text)

	case <-stepCtx.Done():
		// The session is still busy; later steps must not reuse it.
		if shared {
			r.evict(name, session)
		}
		r.inflight.Add(1)
		go func() {
			defer r.inflight.Done()
			<-done
			r.closeSession(name, session)
		}()
		return Failed(step, name, capability.Wrap(capability.Timeout, stepCtx.Err(), "step did not finish within %s", r.opts.StepTimeout))
	}
}

func invoke(ctx context.Context, session capability.Session, instruction string) (res invokeResult) {
	defer func() {
		if p := recover(); p != nil {
			res = invokeResult{err: capability.Errorf(capability.RemoteFailure, "capability panicked: %v", p)}
		}
	}()
	text, err := session.Invoke(ctx, instruction)
	return invokeResult{text: text, err: err}
}

// acquire returns the session for c, opening one when needed. shared is true
// when the session stays registered for later steps.
func (r *Runtime) acquire(ctx context.Context, c capability.Capability) (capability.Session, bool, error) {
	name := c.Name()
	shared := r.scope(c.Kind()) == ScopeRun

	if shared {
		r.mu.Lock()
		s, ok := r.sessions[name]
		r.mu.Unlock()
		if ok {
			return s, true, nil
		}
	}

	s, err := c.Open(ctx)
	if err != nil {
		return nil, false, err
	}
	if s == nil {
		return nil, false, capability.Errorf(capability.BackendUnavailable, "capability %s returned no session", name)
	}

	if shared {
		r.mu.Lock()
		r.sessions[name] = s
		r.mu.Unlock()
	}
	return s, shared, nil
}

func (r *Runtime) evict(name string, s capability.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[name] == s {
		delete(r.sessions, name)
	}
}

func (r *Runtime) closeSession(name string, s capability.Session) {
	if err := s.Close(); err != nil {
		log.Printf("Warning: failed to close %s session: %v", name, err)
	}
}

// Close releases every run-scoped session. Sessions abandoned by timed-out
// steps are closed once their invocation returns; Wait blocks until then.
func (r *Runtime) Close() error {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]capability.Session)
	r.mu.Unlock()

	var errs []error
	for name, s := range sessions {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s session: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Wait blocks until all invocations started by Execute have returned.
func (r *Runtime) Wait() {
	r.inflight.Wait()
}
