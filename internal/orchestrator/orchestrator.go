// Package orchestrator runs task descriptions: it parses them into steps,
// resolves a capability for each step and dispatches the steps in order
// through the executor runtime.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/rahul/conductor/internal/capability"
	"github.com/rahul/conductor/internal/executor"
	"github.com/rahul/conductor/internal/governance"
	"github.com/rahul/conductor/internal/observability"
	"github.com/rahul/conductor/internal/planner"
	"github.com/rahul/conductor/internal/report"
	"github.com/rahul/conductor/internal/steps"
)

// ErrFatal marks errors that aborted a run.
var ErrFatal = errors.New("run aborted")

// FatalError is returned by Run when the run could not proceed. The partial
// report is still returned alongside it.
type FatalError struct {
	RunID string
	Step  int
	Err   *capability.ExecutionError
}

func (e *FatalError) Error() string {
	if e.Step >= 0 {
		return fmt.Sprintf("run %s aborted at step %d: %v", e.RunID, e.Step+1, e.Err)
	}
	return fmt.Sprintf("run %s aborted: %v", e.RunID, e.Err)
}

func (e *FatalError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrFatal}
	}
	return []error{ErrFatal, e.Err}
}

type Options struct {
	// StepTimeout bounds each capability invocation.
	StepTimeout time.Duration
	// PlannerTimeout bounds each planner call.
	PlannerTimeout time.Duration
	// MaxAttempts is how often a step is tried when it fails with Timeout or
	// BackendUnavailable. Values below 1 mean 1.
	MaxAttempts int
	// SessionScopes sets the session lifetime per capability kind.
	SessionScopes map[capability.Kind]executor.Scope
	// Decompose lets the planner split a single free-form step into steps.
	Decompose bool
}

type Config struct {
	Registry   *capability.Registry
	Selector   planner.Selector
	Decomposer planner.Decomposer
	Policy     governance.PolicyEngine
	Logger     *observability.Logger
	Options    Options
}

// Orchestrator is safe for concurrent runs: it holds only read-only
// configuration, and every run gets its own executor runtime.
type Orchestrator struct {
	cfg Config
}

func New(cfg Config) *Orchestrator {
	if cfg.Options.MaxAttempts < 1 {
		cfg.Options.MaxAttempts = 1
	}
	return &Orchestrator{cfg: cfg}
}

// Registry returns the capabilities shared by all runs.
func (o *Orchestrator) Registry() *capability.Registry {
	return o.cfg.Registry
}

// Run parses description and executes its steps. A non-nil error is always a
// *FatalError and comes with the partial report; per-step failures are only
// recorded in the report.
func (o *Orchestrator) Run(ctx context.Context, description, sourceLabel string) (*report.Report, error) {
	runID := uuid.NewString()
	ctx = observability.WithRunID(ctx, runID)

	stepList := steps.Parse(description)
	if o.shouldDecompose(stepList) {
		stepList = o.decompose(ctx, stepList)
	}
	return o.runSteps(ctx, runID, stepList, sourceLabel)
}

func (o *Orchestrator) shouldDecompose(stepList []steps.Step) bool {
	return o.cfg.Options.Decompose &&
		o.cfg.Decomposer != nil &&
		o.cfg.Registry.Len() > 0 &&
		len(stepList) == 1 &&
		stepList[0].Kind == "" &&
		!steps.IsMarker(stepList[0].Text)
}

func (o *Orchestrator) decompose(ctx context.Context, stepList []steps.Step) []steps.Step {
	pctx, cancel := o.plannerContext(ctx)
	defer cancel()

	parts, err := o.cfg.Decomposer.Decompose(pctx, stepList[0].Text, o.cfg.Registry.Infos())
	if err != nil {
		log.Printf("Warning: plan decomposition failed, running task as a single step: %v", err)
		return stepList
	}
	if len(parts) == 0 {
		return stepList
	}
	o.cfg.Logger.Log(observability.Event{Type: observability.EventTypePlan, RunID: observability.RunID(ctx), Data: parts})
	return steps.FromLines(parts)
}

func (o *Orchestrator) plannerContext(ctx context.Context) (context.Context, context.CancelFunc) {
	pctx := context.WithoutCancel(ctx)
	if o.cfg.Options.PlannerTimeout > 0 {
		return context.WithTimeout(pctx, o.cfg.Options.PlannerTimeout)
	}
	return pctx, func() {}
}

// RunSteps executes an already parsed step list.
func (o *Orchestrator) RunSteps(ctx context.Context, stepList []steps.Step, sourceLabel string) (*report.Report, error) {
	runID := uuid.NewString()
	return o.runSteps(observability.WithRunID(ctx, runID), runID, stepList, sourceLabel)
}

// runSteps expects ctx to carry runID.
func (o *Orchestrator) runSteps(ctx context.Context, runID string, stepList []steps.Step, sourceLabel string) (*report.Report, error) {
	started := time.Now()
	machine := newRunMachine()
	outcomes := make([]executor.Outcome, 0, len(stepList))
	done := observability.TrackRun(runID)
	defer done()

	o.cfg.Logger.LogRunStarted(runID, sourceLabel, len(stepList))
	log.Printf("[Run %s] Starting %q with %d steps", runID, sourceLabel, len(stepList))

	var fatal *FatalError
	final := RunStateCompleted

	if o.cfg.Registry.Len() == 0 {
		fatal = &FatalError{RunID: runID, Step: -1, Err: capability.Errorf(capability.Fatal, "no capabilities registered")}
		final = RunStateAborted
		outcomes = appendNotAttempted(outcomes, stepList)
	} else {
		rt := executor.NewRuntime(executor.Options{
			StepTimeout: o.cfg.Options.StepTimeout,
			Scopes:      o.cfg.Options.SessionScopes,
		})
		defer func() {
			if err := rt.Close(); err != nil {
				log.Printf("[Run %s] Warning: %v", runID, err)
			}
		}()

		for i, st := range stepList {
			if ctx.Err() != nil {
				log.Printf("[Run %s] Cancelled before step %d: %v", runID, i+1, ctx.Err())
				final = RunStateCancelled
				outcomes = appendNotAttempted(outcomes, stepList[i:])
				break
			}
			if err := machine.dispatch(i); err != nil {
				log.Printf("[Run %s] Warning: %v", runID, err)
			}

			out, fatalErr := o.dispatch(ctx, rt, runID, st)
			if fatalErr != nil {
				log.Printf("[Run %s] Fatal error at step %d: %v", runID, i+1, fatalErr)
				fatal = &FatalError{RunID: runID, Step: i, Err: fatalErr}
				final = RunStateAborted
				outcomes = appendNotAttempted(outcomes, stepList[i:])
				break
			}
			outcomes = append(outcomes, out)
		}
	}

	if err := machine.finish(final); err != nil {
		log.Printf("[Run %s] Warning: %v", runID, err)
	}

	r := report.Assemble(report.Run{
		ID:         runID,
		Source:     sourceLabel,
		Status:     reportStatus(final),
		StartedAt:  started,
		FinishedAt: time.Now(),
	}, outcomes)

	o.cfg.Logger.LogRunFinished(runID, string(r.Status), r.StepsExecuted, len(r.Errors))
	log.Printf("[Run %s] Finished: %s (%d/%d steps executed, %d errors)", runID, r.Status, r.StepsExecuted, r.TotalSteps, len(r.Errors))

	if fatal != nil {
		return r, fatal
	}
	return r, nil
}

func appendNotAttempted(outcomes []executor.Outcome, rest []steps.Step) []executor.Outcome {
	for _, st := range rest {
		outcomes = append(outcomes, executor.NotAttempted(st))
	}
	return outcomes
}

func reportStatus(s RunState) report.Status {
	switch s {
	case RunStateCancelled:
		return report.StatusCancelled
	case RunStateAborted:
		return report.StatusAborted
	default:
		return report.StatusCompleted
	}
}

// dispatch resolves and executes one step. The returned error is non-nil only
// for Fatal failures.
func (o *Orchestrator) dispatch(ctx context.Context, rt *executor.Runtime, runID string, st steps.Step) (executor.Outcome, *capability.ExecutionError) {
	start := time.Now()
	out := o.dispatchStep(ctx, rt, runID, st)
	if out.Duration == 0 {
		out.Duration = time.Since(start)
	}

	errKind := ""
	if out.Err != nil {
		errKind = string(out.Err.Kind)
		if out.Err.Kind == capability.Fatal {
			return out, out.Err
		}
	}
	o.cfg.Logger.LogStepResult(runID, st.Index, string(out.Status), errKind, out.Duration)
	return out, nil
}

func (o *Orchestrator) dispatchStep(ctx context.Context, rt *executor.Runtime, runID string, st steps.Step) executor.Outcome {
	c, via, execErr := o.resolve(ctx, st)
	if execErr != nil {
		return executor.Failed(st, "", execErr)
	}
	o.cfg.Logger.LogSelection(runID, st.Index, c.Name(), via)

	if o.cfg.Policy != nil {
		res, err := o.cfg.Policy.Evaluate(ctx, governance.Request{Capability: c.Name(), Kind: c.Kind(), Instruction: st.Text, RunID: runID})
		if err != nil {
			return executor.Failed(st, c.Name(), capability.Wrap(capability.InvalidInstruction, err, "policy evaluation failed"))
		}
		o.cfg.Logger.LogPolicy(runID, st.Index, string(res.Effect), res.Reason)
		if res.Effect == governance.EffectDeny {
			return executor.Failed(st, c.Name(), capability.Errorf(capability.InvalidInstruction, "denied by policy: %s", res.Reason))
		}
	}

	o.cfg.Logger.LogStepDispatched(runID, st.Index, c.Name(), st.Text)
	log.Printf("[Run %s] Step %d -> %s: %s", runID, st.Index+1, c.Name(), st.Text)

	var out executor.Outcome
	var total time.Duration
	for attempt := 1; ; attempt++ {
		out = rt.Execute(ctx, c, st)
		total += out.Duration
		out.Attempts = attempt
		if out.Err == nil || !nextAttempt(attempt, o.cfg.Options.MaxAttempts, out.Err.Kind) || ctx.Err() != nil {
			break
		}
		log.Printf("[Run %s] Step %d attempt %d failed (%s), retrying", runID, st.Index+1, attempt, out.Err.Kind)
	}
	out.Duration = total
	return out
}

// resolve picks the capability for a step: the first capability of the hinted
// kind, otherwise the planner's choice.
func (o *Orchestrator) resolve(ctx context.Context, st steps.Step) (capability.Capability, string, *capability.ExecutionError) {
	if st.Kind != "" {
		if c := o.cfg.Registry.ByKind(st.Kind); c != nil {
			return c, "hint", nil
		}
	}
	if o.cfg.Selector == nil {
		return nil, "", capability.Errorf(capability.Fatal, "no planner configured to resolve step %q", st.Text)
	}

	pctx, cancel := o.plannerContext(ctx)
	defer cancel()

	name, err := o.cfg.Selector.SelectCapability(pctx, st.Text, o.cfg.Registry.Infos())
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return nil, "", capability.Wrap(capability.Timeout, err, "planner did not answer in time")
		case errors.Is(err, planner.ErrNoSelection):
			return nil, "", capability.Wrap(capability.InvalidInstruction, err, "no capability can handle this step")
		default:
			return nil, "", capability.Wrap(capability.PlannerError, err, "capability selection failed")
		}
	}

	c := o.cfg.Registry.Get(name)
	if c == nil {
		return nil, "", capability.Errorf(capability.InvalidInstruction, "planner selected unknown capability %q", name)
	}
	return c, "planner", nil
}
