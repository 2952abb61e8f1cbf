// Package report assembles step outcomes into the execution report returned to
// callers.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/rahul/conductor/internal/executor"
)

// Status is how a run ended.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusAborted   Status = "aborted"
)

// Run describes the run an outcome list belongs to.
type Run struct {
	ID         string
	Source     string
	Status     Status
	StartedAt  time.Time
	FinishedAt time.Time
}

// StepError pairs the literal step text with its error message.
type StepError struct {
	Step  string `json:"step"`
	Error string `json:"error"`
}

type Report struct {
	RunID         string             `json:"run_id"`
	Source        string             `json:"source"`
	Status        Status             `json:"status"`
	StepsExecuted int                `json:"steps_executed"`
	TotalSteps    int                `json:"total_steps"`
	Errors        []StepError        `json:"errors"`
	Outcomes      []executor.Outcome `json:"outcomes"`
	StartedAt     time.Time          `json:"started_at"`
	FinishedAt    time.Time          `json:"finished_at"`
}

// Assemble builds the report for run from its outcomes. It does not modify
// outcomes and keeps errors in dispatch order.
func Assemble(run Run, outcomes []executor.Outcome) *Report {
	r := &Report{
		RunID:      run.ID,
		Source:     run.Source,
		Status:     run.Status,
		TotalSteps: len(outcomes),
		Errors:     []StepError{},
		Outcomes:   append([]executor.Outcome{}, outcomes...),
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
	}
	if r.Status == "" {
		r.Status = StatusCompleted
	}

	for _, o := range outcomes {
		if o.Attempted() {
			r.StepsExecuted++
		}
		if o.Err != nil {
			r.Errors = append(r.Errors, StepError{Step: o.Step.Text, Error: o.Err.Error()})
		}
	}
	return r
}

// Succeeded reports whether every step ran and none failed.
func (r *Report) Succeeded() bool {
	return r.Status == StatusCompleted && len(r.Errors) == 0
}

func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() || r.StartedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Markdown renders the report for terminals and chat messages.
func (r *Report) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Run %s: %s\n\n", r.Source, r.Status)
	fmt.Fprintf(&b, "- Run ID: `%s`\n", r.RunID)
	fmt.Fprintf(&b, "- Steps executed: %d/%d\n", r.StepsExecuted, r.TotalSteps)
	fmt.Fprintf(&b, "- Errors: %d\n", len(r.Errors))
	if d := r.Duration(); d > 0 {
		fmt.Fprintf(&b, "- Duration: %s\n", d.Round(time.Millisecond))
	}

	if len(r.Outcomes) > 0 {
		b.WriteString("\n### Steps\n")
		for _, o := range r.Outcomes {
			fmt.Fprintf(&b, "%d. %s %s", o.Step.Index+1, statusMark(o.Status), o.Step.Text)
			if o.Capability != "" {
				fmt.Fprintf(&b, " _(%s)_", o.Capability)
			}
			b.WriteString("\n")
			switch {
			case o.Err != nil:
				fmt.Fprintf(&b, "   - %s: %s\n", o.Err.Kind, o.Err.Error())
			case o.Result != "":
				fmt.Fprintf(&b, "   - %s\n", firstLine(o.Result))
			}
		}
	}
	return b.String()
}

func statusMark(s executor.Status) string {
	switch s {
	case executor.StatusSucceeded:
		return "[ok]"
	case executor.StatusFailed:
		return "[failed]"
	default:
		return "[skipped]"
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
