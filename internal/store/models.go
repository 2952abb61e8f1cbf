package store

import (
	"encoding/json"
	"time"
)

// RunRecord is a stored execution report.
type RunRecord struct {
	ID            string          `json:"id"`
	Source        string          `json:"source"`
	Status        string          `json:"status"`
	StepsExecuted int             `json:"steps_executed"`
	TotalSteps    int             `json:"total_steps"`
	ErrorCount    int             `json:"error_count"`
	Report        json.RawMessage `json:"report,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Schedule is a task description that runs every IntervalSeconds. An interval
// of zero runs once.
type Schedule struct {
	ID              int64      `json:"id"`
	Label           string     `json:"label"`
	Description     string     `json:"description"`
	IntervalSeconds int        `json:"interval_seconds"`
	LastRun         *time.Time `json:"last_run,omitempty"`
	Status          string     `json:"status"`
}

// OneShot reports whether the schedule is removed after its first run.
func (s Schedule) OneShot() bool {
	return s.IntervalSeconds <= 0
}
