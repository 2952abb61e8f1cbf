package observability

import (
	"context"
	"sync"
	"time"
)

type runIDKey struct{}

// WithRunID returns ctx carrying runID for log events emitted below it.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunID returns the run ID carried by ctx, or "".
func RunID(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

// Status is a point-in-time view of the process, served by health checks.
type Status struct {
	ActiveRuns    int       `json:"active_runs"`
	CompletedRuns int       `json:"completed_runs"`
	LastRunID     string    `json:"last_run_id,omitempty"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

type systemStatus struct {
	mu     sync.RWMutex
	active map[string]time.Time
	status Status
}

var globalStatus = &systemStatus{
	active: make(map[string]time.Time),
	status: Status{LastHeartbeat: time.Now()},
}

// TrackRun marks runID active until the returned func is called.
func TrackRun(runID string) func() {
	globalStatus.mu.Lock()
	globalStatus.active[runID] = time.Now()
	globalStatus.status.LastRunID = runID
	globalStatus.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			globalStatus.mu.Lock()
			defer globalStatus.mu.Unlock()
			delete(globalStatus.active, runID)
			globalStatus.status.CompletedRuns++
		})
	}
}

// GetStatus retrieves a copy of the global system status.
func GetStatus() Status {
	globalStatus.mu.RLock()
	defer globalStatus.mu.RUnlock()
	s := globalStatus.status
	s.ActiveRuns = len(globalStatus.active)
	return s
}

// Heartbeat updates the last heartbeat time.
func Heartbeat() {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.status.LastHeartbeat = time.Now()
}
