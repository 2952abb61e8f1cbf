package observability

import (
	"context"
	"testing"
	"time"
)

func TestTrackRun(t *testing.T) {
	before := GetStatus()

	done := TrackRun("run-status-1")
	s := GetStatus()
	if s.ActiveRuns != before.ActiveRuns+1 {
		t.Errorf("Expected %d active runs, got %d", before.ActiveRuns+1, s.ActiveRuns)
	}
	if s.LastRunID != "run-status-1" {
		t.Errorf("Expected last run run-status-1, got %q", s.LastRunID)
	}

	done()
	done()
	s = GetStatus()
	if s.ActiveRuns != before.ActiveRuns {
		t.Errorf("Expected %d active runs after finish, got %d", before.ActiveRuns, s.ActiveRuns)
	}
	if s.CompletedRuns != before.CompletedRuns+1 {
		t.Errorf("Finishing twice should count once, got %d completed", s.CompletedRuns-before.CompletedRuns)
	}
}

func TestHeartbeat(t *testing.T) {
	start := time.Now()
	Heartbeat()
	if GetStatus().LastHeartbeat.Before(start) {
		t.Error("Heartbeat should refresh the timestamp")
	}
}

func TestRunIDContext(t *testing.T) {
	if id := RunID(context.Background()); id != "" {
		t.Errorf("Expected no run ID, got %q", id)
	}
	ctx := WithRunID(context.Background(), "run-ctx-1")
	if id := RunID(ctx); id != "run-ctx-1" {
		t.Errorf("Expected run-ctx-1, got %q", id)
	}
}
