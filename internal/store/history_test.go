package store

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rahul/conductor/internal/capability"
	"github.com/rahul/conductor/internal/executor"
	"github.com/rahul/conductor/internal/report"
	"github.com/rahul/conductor/internal/steps"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *RunStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data", "conductor.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleReport(id string, started time.Time) *report.Report {
	st := steps.FromLines([]string{"GET https://example.com", `click "Go"`})
	return report.Assemble(report.Run{ID: id, Source: "smoke.feature", StartedAt: started, FinishedAt: started.Add(time.Second)}, []executor.Outcome{
		executor.Succeeded(st[0], "http_request", "200 OK"),
		executor.Failed(st[1], "browser", capability.Errorf(capability.RemoteFailure, "no such element")),
	})
}

func TestRunStore_SaveAndGet(t *testing.T) {
	s := openTestStore(t)
	started := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveReport(sampleReport("run-1", started)))

	rec, err := s.GetRun("run-1")
	require.NoError(t, err)
	assert.Equal(t, "smoke.feature", rec.Source)
	assert.Equal(t, "completed", rec.Status)
	assert.Equal(t, 2, rec.StepsExecuted)
	assert.Equal(t, 1, rec.ErrorCount)
	assert.Equal(t, started, rec.CreatedAt)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(rec.Report, &decoded))
	assert.Equal(t, "run-1", decoded["run_id"])
}

func TestRunStore_GetMissing(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetRun("nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRunStore_ListRunsNewestFirst(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveReport(sampleReport("old", base)))
	require.NoError(t, s.SaveReport(sampleReport("new", base.Add(time.Hour))))

	runs, err := s.ListRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "new", runs[0].ID)
	assert.Nil(t, runs[0].Report)
}

func TestRunStore_Schedules(t *testing.T) {
	s := openTestStore(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	hourly, err := s.AddSchedule("health", "GET https://example.com/health", 3600)
	require.NoError(t, err)
	once, err := s.AddSchedule("smoke", "open https://example.com", 0)
	require.NoError(t, err)

	due, err := s.DueSchedules(now)
	require.NoError(t, err)
	assert.Len(t, due, 2, "never-run schedules are due")
	assert.True(t, due[1].OneShot())

	require.NoError(t, s.MarkScheduleRun(hourly, now))
	require.NoError(t, s.DeleteSchedule(once))

	due, err = s.DueSchedules(now.Add(30 * time.Minute))
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = s.DueSchedules(now.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "health", due[0].Label)
	require.NotNil(t, due[0].LastRun)
	assert.Equal(t, now, *due[0].LastRun)

	all, err := s.ListSchedules()
	require.NoError(t, err)
	assert.Len(t, all, 1)

	assert.True(t, errors.Is(s.DeleteSchedule(once), ErrNotFound))
}
