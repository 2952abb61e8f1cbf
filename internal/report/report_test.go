package report

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/rahul/conductor/internal/capability"
	"github.com/rahul/conductor/internal/executor"
	"github.com/rahul/conductor/internal/steps"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scenarioOutcomes() []executor.Outcome {
	s := steps.Parse("Given I have data\nWhen I submit the form\nThen I see confirmation")
	return []executor.Outcome{
		executor.Succeeded(s[0], "http_request", "GET https://example.com -> 200 OK"),
		executor.Failed(s[1], "browser", capability.Errorf(capability.RemoteFailure, "submit button not found")),
		executor.Succeeded(s[2], "browser", "Found \"confirmation\" on the page"),
	}
}

func TestAssemble_PartialFailure(t *testing.T) {
	r := Assemble(Run{ID: "run-1", Source: "login.feature"}, scenarioOutcomes())

	assert.Equal(t, StatusCompleted, r.Status)
	assert.Equal(t, 3, r.TotalSteps)
	assert.Equal(t, 3, r.StepsExecuted)
	assert.Equal(t, []StepError{{Step: "When I submit the form", Error: "submit button not found"}}, r.Errors)
	assert.False(t, r.Succeeded())
}

func TestAssemble_ErrorsKeepDispatchOrder(t *testing.T) {
	s := steps.FromLines([]string{"a", "b", "c"})
	outcomes := []executor.Outcome{
		executor.Failed(s[0], "browser", capability.Errorf(capability.Timeout, "slow")),
		executor.Failed(s[1], "browser", capability.Errorf(capability.RemoteFailure, "broken")),
		executor.Failed(s[2], "browser", capability.Errorf(capability.Timeout, "slow again")),
	}
	r := Assemble(Run{Source: "order"}, outcomes)

	require.Len(t, r.Errors, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{r.Errors[0].Step, r.Errors[1].Step, r.Errors[2].Step})
}

func TestAssemble_NotAttemptedNotCounted(t *testing.T) {
	s := steps.FromLines([]string{"one", "two", "three"})
	outcomes := []executor.Outcome{
		executor.Succeeded(s[0], "http_request", "ok"),
		executor.NotAttempted(s[1]),
		executor.NotAttempted(s[2]),
	}
	r := Assemble(Run{Source: "cancel", Status: StatusCancelled}, outcomes)

	assert.Equal(t, 1, r.StepsExecuted)
	assert.Equal(t, 3, r.TotalSteps)
	assert.Empty(t, r.Errors)
	assert.Equal(t, StatusCancelled, r.Status)
}

func TestAssemble_Empty(t *testing.T) {
	r := Assemble(Run{Source: "empty"}, nil)
	assert.Equal(t, 0, r.TotalSteps)
	assert.Equal(t, StatusCompleted, r.Status)

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"errors":[]`)
}

func TestAssemble_DoesNotAliasInput(t *testing.T) {
	outcomes := scenarioOutcomes()
	r := Assemble(Run{Source: "x"}, outcomes)
	outcomes[0].Result = "changed"
	assert.Equal(t, "GET https://example.com -> 200 OK", r.Outcomes[0].Result)
}

func TestReport_JSONContract(t *testing.T) {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	r := Assemble(Run{ID: "run-1", Source: "login.feature", StartedAt: start, FinishedAt: start.Add(2 * time.Second)}, scenarioOutcomes())

	data, err := json.Marshal(r)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "login.feature", decoded["source"])
	assert.Equal(t, float64(3), decoded["steps_executed"])
	assert.Equal(t, []any{map[string]any{"step": "When I submit the form", "error": "submit button not found"}}, decoded["errors"])
	assert.Len(t, decoded["outcomes"], 3)
}

func TestReport_Markdown(t *testing.T) {
	r := Assemble(Run{ID: "run-1", Source: "login.feature"}, scenarioOutcomes())
	md := r.Markdown()

	assert.Contains(t, md, "## Run login.feature: completed")
	assert.Contains(t, md, "Steps executed: 3/3")
	assert.Contains(t, md, "2. [failed] When I submit the form _(browser)_")
	assert.Contains(t, md, "RemoteFailure: submit button not found")
}
