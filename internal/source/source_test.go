package source

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "login.feature")
	require.NoError(t, os.WriteFile(path, []byte("\ufeffFeature: Login\n  Given I am on https://example.com\n"), 0644))

	task, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "login.feature", task.Label)
	assert.True(t, strings.HasPrefix(task.Description, "Feature: Login"))
}

func TestLoadReader_Empty(t *testing.T) {
	_, err := LoadReader(strings.NewReader(" \n "), "blank.txt")
	assert.Error(t, err)
}

func TestParseSuite(t *testing.T) {
	suite, err := ParseSuite([]byte(`
name: nightly
tasks:
  - label: login
    description: |
      Given I am on https://example.com/login
      When I click "Sign in"
    interval_seconds: 3600
  - description: GET https://api.example.com/health
`))
	require.NoError(t, err)
	assert.Equal(t, "nightly", suite.Name)
	require.Len(t, suite.Tasks, 2)
	assert.Equal(t, 3600, suite.Tasks[0].IntervalSeconds)
	assert.Equal(t, "nightly-2", suite.Tasks[1].Label)

	tasks := suite.AsTasks()
	assert.Equal(t, "login", tasks[0].Label)
	assert.Contains(t, tasks[0].Description, `When I click "Sign in"`)
}

func TestParseSuite_Invalid(t *testing.T) {
	cases := map[string]string{
		"no tasks":        "name: empty\n",
		"no description":  "tasks:\n  - label: x\n",
		"duplicate label": "tasks:\n  - {label: a, description: x}\n  - {label: a, description: y}\n",
		"negative":        "tasks:\n  - {description: x, interval_seconds: -1}\n",
		"not yaml":        "tasks: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseSuite([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func newJiraServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "qa@example.com" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/rest/api/2/issue/RD-1":
			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, `{"key":"RD-1","fields":{"summary":"Login works","description":"Feature: Login\n  Given I am on https://example.com","status":{"name":"To Do"},"assignee":null}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestJiraClient_FetchIssue(t *testing.T) {
	srv := newJiraServer(t)
	client, err := NewJiraClient(JiraConfig{BaseURL: srv.URL + "/", Email: "qa@example.com", APIToken: "secret"})
	require.NoError(t, err)

	issue, err := client.FetchIssue(context.Background(), "RD-1")
	require.NoError(t, err)
	assert.Equal(t, "Login works", issue.Summary)
	assert.Equal(t, "To Do", issue.Status)
	assert.Equal(t, "Unassigned", issue.Assignee)
	assert.Contains(t, issue.Description, "Given I am on https://example.com")

	_, err = client.FetchIssue(context.Background(), "RD-404")
	assert.True(t, errors.Is(err, ErrIssueNotFound))

	_, err = client.FetchIssue(context.Background(), "../etc/passwd")
	assert.Error(t, err)
}

func TestJiraClient_Unauthorized(t *testing.T) {
	srv := newJiraServer(t)
	client, err := NewJiraClient(JiraConfig{BaseURL: srv.URL, Email: "qa@example.com", APIToken: "wrong"})
	require.NoError(t, err)

	_, err = client.FetchIssue(context.Background(), "RD-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestSaveFeature(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "features")
	path, err := SaveFeature(dir, &Issue{Key: "RD-1", Description: "Given I am on https://example.com"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "RD-1.feature"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Given I am on https://example.com", string(data))

	_, err = SaveFeature(dir, &Issue{Key: "RD-2"})
	assert.Error(t, err)
}

func TestValidIssueKey(t *testing.T) {
	assert.True(t, ValidIssueKey("RD-1"))
	assert.True(t, ValidIssueKey("QA_TEAM-42"))
	assert.False(t, ValidIssueKey("rd-1"))
	assert.False(t, ValidIssueKey("RD"))
}
