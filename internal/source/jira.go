package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var issueKeyPattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]*-[0-9]+$`)

// ErrIssueNotFound is returned when Jira has no issue with the requested key.
var ErrIssueNotFound = errors.New("jira issue not found")

// Issue holds the fields of a Jira issue a run cares about.
type Issue struct {
	Key         string
	Summary     string
	Description string
	Status      string
	Assignee    string
}

type JiraConfig struct {
	BaseURL  string
	Email    string
	APIToken string
	Timeout  time.Duration
}

// JiraClient fetches issues through the Jira REST API v2.
type JiraClient struct {
	cfg    JiraConfig
	client *http.Client
}

func NewJiraClient(cfg JiraConfig) (*JiraClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("jira base URL is not configured")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid jira base URL: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &JiraClient{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}, nil
}

// ValidIssueKey reports whether key looks like PROJ-123.
func ValidIssueKey(key string) bool {
	return issueKeyPattern.MatchString(key)
}

type issueResponse struct {
	Key    string `json:"key"`
	Fields struct {
		Summary     string  `json:"summary"`
		Description *string `json:"description"`
		Status      *struct {
			Name string `json:"name"`
		} `json:"status"`
		Assignee *struct {
			DisplayName string `json:"displayName"`
		} `json:"assignee"`
	} `json:"fields"`
}

func (c *JiraClient) FetchIssue(ctx context.Context, key string) (*Issue, error) {
	if !ValidIssueKey(key) {
		return nil, fmt.Errorf("invalid issue key %q", key)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/rest/api/2/issue/" + url.PathEscape(key) + "?fields=summary,description,status,assignee"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.Email != "" || c.cfg.APIToken != "" {
		req.SetBasicAuth(c.cfg.Email, c.cfg.APIToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not fetch %s: %w", key, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("could not read %s: %w", key, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", key, ErrIssueNotFound)
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("could not fetch %s: jira returned %s", key, resp.Status)
	}

	var payload issueResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode issue %s: %w", key, err)
	}

	issue := &Issue{
		Key:      payload.Key,
		Summary:  payload.Fields.Summary,
		Assignee: "Unassigned",
	}
	if issue.Key == "" {
		issue.Key = key
	}
	if payload.Fields.Description != nil {
		issue.Description = *payload.Fields.Description
	}
	if payload.Fields.Status != nil {
		issue.Status = payload.Fields.Status.Name
	}
	if payload.Fields.Assignee != nil && payload.Fields.Assignee.DisplayName != "" {
		issue.Assignee = payload.Fields.Assignee.DisplayName
	}
	return issue, nil
}

// SaveFeature writes the issue description to <dir>/<KEY>.feature and returns
// the path.
func SaveFeature(dir string, issue *Issue) (string, error) {
	if strings.TrimSpace(issue.Description) == "" {
		return "", fmt.Errorf("issue %s has no description to run", issue.Key)
	}
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create features directory: %w", err)
	}
	path := filepath.Join(dir, issue.Key+".feature")
	if err := os.WriteFile(path, []byte(issue.Description), 0644); err != nil {
		return "", fmt.Errorf("failed to save feature file: %w", err)
	}
	return path, nil
}
