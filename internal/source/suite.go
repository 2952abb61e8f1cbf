package source

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Suite is a named set of tasks kept in YAML:
//
//	name: nightly
//	tasks:
//	  - label: login
//	    description: |
//	      Given I am on https://example.com/login
//	      When I click "Sign in"
//	    interval_seconds: 3600
type Suite struct {
	Name  string      `yaml:"name"`
	Tasks []SuiteTask `yaml:"tasks"`
}

type SuiteTask struct {
	Label           string `yaml:"label"`
	Description     string `yaml:"description"`
	IntervalSeconds int    `yaml:"interval_seconds"`
}

func LoadSuite(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read suite: %w", err)
	}
	return ParseSuite(data)
}

// ParseSuite decodes and validates a suite. Tasks without a label are named
// after the suite and their position.
func ParseSuite(data []byte) (*Suite, error) {
	var s Suite
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse suite: %w", err)
	}
	if len(s.Tasks) == 0 {
		return nil, fmt.Errorf("suite %q has no tasks", s.Name)
	}

	seen := make(map[string]bool)
	for i := range s.Tasks {
		t := &s.Tasks[i]
		if strings.TrimSpace(t.Description) == "" {
			return nil, fmt.Errorf("task %d of suite %q has no description", i+1, s.Name)
		}
		if t.IntervalSeconds < 0 {
			return nil, fmt.Errorf("task %d of suite %q has a negative interval", i+1, s.Name)
		}
		if t.Label == "" {
			name := s.Name
			if name == "" {
				name = "suite"
			}
			t.Label = fmt.Sprintf("%s-%d", name, i+1)
		}
		if seen[t.Label] {
			return nil, fmt.Errorf("duplicate task label %q in suite %q", t.Label, s.Name)
		}
		seen[t.Label] = true
	}
	return &s, nil
}

// AsTasks returns the suite's tasks in file order.
func (s *Suite) AsTasks() []Task {
	out := make([]Task, 0, len(s.Tasks))
	for _, t := range s.Tasks {
		out = append(out, Task{Label: t.Label, Description: t.Description})
	}
	return out
}
