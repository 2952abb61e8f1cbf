// Package source loads task descriptions from files, YAML suites and Jira.
package source

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// maxTaskBytes caps the size of a single task description.
const maxTaskBytes = 1 << 20

// Task is a description plus the label its report is filed under.
type Task struct {
	Label       string
	Description string
}

// LoadFile reads a task description from disk. The label is the file name.
func LoadFile(path string) (Task, error) {
	f, err := os.Open(path)
	if err != nil {
		return Task{}, fmt.Errorf("failed to open task file: %w", err)
	}
	defer f.Close()
	return LoadReader(f, filepath.Base(path))
}

// LoadReader reads a task description from r.
func LoadReader(r io.Reader, label string) (Task, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxTaskBytes+1))
	if err != nil {
		return Task{}, fmt.Errorf("failed to read task %s: %w", label, err)
	}
	if len(data) > maxTaskBytes {
		return Task{}, fmt.Errorf("task %s is larger than %d bytes", label, maxTaskBytes)
	}
	text := strings.TrimPrefix(string(data), "\ufeff")
	if strings.TrimSpace(text) == "" {
		return Task{}, fmt.Errorf("task %s is empty", label)
	}
	return Task{Label: label, Description: text}, nil
}
