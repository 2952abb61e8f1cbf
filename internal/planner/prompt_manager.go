package planner

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rahul/conductor/internal/capability"
)

// Role prompt files. Every other .md file in the directory is shared context
// appended to each role prompt.
const (
	SelectorPrompt = "selector.md"
	PlannerPrompt  = "planner.md"
	RequestPrompt  = "request.md"
	BrowserPrompt  = "browser.md"
)

var rolePrompts = map[string]bool{
	SelectorPrompt: true,
	PlannerPrompt:  true,
	RequestPrompt:  true,
	BrowserPrompt:  true,
}

var defaultPrompts = map[string]string{
	SelectorPrompt: "You route one step of a test scenario to the executor that can perform it. Call exactly one of the available functions. Use the HTTP executor for API calls and response checks, and the browser executor for anything a user does on a web page.",
	RequestPrompt:  capability.DefaultRequestPrompt,
	BrowserPrompt:  capability.DefaultBrowserPrompt,
	PlannerPrompt:  "You break a task into short, ordered, atomic steps. Each step must be performable by one of the executors listed below. Call propose_plan with the steps in execution order.",
}

// PromptManager loads prompts from a directory, falling back to built-in
// defaults for roles that have no file.
type PromptManager struct {
	Directory string
}

func NewPromptManager(dir string) *PromptManager {
	return &PromptManager{Directory: dir}
}

// Get returns the prompt for role followed by the shared context files. It
// returns "" when neither a file nor a default exists.
func (pm *PromptManager) Get(role string) string {
	prompt := defaultPrompts[role]
	if pm != nil && pm.Directory != "" {
		data, err := os.ReadFile(filepath.Join(pm.Directory, role))
		switch {
		case err == nil:
			prompt = strings.TrimSpace(string(data))
		case !os.IsNotExist(err):
			log.Printf("Warning: Failed to read prompt %s: %v", role, err)
		}
	}

	shared, err := pm.contextPrompt()
	if err != nil {
		log.Printf("Warning: Failed to load prompt context: %v", err)
	}
	if shared == "" {
		return prompt
	}
	if prompt == "" {
		return shared
	}
	return prompt + "\n\n---\n\n" + shared
}

// contextPrompt joins the shared context files in a fixed order: identity.md,
// context.md, user.md, then the rest by name.
func (pm *PromptManager) contextPrompt() (string, error) {
	if pm == nil || pm.Directory == "" {
		return "", nil
	}
	files, err := os.ReadDir(pm.Directory)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read prompts directory: %v", err)
	}

	order := map[string]int{
		"identity.md": 1,
		"context.md":  2,
		"user.md":     3,
	}

	sort.Slice(files, func(i, j int) bool {
		oi, okI := order[files[i].Name()]
		oj, okJ := order[files[j].Name()]
		if okI && okJ {
			return oi < oj
		}
		if okI {
			return true
		}
		if okJ {
			return false
		}
		return files[i].Name() < files[j].Name()
	})

	var contents []string
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".md") || rolePrompts[f.Name()] {
			continue
		}
		path := filepath.Join(pm.Directory, f.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("Warning: Failed to read prompt file %s: %v", path, err)
			continue
		}
		contents = append(contents, strings.TrimSpace(string(data)))
	}
	return strings.Join(contents, "\n\n---\n\n"), nil
}
