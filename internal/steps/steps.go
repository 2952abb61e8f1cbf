// Package steps splits task descriptions into ordered, atomic instruction
// steps. Parsing is deterministic: the same text always yields the same steps.
package steps

import (
	"regexp"
	"strings"

	"github.com/rahul/conductor/internal/capability"
)

// Step is one atomic instruction. Kind is a hint for capability resolution and
// is empty when the text gives no clear signal.
type Step struct {
	Index int             `json:"index"`
	Text  string          `json:"text"`
	Kind  capability.Kind `json:"kind,omitempty"`
}

var (
	gherkinMarker  = regexp.MustCompile(`^(?:Given|When|Then|And|But)\s`)
	numberedMarker = regexp.MustCompile(`^\d+[.)]\s+\S`)
	bulletMarker   = regexp.MustCompile(`^[-*+•]\s+\S`)
)

// IsMarker reports whether a trimmed line starts a step.
func IsMarker(line string) bool {
	return gherkinMarker.MatchString(line) || numberedMarker.MatchString(line) || bulletMarker.MatchString(line)
}

func isComment(line string) bool {
	return strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//")
}

// Parse splits description into steps. When the text contains marker lines
// (Gherkin keywords, numbered or bulleted lines) each marker line becomes one
// step, verbatim; other lines are dropped. Without markers the whole text is a
// single step. Blank and comment lines never become steps.
func Parse(description string) []Step {
	var markers, kept []string
	hasComments := false
	for _, raw := range strings.Split(description, "\n") {
		line := strings.TrimSpace(raw)
		switch {
		case line == "":
			kept = append(kept, raw)
		case isComment(line):
			hasComments = true
		case IsMarker(line):
			markers = append(markers, line)
			kept = append(kept, raw)
		default:
			kept = append(kept, raw)
		}
	}

	if len(markers) > 0 {
		return FromLines(markers)
	}

	text := strings.TrimSpace(description)
	if hasComments {
		text = strings.TrimSpace(strings.Join(kept, "\n"))
	}
	if text == "" {
		return nil
	}
	return FromLines([]string{text})
}

// FromLines builds steps from already separated instructions.
func FromLines(lines []string) []Step {
	var out []Step
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, Step{Index: len(out), Text: line, Kind: InferKind(line)})
	}
	return out
}

var (
	requestHint     = regexp.MustCompile(`(?i)\b(?:GET|POST|PUT|PATCH|DELETE|HEAD)\s+(?:https?://|/)|\b(?:api|apis|endpoint|endpoints|status code|json|response body|http request|rest call)\b`)
	interactionHint = regexp.MustCompile(`(?i)\b(?:click|clicks|clicked|navigate|navigates|browser|page|button|field|form|fill|fills|types?|screen|sees?|login page|submit|submits|checkbox|dropdown|link)\b`)
)

// InferKind guesses which executor a step needs. It returns "" when neither or
// both vocabularies appear, leaving the decision to the planner.
func InferKind(text string) capability.Kind {
	req := requestHint.MatchString(text)
	ui := interactionHint.MatchString(text)
	switch {
	case req && !ui:
		return capability.KindRequest
	case ui && !req:
		return capability.KindInteraction
	default:
		return ""
	}
}
