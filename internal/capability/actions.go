package capability

import (
	"regexp"
	"strconv"
	"strings"
)

// ActionType is a simulated-user action understood by the browser capability.
type ActionType string

const (
	ActionNavigate   ActionType = "navigate"
	ActionClick      ActionType = "click"
	ActionTypeText   ActionType = "type"
	ActionPress      ActionType = "press"
	ActionWait       ActionType = "wait"
	ActionAssert     ActionType = "assert"
	ActionScreenshot ActionType = "screenshot"
)

type Action struct {
	Action   ActionType `json:"action"`
	URL      string     `json:"url,omitempty"`
	Selector string     `json:"selector,omitempty"`
	Text     string     `json:"text,omitempty"`
	Seconds  int        `json:"seconds,omitempty"`
}

var (
	clauseSplit     = regexp.MustCompile(`(?i)\s*,?\s*\b(?:and then|then)\b\s*`)
	navigateAction  = regexp.MustCompile(`(?i)\b(?:navigate to|go to|open|visit|browse to|am on)\s+(?:the\s+)?(?:page\s+)?(?:at\s+)?(https?://[^\s"'<>]+)`)
	typeAction      = regexp.MustCompile(`(?i)\b(?:type|enter)\s+"([^"]*)"\s+(?:into|in)\s+(?:the\s+)?"([^"]+)"`)
	fillAction      = regexp.MustCompile(`(?i)\bfill(?:\s+in)?\s+(?:the\s+)?"([^"]+)"\s+with\s+"([^"]*)"`)
	pressAction     = regexp.MustCompile(`(?i)\bpress(?:es)?\s+(?:the\s+)?"?(enter|return|tab|escape|esc)"?(?:\s+key)?\b`)
	clickAction     = regexp.MustCompile(`(?i)\b(?:click|clicks|tap|taps|press|presses)(?:\s+on)?(?:\s+the)?\s+"([^"]+)"`)
	waitForAction   = regexp.MustCompile(`(?i)\bwait\s+for\s+(?:the\s+)?"([^"]+)"`)
	waitSecsAction  = regexp.MustCompile(`(?i)\bwait\s+(\d+)\s*(?:s|sec|secs|second|seconds)\b`)
	assertAction    = regexp.MustCompile(`(?i)\b(?:assert|verify|check|see|sees|expect|should see)\b.*?"([^"]+)"`)
	screenshotRegex = regexp.MustCompile(`(?i)\bscreenshot\b`)
)

// ParseActions reads browser actions straight out of instruction text. Clauses
// are chained with "then"; quoted strings are selectors or text. It reports
// false unless every clause is understood, so a half-parsed instruction is
// never executed.
func ParseActions(instruction string) ([]Action, bool) {
	var actions []Action
	for _, clause := range clauseSplit.Split(strings.TrimSpace(instruction), -1) {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}
		action, ok := parseClause(clause)
		if !ok {
			return nil, false
		}
		actions = append(actions, action)
	}
	return actions, len(actions) > 0
}

func parseClause(clause string) (Action, bool) {
	if m := navigateAction.FindStringSubmatch(clause); m != nil {
		return Action{Action: ActionNavigate, URL: trimURL(m[1])}, true
	}
	if m := typeAction.FindStringSubmatch(clause); m != nil {
		return Action{Action: ActionTypeText, Text: m[1], Selector: m[2]}, true
	}
	if m := fillAction.FindStringSubmatch(clause); m != nil {
		return Action{Action: ActionTypeText, Selector: m[1], Text: m[2]}, true
	}
	if m := pressAction.FindStringSubmatch(clause); m != nil {
		return Action{Action: ActionPress, Text: strings.ToLower(m[1])}, true
	}
	if m := clickAction.FindStringSubmatch(clause); m != nil {
		return Action{Action: ActionClick, Selector: m[1]}, true
	}
	if m := waitForAction.FindStringSubmatch(clause); m != nil {
		return Action{Action: ActionWait, Selector: m[1]}, true
	}
	if m := waitSecsAction.FindStringSubmatch(clause); m != nil {
		n, _ := strconv.Atoi(m[1])
		return Action{Action: ActionWait, Seconds: n}, true
	}
	if m := assertAction.FindStringSubmatch(clause); m != nil {
		return Action{Action: ActionAssert, Text: m[1]}, true
	}
	if screenshotRegex.MatchString(clause) {
		return Action{Action: ActionScreenshot}, true
	}
	return Action{}, false
}
