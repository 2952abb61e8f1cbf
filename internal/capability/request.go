package capability

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// RequestSpec is the structured form of an HTTP instruction.
type RequestSpec struct {
	Method         string            `json:"method"`
	URL            string            `json:"url"`
	Headers        map[string]string `json:"headers,omitempty"`
	Body           string            `json:"body,omitempty"`
	ExpectStatus   int               `json:"expect_status,omitempty"`
	ExpectContains []string          `json:"expect_contains,omitempty"`
	Extract        []string          `json:"extract,omitempty"`
}

var (
	methodURLPattern = regexp.MustCompile(`(?i)\b(GET|POST|PUT|PATCH|DELETE|HEAD|OPTIONS)\s+(?:request\s+(?:to\s+)?)?(https?://[^\s"'<>]+)`)
	bareURLPattern   = regexp.MustCompile(`https?://[^\s"'<>]+`)
	statusPattern    = regexp.MustCompile(`(?i)\bstatus(?:\s+code)?\s*(?:is|of|=+|should\s+be|to\s+be)?\s*(\d{3})\b`)
	containsPattern  = regexp.MustCompile(`(?i)\bcontains?\s+"([^"]+)"`)
	extractPattern   = regexp.MustCompile(`(?i)\bextract\s+(\$[^\s,;]*)`)
	bodyKeyword      = regexp.MustCompile(`(?i)\b(?:body|payload)\s*[:=]?\s*[{\[]`)
)

// ParseRequest reads an HTTP interaction straight out of instruction text, e.g.
// `POST https://api.example.com/users with body {"name":"x"} and expect status 201`.
// It reports false when the text names no URL.
func ParseRequest(instruction string) (RequestSpec, bool) {
	var spec RequestSpec

	rest := instruction
	explicit := false
	if m := methodURLPattern.FindStringSubmatchIndex(instruction); m != nil {
		explicit = true
		spec.Method = strings.ToUpper(instruction[m[2]:m[3]])
		spec.URL = trimURL(instruction[m[4]:m[5]])
		rest = instruction[m[5]:]
	} else if loc := bareURLPattern.FindStringIndex(instruction); loc != nil {
		spec.Method = "GET"
		spec.URL = trimURL(instruction[loc[0]:loc[1]])
		rest = instruction[loc[1]:]
	} else {
		return RequestSpec{}, false
	}

	if body, ok := findJSONBody(rest); ok {
		spec.Body = body
		if !explicit {
			spec.Method = "POST"
		}
	}

	if m := statusPattern.FindStringSubmatch(rest); m != nil {
		spec.ExpectStatus, _ = strconv.Atoi(m[1])
	}
	for _, m := range containsPattern.FindAllStringSubmatch(rest, -1) {
		spec.ExpectContains = append(spec.ExpectContains, m[1])
	}
	for _, m := range extractPattern.FindAllStringSubmatch(rest, -1) {
		spec.Extract = append(spec.Extract, m[1])
	}
	return spec, true
}

func trimURL(u string) string {
	return strings.TrimRight(u, ".,;:)]}!?")
}

// findJSONBody returns the balanced JSON object or array that directly follows
// a body/payload keyword.
func findJSONBody(text string) (string, bool) {
	loc := bodyKeyword.FindStringIndex(text)
	if loc == nil {
		return "", false
	}
	tail := text[loc[1]-1:]
	start := 0
	opener, closer := tail[start], byte('}')
	if opener == '[' {
		closer = ']'
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(tail); i++ {
		c := tail[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == opener:
			depth++
		case c == closer:
			depth--
			if depth == 0 {
				candidate := tail[start : i+1]
				if json.Valid([]byte(candidate)) {
					return candidate, true
				}
				return "", false
			}
		}
	}
	return "", false
}
