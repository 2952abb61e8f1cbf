package capability

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
	"github.com/ohler55/ojg/jp"
)

const defaultSummaryChars = 4000

func truncate(s string, max int) string {
	if max <= 0 {
		max = defaultSummaryChars
	}
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "\n... (truncated)"
}

// checkExpectations validates a response against the instruction's explicit
// expectations and evaluates its JSONPath extractions.
func checkExpectations(spec RequestSpec, status int, body []byte) ([]string, *ExecutionError) {
	if spec.ExpectStatus != 0 && status != spec.ExpectStatus {
		return nil, Errorf(RemoteFailure, "%s %s: expected status %d, got %d", spec.Method, spec.URL, spec.ExpectStatus, status)
	}
	if spec.ExpectStatus == 0 && status >= 400 {
		return nil, Errorf(RemoteFailure, "%s %s returned status %d", spec.Method, spec.URL, status)
	}
	for _, want := range spec.ExpectContains {
		if !bytes.Contains(body, []byte(want)) {
			return nil, Errorf(RemoteFailure, "%s %s: response body does not contain %q", spec.Method, spec.URL, want)
		}
	}
	if len(spec.Extract) == 0 {
		return nil, nil
	}

	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, Wrap(RemoteFailure, err, "%s %s: response is not JSON, cannot extract", spec.Method, spec.URL)
	}
	var lines []string
	for _, expr := range spec.Extract {
		path, err := jp.ParseString(expr)
		if err != nil {
			return nil, Wrap(InvalidInstruction, err, "invalid JSONPath expression '%s'", expr)
		}
		results := path.Get(data)
		if len(results) == 0 {
			return nil, Errorf(RemoteFailure, "JSONPath '%s' returned no results", expr)
		}
		var value any = results
		if len(results) == 1 {
			value = results[0]
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, Wrap(RemoteFailure, err, "failed to encode result of JSONPath '%s'", expr)
		}
		lines = append(lines, fmt.Sprintf("%s = %s", expr, encoded))
	}
	return lines, nil
}

// summarizeBody renders a response body as text for the report: compact JSON,
// readable article text for HTML, raw text otherwise.
func summarizeBody(contentType string, body []byte, pageURL string, max int) string {
	switch {
	case strings.Contains(contentType, "json"):
		var buf bytes.Buffer
		if err := json.Compact(&buf, body); err == nil {
			return truncate(buf.String(), max)
		}
	case strings.Contains(contentType, "html"):
		if text, ok := readableText(body, pageURL); ok {
			return truncate(text, max)
		}
	}
	return truncate(strings.TrimSpace(string(body)), max)
}

func readableText(body []byte, pageURL string) (string, bool) {
	parsedURL, err := url.Parse(pageURL)
	if err != nil {
		return "", false
	}
	article, err := readability.FromReader(bytes.NewReader(body), parsedURL)
	if err != nil {
		return "", false
	}

	p := bluemonday.StrictPolicy()
	var b strings.Builder
	if article.Title != "" {
		fmt.Fprintf(&b, "TITLE: %s\n", article.Title)
	}
	if article.Excerpt != "" {
		fmt.Fprintf(&b, "EXCERPT: %s\n", p.Sanitize(article.Excerpt))
	}
	b.WriteString(strings.TrimSpace(p.Sanitize(article.TextContent)))
	return b.String(), true
}

// markupText strips every tag from html and collapses whitespace.
func markupText(html string) string {
	return strings.Join(strings.Fields(bluemonday.StrictPolicy().Sanitize(html)), " ")
}
