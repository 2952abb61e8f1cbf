package capability

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rahul/conductor/internal/observability"
	"github.com/tmc/langchaingo/llms"
)

const (
	DefaultRequestPrompt = "You convert a test step into exactly one HTTP request. Call http_request with the method, absolute URL, optional JSON body and any expectations the step states. Never invent URLs that the step or context does not give you."
	DefaultBrowserPrompt = "You convert a test step into browser actions for the page described below. Call browser_actions with the shortest list of actions that performs the step. Prefer selectors from the element list."
)

// Translator asks a language model to structure instructions that the direct
// parsers could not read.
type Translator struct {
	Model         llms.Model
	RequestPrompt string
	BrowserPrompt string
	Logger        *observability.Logger
}

func NewTranslator(model llms.Model, requestPrompt, browserPrompt string, logger *observability.Logger) *Translator {
	if requestPrompt == "" {
		requestPrompt = DefaultRequestPrompt
	}
	if browserPrompt == "" {
		browserPrompt = DefaultBrowserPrompt
	}
	return &Translator{Model: model, RequestPrompt: requestPrompt, BrowserPrompt: browserPrompt, Logger: logger}
}

var httpRequestTool = llms.Tool{
	Type: "function",
	Function: &llms.FunctionDefinition{
		Name:        "http_request",
		Description: "Describe the HTTP request that performs the step.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"method":          map[string]any{"type": "string", "enum": []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD"}},
				"url":             map[string]any{"type": "string", "description": "Absolute URL"},
				"headers":         map[string]any{"type": "object", "additionalProperties": map[string]any{"type": "string"}},
				"body":            map[string]any{"type": "string", "description": "Raw JSON request body"},
				"expect_status":   map[string]any{"type": "integer"},
				"expect_contains": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"extract":         map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "JSONPath expressions to report"},
			},
			"required": []string{"method", "url"},
		},
	},
}

var browserActionsTool = llms.Tool{
	Type: "function",
	Function: &llms.FunctionDefinition{
		Name:        "browser_actions",
		Description: "List the browser actions that perform the step, in order.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"actions": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"action": map[string]any{
								"type": "string",
								"enum": []string{"navigate", "click", "type", "press", "wait", "assert", "screenshot"},
							},
							"url":      map[string]any{"type": "string"},
							"selector": map[string]any{"type": "string"},
							"text":     map[string]any{"type": "string"},
							"seconds":  map[string]any{"type": "integer"},
						},
						"required": []string{"action"},
					},
				},
			},
			"required": []string{"actions"},
		},
	},
}

func (t *Translator) TranslateRequest(ctx context.Context, instruction string) (RequestSpec, error) {
	args, err := t.call(ctx, t.RequestPrompt, instruction, httpRequestTool)
	if err != nil {
		return RequestSpec{}, err
	}
	var spec RequestSpec
	if err := json.Unmarshal([]byte(args), &spec); err != nil {
		return RequestSpec{}, Wrap(InvalidInstruction, err, "failed to parse http_request arguments")
	}
	return spec, nil
}

func (t *Translator) TranslateActions(ctx context.Context, instruction string, page PageState) ([]Action, error) {
	pageJSON, _ := json.Marshal(page)
	system := fmt.Sprintf("%s\n\n## Current page\n%s", t.BrowserPrompt, pageJSON)
	args, err := t.call(ctx, system, instruction, browserActionsTool)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Actions []Action `json:"actions"`
	}
	if err := json.Unmarshal([]byte(args), &payload); err != nil {
		return nil, Wrap(InvalidInstruction, err, "failed to parse browser_actions arguments")
	}
	return payload.Actions, nil
}

// call runs one completion offering a single function and returns the
// arguments of the model's call to it.
func (t *Translator) call(ctx context.Context, system, instruction string, tool llms.Tool) (string, error) {
	messages := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(system)},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(instruction)},
		},
	}

	resp, err := t.Model.GenerateContent(ctx, messages, llms.WithTools([]llms.Tool{tool}))
	if err != nil {
		return "", Classify(err, RemoteFailure)
	}
	if len(resp.Choices) == 0 {
		return "", Errorf(InvalidInstruction, "model returned no choices")
	}
	choice := resp.Choices[0]
	t.Logger.LogLLM(observability.RunID(ctx), tool.Function.Name, messages, choice.Content, choice.ToolCalls)

	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall != nil && tc.FunctionCall.Name == tool.Function.Name {
			return tc.FunctionCall.Arguments, nil
		}
	}
	return "", Errorf(InvalidInstruction, "model did not call %s: %s", tool.Function.Name, choice.Content)
}
