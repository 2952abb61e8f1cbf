package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/rahul/conductor/internal/capability"
	"github.com/rahul/conductor/internal/observability"
	"github.com/tmc/langchaingo/llms"
)

// PlanStep is one entry of a proposed plan.
type PlanStep struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

// Plan is the argument of the propose_plan function.
type Plan struct {
	Steps []PlanStep `json:"steps"`
}

// LLMPlanner makes planner decisions with a tool-calling language model.
type LLMPlanner struct {
	Model   llms.Model
	Prompts *PromptManager
	Logger  *observability.Logger
}

func NewLLMPlanner(model llms.Model, prompts *PromptManager, logger *observability.Logger) *LLMPlanner {
	return &LLMPlanner{
		Model:   model,
		Prompts: prompts,
		Logger:  logger,
	}
}

// SelectCapability offers every capability as a function and returns the name
// of the one the model calls.
func (p *LLMPlanner) SelectCapability(ctx context.Context, stepText string, available []capability.Info) (string, error) {
	if len(available) == 0 {
		return "", fmt.Errorf("%w: no capabilities available", ErrNoSelection)
	}

	var llmTools []llms.Tool
	for _, info := range available {
		llmTools = append(llmTools, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        info.Name,
				Description: info.Description,
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"instruction": map[string]any{
							"type":        "string",
							"description": "The step to perform, as given.",
						},
					},
					"required": []string{"instruction"},
				},
			},
		})
	}

	messages := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(p.Prompts.Get(SelectorPrompt))},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(stepText)},
		},
	}

	resp, err := p.Model.GenerateContent(ctx, messages, llms.WithTools(llmTools))
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: model returned no choices", ErrNoSelection)
	}

	choice := resp.Choices[0]
	p.Logger.LogLLM(observability.RunID(ctx), "select_capability", messages, choice.Content, choice.ToolCalls)

	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall != nil && tc.FunctionCall.Name != "" {
			return tc.FunctionCall.Name, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNoSelection, strings.TrimSpace(choice.Content))
}

var proposePlanTool = llms.Tool{
	Type: "function",
	Function: &llms.FunctionDefinition{
		Name:        "propose_plan",
		Description: "Submit a structured plan consisting of multiple ordered steps.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"steps": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"id": map[string]any{
								"type": "integer",
							},
							"description": map[string]any{
								"type": "string",
							},
						},
						"required": []string{"id", "description"},
					},
				},
			},
			"required": []string{"steps"},
		},
	},
}

// Decompose asks the model to split description into ordered instructions.
func (p *LLMPlanner) Decompose(ctx context.Context, description string, available []capability.Info) ([]string, error) {
	var toolDescriptions []string
	for _, info := range available {
		toolDescriptions = append(toolDescriptions, fmt.Sprintf("- %s: %s", info.Name, info.Description))
	}
	fullPlannerPrompt := fmt.Sprintf("%s\n\n## Available Executors:\n%s", p.Prompts.Get(PlannerPrompt), strings.Join(toolDescriptions, "\n"))

	messages := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(fullPlannerPrompt)},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(description)},
		},
	}

	resp, err := p.Model.GenerateContent(ctx, messages, llms.WithTools([]llms.Tool{proposePlanTool}))
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("planner returned no choices")
	}

	choice := resp.Choices[0]
	p.Logger.LogLLM(observability.RunID(ctx), "propose_plan", messages, choice.Content, choice.ToolCalls)

	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall == nil || tc.FunctionCall.Name != "propose_plan" {
			continue
		}
		var plan Plan
		if err := json.Unmarshal([]byte(tc.FunctionCall.Arguments), &plan); err != nil {
			return nil, fmt.Errorf("failed to parse propose_plan arguments: %v", err)
		}
		sort.SliceStable(plan.Steps, func(i, j int) bool { return plan.Steps[i].ID < plan.Steps[j].ID })

		var out []string
		for _, s := range plan.Steps {
			if d := strings.TrimSpace(s.Description); d != "" {
				out = append(out, d)
			}
		}
		log.Printf("[Planner] Proposed %d steps", len(out))
		return out, nil
	}

	return nil, fmt.Errorf("planner failed to provide a plan")
}
