package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rahul/conductor/internal/capability"
	"github.com/rahul/conductor/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type scriptedModel struct {
	choice *llms.ContentChoice
	err    error
	opts   llms.CallOptions
}

func (m *scriptedModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	for _, opt := range options {
		opt(&m.opts)
	}
	if m.err != nil {
		return nil, m.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{m.choice}}, nil
}

func (m *scriptedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func callTool(name, args string) *llms.ContentChoice {
	return &llms.ContentChoice{ToolCalls: []llms.ToolCall{{
		ID:           "call_1",
		Type:         "function",
		FunctionCall: &llms.FunctionCall{Name: name, Arguments: args},
	}}}
}

var infos = []capability.Info{
	{Name: "http_request", Description: "HTTP calls", Kind: capability.KindRequest},
	{Name: "browser", Description: "Browser actions", Kind: capability.KindInteraction},
}

func TestLLMPlanner_SelectCapability(t *testing.T) {
	model := &scriptedModel{choice: callTool("browser", `{"instruction":"When I submit the form"}`)}
	p := NewLLMPlanner(model, nil, nil)

	name, err := p.SelectCapability(context.Background(), "When I submit the form", infos)
	require.NoError(t, err)
	assert.Equal(t, "browser", name)

	require.Len(t, model.opts.Tools, 2)
	assert.Equal(t, "http_request", model.opts.Tools[0].Function.Name)
}

func TestLLMPlanner_NoToolCallIsNoSelection(t *testing.T) {
	model := &scriptedModel{choice: &llms.ContentChoice{Content: "not sure"}}
	p := NewLLMPlanner(model, nil, nil)

	_, err := p.SelectCapability(context.Background(), "hmm", infos)
	assert.ErrorIs(t, err, ErrNoSelection)
}

func TestLLMPlanner_ModelErrorPassesThrough(t *testing.T) {
	boom := errors.New("rate limited")
	p := NewLLMPlanner(&scriptedModel{err: boom}, nil, nil)

	_, err := p.SelectCapability(context.Background(), "step", infos)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrNoSelection)
}

func TestLLMPlanner_Decompose(t *testing.T) {
	model := &scriptedModel{choice: callTool("propose_plan", `{"steps":[
		{"id":2,"description":"fill the form with the names"},
		{"id":1,"description":"GET https://swapi.dev/api/people/ and extract $.results[:5].name"},
		{"id":3,"description":"  "}
	]}`)}
	p := NewLLMPlanner(model, nil, nil)

	got, err := p.Decompose(context.Background(), "fetch 5 people and fill the form", infos)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"GET https://swapi.dev/api/people/ and extract $.results[:5].name",
		"fill the form with the names",
	}, got)
}

func TestLLMPlanner_DecomposeWithoutPlan(t *testing.T) {
	p := NewLLMPlanner(&scriptedModel{choice: &llms.ContentChoice{Content: "just do it"}}, nil, nil)

	_, err := p.Decompose(context.Background(), "task", infos)
	assert.Error(t, err)
}

func TestSelectorFunc(t *testing.T) {
	var s Selector = SelectorFunc(func(ctx context.Context, stepText string, available []capability.Info) (string, error) {
		return available[len(available)-1].Name, nil
	})
	name, err := s.SelectCapability(context.Background(), "x", infos)
	require.NoError(t, err)
	assert.Equal(t, "browser", name)
}

func TestLLMPlanner_LogsRunID(t *testing.T) {
	var buf bytes.Buffer
	logger := observability.NewLoggerTo(&buf, "")
	model := &scriptedModel{choice: callTool("browser", `{"instruction":"click"}`)}
	p := NewLLMPlanner(model, nil, logger)

	ctx := observability.WithRunID(context.Background(), "run-42")
	_, err := p.SelectCapability(ctx, "When I click", infos)
	require.NoError(t, err)

	var evt observability.Event
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &evt))
	assert.Equal(t, observability.EventTypeLLM, evt.Type)
	assert.Equal(t, "run-42", evt.RunID)
}
