package capability

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

// scriptedModel answers every completion with the same choice.
type scriptedModel struct {
	choice   *llms.ContentChoice
	err      error
	messages []llms.MessageContent
}

func (m *scriptedModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.messages = messages
	if m.err != nil {
		return nil, m.err
	}
	if m.choice == nil {
		return &llms.ContentResponse{}, nil
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{m.choice}}, nil
}

func (m *scriptedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func toolChoice(name, args string) *llms.ContentChoice {
	return &llms.ContentChoice{
		ToolCalls: []llms.ToolCall{{
			ID:           "call_1",
			Type:         "function",
			FunctionCall: &llms.FunctionCall{Name: name, Arguments: args},
		}},
	}
}

func TestTranslator_TranslateRequest(t *testing.T) {
	model := &scriptedModel{choice: toolChoice("http_request", `{"method":"GET","url":"https://swapi.dev/api/people/?page=1","extract":["$.results[*].name"]}`)}
	tr := NewTranslator(model, "", "", nil)

	spec, err := tr.TranslateRequest(context.Background(), "fetch 5 people from the star wars api")
	require.NoError(t, err)
	assert.Equal(t, "GET", spec.Method)
	assert.Equal(t, "https://swapi.dev/api/people/?page=1", spec.URL)
	assert.Equal(t, []string{"$.results[*].name"}, spec.Extract)
	require.Len(t, model.messages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, model.messages[0].Role)
}

func TestTranslator_TranslateActionsIncludesPage(t *testing.T) {
	model := &scriptedModel{choice: toolChoice("browser_actions", `{"actions":[{"action":"click","selector":"#submit"}]}`)}
	tr := NewTranslator(model, "", "", nil)

	actions, err := tr.TranslateActions(context.Background(), "When I submit the form", PageState{URL: "https://example.com/form", Title: "Form"})
	require.NoError(t, err)
	assert.Equal(t, []Action{{Action: ActionClick, Selector: "#submit"}}, actions)

	system := model.messages[0].Parts[0].(llms.TextContent).Text
	assert.True(t, strings.Contains(system, "https://example.com/form"))
}

func TestTranslator_NoToolCall(t *testing.T) {
	model := &scriptedModel{choice: &llms.ContentChoice{Content: "I cannot do that"}}
	tr := NewTranslator(model, "", "", nil)

	_, err := tr.TranslateRequest(context.Background(), "do something")
	require.Error(t, err)
	assert.Equal(t, InvalidInstruction, KindOf(err))
}

func TestTranslator_NoChoices(t *testing.T) {
	tr := NewTranslator(&scriptedModel{}, "", "", nil)

	_, err := tr.TranslateRequest(context.Background(), "do something")
	assert.Equal(t, InvalidInstruction, KindOf(err))
}

func TestTranslator_ModelError(t *testing.T) {
	tr := NewTranslator(&scriptedModel{err: errors.New("rate limited")}, "", "", nil)
	_, err := tr.TranslateRequest(context.Background(), "do something")
	assert.Equal(t, RemoteFailure, KindOf(err))

	tr = NewTranslator(&scriptedModel{err: context.DeadlineExceeded}, "", "", nil)
	_, err = tr.TranslateRequest(context.Background(), "do something")
	assert.Equal(t, Timeout, KindOf(err))
}
