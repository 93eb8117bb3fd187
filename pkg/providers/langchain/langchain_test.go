package langchain

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/germanamz/persona/pkg/chats/chat"
	"github.com/germanamz/persona/pkg/chats/content"
	"github.com/germanamz/persona/pkg/chats/message"
	"github.com/germanamz/persona/pkg/chats/role"
	"github.com/germanamz/persona/pkg/modeladapter"
	"github.com/germanamz/persona/pkg/tools/toolbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type fakeModel struct {
	messages []llms.MessageContent
	opts     llms.CallOptions
	resp     *llms.ContentResponse
	err      error
}

func (f *fakeModel) GenerateContent(_ context.Context, msgs []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.messages = msgs
	for _, o := range options {
		o(&f.opts)
	}
	return f.resp, f.err
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func transcript() *chat.Chat {
	return chat.New(
		message.NewText("persona", role.System, "sys"),
		message.NewText("user", role.User, "run"),
		message.New("persona", role.Assistant,
			content.ToolCall{ID: "c1", Name: "run_judge_chain", Arguments: `{"question":"q"}`},
			content.ToolCall{ID: "c2", Name: "run_excuse_chain", Arguments: `{"figure":"f"}`},
		),
		message.New("persona", role.Tool,
			content.ToolResult{ToolCallID: "c1", Name: "run_judge_chain", Content: "appropriate"},
		),
		message.New("persona", role.Tool,
			content.ToolResult{ToolCallID: "c2", Name: "run_excuse_chain", Content: "Busy."},
		),
	)
}

func TestComplete_ConvertsTranscript(t *testing.T) {
	m := &fakeModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		Content:        `{"excuse":"Busy.","response":"Finches."}`,
		GenerationInfo: map[string]any{"PromptTokens": 30, "CompletionTokens": 8},
	}}}}

	a := New(m)
	a.Temperature = 0.5

	tools := []toolbox.Tool{{Name: "run_judge_chain", Description: "judge"}}
	msg, err := a.Complete(context.Background(), transcript(), tools)
	require.NoError(t, err)
	assert.Equal(t, `{"excuse":"Busy.","response":"Finches."}`, msg.TextContent())

	require.Len(t, m.messages, 5)
	assert.Equal(t, llms.ChatMessageTypeSystem, m.messages[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, m.messages[1].Role)
	assert.Equal(t, llms.ChatMessageTypeAI, m.messages[2].Role)
	assert.Len(t, m.messages[2].Parts, 2)
	assert.Equal(t, llms.ChatMessageTypeTool, m.messages[3].Role)
	assert.Equal(t, llms.ToolCallResponse{ToolCallID: "c1", Name: "run_judge_chain", Content: "appropriate"}, m.messages[3].Parts[0])

	assert.Equal(t, 1024, m.opts.MaxTokens)
	assert.InDelta(t, 0.5, m.opts.Temperature, 1e-9)
	require.Len(t, m.opts.Tools, 1)
	assert.Equal(t, "run_judge_chain", m.opts.Tools[0].Function.Name)
	assert.Equal(t, map[string]any{"type": "object"}, m.opts.Tools[0].Function.Parameters)

	last, ok := a.UsageTracker().Last()
	require.True(t, ok)
	assert.Equal(t, 38, last.Total())
}

func TestComplete_ToolCalls(t *testing.T) {
	m := &fakeModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		ToolCalls: []llms.ToolCall{
			{ID: "c3", Type: "function", FunctionCall: &llms.FunctionCall{Name: "run_excuse_chain"}},
			{ID: "skip"},
		},
	}}}}

	msg, err := New(m).Complete(context.Background(), transcript(), nil)
	require.NoError(t, err)
	assert.Equal(t, []content.ToolCall{{ID: "c3", Name: "run_excuse_chain", Arguments: "{}"}}, msg.ToolCalls())
	assert.Empty(t, m.opts.Tools)
}

func TestComplete_Errors(t *testing.T) {
	_, err := New(&fakeModel{resp: &llms.ContentResponse{}}).Complete(context.Background(), transcript(), nil)
	assert.ErrorIs(t, err, ErrEmptyReply)

	_, err = New(&fakeModel{err: errors.New("API returned unexpected status code: 429: Rate limit reached")}).
		Complete(context.Background(), transcript(), nil)
	var rle *modeladapter.RateLimitError
	assert.ErrorAs(t, err, &rle)

	_, err = New(&fakeModel{err: context.Canceled}).Complete(context.Background(), transcript(), nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.As(err, &rle))
}

func TestNewOpenAI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","model":"gpt-4","choices":[{"index":0,
			"message":{"role":"assistant","content":"appropriate"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":5,"completion_tokens":1,"total_tokens":6}}`))
	}))
	t.Cleanup(srv.Close)

	a, err := NewOpenAI(srv.URL+"/v1", "test-key", "gpt-4", srv.Client())
	require.NoError(t, err)

	msg, err := a.Complete(context.Background(), chat.New(message.NewText("user", role.User, "Judge this.")), nil)
	require.NoError(t, err)
	assert.Equal(t, "appropriate", msg.TextContent())

	last, ok := a.UsageTracker().Last()
	require.True(t, ok)
	assert.Equal(t, 5, last.InputTokens)
}
