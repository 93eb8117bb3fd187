// Package langchain implements modeladapter.Completer on top of any
// github.com/tmc/langchaingo/llms Model.
package langchain

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/germanamz/persona/pkg/chats/chat"
	"github.com/germanamz/persona/pkg/chats/content"
	"github.com/germanamz/persona/pkg/chats/message"
	"github.com/germanamz/persona/pkg/chats/role"
	"github.com/germanamz/persona/pkg/modeladapter"
	"github.com/germanamz/persona/pkg/modeladapter/usage"
	"github.com/germanamz/persona/pkg/tools/toolbox"
	"github.com/tmc/langchaingo/llms"
	lcopenai "github.com/tmc/langchaingo/llms/openai"
)

// ErrEmptyReply is returned when the model produced no choice.
var ErrEmptyReply = errors.New("langchain: empty reply")

var (
	_ modeladapter.Completer     = (*Adapter)(nil)
	_ modeladapter.UsageReporter = (*Adapter)(nil)
)

// Adapter adapts an llms.Model.
type Adapter struct {
	Temperature float64
	MaxTokens   int

	model llms.Model
	usage usage.Tracker
}

// New wraps m.
func New(m llms.Model) *Adapter {
	return &Adapter{model: m, MaxTokens: 1024}
}

// NewOpenAI builds an Adapter backed by langchaingo's OpenAI client.
// baseURL must include the version segment; empty keeps the default.
func NewOpenAI(baseURL, apiKey, model string, httpClient *http.Client) (*Adapter, error) {
	// The client refuses an empty token; local endpoints ignore it.
	if apiKey == "" && baseURL != "" {
		apiKey = "local"
	}

	opts := []lcopenai.Option{lcopenai.WithToken(apiKey), lcopenai.WithModel(model)}
	if baseURL != "" {
		opts = append(opts, lcopenai.WithBaseURL(baseURL))
	}
	if httpClient != nil {
		opts = append(opts, lcopenai.WithHTTPClient(httpClient))
	}

	m, err := lcopenai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("langchain: %w", err)
	}

	return New(m), nil
}

// UsageTracker implements modeladapter.UsageReporter.
func (a *Adapter) UsageTracker() *usage.Tracker { return &a.usage }

// ModelMaxTokens implements modeladapter.UsageReporter.
func (a *Adapter) ModelMaxTokens() int { return a.MaxTokens }

// Complete implements modeladapter.Completer.
func (a *Adapter) Complete(ctx context.Context, c *chat.Chat, tools []toolbox.Tool) (message.Message, error) {
	var opts []llms.CallOption
	if a.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(a.MaxTokens))
	}
	if a.Temperature != 0 {
		opts = append(opts, llms.WithTemperature(a.Temperature))
	}
	if len(tools) > 0 {
		opts = append(opts, llms.WithTools(toolDefs(tools)))
	}

	resp, err := a.model.GenerateContent(ctx, contents(c), opts...)
	if err != nil {
		return message.Message{}, fmt.Errorf("langchain: %w", classify(err))
	}

	if resp == nil || len(resp.Choices) == 0 {
		return message.Message{}, ErrEmptyReply
	}

	choice := resp.Choices[0]
	a.usage.Add(usage.TokenCount{
		InputTokens:  intInfo(choice.GenerationInfo, "PromptTokens"),
		OutputTokens: intInfo(choice.GenerationInfo, "CompletionTokens"),
	})

	reply := fromChoice(choice)
	if len(reply.Parts) == 0 {
		return message.Message{}, fmt.Errorf("%w (stop reason %q)", ErrEmptyReply, choice.StopReason)
	}

	return reply, nil
}

// classify turns langchaingo's rate limit errors into
// *modeladapter.RateLimitError so they are retried.
func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if mapped := lcopenai.MapError(err); llms.IsRateLimitError(mapped) {
		return &modeladapter.RateLimitError{Body: err.Error()}
	}
	return err
}

func toolDefs(tools []toolbox.Tool) []llms.Tool {
	out := make([]llms.Tool, 0, len(tools))
	for _, t := range tools {
		var params any = t.InputSchema
		if len(t.InputSchema) == 0 {
			params = map[string]any{"type": "object"}
		}
		out = append(out, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return out
}

// contents converts the transcript. Each tool result becomes its own tool
// message, langchaingo's OpenAI backend expects one response per message.
func contents(c *chat.Chat) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, c.Len())

	c.Each(func(_ int, m message.Message) bool {
		switch m.Role {
		case role.Tool:
			for _, r := range m.ToolResults() {
				out = append(out, llms.MessageContent{
					Role: llms.ChatMessageTypeTool,
					Parts: []llms.ContentPart{llms.ToolCallResponse{
						ToolCallID: r.ToolCallID,
						Name:       r.Name,
						Content:    r.Content,
					}},
				})
			}

		case role.Assistant:
			mc := llms.MessageContent{Role: llms.ChatMessageTypeAI}
			for _, p := range m.Parts {
				switch v := p.(type) {
				case content.Text:
					mc.Parts = append(mc.Parts, llms.TextPart(v.Text))
				case content.ToolCall:
					mc.Parts = append(mc.Parts, llms.ToolCall{
						ID:           v.ID,
						Type:         "function",
						FunctionCall: &llms.FunctionCall{Name: v.Name, Arguments: v.Arguments},
					})
				}
			}
			out = append(out, mc)

		case role.System:
			out = append(out, llms.TextParts(llms.ChatMessageTypeSystem, m.TextContent()))

		default:
			out = append(out, llms.TextParts(llms.ChatMessageTypeHuman, m.TextContent()))
		}
		return true
	})

	return out
}

func fromChoice(choice *llms.ContentChoice) message.Message {
	var parts []content.Part

	if choice.Content != "" {
		parts = append(parts, content.Text{Text: choice.Content})
	}

	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall == nil {
			continue
		}
		args := tc.FunctionCall.Arguments
		if args == "" {
			args = "{}"
		}
		parts = append(parts, content.ToolCall{ID: tc.ID, Name: tc.FunctionCall.Name, Arguments: args})
	}

	return message.New("", role.Assistant, parts...)
}

func intInfo(info map[string]any, key string) int {
	switch v := info[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
