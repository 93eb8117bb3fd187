// Package goopenai implements modeladapter.Completer with the
// github.com/sashabaranov/go-openai client, for OpenAI and compatible
// endpoints.
package goopenai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/germanamz/persona/pkg/chats/chat"
	"github.com/germanamz/persona/pkg/chats/content"
	"github.com/germanamz/persona/pkg/chats/message"
	"github.com/germanamz/persona/pkg/chats/role"
	"github.com/germanamz/persona/pkg/modeladapter"
	"github.com/germanamz/persona/pkg/modeladapter/usage"
	"github.com/germanamz/persona/pkg/tools/toolbox"
	openai "github.com/sashabaranov/go-openai"
)

// ErrEmptyReply is returned when the response carries no usable choice.
var ErrEmptyReply = errors.New("goopenai: empty reply")

var (
	_ modeladapter.Completer             = (*Adapter)(nil)
	_ modeladapter.UsageReporter         = (*Adapter)(nil)
	_ modeladapter.RateLimitInfoReporter = (*Adapter)(nil)
)

// Adapter wraps an *openai.Client.
type Adapter struct {
	Model       string
	Temperature float32
	MaxTokens   int

	client    *openai.Client
	usage     usage.Tracker
	rateLimit atomic.Pointer[modeladapter.RateLimitInfo]
}

// New creates an Adapter. baseURL must include the version segment
// (".../v1"); empty keeps the client default. A nil httpClient keeps the
// client default as well.
func New(baseURL, apiKey, model string, httpClient *http.Client) *Adapter {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}

	return &Adapter{
		Model:     model,
		MaxTokens: 1024,
		client:    openai.NewClientWithConfig(cfg),
	}
}

// UsageTracker implements modeladapter.UsageReporter.
func (a *Adapter) UsageTracker() *usage.Tracker { return &a.usage }

// ModelMaxTokens implements modeladapter.UsageReporter.
func (a *Adapter) ModelMaxTokens() int { return a.MaxTokens }

// LastRateLimitInfo implements modeladapter.RateLimitInfoReporter.
func (a *Adapter) LastRateLimitInfo() *modeladapter.RateLimitInfo { return a.rateLimit.Load() }

// Complete implements modeladapter.Completer.
func (a *Adapter) Complete(ctx context.Context, c *chat.Chat, tools []toolbox.Tool) (message.Message, error) {
	req := openai.ChatCompletionRequest{
		Model:       a.Model,
		MaxTokens:   a.MaxTokens,
		Temperature: a.Temperature,
		Messages:    messages(c),
		Tools:       toolDefs(tools),
	}

	resp, err := a.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return message.Message{}, fmt.Errorf("goopenai: %w", classify(err))
	}

	if info := modeladapter.ParseOpenAIRateLimitHeaders(resp.Header(), time.Now()); info != nil {
		a.rateLimit.Store(info)
	}

	a.usage.Add(usage.TokenCount{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	})

	if len(resp.Choices) == 0 {
		return message.Message{}, ErrEmptyReply
	}

	choice := resp.Choices[0]
	reply := fromOpenAI(choice.Message)
	if len(reply.Parts) == 0 {
		return message.Message{}, fmt.Errorf("%w (finish_reason %q)", ErrEmptyReply, choice.FinishReason)
	}

	return reply, nil
}

// classify maps HTTP 429 to *modeladapter.RateLimitError so the rate
// limiter retries it, and other statuses to *modeladapter.StatusError.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		return statusErr(apiErr.HTTPStatusCode, apiErr.Message, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		return statusErr(reqErr.HTTPStatusCode, string(reqErr.Body), err)
	}

	return err
}

func statusErr(code int, body string, cause error) error {
	if code == http.StatusTooManyRequests {
		return &modeladapter.RateLimitError{Body: body}
	}
	if code >= 200 && code < 300 {
		return cause
	}
	return &modeladapter.StatusError{Code: code, Body: body}
}

func toolDefs(tools []toolbox.Tool) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}

	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		var params any = t.InputSchema
		if len(t.InputSchema) == 0 {
			params = map[string]any{"type": "object"}
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}

	return out
}

func messages(c *chat.Chat) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, c.Len())

	c.Each(func(_ int, m message.Message) bool {
		switch m.Role {
		case role.Tool:
			for _, r := range m.ToolResults() {
				out = append(out, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    r.Content,
					ToolCallID: r.ToolCallID,
				})
			}

		case role.Assistant:
			msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.TextContent()}
			for _, tc := range m.ToolCalls() {
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:       tc.ID,
					Type:     openai.ToolTypeFunction,
					Function: openai.FunctionCall{Name: tc.Name, Arguments: tc.Arguments},
				})
			}
			out = append(out, msg)

		case role.System:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: m.TextContent()})

		default:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m.TextContent()})
		}
		return true
	})

	return out
}

func fromOpenAI(m openai.ChatCompletionMessage) message.Message {
	var parts []content.Part

	if m.Content != "" {
		parts = append(parts, content.Text{Text: m.Content})
	}

	for _, tc := range m.ToolCalls {
		args := tc.Function.Arguments
		if args == "" {
			args = "{}"
		}
		parts = append(parts, content.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args})
	}

	return message.New("", role.Assistant, parts...)
}
