// Package openai implements modeladapter.Completer over the OpenAI Chat
// Completions API using plain HTTP.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/germanamz/persona/pkg/chats/chat"
	"github.com/germanamz/persona/pkg/chats/content"
	"github.com/germanamz/persona/pkg/chats/message"
	"github.com/germanamz/persona/pkg/chats/role"
	"github.com/germanamz/persona/pkg/modeladapter"
	"github.com/germanamz/persona/pkg/modeladapter/usage"
	"github.com/germanamz/persona/pkg/tools/toolbox"
)

// DefaultBaseURL is used when New is given an empty base URL.
const DefaultBaseURL = "https://api.openai.com"

const completionsPath = "/v1/chat/completions"

// ErrEmptyReply is returned when the API answers without a choice or with a
// choice that carries neither text nor tool calls.
var ErrEmptyReply = errors.New("openai: empty reply")

var _ modeladapter.Completer = (*Adapter)(nil)

// Adapter talks to /v1/chat/completions. Any OpenAI-compatible endpoint
// works by changing BaseURL.
type Adapter struct {
	modeladapter.ModelAdapter
}

// New creates an Adapter. An empty baseURL selects DefaultBaseURL.
func New(baseURL, apiKey, model string) *Adapter {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	a := &Adapter{}
	a.BaseURL = strings.TrimRight(baseURL, "/")
	a.Auth = modeladapter.Auth{Key: apiKey}
	a.Name = model
	a.MaxTokens = 1024
	a.HeaderParser = modeladapter.ParseOpenAIRateLimitHeaders

	return a
}

// Complete sends the transcript and the tools offered for this call.
func (a *Adapter) Complete(ctx context.Context, c *chat.Chat, tools []toolbox.Tool) (message.Message, error) {
	var resp completionResponse
	if err := a.PostJSON(ctx, completionsPath, a.request(c, tools), &resp); err != nil {
		return message.Message{}, fmt.Errorf("openai: %w", err)
	}

	a.Usage.Add(usage.TokenCount{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	})

	if len(resp.Choices) == 0 {
		return message.Message{}, ErrEmptyReply
	}

	reply := fromWire(resp.Choices[0].Message)
	if len(reply.Parts) == 0 {
		return message.Message{}, fmt.Errorf("%w (finish_reason %q)", ErrEmptyReply, resp.Choices[0].FinishReason)
	}

	return reply, nil
}

type completionRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	Tools       []wireTool    `json:"tools,omitempty"`
}

type wireMessage struct {
	Role       string     `json:"role"`
	Content    *string    `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []wireCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

type wireCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type wireFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type wireTool struct {
	Type     string      `json:"type"`
	Function wireToolDef `json:"function"`
}

type wireToolDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

type completionResponse struct {
	Choices []struct {
		Message      wireMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (a *Adapter) request(c *chat.Chat, tools []toolbox.Tool) completionRequest {
	req := completionRequest{Model: a.Name, MaxTokens: a.MaxTokens}

	if a.Temperature != 0 {
		t := a.Temperature
		req.Temperature = &t
	}

	for _, t := range tools {
		schema := t.InputSchema
		if len(schema) == 0 {
			schema = json.RawMessage(`{"type":"object"}`)
		}
		req.Tools = append(req.Tools, wireTool{
			Type:     "function",
			Function: wireToolDef{Name: t.Name, Description: t.Description, Parameters: schema},
		})
	}

	c.Each(func(_ int, m message.Message) bool {
		req.Messages = append(req.Messages, toWire(m)...)
		return true
	})

	return req
}

// toWire converts one message. A tool message becomes one wire message per
// result.
func toWire(m message.Message) []wireMessage {
	switch m.Role {
	case role.Assistant:
		var texts []string
		out := wireMessage{Role: "assistant"}

		for _, p := range m.Parts {
			switch v := p.(type) {
			case content.Text:
				texts = append(texts, v.Text)
			case content.ToolCall:
				out.ToolCalls = append(out.ToolCalls, wireCall{
					ID:       v.ID,
					Type:     "function",
					Function: wireFunction{Name: v.Name, Arguments: v.Arguments},
				})
			}
		}

		if len(texts) > 0 {
			joined := strings.Join(texts, "")
			out.Content = &joined
		}

		return []wireMessage{out}

	case role.Tool:
		results := m.ToolResults()
		out := make([]wireMessage, 0, len(results))
		for _, r := range results {
			text := r.Content
			out = append(out, wireMessage{Role: "tool", Content: &text, ToolCallID: r.ToolCallID})
		}
		return out

	default:
		text := m.TextContent()
		return []wireMessage{{Role: m.Role.String(), Content: &text}}
	}
}

func fromWire(m wireMessage) message.Message {
	var parts []content.Part

	if m.Content != nil && *m.Content != "" {
		parts = append(parts, content.Text{Text: *m.Content})
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
