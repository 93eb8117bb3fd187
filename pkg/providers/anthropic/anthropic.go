// Package anthropic implements modeladapter.Completer over the Anthropic
// Messages API using plain HTTP.
package anthropic

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
const DefaultBaseURL = "https://api.anthropic.com"

const (
	messagesPath = "/v1/messages"
	apiVersion   = "2023-06-01"
)

// ErrEmptyReply is returned when the response has no text or tool_use block.
var ErrEmptyReply = errors.New("anthropic: empty reply")

var _ modeladapter.Completer = (*Adapter)(nil)

// Adapter talks to /v1/messages.
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
	a.Auth = modeladapter.Auth{Key: apiKey, Header: "x-api-key"}
	a.Name = model
	a.MaxTokens = 1024
	a.Headers = map[string]string{"anthropic-version": apiVersion}
	a.HeaderParser = modeladapter.ParseAnthropicRateLimitHeaders

	return a
}

// Complete sends the transcript and the tools offered for this call. The
// system message travels in the top-level system field.
func (a *Adapter) Complete(ctx context.Context, c *chat.Chat, tools []toolbox.Tool) (message.Message, error) {
	var resp messagesResponse
	if err := a.PostJSON(ctx, messagesPath, a.request(c, tools), &resp); err != nil {
		return message.Message{}, fmt.Errorf("anthropic: %w", err)
	}

	a.Usage.Add(usage.TokenCount{
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	})

	reply := fromBlocks(resp.Content)
	if len(reply.Parts) == 0 {
		return message.Message{}, fmt.Errorf("%w (stop_reason %q)", ErrEmptyReply, resp.StopReason)
	}

	return reply, nil
}

type messagesRequest struct {
	Model       string      `json:"model"`
	MaxTokens   int         `json:"max_tokens"`
	System      string      `json:"system,omitempty"`
	Messages    []turn      `json:"messages"`
	Temperature *float64    `json:"temperature,omitempty"`
	Tools       []toolParam `json:"tools,omitempty"`
}

// turn is one entry of the messages array. Consecutive parts with the same
// wire role are merged, the API requires alternating roles.
type turn struct {
	Role    string  `json:"role"`
	Content []block `json:"content"`
}

type block struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

type toolParam struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type messagesResponse struct {
	Content    []block `json:"content"`
	StopReason string  `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (a *Adapter) request(c *chat.Chat, tools []toolbox.Tool) messagesRequest {
	req := messagesRequest{
		Model:     a.Name,
		MaxTokens: a.MaxTokens,
		System:    c.SystemPrompt(),
	}

	if a.Temperature != 0 {
		t := a.Temperature
		req.Temperature = &t
	}

	for _, t := range tools {
		schema := t.InputSchema
		if len(schema) == 0 {
			schema = json.RawMessage(`{"type":"object"}`)
		}
		req.Tools = append(req.Tools, toolParam{Name: t.Name, Description: t.Description, InputSchema: schema})
	}

	c.Each(func(_ int, m message.Message) bool {
		if m.Role == role.System {
			return true
		}

		wireRole := "user"
		if m.Role == role.Assistant {
			wireRole = "assistant"
		}

		for _, p := range m.Parts {
			b, ok := toBlock(p)
			if !ok {
				continue
			}

			if n := len(req.Messages); n > 0 && req.Messages[n-1].Role == wireRole {
				req.Messages[n-1].Content = append(req.Messages[n-1].Content, b)
				continue
			}
			req.Messages = append(req.Messages, turn{Role: wireRole, Content: []block{b}})
		}

		return true
	})

	return req
}

func toBlock(p content.Part) (block, bool) {
	switch v := p.(type) {
	case content.Text:
		if v.Text == "" {
			return block{}, false
		}
		return block{Type: "text", Text: v.Text}, true
	case content.ToolCall:
		input := json.RawMessage(v.Arguments)
		if len(input) == 0 {
			input = json.RawMessage(`{}`)
		}
		return block{Type: "tool_use", ID: v.ID, Name: v.Name, Input: input}, true
	case content.ToolResult:
		return block{Type: "tool_result", ToolUseID: v.ToolCallID, Content: v.Content, IsError: v.IsError}, true
	}
	return block{}, false
}

func fromBlocks(blocks []block) message.Message {
	var parts []content.Part

	for _, b := range blocks {
		switch b.Type {
		case "text":
			if b.Text != "" {
				parts = append(parts, content.Text{Text: b.Text})
			}
		case "tool_use":
			args := string(b.Input)
			if args == "" || args == "null" {
				args = "{}"
			}
			parts = append(parts, content.ToolCall{ID: b.ID, Name: b.Name, Arguments: args})
		}
	}

	return message.New("", role.Assistant, parts...)
}
