// Package chat provides the transcript container of one agent run.
package chat

import (
	"github.com/germanamz/persona/pkg/chats/content"
	"github.com/germanamz/persona/pkg/chats/message"
	"github.com/germanamz/persona/pkg/chats/role"
)

// Chat is an ordered list of messages. The zero value is ready to use.
// Chat is not safe for concurrent use; each run owns its own Chat.
type Chat struct {
	messages []message.Message
}

// New creates a Chat pre-populated with the given messages.
func New(msgs ...message.Message) *Chat {
	return &Chat{messages: msgs}
}

// Append adds one or more messages to the end of the transcript.
func (c *Chat) Append(msgs ...message.Message) {
	c.messages = append(c.messages, msgs...)
}

// Prepend inserts messages at the start of the transcript, keeping their
// order.
func (c *Chat) Prepend(msgs ...message.Message) {
	c.messages = append(append(make([]message.Message, 0, len(msgs)+len(c.messages)), msgs...), c.messages...)
}

// Len returns the number of messages.
func (c *Chat) Len() int {
	return len(c.messages)
}

// At returns the message at the given index.
// It panics if the index is out of range.
func (c *Chat) At(index int) message.Message {
	return c.messages[index]
}

// Last returns the most recent message and true, or a zero Message and false
// if the transcript is empty.
func (c *Chat) Last() (message.Message, bool) {
	if len(c.messages) == 0 {
		return message.Message{}, false
	}
	return c.messages[len(c.messages)-1], true
}

// Messages returns a copy of all messages.
func (c *Chat) Messages() []message.Message {
	cp := make([]message.Message, len(c.messages))
	copy(cp, c.messages)
	return cp
}

// Each iterates over messages in order. Iteration stops when fn returns false.
func (c *Chat) Each(fn func(int, message.Message) bool) {
	for i, m := range c.messages {
		if !fn(i, m) {
			return
		}
	}
}

// SystemPrompt returns the text of the first system message, or "" if there
// is none.
func (c *Chat) SystemPrompt() string {
	for _, m := range c.messages {
		if m.Role == role.System {
			return m.TextContent()
		}
	}
	return ""
}

// ToolResults returns every result recorded for the named tool, oldest
// first. Error results are included; callers check IsError.
func (c *Chat) ToolResults(name string) []content.ToolResult {
	var out []content.ToolResult
	for _, m := range c.messages {
		if m.Role != role.Tool {
			continue
		}
		for _, tr := range m.ToolResults() {
			if tr.Name == name {
				out = append(out, tr)
			}
		}
	}
	return out
}

// LastSuccess returns the most recent non-error result of the named tool.
func (c *Chat) LastSuccess(name string) (content.ToolResult, bool) {
	results := c.ToolResults(name)
	for i := len(results) - 1; i >= 0; i-- {
		if !results[i].IsError {
			return results[i], true
		}
	}
	return content.ToolResult{}, false
}
