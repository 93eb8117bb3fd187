package engine

import (
	"context"
	"strings"
	"sync"

	"github.com/germanamz/persona/pkg/chats/chat"
	"github.com/germanamz/persona/pkg/chats/content"
	"github.com/germanamz/persona/pkg/chats/message"
	"github.com/germanamz/persona/pkg/chats/role"
	"github.com/germanamz/persona/pkg/tools/toolbox"
)

// fakeModel answers chain prompts (no tools offered) with canned text and
// agent decisions (tools offered) with decide.
type fakeModel struct {
	judge    string
	response string
	excuse   string
	decide   func(turn int, c *chat.Chat) (message.Message, error)

	mu        sync.Mutex
	turn      int
	prompts   []string
	lastChat  []message.Message
	toolNames []string
}

func (f *fakeModel) Complete(ctx context.Context, c *chat.Chat, tools []toolbox.Tool) (message.Message, error) {
	if err := ctx.Err(); err != nil {
		return message.Message{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if tools == nil {
		p := c.At(0).TextContent()
		f.prompts = append(f.prompts, p)

		switch {
		case strings.HasPrefix(p, "Judge"):
			return reply(f.judge), nil
		case strings.Contains(p, "Make up a convenient"):
			return reply(f.excuse), nil
		default:
			return reply(f.response), nil
		}
	}

	f.lastChat = c.Messages()
	f.toolNames = f.toolNames[:0]
	for _, t := range tools {
		f.toolNames = append(f.toolNames, t.Name)
	}

	turn := f.turn
	f.turn++

	return f.decide(turn, c)
}

func (f *fakeModel) decisions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.turn
}

func reply(text string) message.Message {
	return message.NewText("", role.Assistant, text)
}

func calls(tcs ...content.ToolCall) message.Message {
	parts := make([]content.Part, len(tcs))
	for i, tc := range tcs {
		parts[i] = tc
	}
	return message.New("", role.Assistant, parts...)
}

func call(id, name, args string) content.ToolCall {
	return content.ToolCall{ID: id, Name: name, Arguments: args}
}

// script replays replies in order and repeats the last one.
func script(replies ...message.Message) func(int, *chat.Chat) (message.Message, error) {
	return func(turn int, _ *chat.Chat) (message.Message, error) {
		if turn >= len(replies) {
			turn = len(replies) - 1
		}
		return replies[turn], nil
	}
}

// drain returns the events published so far.
func drain(sub *Subscription) []Event {
	var out []Event
	for {
		select {
		case e := <-sub.C:
			out = append(out, e)
		default:
			return out
		}
	}
}

func kinds(events []Event) []EventKind {
	out := make([]EventKind, len(events))
	for i, e := range events {
		out[i] = e.Kind
	}
	return out
}

// blockingModel never answers before its context ends.
type blockingModel struct{}

func (blockingModel) Complete(ctx context.Context, _ *chat.Chat, _ []toolbox.Tool) (message.Message, error) {
	<-ctx.Done()
	return message.Message{}, ctx.Err()
}
