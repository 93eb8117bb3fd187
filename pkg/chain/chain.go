// Package chain binds a prompt template to a model: render, invoke, return
// the model's text verbatim.
package chain

import (
	"context"
	"fmt"

	"github.com/germanamz/persona/pkg/chats/chat"
	"github.com/germanamz/persona/pkg/chats/message"
	"github.com/germanamz/persona/pkg/chats/role"
	"github.com/germanamz/persona/pkg/modeladapter"
	"github.com/germanamz/persona/pkg/prompt"
)

// Invoker turns a rendered prompt into model text.
type Invoker interface {
	Invoke(ctx context.Context, prompt string) (string, error)
}

// InvokerFunc adapts a function to Invoker.
type InvokerFunc func(ctx context.Context, prompt string) (string, error)

// Invoke calls f.
func (f InvokerFunc) Invoke(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// FromCompleter sends the prompt as a single user message with no tools and
// returns the text of the reply.
func FromCompleter(c modeladapter.Completer) Invoker {
	return InvokerFunc(func(ctx context.Context, p string) (string, error) {
		reply, err := c.Complete(ctx, chat.New(message.NewText("user", role.User, p)), nil)
		if err != nil {
			return "", err
		}
		return reply.TextContent(), nil
	})
}

// RenderError reports that a chain's template could not be rendered.
type RenderError struct {
	Chain string
	Err   error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("chain %s: render: %v", e.Chain, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// Chain is an immutable template/model binding. It is safe for concurrent
// use when its Invoker is.
type Chain struct {
	name string
	tmpl prompt.Template
	inv  Invoker
}

// New creates a Chain.
func New(name string, tmpl prompt.Template, inv Invoker) *Chain {
	return &Chain{name: name, tmpl: tmpl, inv: inv}
}

// Name returns the chain's name.
func (c *Chain) Name() string { return c.name }

// Template returns the chain's template.
func (c *Chain) Template() prompt.Template { return c.tmpl }

// Run renders the template with vars, invokes the model and returns its text
// unchanged. Render failures are *RenderError, model failures
// *modeladapter.InvocationError. Nothing is retried here.
func (c *Chain) Run(ctx context.Context, vars map[string]any) (string, error) {
	text, err := c.tmpl.Render(vars)
	if err != nil {
		return "", &RenderError{Chain: c.name, Err: err}
	}

	out, err := c.inv.Invoke(ctx, text)
	if err != nil {
		return "", fmt.Errorf("chain %s: %w", c.name, modeladapter.Invocation("", err))
	}

	return out, nil
}
