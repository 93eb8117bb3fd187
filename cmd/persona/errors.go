package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/germanamz/persona/pkg/agent"
	"github.com/germanamz/persona/pkg/chain"
	"github.com/germanamz/persona/pkg/engine"
	"github.com/germanamz/persona/pkg/modeladapter"
	"github.com/germanamz/persona/pkg/prompt"
	"github.com/germanamz/persona/pkg/tools/toolbox"
)

// describeError renders err as "error: <kind>: <detail>" for the terminal.
func describeError(err error) string {
	var (
		timeout *agent.TimeoutError
		rate    *modeladapter.RateLimitError
		invoke  *modeladapter.InvocationError
		args    *toolbox.InvalidArgumentsError
		tool    *toolbox.ToolExecutionError
		render  *chain.RenderError
		missing *prompt.MissingVariableError
	)

	switch {
	case errors.Is(err, context.Canceled):
		return "error: cancelled: interrupted before an answer was produced"
	case errors.Is(err, engine.ErrInvalidInput):
		return fmt.Sprintf("error: invalid input: %v", err)
	case errors.As(err, &timeout):
		return fmt.Sprintf("error: timeout: %v", timeout)
	case errors.As(err, &args):
		return fmt.Sprintf("error: invalid arguments: %s: %v", args.Tool, args.Err)
	case errors.As(err, &tool):
		return fmt.Sprintf("error: tool failed: %s: %v", tool.Tool, tool.Err)
	case errors.As(err, &rate):
		if rate.RetryAfter > 0 {
			return fmt.Sprintf("error: rate limited: retry after %s: %s", rate.RetryAfter, rate.Body)
		}
		return fmt.Sprintf("error: rate limited: %s", rate.Body)
	case errors.As(err, &invoke):
		return fmt.Sprintf("error: model invocation: %v", invoke.Err)
	case errors.As(err, &render):
		return fmt.Sprintf("error: render: chain %s: %v", render.Chain, render.Err)
	case errors.As(err, &missing):
		return fmt.Sprintf("error: missing variable: %s", missing.Name)
	case errors.Is(err, engine.ErrMalformedAnswer):
		return fmt.Sprintf("error: malformed answer: %v", err)
	default:
		return fmt.Sprintf("error: %v", err)
	}
}
