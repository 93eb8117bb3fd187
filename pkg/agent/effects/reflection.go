package effects

import (
	"context"
	"fmt"

	"github.com/germanamz/persona/pkg/agent"
	"github.com/germanamz/persona/pkg/chats/message"
	"github.com/germanamz/persona/pkg/chats/role"
)

const defaultFailureThreshold = 2

// ReflectionConfig holds parameters for the ReflectionEffect.
type ReflectionConfig struct {
	FailureThreshold int // Consecutive failed tool turns before reflection (default: 2).
}

// ReflectionEffect asks the model to reread the tool signatures after
// consecutive failed tool turns, typically invalid arguments. It runs at
// PhaseBeforeComplete from the second turn on.
type ReflectionEffect struct {
	cfg ReflectionConfig
}

// NewReflectionEffect creates a ReflectionEffect, applying defaults for zero
// or negative values.
func NewReflectionEffect(cfg ReflectionConfig) *ReflectionEffect {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = defaultFailureThreshold
	}

	return &ReflectionEffect{cfg: cfg}
}

// Eval implements agent.Effect.
func (e *ReflectionEffect) Eval(_ context.Context, ic agent.IterationContext) error {
	if ic.Phase != agent.PhaseBeforeComplete || ic.Iteration == 0 {
		return nil
	}

	count := consecutiveFailures(ic)
	if count >= e.cfg.FailureThreshold {
		ic.Chat.Append(message.NewText("", role.User, fmt.Sprintf(
			"Your last %d tool calls failed. Read the error messages, check each tool's required parameters and call it again with corrected arguments.",
			count,
		)))
	}

	return nil
}

// consecutiveFailures counts tool messages from the end of the chat whose
// results are all errors. Assistant messages in between are skipped; any
// other message ends the streak.
func consecutiveFailures(ic agent.IterationContext) int {
	msgs := ic.Chat.Messages()
	count := 0

	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == role.Assistant {
			continue
		}
		if msgs[i].Role != role.Tool {
			break
		}

		results := msgs[i].ToolResults()
		failed := len(results) > 0
		for _, tr := range results {
			if !tr.IsError {
				failed = false
				break
			}
		}

		if !failed {
			break
		}

		count++
	}

	return count
}
