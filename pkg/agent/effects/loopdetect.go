package effects

import (
	"context"
	"fmt"

	"github.com/germanamz/persona/pkg/agent"
	"github.com/germanamz/persona/pkg/chats/message"
	"github.com/germanamz/persona/pkg/chats/role"
)

const (
	defaultLoopThreshold  = 2
	defaultLoopWindowSize = 6
)

// LoopDetectConfig holds parameters for the LoopDetectEffect.
type LoopDetectConfig struct {
	Threshold  int // Consecutive identical calls before intervention (default: 2).
	WindowSize int // Recent tool calls to inspect (default: 6).
}

// LoopDetectEffect notices the model issuing the same tool call with the
// same arguments over and over and tells it to move on. It runs at
// PhaseBeforeComplete from the second turn on.
type LoopDetectEffect struct {
	cfg LoopDetectConfig
}

// NewLoopDetectEffect creates a LoopDetectEffect, applying defaults for zero
// or negative values.
func NewLoopDetectEffect(cfg LoopDetectConfig) *LoopDetectEffect {
	if cfg.Threshold <= 0 {
		cfg.Threshold = defaultLoopThreshold
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = defaultLoopWindowSize
	}

	return &LoopDetectEffect{cfg: cfg}
}

// Eval implements agent.Effect.
func (e *LoopDetectEffect) Eval(_ context.Context, ic agent.IterationContext) error {
	if ic.Phase != agent.PhaseBeforeComplete || ic.Iteration == 0 {
		return nil
	}

	name, count := e.repeats(ic)
	if count >= e.cfg.Threshold {
		ic.Chat.Append(message.NewText("", role.User, fmt.Sprintf(
			"You already called %s with the same arguments %d times and the result will not change. Use the result you have, call the next tool or give the final JSON answer.",
			name, count,
		)))
	}

	return nil
}

type callKey struct {
	name string
	args string
}

// repeats counts how many of the most recent tool calls, newest first, are
// identical to the newest one.
func (e *LoopDetectEffect) repeats(ic agent.IterationContext) (string, int) {
	msgs := ic.Chat.Messages()

	var keys []callKey
	for i := len(msgs) - 1; i >= 0 && len(keys) < e.cfg.WindowSize; i-- {
		if msgs[i].Role != role.Assistant {
			continue
		}

		calls := msgs[i].ToolCalls()
		for j := len(calls) - 1; j >= 0; j-- {
			keys = append(keys, callKey{name: calls[j].Name, args: calls[j].Arguments})
		}
	}

	if len(keys) == 0 {
		return "", 0
	}

	count := 0
	for _, k := range keys {
		if k != keys[0] {
			break
		}
		count++
	}

	return keys[0].name, count
}
