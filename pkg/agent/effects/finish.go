package effects

import (
	"context"

	"github.com/germanamz/persona/pkg/agent"
	"github.com/germanamz/persona/pkg/chats/message"
	"github.com/germanamz/persona/pkg/chats/role"
)

// FinishReminderEffect tells the model it is about to run out of turns and
// should answer now. It fires once, at PhaseBeforeComplete of the turn where
// Remaining drops to Threshold.
type FinishReminderEffect struct {
	threshold int
	text      string
}

// NewFinishReminderEffect creates the effect. A threshold below one defaults
// to one; empty text uses a generic reminder.
func NewFinishReminderEffect(threshold int, text string) *FinishReminderEffect {
	if threshold <= 0 {
		threshold = 1
	}
	if text == "" {
		text = "You are almost out of turns. Stop calling tools and give your final answer now."
	}

	return &FinishReminderEffect{threshold: threshold, text: text}
}

// Eval implements agent.Effect.
func (e *FinishReminderEffect) Eval(_ context.Context, ic agent.IterationContext) error {
	if ic.Phase != agent.PhaseBeforeComplete || ic.Iteration == 0 {
		return nil
	}

	if ic.Remaining() == e.threshold {
		ic.Chat.Append(message.NewText("", role.User, e.text))
	}

	return nil
}
