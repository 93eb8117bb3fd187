package agent

import (
	"context"

	"github.com/germanamz/persona/pkg/chats/chat"
	"github.com/germanamz/persona/pkg/modeladapter"
)

// IterationPhase indicates when an effect runs within a turn.
type IterationPhase int

const (
	// PhaseBeforeComplete runs before the model is asked to decide.
	PhaseBeforeComplete IterationPhase = iota
	// PhaseAfterComplete runs after the reply is appended, before dispatch.
	PhaseAfterComplete
)

// IterationContext is the per-turn state handed to effects.
type IterationContext struct {
	Phase     IterationPhase
	Iteration int
	MaxTurns  int
	Chat      *chat.Chat
	Completer modeladapter.Completer
	AgentName string
}

// Remaining returns the decisions left after the current one.
func (ic IterationContext) Remaining() int {
	return ic.MaxTurns - ic.Iteration - 1
}

// Effect is a per-turn hook. Effects run synchronously in registration
// order; returning an error aborts the run.
type Effect interface {
	Eval(ctx context.Context, ic IterationContext) error
}

// EffectFunc adapts a function to Effect.
type EffectFunc func(ctx context.Context, ic IterationContext) error

// Eval calls f(ctx, ic).
func (f EffectFunc) Eval(ctx context.Context, ic IterationContext) error { return f(ctx, ic) }
