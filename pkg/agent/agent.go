// Package agent runs the decision loop: ask the model which tool to call
// next, dispatch it, feed the result back, and stop when the model answers
// without tool calls.
package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/germanamz/persona/pkg/agentctx"
	"github.com/germanamz/persona/pkg/chats/chat"
	"github.com/germanamz/persona/pkg/chats/content"
	"github.com/germanamz/persona/pkg/chats/message"
	"github.com/germanamz/persona/pkg/chats/role"
	"github.com/germanamz/persona/pkg/modeladapter"
	"github.com/germanamz/persona/pkg/tools/toolbox"
)

// DefaultMaxTurns bounds the loop when Options.MaxTurns is zero.
const DefaultMaxTurns = 10

// ErrTurnBudget is wrapped by the *TimeoutError returned when the model has
// not produced an accepted final answer within MaxTurns.
var ErrTurnBudget = errors.New("turn budget exhausted")

// Options configures an Agent.
type Options struct {
	MaxTurns   int          // Model decisions allowed per run (0 = DefaultMaxTurns).
	Policy     Policy       // Optional ordering rules checked before dispatch and before finishing.
	Effects    []Effect     // Per-turn hooks, run in order.
	Middleware []Middleware // Applied around Run, first is outermost.
	OnStep     func(Step)   // Optional observer, called synchronously.
}

// Agent owns the transcript of one run. It is not safe for concurrent use;
// create one per run.
type Agent struct {
	name         string
	instructions string
	completer    modeladapter.Completer
	chat         *chat.Chat
	toolboxes    []*toolbox.ToolBox
	options      Options
}

// New creates an Agent. instructions becomes the system message.
func New(name, instructions string, completer modeladapter.Completer, opts Options) *Agent {
	if opts.MaxTurns <= 0 {
		opts.MaxTurns = DefaultMaxTurns
	}

	return &Agent{
		name:         name,
		instructions: instructions,
		completer:    completer,
		chat:         chat.New(),
		options:      opts,
	}
}

// Name returns the agent's name.
func (a *Agent) Name() string { return a.name }

// Chat returns the agent's transcript.
func (a *Agent) Chat() *chat.Chat { return a.chat }

// MaxTurns returns the effective turn budget.
func (a *Agent) MaxTurns() int { return a.options.MaxTurns }

// AddToolBoxes makes the tools of tbs available to the model.
func (a *Agent) AddToolBoxes(tbs ...*toolbox.ToolBox) {
	a.toolboxes = append(a.toolboxes, tbs...)
}

// Init puts the system message first unless the transcript already has
// one. Messages added before Init stay after it.
func (a *Agent) Init() {
	if a.chat.SystemPrompt() == "" && a.instructions != "" {
		a.chat.Prepend(message.NewText(a.name, role.System, a.instructions))
	}
}

// Run executes the loop with middleware applied.
func (a *Agent) Run(ctx context.Context) (message.Message, error) {
	var runner Runner = RunnerFunc(a.run)

	for i := len(a.options.Middleware) - 1; i >= 0; i-- {
		runner = a.options.Middleware[i](runner)
	}

	return runner.Run(ctx)
}

func (a *Agent) run(ctx context.Context) (message.Message, error) {
	ctx = agentctx.WithAgentName(ctx, a.name)

	a.Init()

	var tools []toolbox.Tool
	for _, tb := range a.toolboxes {
		tools = append(tools, tb.Tools()...)
	}

	for turn := range a.options.MaxTurns {
		if err := ctx.Err(); err != nil {
			return message.Message{}, err
		}

		if err := a.evalEffects(ctx, PhaseBeforeComplete, turn); err != nil {
			return message.Message{}, err
		}

		reply, err := a.completer.Complete(ctx, a.chat, tools)
		if err != nil {
			return message.Message{}, fmt.Errorf("agent %s: decide: %w", a.name, modeladapter.Invocation("", err))
		}

		reply.Sender = a.name
		reply.SetMeta("turn", turn)
		a.chat.Append(reply)

		if err := a.evalEffects(ctx, PhaseAfterComplete, turn); err != nil {
			return message.Message{}, err
		}

		calls := reply.ToolCalls()
		if len(calls) == 0 {
			if reason := a.checkFinish(reply); reason != nil {
				a.chat.Append(message.NewText("", role.User, reason.Error()))
				a.emit(Step{Kind: StepRejected, Turn: turn, Message: reply, Reason: reason.Error()})
				continue
			}

			a.emit(Step{Kind: StepFinal, Turn: turn, Message: reply})
			return reply, nil
		}

		a.emit(Step{Kind: StepDecision, Turn: turn, Message: reply})

		for _, tc := range calls {
			a.emit(Step{Kind: StepToolCall, Turn: turn, Call: tc})

			result := a.dispatch(ctx, tc)
			a.chat.Append(message.New(a.name, role.Tool, result))

			a.emit(Step{Kind: StepToolResult, Turn: turn, Call: tc, Result: result})
		}
	}

	return message.Message{}, &TimeoutError{Agent: a.name, Turns: a.options.MaxTurns, Err: ErrTurnBudget}
}

// dispatch runs one tool call. Policy rejections and tool failures both come
// back as error results so the model can react to them.
func (a *Agent) dispatch(ctx context.Context, tc content.ToolCall) content.ToolResult {
	if a.options.Policy != nil {
		if err := a.options.Policy.AllowCall(a.chat, tc); err != nil {
			return content.ToolResult{
				ToolCallID: tc.ID,
				Name:       tc.Name,
				Content:    err.Error(),
				IsError:    true,
			}
		}
	}

	for _, tb := range a.toolboxes {
		if _, ok := tb.Get(tc.Name); ok {
			return tb.Call(ctx, tc)
		}
	}

	err := &toolbox.ToolExecutionError{Tool: tc.Name, Err: toolbox.ErrUnknownTool}

	return content.ToolResult{
		ToolCallID: tc.ID,
		Name:       tc.Name,
		Content:    err.Error(),
		IsError:    true,
	}
}

func (a *Agent) checkFinish(reply message.Message) error {
	if a.options.Policy == nil {
		return nil
	}
	return a.options.Policy.AllowFinish(a.chat, reply)
}

func (a *Agent) evalEffects(ctx context.Context, phase IterationPhase, turn int) error {
	if len(a.options.Effects) == 0 {
		return nil
	}

	ic := IterationContext{
		Phase:     phase,
		Iteration: turn,
		MaxTurns:  a.options.MaxTurns,
		Chat:      a.chat,
		Completer: a.completer,
		AgentName: a.name,
	}

	for _, e := range a.options.Effects {
		if err := e.Eval(ctx, ic); err != nil {
			return fmt.Errorf("agent %s: effect: %w", a.name, err)
		}
	}

	return nil
}

func (a *Agent) emit(s Step) {
	if a.options.OnStep != nil {
		s.Agent = a.name
		a.options.OnStep(s)
	}
}
