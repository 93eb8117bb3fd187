package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/germanamz/persona/pkg/agent"
	"github.com/germanamz/persona/pkg/agentctx"
	"github.com/germanamz/persona/pkg/chain"
	"github.com/germanamz/persona/pkg/chats/chat"
	"github.com/germanamz/persona/pkg/chats/message"
	"github.com/germanamz/persona/pkg/chats/role"
	"github.com/germanamz/persona/pkg/modeladapter"
	"github.com/germanamz/persona/pkg/persona"
	"github.com/germanamz/persona/pkg/prompt"
	"github.com/germanamz/persona/pkg/tools/toolbox"
	"github.com/google/uuid"
)

// AgentName is the sender name of the persona agent.
const AgentName = "persona"

var (
	// ErrInvalidInput is returned by Execute for a blank figure or question.
	ErrInvalidInput = errors.New("engine: invalid input")
	// ErrMalformedAnswer is returned when the final answer has no answer
	// object and no excuse was produced during the run.
	ErrMalformedAnswer = errors.New("engine: malformed answer")
)

// ExecutorOptions configures an Executor. Zero values select defaults.
type ExecutorOptions struct {
	Prompts            persona.Prompts
	MaxTurns           int           // 0 = agent.DefaultMaxTurns.
	Timeout            time.Duration // 0 = no wall-clock bound.
	EnforceOrder       bool
	Kickoff            string // User message that starts a run (default "run").
	FormatInstructions bool   // Append the answer schema to the system prompt.
	Effects            []agent.Effect
	Events             *EventBus    // Optional.
	Logger             *slog.Logger // nil = slog.Default().
}

// Executor runs one persona agent per Execute call. Chains, tools and the
// system template are built once in NewExecutor; an Executor is safe for
// concurrent use when its completer is.
type Executor struct {
	completer modeladapter.Completer
	chains    persona.Chains
	tools     *toolbox.ToolBox
	system    prompt.Template
	opts      ExecutorOptions
	log       *slog.Logger
}

// NewExecutor builds the three chains over c, exposes them as tools and
// prepares the system template.
func NewExecutor(c modeladapter.Completer, opts ExecutorOptions) (*Executor, error) {
	if opts.Kickoff == "" {
		opts.Kickoff = persona.DefaultKickoff
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	chains, err := persona.NewChains(chain.FromCompleter(c), opts.Prompts)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	tools, err := persona.NewToolBox(chains)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	system, err := persona.SystemTemplate(opts.Prompts)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	return &Executor{
		completer: c,
		chains:    chains,
		tools:     tools,
		system:    system,
		opts:      opts,
		log:       log,
	}, nil
}

// ToolBox returns the run_judge_chain, run_response_chain and
// run_excuse_chain tools.
func (e *Executor) ToolBox() *toolbox.ToolBox { return e.tools }

// Chains returns the chains behind the tools.
func (e *Executor) Chains() persona.Chains { return e.chains }

// Execute drives a fresh agent until it answers and returns the parsed
// answer. Budget overruns surface as *agent.TimeoutError; a failed decision
// step as *modeladapter.InvocationError.
func (e *Executor) Execute(ctx context.Context, in persona.Input) (persona.Result, error) {
	if err := validateInput(in); err != nil {
		return persona.Result{}, err
	}

	r := &run{id: uuid.NewString(), events: e.opts.Events, log: e.log}
	ctx = agentctx.WithRunID(ctx, r.id)

	system, err := e.system.Render(in.Vars())
	if err != nil {
		return persona.Result{}, fmt.Errorf("engine: system prompt: %w", err)
	}
	if e.opts.FormatInstructions {
		system += "\n\n" + persona.FormatInstructions()
	}

	a := agent.New(AgentName, system, e.completer, e.agentOptions(r))
	a.AddToolBoxes(e.tools)
	a.Init()
	a.Chat().Append(message.NewText("user", role.User, e.opts.Kickoff))

	r.publish(EventRunStart, in)

	reply, err := a.Run(ctx)
	if err != nil {
		r.publish(EventError, err)
		r.publish(EventRunEnd, nil)
		return persona.Result{}, err
	}

	res, err := e.answer(a.Chat(), reply)
	if err != nil {
		r.publish(EventError, err)
		r.publish(EventRunEnd, nil)
		return persona.Result{}, err
	}

	if ur, ok := e.completer.(modeladapter.UsageReporter); ok {
		e.log.DebugContext(ctx, "token usage", "total", ur.UsageTracker().Total().String(), "calls", ur.UsageTracker().Count())
	}

	r.publish(EventRunEnd, res)

	return res, nil
}

func (e *Executor) agentOptions(r *run) agent.Options {
	opts := agent.Options{
		MaxTurns: e.opts.MaxTurns,
		Effects:  e.opts.Effects,
		OnStep:   r.onStep,
		Middleware: []agent.Middleware{
			agent.Recovery(),
			agent.Logger(e.log, AgentName),
		},
	}

	if e.opts.EnforceOrder {
		opts.Policy = persona.OrderPolicy{}
	}
	if e.opts.Timeout > 0 {
		opts.Middleware = append(opts.Middleware, agent.Timeout(e.opts.Timeout, AgentName))
	}

	return opts
}

// answer parses the final message. Without an answer object it falls back
// to the last successful excuse and response tool results. Response stays
// empty unless the response chain succeeded during the run.
func (e *Executor) answer(c *chat.Chat, reply message.Message) (persona.Result, error) {
	text := reply.TextContent()

	res, err := persona.ParseResult(text)
	if err != nil {
		excuse, ok := c.LastSuccess(persona.ExcuseTool)
		if !ok {
			return persona.Result{}, fmt.Errorf("%w: %q", ErrMalformedAnswer, truncate(text, 120))
		}

		res = persona.Result{Excuse: excuse.Content}
		if response, ok := c.LastSuccess(persona.ResponseTool); ok {
			res.Response = response.Content
		}
	}

	// A response the response chain never produced is the model's own text.
	if _, ok := c.LastSuccess(persona.ResponseTool); !ok {
		res.Response = ""
	}

	if e.opts.EnforceOrder {
		if verdict, ok := c.LastSuccess(persona.JudgeTool); ok && persona.Inappropriate(verdict.Content) {
			res.Response = ""
		}
	}

	return res, nil
}

func validateInput(in persona.Input) error {
	if strings.TrimSpace(in.Figure) == "" {
		return fmt.Errorf("%w: figure is required", ErrInvalidInput)
	}
	if strings.TrimSpace(in.Question) == "" {
		return fmt.Errorf("%w: question is required", ErrInvalidInput)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// run carries the identity of one Execute call and turns agent steps into
// events.
type run struct {
	id     string
	events *EventBus
	log    *slog.Logger
}

func (r *run) publish(kind EventKind, data any) {
	r.events.Publish(Event{
		Kind:      kind,
		RunID:     r.id,
		Agent:     AgentName,
		Timestamp: time.Now(),
		Data:      data,
	})
}

func (r *run) onStep(s agent.Step) {
	switch s.Kind {
	case agent.StepDecision:
		calls := s.Message.ToolCalls()
		names := make([]string, len(calls))
		for i, tc := range calls {
			names[i] = tc.Name
		}
		r.publish(EventDecision, names)

	case agent.StepToolCall:
		r.log.Debug("dispatching tool", "run_id", r.id, "tool", s.Call.Name, "turn", s.Turn)
		r.publish(EventToolCallStart, s.Call)

	case agent.StepToolResult:
		r.log.Debug("tool finished", "run_id", r.id, "tool", s.Call.Name, "error", s.Result.IsError)
		r.publish(EventToolCallEnd, s.Result)

	case agent.StepRejected:
		r.log.Debug("final answer rejected", "run_id", r.id, "reason", s.Reason)
		r.publish(EventRejected, s.Reason)
	}
}
