package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/germanamz/persona/pkg/modeladapter"
	"github.com/germanamz/persona/pkg/modeladapter/usage"
	"github.com/germanamz/persona/pkg/persona"
	"github.com/germanamz/persona/pkg/tools/toolbox"
)

// Engine assembles the completer and the Executor from a Config and exposes
// them to frontends.
type Engine struct {
	cfg       Config
	events    *EventBus
	completer modeladapter.Completer
	executor  *Executor
}

// New validates cfg and builds the provider and the Executor. A nil log
// uses slog.Default().
func New(cfg Config, log *slog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	completer, err := buildCompleter(cfg.Provider)
	if err != nil {
		return nil, err
	}

	effs, err := buildEffects(cfg.Effects)
	if err != nil {
		return nil, err
	}

	timeout, err := cfg.Agent.TimeoutDuration()
	if err != nil {
		return nil, fmt.Errorf("engine: agent.timeout: %w", err)
	}

	events := NewEventBus()

	exec, err := NewExecutor(completer, ExecutorOptions{
		Prompts:            cfg.Prompts,
		MaxTurns:           cfg.Agent.MaxTurns,
		Timeout:            timeout,
		EnforceOrder:       cfg.Agent.OrderEnforced(),
		Kickoff:            cfg.Agent.Kickoff,
		FormatInstructions: cfg.Agent.FormatInstructions,
		Effects:            effs,
		Events:             events,
		Logger:             log,
	})
	if err != nil {
		return nil, err
	}

	return &Engine{
		cfg:       cfg,
		events:    events,
		completer: completer,
		executor:  exec,
	}, nil
}

// Events returns the engine's event bus.
func (e *Engine) Events() *EventBus { return e.events }

// Executor returns the engine's executor.
func (e *Engine) Executor() *Executor { return e.executor }

// ToolBox returns the persona tools, for serving them over MCP.
func (e *Engine) ToolBox() *toolbox.ToolBox { return e.executor.ToolBox() }

// Input fills blank fields of figure and question from the persona section
// of the configuration.
func (e *Engine) Input(figure, question string) persona.Input {
	in := persona.Input{Figure: strings.TrimSpace(figure), Question: strings.TrimSpace(question)}
	if in.Figure == "" {
		in.Figure = e.cfg.Persona.Figure
	}
	if in.Question == "" {
		in.Question = e.cfg.Persona.Question
	}
	return in
}

// Run executes one persona run.
func (e *Engine) Run(ctx context.Context, in persona.Input) (persona.Result, error) {
	return e.executor.Execute(ctx, in)
}

// Usage returns the tokens consumed so far by every chain and the agent.
func (e *Engine) Usage() usage.TokenCount {
	if ur, ok := e.completer.(modeladapter.UsageReporter); ok {
		return ur.UsageTracker().Total()
	}
	return usage.TokenCount{}
}
