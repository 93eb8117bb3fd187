// Package persona wires the three prompt chains (judge, response, excuse)
// into tools, and defines the ordering rules and the answer format of a
// persona run.
package persona

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/germanamz/persona/pkg/chain"
	"github.com/germanamz/persona/pkg/prompt"
	"github.com/germanamz/persona/pkg/tools/toolbox"
)

// Input is what a run is about.
type Input struct {
	Figure   string
	Question string
}

// Vars returns the template variables for in.
func (in Input) Vars() map[string]any {
	return map[string]any{"figure": in.Figure, "question": in.Question}
}

// Result is the answer printed at the end of a run. Response is empty when
// the response chain was never used.
type Result struct {
	Excuse   string `json:"excuse" describe:"one sentence excuse, always present"`
	Response string `json:"response" describe:"in-character answer, empty if the question was not answered"`
}

// Chains holds the three chains of a persona. They share one Invoker.
type Chains struct {
	Judge    *chain.Chain
	Response *chain.Chain
	Excuse   *chain.Chain
}

// NewChains builds the chains from p (defaults applied) on top of inv.
func NewChains(inv chain.Invoker, p Prompts) (Chains, error) {
	p = p.WithDefaults()

	judge, err := prompt.New(p.Judge, "question")
	if err != nil {
		return Chains{}, fmt.Errorf("persona: judge prompt: %w", err)
	}

	response, err := prompt.New(p.Response, "figure", "question")
	if err != nil {
		return Chains{}, fmt.Errorf("persona: response prompt: %w", err)
	}

	excuse, err := prompt.New(p.Excuse, "figure")
	if err != nil {
		return Chains{}, fmt.Errorf("persona: excuse prompt: %w", err)
	}

	return Chains{
		Judge:    chain.New("judge", judge, inv),
		Response: chain.New("response", response, inv),
		Excuse:   chain.New("excuse", excuse, inv),
	}, nil
}

// SystemTemplate returns the agent instruction template over {figure} and
// {question}.
func SystemTemplate(p Prompts) (prompt.Template, error) {
	t, err := prompt.New(p.WithDefaults().System, "figure", "question")
	if err != nil {
		return prompt.Template{}, fmt.Errorf("persona: system prompt: %w", err)
	}
	return t, nil
}

type judgeArgs struct {
	Question string `json:"question" jsonschema:"the student's question"`
}

type responseArgs struct {
	Figure   string `json:"figure" jsonschema:"the historical figure who answers"`
	Question string `json:"question" jsonschema:"the student's question"`
}

type excuseArgs struct {
	Figure string `json:"figure" jsonschema:"the historical figure who excuses themselves"`
}

// NewToolBox exposes the chains as the run_judge_chain, run_response_chain
// and run_excuse_chain tools.
func NewToolBox(ch Chains) (*toolbox.ToolBox, error) {
	judge, err := toolbox.NewTyped(JudgeTool, JudgeDescription, func(ctx context.Context, a judgeArgs) (string, error) {
		return ch.Judge.Run(ctx, map[string]any{"question": a.Question})
	})
	if err != nil {
		return nil, err
	}

	response, err := toolbox.NewTyped(ResponseTool, ResponseDescription, func(ctx context.Context, a responseArgs) (string, error) {
		return ch.Response.Run(ctx, map[string]any{"figure": a.Figure, "question": a.Question})
	})
	if err != nil {
		return nil, err
	}

	excuse, err := toolbox.NewTyped(ExcuseTool, ExcuseDescription, func(ctx context.Context, a excuseArgs) (string, error) {
		return ch.Excuse.Run(ctx, map[string]any{"figure": a.Figure})
	})
	if err != nil {
		return nil, err
	}

	tb := toolbox.New()
	if err := tb.Register(judge, response, excuse); err != nil {
		return nil, err
	}

	return tb, nil
}

// Inappropriate reports whether a judge verdict rejects the question. The
// judge prompt asks for "innapropriate", models often correct the spelling,
// so both are accepted. A verdict that leads with "appropriate" accepts the
// question whatever follows.
func Inappropriate(verdict string) bool {
	v := strings.ToLower(strings.TrimSpace(verdict))

	words := strings.FieldsFunc(v, func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	if len(words) > 0 && words[0] == "appropriate" {
		return false
	}

	for _, w := range []string{"innapropriate", "inappropriate", "not appropriate"} {
		if strings.Contains(v, w) {
			return true
		}
	}
	return false
}
