package agent

import (
	"errors"
	"fmt"
	"time"

	"github.com/germanamz/persona/pkg/chats/chat"
	"github.com/germanamz/persona/pkg/chats/content"
	"github.com/germanamz/persona/pkg/chats/message"
)

// StepKind identifies a transition of the loop.
type StepKind int

const (
	StepDecision   StepKind = iota // The model selected one or more tools.
	StepToolCall                   // A tool call is about to be dispatched.
	StepToolResult                 // A tool call finished (possibly with IsError).
	StepRejected                   // A final answer was refused by the Policy.
	StepFinal                      // The model produced the accepted final answer.
)

func (k StepKind) String() string {
	switch k {
	case StepDecision:
		return "decision"
	case StepToolCall:
		return "tool_call"
	case StepToolResult:
		return "tool_result"
	case StepRejected:
		return "rejected"
	case StepFinal:
		return "final"
	}
	return fmt.Sprintf("StepKind(%d)", int(k))
}

// Step is what Options.OnStep observes. Fields not relevant to Kind are zero.
type Step struct {
	Kind    StepKind
	Agent   string
	Turn    int
	Message message.Message
	Call    content.ToolCall
	Result  content.ToolResult
	Reason  string
}

// Policy constrains which tool calls the model may make and when it may
// stop. Returned errors are shown to the model verbatim.
type Policy interface {
	AllowCall(c *chat.Chat, tc content.ToolCall) error
	AllowFinish(c *chat.Chat, reply message.Message) error
}

// TimeoutError reports a run that ran out of turns or wall-clock time.
type TimeoutError struct {
	Agent string
	Turns int           // Turn budget, for ErrTurnBudget.
	After time.Duration // Time budget, for context.DeadlineExceeded.
	Err   error
}

func (e *TimeoutError) Error() string {
	if errors.Is(e.Err, ErrTurnBudget) {
		return fmt.Sprintf("agent %s: no final answer within %d turns", e.Agent, e.Turns)
	}
	return fmt.Sprintf("agent %s: no final answer within %s", e.Agent, e.After)
}

func (e *TimeoutError) Unwrap() error { return e.Err }
