package persona

import (
	"errors"
	"fmt"

	"github.com/germanamz/persona/pkg/chats/chat"
	"github.com/germanamz/persona/pkg/chats/content"
	"github.com/germanamz/persona/pkg/chats/message"
)

// Rejections returned by OrderPolicy. The text is shown to the model.
var (
	ErrJudgeFirst       = fmt.Errorf("call %s before %s", JudgeTool, ResponseTool)
	ErrJudgedOutOfScope = fmt.Errorf("the question was judged inappropriate, do not call %s", ResponseTool)
	ErrExcuseMissing    = fmt.Errorf("call %s before giving the final answer", ExcuseTool)
	ErrVerdictMissing   = errors.New("judge the question before giving the final answer")
)

// OrderPolicy enforces the run order in code: the judge must have approved
// the question before the response chain may run, and the final answer is
// only accepted once the question was judged and an excuse exists.
type OrderPolicy struct{}

// AllowCall implements agent.Policy.
func (OrderPolicy) AllowCall(c *chat.Chat, tc content.ToolCall) error {
	if tc.Name != ResponseTool {
		return nil
	}

	verdict, ok := c.LastSuccess(JudgeTool)
	if !ok {
		return ErrJudgeFirst
	}
	if Inappropriate(verdict.Content) {
		return ErrJudgedOutOfScope
	}

	return nil
}

// AllowFinish implements agent.Policy.
func (OrderPolicy) AllowFinish(c *chat.Chat, _ message.Message) error {
	if _, ok := c.LastSuccess(JudgeTool); !ok {
		return ErrVerdictMissing
	}
	if _, ok := c.LastSuccess(ExcuseTool); !ok {
		return ErrExcuseMissing
	}
	return nil
}
