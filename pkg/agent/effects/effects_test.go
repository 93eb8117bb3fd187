package effects

import (
	"context"
	"testing"

	"github.com/germanamz/persona/pkg/agent"
	"github.com/germanamz/persona/pkg/chats/chat"
	"github.com/germanamz/persona/pkg/chats/content"
	"github.com/germanamz/persona/pkg/chats/message"
	"github.com/germanamz/persona/pkg/chats/role"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func judgeCall(id, question string) message.Message {
	return message.New("persona", role.Assistant,
		content.ToolCall{ID: id, Name: "run_judge_chain", Arguments: `{"question":"` + question + `"}`},
	)
}

func result(id, text string, isErr bool) message.Message {
	return message.New("persona", role.Tool,
		content.ToolResult{ToolCallID: id, Name: "run_judge_chain", Content: text, IsError: isErr},
	)
}

func before(c *chat.Chat, iteration, maxTurns int) agent.IterationContext {
	return agent.IterationContext{Phase: agent.PhaseBeforeComplete, Iteration: iteration, MaxTurns: maxTurns, Chat: c}
}

func lastText(c *chat.Chat) string {
	m, _ := c.Last()
	return m.TextContent()
}

// --- loop detection ---

func TestLoopDetect_DetectsRepeats(t *testing.T) {
	c := chat.New(
		judgeCall("c1", "q"), result("c1", "appropriate", false),
		judgeCall("c2", "q"), result("c2", "appropriate", false),
	)

	require.NoError(t, NewLoopDetectEffect(LoopDetectConfig{}).Eval(context.Background(), before(c, 2, 10)))

	assert.Equal(t, 5, c.Len())
	assert.Contains(t, lastText(c), "run_judge_chain with the same arguments 2 times")
}

func TestLoopDetect_DifferentArguments(t *testing.T) {
	c := chat.New(
		judgeCall("c1", "q1"), result("c1", "appropriate", false),
		judgeCall("c2", "q2"), result("c2", "appropriate", false),
	)

	require.NoError(t, NewLoopDetectEffect(LoopDetectConfig{}).Eval(context.Background(), before(c, 2, 10)))
	assert.Equal(t, 4, c.Len())
}

func TestLoopDetect_SkipsFirstTurnAndAfterPhase(t *testing.T) {
	c := chat.New(judgeCall("c1", "q"), result("c1", "ok", false))
	e := NewLoopDetectEffect(LoopDetectConfig{Threshold: 1})

	require.NoError(t, e.Eval(context.Background(), before(c, 0, 10)))

	ic := before(c, 1, 10)
	ic.Phase = agent.PhaseAfterComplete
	require.NoError(t, e.Eval(context.Background(), ic))

	assert.Equal(t, 2, c.Len())
}

func TestLoopDetect_WindowLimitsCount(t *testing.T) {
	c := chat.New()
	for _, id := range []string{"c1", "c2", "c3", "c4"} {
		c.Append(judgeCall(id, "q"), result(id, "ok", false))
	}

	e := NewLoopDetectEffect(LoopDetectConfig{Threshold: 4, WindowSize: 3})
	require.NoError(t, e.Eval(context.Background(), before(c, 4, 10)))

	assert.Equal(t, 8, c.Len(), "only 3 calls are inspected, below the threshold of 4")
}

// --- reflection ---

func TestReflection_AfterConsecutiveFailures(t *testing.T) {
	c := chat.New(
		judgeCall("c1", ""), result("c1", "invalid arguments", true),
		judgeCall("c2", ""), result("c2", "invalid arguments", true),
	)

	require.NoError(t, NewReflectionEffect(ReflectionConfig{}).Eval(context.Background(), before(c, 2, 10)))
	assert.Contains(t, lastText(c), "Your last 2 tool calls failed")
}

func TestReflection_SuccessBreaksStreak(t *testing.T) {
	c := chat.New(
		judgeCall("c1", ""), result("c1", "invalid arguments", true),
		judgeCall("c2", "q"), result("c2", "appropriate", false),
		judgeCall("c3", ""), result("c3", "invalid arguments", true),
	)

	require.NoError(t, NewReflectionEffect(ReflectionConfig{}).Eval(context.Background(), before(c, 3, 10)))
	assert.Equal(t, 6, c.Len())
}

func TestReflection_UserMessageBreaksStreak(t *testing.T) {
	c := chat.New(
		judgeCall("c1", ""), result("c1", "boom", true),
		message.NewText("", role.User, "Your last 2 tool calls failed."),
		judgeCall("c2", ""), result("c2", "boom", true),
	)

	require.NoError(t, NewReflectionEffect(ReflectionConfig{}).Eval(context.Background(), before(c, 2, 10)))
	assert.Equal(t, 5, c.Len())
}

// --- finish reminder ---

func TestFinishReminder(t *testing.T) {
	c := chat.New(judgeCall("c1", "q"), result("c1", "ok", false))
	e := NewFinishReminderEffect(1, "Answer with the JSON object now.")

	// MaxTurns 4: Remaining is 2 at turn 1 and 1 at turn 2.
	require.NoError(t, e.Eval(context.Background(), before(c, 1, 4)))
	assert.Equal(t, 2, c.Len())

	require.NoError(t, e.Eval(context.Background(), before(c, 2, 4)))
	assert.Equal(t, 3, c.Len())
	assert.Equal(t, "Answer with the JSON object now.", lastText(c))
}

func TestFinishReminder_Defaults(t *testing.T) {
	c := chat.New(judgeCall("c1", "q"))

	require.NoError(t, NewFinishReminderEffect(0, "").Eval(context.Background(), before(c, 1, 3)))
	assert.Contains(t, lastText(c), "almost out of turns")
}
