package persona

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/germanamz/persona/pkg/chain"
	"github.com/germanamz/persona/pkg/chats/content"
	"github.com/germanamz/persona/pkg/prompt"
	"github.com/germanamz/persona/pkg/tools/toolbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stub(s string) chain.InvokerFunc {
	return func(context.Context, string) (string, error) { return s, nil }
}

// recorder keeps every prompt it receives.
type recorder struct{ prompts []string }

func (r *recorder) Invoke(_ context.Context, p string) (string, error) {
	r.prompts = append(r.prompts, p)
	return "ok", nil
}

func TestNewChains_JudgePassThrough(t *testing.T) {
	ch, err := NewChains(stub("appropriate"), Prompts{})
	require.NoError(t, err)

	out, err := ch.Judge.Run(context.Background(), map[string]any{"question": "Why is the sky blue?"})
	require.NoError(t, err)
	assert.Equal(t, "appropriate", out)
}

func TestNewChains_ExcusePassThrough(t *testing.T) {
	const excuse = "I must attend to my radium samples before they glow any brighter."
	ch, err := NewChains(stub(excuse), Prompts{})
	require.NoError(t, err)

	for _, figure := range []string{"Marie Curie", "Charles Darwin", ""} {
		out, err := ch.Excuse.Run(context.Background(), map[string]any{"figure": figure})
		require.NoError(t, err)
		assert.Equal(t, excuse, out)
	}
}

func TestNewChains_RendersDefaults(t *testing.T) {
	rec := &recorder{}
	ch, err := NewChains(rec, Prompts{})
	require.NoError(t, err)

	_, err = ch.Response.Run(context.Background(), Input{Figure: "Ada Lovelace", Question: "What is an engine?"}.Vars())
	require.NoError(t, err)
	_, err = ch.Excuse.Run(context.Background(), map[string]any{"figure": "Ada Lovelace"})
	require.NoError(t, err)

	require.Len(t, rec.prompts, 2)
	assert.Equal(t, "You are Ada Lovelace. Answer the following question in a educationally accurate, "+
		"but also light and humorous way. \n\nQuestion: What is an engine?\n\nAnswer:", rec.prompts[0])
	assert.Equal(t, "You are Ada Lovelace. Make up a convenient one-sentence excuse to not answer a student's "+
		"question in a historically accurate and lighthearted way. \n\nExcuse:", rec.prompts[1])
}

func TestNewChains_Overrides(t *testing.T) {
	rec := &recorder{}
	ch, err := NewChains(rec, Prompts{Judge: "Is this ok? {question}"})
	require.NoError(t, err)

	_, err = ch.Judge.Run(context.Background(), map[string]any{"question": "Why?"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Is this ok? Why?"}, rec.prompts)
}

func TestNewChains_BadOverride(t *testing.T) {
	_, err := NewChains(stub(""), Prompts{Excuse: "You are {name}."})
	require.Error(t, err)
	assert.ErrorContains(t, err, "excuse prompt")
}

func TestSystemTemplate(t *testing.T) {
	tmpl, err := SystemTemplate(Prompts{})
	require.NoError(t, err)

	out, err := tmpl.Render(Input{Figure: DefaultFigure, Question: DefaultQuestion}.Vars())
	require.NoError(t, err)
	assert.Contains(t, out, "Figure: Charles Darwin")
	assert.Contains(t, out, "Question: Why did you go to the Galapagos Islands?")
	assert.Contains(t, out, `two fields: "excuse" and "response"`)

	_, err = tmpl.Render(map[string]any{"figure": "x"})
	assert.ErrorIs(t, err, prompt.ErrMissingVariable)
}

func TestNewToolBox(t *testing.T) {
	rec := &recorder{}
	ch, err := NewChains(rec, Prompts{})
	require.NoError(t, err)

	tb, err := NewToolBox(ch)
	require.NoError(t, err)
	assert.Equal(t, []string{JudgeTool, ResponseTool, ExcuseTool}, tb.Names())

	judge, ok := tb.Get(JudgeTool)
	require.True(t, ok)
	assert.Equal(t, JudgeDescription, judge.Description)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(judge.InputSchema, &schema))
	assert.Equal(t, []any{"question"}, schema["required"])

	res := tb.Call(context.Background(), content.ToolCall{ID: "1", Name: ExcuseTool, Arguments: `{"figure":"Marie Curie"}`})
	assert.False(t, res.IsError)
	assert.Equal(t, "ok", res.Content)
	assert.Contains(t, rec.prompts[0], "You are Marie Curie.")
}

func TestNewToolBox_MissingArgument(t *testing.T) {
	ch, err := NewChains(stub("ok"), Prompts{})
	require.NoError(t, err)
	tb, err := NewToolBox(ch)
	require.NoError(t, err)

	_, err = tb.Invoke(context.Background(), ResponseTool, json.RawMessage(`{"figure":"Marie Curie"}`))

	var iae *toolbox.InvalidArgumentsError
	require.ErrorAs(t, err, &iae)
	assert.Equal(t, ResponseTool, iae.Tool)
}

func TestInappropriate(t *testing.T) {
	tests := []struct {
		verdict string
		want    bool
	}{
		{"appropriate", false},
		{"Appropriate.", false},
		{"innapropriate", true},
		{"Inappropriate", true},
		{"This is not appropriate for school.", true},
		{"Not appropriate.", true},
		{"appropriate (not inappropriate)", false},
		{"  Appropriate: nothing inappropriate here", false},
		{"The question is inappropriate.", true},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.verdict, func(t *testing.T) {
			assert.Equal(t, tt.want, Inappropriate(tt.verdict))
		})
	}
}
