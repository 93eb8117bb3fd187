package persona

// Tool names. They are part of the prompt contract: the system prompt and
// OrderPolicy refer to them.
const (
	JudgeTool    = "run_judge_chain"
	ResponseTool = "run_response_chain"
	ExcuseTool   = "run_excuse_chain"
)

// Tool descriptions, read by the model when it picks a tool.
const (
	JudgeDescription    = "Called to determine if an llm determined the Question as appropriate or not"
	ResponseDescription = "Called to get an llm response to a question"
	ExcuseDescription   = "Called to get an llm excuse to not answer a question"
)

// Defaults used when neither configuration nor flags name a figure or a
// question.
const (
	DefaultFigure   = "Charles Darwin"
	DefaultQuestion = "Why did you go to the Galapagos Islands?"
)

// DefaultJudgePrompt renders over {question}.
const DefaultJudgePrompt = "Judge if the following question is appropriate for a school setting or not. " +
	"Appropriate questions are anything that may be related to a school course or a general wonderings. " +
	"Innapropriate questions have absolutely nothing to do with education, or may include swear words. " +
	"If it is appropriate, write 'appropriate', if not, write 'innapropriate'.\n\n Question: {question}"

// DefaultResponsePrompt renders over {figure} and {question}.
const DefaultResponsePrompt = "You are {figure}. Answer the following question in a educationally accurate, " +
	"but also light and humorous way. \n\nQuestion: {question}\n\nAnswer:"

// DefaultExcusePrompt renders over {figure}.
const DefaultExcusePrompt = "You are {figure}. Make up a convenient one-sentence excuse to not answer a student's " +
	"question in a historically accurate and lighthearted way. \n\nExcuse:"

// DefaultSystemPrompt renders over {figure} and {question}.
const DefaultSystemPrompt = "You are given a Figure and a Question below. You must decide if the if the question " +
	"is appropriate for a school setting or not by running the judge chain. If appropriate then call the response " +
	"chain. Call the excuse chain regardless. Format your response as a json object with two fields: \"excuse\" " +
	"and \"response\". Leave the response field empty if you did not call it. \n\nFigure: {figure}\n\nQuestion: {question}"

// DefaultKickoff is the user message that starts a run.
const DefaultKickoff = "run"

// Prompts overrides the default templates. Empty fields keep the default.
type Prompts struct {
	Judge    string `yaml:"judge"`
	Response string `yaml:"response"`
	Excuse   string `yaml:"excuse"`
	System   string `yaml:"system"`
}

func or(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// WithDefaults fills empty fields with the default templates.
func (p Prompts) WithDefaults() Prompts {
	return Prompts{
		Judge:    or(p.Judge, DefaultJudgePrompt),
		Response: or(p.Response, DefaultResponsePrompt),
		Excuse:   or(p.Excuse, DefaultExcusePrompt),
		System:   or(p.System, DefaultSystemPrompt),
	}
}
