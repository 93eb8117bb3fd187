package engine

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/germanamz/persona/pkg/persona"
	"github.com/germanamz/persona/pkg/prompt"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration.
type Config struct {
	Provider ProviderConfig  `yaml:"provider"`
	Persona  PersonaConfig   `yaml:"persona"`
	Agent    AgentConfig     `yaml:"agent"`
	Effects  []EffectConfig  `yaml:"effects"`
	Prompts  persona.Prompts `yaml:"prompts"`
}

// RateLimitConfig controls client-side rate limiting.
type RateLimitConfig struct {
	InputTPM   int    `yaml:"input_tpm"`   // Input tokens per minute (0 = no limit).
	OutputTPM  int    `yaml:"output_tpm"`  // Output tokens per minute (0 = no limit).
	RPM        int    `yaml:"rpm"`         // Requests per minute (0 = no limit).
	MaxRetries int    `yaml:"max_retries"` // Max retries on 429 (default 3).
	BaseDelay  string `yaml:"base_delay"`  // Initial backoff as a duration string (e.g. "1s", "500ms").
}

// ProviderConfig describes the model every chain and the agent share.
type ProviderConfig struct {
	Kind        string          `yaml:"kind"`
	BaseURL     string          `yaml:"base_url"`
	APIKey      string          `yaml:"api_key"` //nolint:gosec // configuration field, not a hardcoded secret
	Model       string          `yaml:"model"`
	Temperature float64         `yaml:"temperature"`
	MaxTokens   int             `yaml:"max_tokens"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
}

// PersonaConfig is the default input of a run.
type PersonaConfig struct {
	Figure   string `yaml:"figure"`
	Question string `yaml:"question"`
}

// AgentConfig holds the agent loop settings.
type AgentConfig struct {
	MaxTurns           int    `yaml:"max_turns"`
	Timeout            string `yaml:"timeout"`       // Wall-clock bound per run ("" or "0" = none).
	EnforceOrder       *bool  `yaml:"enforce_order"` // nil means true.
	Kickoff            string `yaml:"kickoff"`
	FormatInstructions bool   `yaml:"format_instructions"` // Append the answer schema to the system prompt.
}

// OrderEnforced reports whether the ordering policy is on.
func (a AgentConfig) OrderEnforced() bool {
	return a.EnforceOrder == nil || *a.EnforceOrder
}

// TimeoutDuration parses Timeout.
func (a AgentConfig) TimeoutDuration() (time.Duration, error) {
	if a.Timeout == "" {
		return 0, nil
	}
	return time.ParseDuration(a.Timeout)
}

// EffectConfig selects a per-turn effect by kind.
type EffectConfig struct {
	Kind   string         `yaml:"kind"`
	Params map[string]any `yaml:"params"`
}

// Defaults returns a Config that runs the Charles Darwin example against
// OpenAI, reading the key from OPENAI_API_KEY.
func Defaults() Config {
	return Config{
		Provider: ProviderConfig{
			Kind:        "openai",
			APIKey:      os.Getenv("OPENAI_API_KEY"),
			Model:       "gpt-4",
			Temperature: 1,
			MaxTokens:   1024,
		},
		Persona: PersonaConfig{
			Figure:   persona.DefaultFigure,
			Question: persona.DefaultQuestion,
		},
		Agent: AgentConfig{
			MaxTurns: 10,
			Timeout:  "2m",
			Kickoff:  persona.DefaultKickoff,
		},
		Effects: []EffectConfig{
			{Kind: "loop_detect"},
			{Kind: "reflection"},
			{Kind: "finish_reminder"},
		},
	}
}

// LoadConfig reads a YAML file on top of Defaults. Environment variables
// referenced as ${VAR} or $VAR are expanded in provider.api_key and
// provider.base_url, so keys can live in the environment or a .env file.
// Every other value, prompts included, is taken literally.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-provided configuration
	if err != nil {
		return Config{}, fmt.Errorf("engine: load config: %w", err)
	}

	return ParseConfig(data)
}

// ParseConfig is LoadConfig for YAML already in memory.
func ParseConfig(data []byte) (Config, error) {
	cfg := Defaults()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("engine: parse config: %w", err)
	}

	cfg.Provider.APIKey = os.ExpandEnv(cfg.Provider.APIKey)
	cfg.Provider.BaseURL = os.ExpandEnv(cfg.Provider.BaseURL)

	return cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c Config) Validate() error {
	if err := c.Provider.validate(); err != nil {
		return err
	}

	a := c.Agent
	if a.MaxTurns < 0 {
		return fmt.Errorf("engine: config: agent.max_turns must not be negative")
	}
	if d, err := a.TimeoutDuration(); err != nil {
		return fmt.Errorf("engine: config: agent.timeout %q: %w", a.Timeout, err)
	} else if d < 0 {
		return fmt.Errorf("engine: config: agent.timeout must not be negative")
	}
	if strings.TrimSpace(a.Kickoff) == "" {
		return fmt.Errorf("engine: config: agent.kickoff is required")
	}

	for i, ec := range c.Effects {
		if _, ok := effectFactories[ec.Kind]; !ok {
			return fmt.Errorf("engine: config: effects[%d]: unknown kind %q", i, ec.Kind)
		}
	}

	return validatePrompts(c.Prompts)
}

func (p ProviderConfig) validate() error {
	if p.Kind == "" {
		return fmt.Errorf("engine: config: provider.kind is required")
	}
	if _, ok := getFactory(p.Kind); !ok {
		return fmt.Errorf("engine: config: unknown provider kind %q", p.Kind)
	}
	if p.Model == "" {
		return fmt.Errorf("engine: config: provider.model is required")
	}
	if p.APIKey == "" && p.BaseURL == "" {
		return fmt.Errorf("engine: config: provider.api_key is required unless base_url points at a local endpoint")
	}
	if p.Temperature < 0 || p.Temperature > 2 {
		return fmt.Errorf("engine: config: provider.temperature %v out of range [0, 2]", p.Temperature)
	}
	if p.MaxTokens < 0 {
		return fmt.Errorf("engine: config: provider.max_tokens must not be negative")
	}

	rl := p.RateLimit
	if rl.InputTPM < 0 || rl.OutputTPM < 0 || rl.RPM < 0 || rl.MaxRetries < 0 {
		return fmt.Errorf("engine: config: provider.rate_limit values must not be negative")
	}
	if rl.BaseDelay != "" {
		if _, err := time.ParseDuration(rl.BaseDelay); err != nil {
			return fmt.Errorf("engine: config: provider.rate_limit.base_delay %q: %w", rl.BaseDelay, err)
		}
	}

	return nil
}

// requiredPlaceholders lists what each prompt override must reference.
var requiredPlaceholders = []struct {
	name string
	text func(persona.Prompts) string
	vars []string
}{
	{"judge", func(p persona.Prompts) string { return p.Judge }, []string{"question"}},
	{"response", func(p persona.Prompts) string { return p.Response }, []string{"figure", "question"}},
	{"excuse", func(p persona.Prompts) string { return p.Excuse }, []string{"figure"}},
	{"system", func(p persona.Prompts) string { return p.System }, []string{"figure", "question"}},
}

func validatePrompts(p persona.Prompts) error {
	for _, rp := range requiredPlaceholders {
		text := rp.text(p)
		if text == "" {
			continue
		}

		if _, err := prompt.New(text, rp.vars...); err != nil {
			return fmt.Errorf("engine: config: prompts.%s: %w", rp.name, err)
		}

		for _, v := range rp.vars {
			if !strings.Contains(text, "{"+v+"}") {
				return fmt.Errorf("engine: config: prompts.%s: missing placeholder {%s}", rp.name, v)
			}
		}
	}

	return nil
}
