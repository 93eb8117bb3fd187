package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/germanamz/persona/pkg/modeladapter"
	"github.com/germanamz/persona/pkg/providers/anthropic"
	"github.com/germanamz/persona/pkg/providers/goopenai"
	"github.com/germanamz/persona/pkg/providers/langchain"
	"github.com/germanamz/persona/pkg/providers/openai"
)

// ProviderFactory creates a Completer from a ProviderConfig.
type ProviderFactory func(cfg ProviderConfig) (modeladapter.Completer, error)

var (
	factoryMu   sync.RWMutex
	factories   = map[string]ProviderFactory{}
	defaultsReg sync.Once
)

func ensureDefaults() {
	defaultsReg.Do(func() {
		factories["openai"] = newOpenAI
		factories["anthropic"] = newAnthropic
		factories["go-openai"] = newGoOpenAI
		factories["langchain"] = newLangchain
	})
}

// RegisterProvider registers a factory under kind. Call it before New to
// plug in another backend.
func RegisterProvider(kind string, factory ProviderFactory) {
	ensureDefaults()

	factoryMu.Lock()
	defer factoryMu.Unlock()

	factories[kind] = factory
}

func getFactory(kind string) (ProviderFactory, bool) {
	ensureDefaults()

	factoryMu.RLock()
	defer factoryMu.RUnlock()

	f, ok := factories[kind]
	return f, ok
}

func newOpenAI(cfg ProviderConfig) (modeladapter.Completer, error) {
	a := openai.New(cfg.BaseURL, cfg.APIKey, cfg.Model)
	a.Temperature = cfg.Temperature
	if cfg.MaxTokens > 0 {
		a.MaxTokens = cfg.MaxTokens
	}

	return a, nil
}

func newAnthropic(cfg ProviderConfig) (modeladapter.Completer, error) {
	a := anthropic.New(cfg.BaseURL, cfg.APIKey, cfg.Model)
	a.Temperature = cfg.Temperature
	if cfg.MaxTokens > 0 {
		a.MaxTokens = cfg.MaxTokens
	}

	return a, nil
}

func newGoOpenAI(cfg ProviderConfig) (modeladapter.Completer, error) {
	a := goopenai.New(cfg.BaseURL, cfg.APIKey, cfg.Model, nil)
	a.Temperature = float32(cfg.Temperature)
	if cfg.MaxTokens > 0 {
		a.MaxTokens = cfg.MaxTokens
	}

	return a, nil
}

func newLangchain(cfg ProviderConfig) (modeladapter.Completer, error) {
	a, err := langchain.NewOpenAI(cfg.BaseURL, cfg.APIKey, cfg.Model, nil)
	if err != nil {
		return nil, err
	}

	a.Temperature = cfg.Temperature
	if cfg.MaxTokens > 0 {
		a.MaxTokens = cfg.MaxTokens
	}

	return a, nil
}

// buildCompleter creates the Completer for cfg.Kind and wraps it in a
// RateLimitedCompleter, so 429 responses are retried even without budgets.
func buildCompleter(cfg ProviderConfig) (modeladapter.Completer, error) {
	factory, ok := getFactory(cfg.Kind)
	if !ok {
		return nil, fmt.Errorf("engine: unknown provider kind %q", cfg.Kind)
	}

	c, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("engine: provider %q: %w", cfg.Kind, err)
	}

	rl := cfg.RateLimit

	var baseDelay time.Duration
	if rl.BaseDelay != "" {
		baseDelay, err = time.ParseDuration(rl.BaseDelay)
		if err != nil {
			return nil, fmt.Errorf("engine: provider %q: invalid base_delay %q: %w", cfg.Kind, rl.BaseDelay, err)
		}
	}

	return modeladapter.NewRateLimitedCompleter(c, modeladapter.RateLimitOpts{
		InputTPM:   rl.InputTPM,
		OutputTPM:  rl.OutputTPM,
		RPM:        rl.RPM,
		MaxRetries: rl.MaxRetries,
		BaseDelay:  baseDelay,
	}), nil
}
