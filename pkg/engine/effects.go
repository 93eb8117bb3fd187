package engine

import (
	"fmt"

	"github.com/germanamz/persona/pkg/agent"
	"github.com/germanamz/persona/pkg/agent/effects"
)

// EffectFactory constructs an Effect from its YAML params.
type EffectFactory func(params map[string]any) (agent.Effect, error)

var effectFactories = map[string]EffectFactory{
	"loop_detect":     buildLoopDetectEffect,
	"reflection":      buildReflectionEffect,
	"finish_reminder": buildFinishReminderEffect,
}

func buildEffects(ecs []EffectConfig) ([]agent.Effect, error) {
	if len(ecs) == 0 {
		return nil, nil
	}

	effs := make([]agent.Effect, 0, len(ecs))
	for i, ec := range ecs {
		factory, ok := effectFactories[ec.Kind]
		if !ok {
			return nil, fmt.Errorf("engine: effect[%d]: unknown kind %q", i, ec.Kind)
		}

		eff, err := factory(ec.Params)
		if err != nil {
			return nil, fmt.Errorf("engine: effect[%d] (%s): %w", i, ec.Kind, err)
		}

		effs = append(effs, eff)
	}

	return effs, nil
}

func buildLoopDetectEffect(params map[string]any) (agent.Effect, error) {
	threshold, err := intParam(params, "threshold")
	if err != nil {
		return nil, err
	}

	window, err := intParam(params, "window_size")
	if err != nil {
		return nil, err
	}

	return effects.NewLoopDetectEffect(effects.LoopDetectConfig{Threshold: threshold, WindowSize: window}), nil
}

func buildReflectionEffect(params map[string]any) (agent.Effect, error) {
	threshold, err := intParam(params, "failure_threshold")
	if err != nil {
		return nil, err
	}

	return effects.NewReflectionEffect(effects.ReflectionConfig{FailureThreshold: threshold}), nil
}

func buildFinishReminderEffect(params map[string]any) (agent.Effect, error) {
	threshold, err := intParam(params, "threshold")
	if err != nil {
		return nil, err
	}

	var text string
	if v, ok := params["text"]; ok {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("text must be a string, got %T", v)
		}
		text = s
	}

	return effects.NewFinishReminderEffect(threshold, text), nil
}

// intParam reads an optional numeric param. YAML decodes integers as int,
// JSON-ish sources as float64.
func intParam(params map[string]any, key string) (int, error) {
	v, ok := params[key]
	if !ok {
		return 0, nil
	}

	switch t := v.(type) {
	case int:
		return t, nil
	case float64:
		return int(t), nil
	default:
		return 0, fmt.Errorf("%s must be a number, got %T", key, v)
	}
}
