// Package prompt renders the prompt templates the chains send to the model.
//
// Templates use f-string placeholders: {name} is replaced by the value of
// name, {{ and }} produce literal braces. Rendering is plain substitution;
// values are inserted as-is and never re-parsed.
package prompt

import (
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/prompts"
)

// ErrMissingVariable matches every *MissingVariableError.
var ErrMissingVariable = errors.New("missing variable")

// MissingVariableError reports a declared variable absent at render time.
type MissingVariableError struct {
	Name string
}

func (e *MissingVariableError) Error() string {
	return fmt.Sprintf("prompt: missing variable %q", e.Name)
}

func (e *MissingVariableError) Is(target error) bool { return target == ErrMissingVariable }

// Template is an immutable template string plus the variables it requires.
type Template struct {
	text string
	vars []string
}

// New checks that text is well formed and only references names in vars.
func New(text string, vars ...string) (Template, error) {
	seen := make(map[string]bool, len(vars))
	for _, v := range vars {
		if v == "" {
			return Template{}, errors.New("prompt: empty variable name")
		}
		if seen[v] {
			return Template{}, fmt.Errorf("prompt: variable %q declared twice", v)
		}
		seen[v] = true
	}

	if err := prompts.CheckValidTemplate(text, prompts.TemplateFormatFString, vars); err != nil {
		return Template{}, fmt.Errorf("prompt: invalid template: %w", err)
	}

	return Template{text: text, vars: append([]string(nil), vars...)}, nil
}

// MustNew is like New but panics on error. Use it for package-level
// templates.
func MustNew(text string, vars ...string) Template {
	t, err := New(text, vars...)
	if err != nil {
		panic(err)
	}
	return t
}

// Render substitutes values into the template. Every declared variable must
// be present; extra keys are ignored.
func (t Template) Render(values map[string]any) (string, error) {
	for _, v := range t.vars {
		if _, ok := values[v]; !ok {
			return "", &MissingVariableError{Name: v}
		}
	}

	out, err := prompts.RenderTemplate(t.text, prompts.TemplateFormatFString, values)
	if err != nil {
		return "", fmt.Errorf("prompt: render: %w", err)
	}

	return out, nil
}

// Variables returns a copy of the declared variable names, in declaration
// order.
func (t Template) Variables() []string {
	return append([]string(nil), t.vars...)
}

// Text returns the raw template string.
func (t Template) Text() string { return t.text }
