package main

import (
	"errors"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/germanamz/persona/pkg/persona"
	"golang.org/x/term"
)

func stdinIsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) //nolint:gosec // fd fits in int
}

// askInput lets the user confirm or edit the figure and question.
func askInput(in persona.Input) (persona.Input, error) {
	if !stdinIsTerminal() {
		return in, errors.New("cannot ask for input: stdin is not a terminal")
	}

	err := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Historical figure").
			Placeholder(persona.DefaultFigure).
			Value(&in.Figure).
			Validate(required("figure")),
		huh.NewText().
			Title("Question").
			Placeholder(persona.DefaultQuestion).
			Value(&in.Question).
			Validate(required("question")),
	)).Run()
	if err != nil {
		return in, err
	}

	in.Figure = strings.TrimSpace(in.Figure)
	in.Question = strings.TrimSpace(in.Question)

	return in, nil
}

func required(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return errors.New(field + " is required")
		}
		return nil
	}
}
