package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/germanamz/persona/pkg/chats/content"
	"github.com/germanamz/persona/pkg/engine"
	"github.com/germanamz/persona/pkg/persona"
)

var (
	runStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6")) // cyan
	toolNameStyle = lipgloss.NewStyle().Bold(true)
	resultStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8")) // dim gray
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1")) // red
	rejectStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("3")) // yellow
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

const treeCorner = "└ "

// printTrace writes one line per event until sub is closed.
func printTrace(w io.Writer, sub *engine.Subscription) {
	for e := range sub.C {
		if line := formatEvent(e); line != "" {
			fmt.Fprintln(w, line)
		}
	}
}

func formatEvent(e engine.Event) string {
	switch e.Kind {
	case engine.EventRunStart:
		in, _ := e.Data.(persona.Input)
		return runStyle.Render(fmt.Sprintf("▶ %s: %q", in.Figure, in.Question))

	case engine.EventDecision:
		names, _ := e.Data.([]string)
		return dimStyle.Render("decided: " + strings.Join(names, ", "))

	case engine.EventToolCallStart:
		tc, _ := e.Data.(content.ToolCall)
		return toolNameStyle.Render(tc.Name) + " " + dimStyle.Render(truncate(tc.Arguments, 80))

	case engine.EventToolCallEnd:
		tr, _ := e.Data.(content.ToolResult)
		if tr.IsError {
			return errorStyle.Render(treeCorner + truncate(tr.Content, 120))
		}
		return resultStyle.Render(treeCorner + truncate(tr.Content, 120))

	case engine.EventRejected:
		reason, _ := e.Data.(string)
		return rejectStyle.Render("answer rejected: " + reason)

	case engine.EventError:
		err, _ := e.Data.(error)
		if err == nil {
			return ""
		}
		return errorStyle.Render("✗ " + err.Error())

	case engine.EventRunEnd:
		if e.Data == nil {
			return ""
		}
		return runStyle.Render("■ done")
	}

	return ""
}

// truncate returns s shortened to at most n runes with "..." appended.
// Newlines become spaces.
func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
