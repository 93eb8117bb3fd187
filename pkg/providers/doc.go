// Package providers groups the modeladapter.Completer implementations:
//
//   - [github.com/germanamz/persona/pkg/providers/openai]: Chat Completions over plain HTTP
//   - [github.com/germanamz/persona/pkg/providers/anthropic]: Messages API over plain HTTP
//   - [github.com/germanamz/persona/pkg/providers/goopenai]: the sashabaranov/go-openai client
//   - [github.com/germanamz/persona/pkg/providers/langchain]: any langchaingo llms.Model
//
// Every adapter receives the tools offered for a call as an argument and
// reports token usage through a usage.Tracker.
package providers
