// Package modeladapter defines how persona talks to a language model.
//
// It contains:
//   - [Completer], the single capability every chain and the agent depend on
//   - [ModelAdapter], an embeddable base for HTTP providers (auth, headers, JSON posts, rate limit headers)
//   - [RateLimitedCompleter], TPM/RPM throttling and 429 retry around any Completer
//   - the error types a model call can fail with ([InvocationError], [RateLimitError], [StatusError])
//   - [github.com/germanamz/persona/pkg/modeladapter/usage], a concurrency-safe token counter
//
// Concrete backends live under pkg/providers.
package modeladapter
