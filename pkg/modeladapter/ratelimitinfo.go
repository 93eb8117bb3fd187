package modeladapter

import (
	"net/http"
	"strconv"
	"time"
)

// RateLimitInfo is the rate limit state a provider reported in its last
// response headers.
type RateLimitInfo struct {
	RemainingRequests int
	RemainingTokens   int
	RequestsReset     time.Time
	TokensReset       time.Time
}

// RateLimitInfoReporter exposes the last observed RateLimitInfo.
type RateLimitInfoReporter interface {
	LastRateLimitInfo() *RateLimitInfo
}

// RateLimitHeaderParser extracts rate limit info from response headers. now
// is passed in so tests control the clock.
type RateLimitHeaderParser func(h http.Header, now time.Time) *RateLimitInfo

type rateLimitHeaders struct {
	remainingRequests string
	remainingTokens   string
	resetRequests     string
	resetTokens       string
}

var (
	openAIHeaders = rateLimitHeaders{
		remainingRequests: "x-ratelimit-remaining-requests",
		remainingTokens:   "x-ratelimit-remaining-tokens",
		resetRequests:     "x-ratelimit-reset-requests",
		resetTokens:       "x-ratelimit-reset-tokens",
	}
	anthropicHeaders = rateLimitHeaders{
		remainingRequests: "anthropic-ratelimit-requests-remaining",
		remainingTokens:   "anthropic-ratelimit-tokens-remaining",
		resetRequests:     "anthropic-ratelimit-requests-reset",
		resetTokens:       "anthropic-ratelimit-tokens-reset",
	}
)

// ParseOpenAIRateLimitHeaders reads the x-ratelimit-* headers used by
// OpenAI-compatible APIs.
func ParseOpenAIRateLimitHeaders(h http.Header, now time.Time) *RateLimitInfo {
	return openAIHeaders.parse(h, now)
}

// ParseAnthropicRateLimitHeaders reads the anthropic-ratelimit-* headers.
func ParseAnthropicRateLimitHeaders(h http.Header, now time.Time) *RateLimitInfo {
	return anthropicHeaders.parse(h, now)
}

func (n rateLimitHeaders) parse(h http.Header, now time.Time) *RateLimitInfo {
	reqRemaining := h.Get(n.remainingRequests)
	tokRemaining := h.Get(n.remainingTokens)

	if reqRemaining == "" && tokRemaining == "" {
		return nil
	}

	info := &RateLimitInfo{
		RequestsReset: resetAt(h.Get(n.resetRequests), now),
		TokensReset:   resetAt(h.Get(n.resetTokens), now),
	}
	info.RemainingRequests, _ = strconv.Atoi(reqRemaining)
	info.RemainingTokens, _ = strconv.Atoi(tokRemaining)

	return info
}

// resetAt accepts an RFC 3339 timestamp or a Go duration ("6s", "1m30s")
// relative to now.
func resetAt(val string, now time.Time) time.Time {
	if val == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, val); err == nil {
		return t
	}
	if d, err := time.ParseDuration(val); err == nil {
		return now.Add(d)
	}
	return time.Time{}
}
