package modeladapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// InvocationError reports that a call to the model failed: transport
// errors, authentication, rate limits or a response that could not be
// understood. Chains and the agent wrap backend errors in it so callers can
// tell model failures from local contract violations.
type InvocationError struct {
	Model string
	Err   error
}

func (e *InvocationError) Error() string {
	if e.Model == "" {
		return fmt.Sprintf("model invocation failed: %v", e.Err)
	}
	return fmt.Sprintf("model invocation failed (%s): %v", e.Model, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }

// Invocation wraps err in an *InvocationError unless it already carries one.
// Context cancellation and deadlines are returned unchanged; they belong to
// the caller, not the model.
func Invocation(model string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var ie *InvocationError
	if errors.As(err, &ie) {
		return err
	}

	return &InvocationError{Model: model, Err: err}
}

// RateLimitError is returned when the API responds with HTTP 429.
type RateLimitError struct {
	RetryAfter time.Duration
	Body       string
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited (retry after %s): %s", e.RetryAfter, e.Body)
	}
	return fmt.Sprintf("rate limited: %s", e.Body)
}

// StatusError is returned for any other non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// ParseRetryAfter reads a Retry-After value given either in seconds or as an
// HTTP date. Unparseable values and dates in the past yield zero.
func ParseRetryAfter(val string) time.Duration {
	if val == "" {
		return 0
	}

	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}

	if t, err := http.ParseTime(val); err == nil {
		return max(time.Until(t), 0)
	}

	return 0
}
