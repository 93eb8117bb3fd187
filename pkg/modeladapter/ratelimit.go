package modeladapter

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/germanamz/persona/pkg/chats/chat"
	"github.com/germanamz/persona/pkg/chats/message"
	"github.com/germanamz/persona/pkg/modeladapter/usage"
	"github.com/germanamz/persona/pkg/tools/toolbox"
)

var _ Completer = (*RateLimitedCompleter)(nil)

// RateLimitOpts configures a RateLimitedCompleter. Zero limits disable the
// corresponding check.
type RateLimitOpts struct {
	InputTPM   int           // Input tokens per minute.
	OutputTPM  int           // Output tokens per minute.
	RPM        int           // Requests per minute.
	MaxRetries int           // Retries after a 429 (default 3).
	BaseDelay  time.Duration // First backoff delay (default 1s).
}

type sample struct {
	at     time.Time
	input  int
	output int
}

// RateLimitedCompleter throttles an inner Completer against per-minute
// request and token budgets and retries calls rejected with HTTP 429.
// Only *RateLimitError is retried. It is safe for concurrent use; calls to
// the inner completer are serialized so token deltas can be attributed.
type RateLimitedCompleter struct {
	inner Completer
	opts  RateLimitOpts

	mu      sync.Mutex
	samples []sample

	callMu   sync.Mutex
	fallback usage.Tracker

	nowFunc   func() time.Time
	sleepFunc func(ctx context.Context, d time.Duration) error
	randFunc  func() float64
}

// NewRateLimitedCompleter wraps inner with rate limiting.
func NewRateLimitedCompleter(inner Completer, opts RateLimitOpts) *RateLimitedCompleter {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}

	return &RateLimitedCompleter{
		inner:     inner,
		opts:      opts,
		nowFunc:   time.Now,
		sleepFunc: sleepCtx,
		randFunc:  rand.Float64,
	}
}

// SetNowFunc overrides the clock (for testing).
func (r *RateLimitedCompleter) SetNowFunc(fn func() time.Time) { r.nowFunc = fn }

// SetSleepFunc overrides sleeping (for testing).
func (r *RateLimitedCompleter) SetSleepFunc(fn func(ctx context.Context, d time.Duration) error) {
	r.sleepFunc = fn
}

// SetRandFunc overrides the jitter source (for testing).
func (r *RateLimitedCompleter) SetRandFunc(fn func() float64) { r.randFunc = fn }

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Complete waits for budget, calls the inner completer and retries on 429
// with exponential backoff, honoring Retry-After when it is longer.
func (r *RateLimitedCompleter) Complete(ctx context.Context, c *chat.Chat, tools []toolbox.Tool) (message.Message, error) {
	if err := r.waitForBudget(ctx); err != nil {
		return message.Message{}, err
	}

	var rle *RateLimitError
	for attempt := 0; ; attempt++ {
		msg, err := r.call(ctx, c, tools)
		if err == nil {
			if err := r.respectServerHints(ctx); err != nil {
				return message.Message{}, err
			}
			return msg, nil
		}

		if !errors.As(err, &rle) || attempt >= r.opts.MaxRetries {
			return message.Message{}, err
		}

		delay := r.backoff(attempt, rle.RetryAfter)
		slog.DebugContext(ctx, "rate limited, backing off",
			"attempt", attempt+1, "delay", delay)

		if err := r.sleepFunc(ctx, delay); err != nil {
			return message.Message{}, err
		}
	}
}

func (r *RateLimitedCompleter) call(ctx context.Context, c *chat.Chat, tools []toolbox.Tool) (message.Message, error) {
	r.callMu.Lock()
	defer r.callMu.Unlock()

	ur, tracked := r.inner.(UsageReporter)

	var before usage.TokenCount
	if tracked {
		before = ur.UsageTracker().Total()
	}

	msg, err := r.inner.Complete(ctx, c, tools)
	if err != nil {
		return msg, err
	}

	var delta usage.TokenCount
	if tracked {
		after := ur.UsageTracker().Total()
		delta = usage.TokenCount{
			InputTokens:  after.InputTokens - before.InputTokens,
			OutputTokens: after.OutputTokens - before.OutputTokens,
		}
	}
	r.record(delta)

	return msg, nil
}

// backoff returns BaseDelay*2^attempt (or retryAfter when longer) with
// +/-25% jitter.
func (r *RateLimitedCompleter) backoff(attempt int, retryAfter time.Duration) time.Duration {
	d := max(r.opts.BaseDelay<<attempt, retryAfter)
	factor := 0.75 + r.randFunc()*0.5 //nolint:mnd // +/-25%
	return time.Duration(float64(d) * factor)
}

func (r *RateLimitedCompleter) limited() bool {
	return r.opts.InputTPM > 0 || r.opts.OutputTPM > 0 || r.opts.RPM > 0
}

func (r *RateLimitedCompleter) waitForBudget(ctx context.Context) error {
	if !r.limited() {
		return nil
	}

	const minWait = 10 * time.Millisecond

	for {
		wait, ok := r.reserve()
		if ok {
			return nil
		}

		if err := r.sleepFunc(ctx, max(wait, minWait)); err != nil {
			return err
		}
	}
}

// reserve reports whether the current minute still has budget, and if not,
// how long until the oldest sample leaves the window.
func (r *RateLimitedCompleter) reserve() (time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.nowFunc()
	r.prune(now)

	var in, out int
	for _, s := range r.samples {
		in += s.input
		out += s.output
	}

	switch {
	case r.opts.InputTPM > 0 && in >= r.opts.InputTPM,
		r.opts.OutputTPM > 0 && out >= r.opts.OutputTPM,
		r.opts.RPM > 0 && len(r.samples) >= r.opts.RPM:
		return r.samples[0].at.Add(time.Minute).Sub(now), false
	}

	return 0, true
}

// prune drops samples older than one minute. It copies the survivors so the
// old backing array can be released. Must be called with mu held.
func (r *RateLimitedCompleter) prune(now time.Time) {
	cutoff := now.Add(-time.Minute)

	i := 0
	for i < len(r.samples) && !r.samples[i].at.After(cutoff) {
		i++
	}

	if i > 0 {
		r.samples = append([]sample(nil), r.samples[i:]...)
	}
}

func (r *RateLimitedCompleter) record(tc usage.TokenCount) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.samples = append(r.samples, sample{
		at:     r.nowFunc(),
		input:  tc.InputTokens,
		output: tc.OutputTokens,
	})
}

// respectServerHints sleeps until the provider's reset time when its last
// response reported that requests or tokens are nearly exhausted.
func (r *RateLimitedCompleter) respectServerHints(ctx context.Context) error {
	reporter, ok := r.inner.(RateLimitInfoReporter)
	if !ok {
		return nil
	}

	info := reporter.LastRateLimitInfo()
	if info == nil {
		return nil
	}

	now := r.nowFunc()

	var until time.Time
	if info.RemainingRequests <= 1 && info.RequestsReset.After(now) {
		until = info.RequestsReset
	}
	if info.RemainingTokens <= 1 && info.TokensReset.After(now) && info.TokensReset.After(until) {
		until = info.TokensReset
	}

	if until.IsZero() {
		return nil
	}

	return r.sleepFunc(ctx, until.Sub(now))
}

// UsageTracker forwards to the inner completer when it counts tokens.
func (r *RateLimitedCompleter) UsageTracker() *usage.Tracker {
	if ur, ok := r.inner.(UsageReporter); ok {
		return ur.UsageTracker()
	}
	return &r.fallback
}

// ModelMaxTokens forwards to the inner completer when it counts tokens.
func (r *RateLimitedCompleter) ModelMaxTokens() int {
	if ur, ok := r.inner.(UsageReporter); ok {
		return ur.ModelMaxTokens()
	}
	return 0
}
