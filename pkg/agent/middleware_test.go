package agent

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/germanamz/persona/pkg/chats/message"
	"github.com/germanamz/persona/pkg/chats/role"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- test helpers ---

func stubRunner(msg message.Message, err error) Runner {
	return RunnerFunc(func(_ context.Context) (message.Message, error) {
		return msg, err
	})
}

func slowRunner(delay time.Duration) Runner {
	return RunnerFunc(func(ctx context.Context) (message.Message, error) {
		select {
		case <-time.After(delay):
			return message.NewText("bot", role.Assistant, "done"), nil
		case <-ctx.Done():
			return message.Message{}, ctx.Err()
		}
	})
}

// --- Timeout tests ---

func TestTimeout(t *testing.T) {
	wrapped := Timeout(time.Second, "persona")(stubRunner(message.NewText("bot", role.Assistant, "done"), nil))

	msg, err := wrapped.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "done", msg.TextContent())
}

func TestTimeoutExpires(t *testing.T) {
	wrapped := Timeout(20*time.Millisecond, "persona")(slowRunner(time.Second))

	_, err := wrapped.Run(context.Background())

	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 20*time.Millisecond, te.After)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.EqualError(t, err, "agent persona: no final answer within 20ms")
}

func TestTimeout_ParentCancellationPassesThrough(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Timeout(time.Second, "persona")(slowRunner(time.Second)).Run(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	var te *TimeoutError
	assert.False(t, errors.As(err, &te))
}

// --- Recovery tests ---

func TestRecoveryCatchesPanic(t *testing.T) {
	wrapped := Recovery()(RunnerFunc(func(context.Context) (message.Message, error) {
		panic("something went wrong")
	}))

	_, err := wrapped.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "agent panicked: something went wrong")
}

func TestRecoveryPassesResult(t *testing.T) {
	msg, err := Recovery()(stubRunner(message.NewText("bot", role.Assistant, "ok"), nil)).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "ok", msg.TextContent())
}

// --- Logger tests ---

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	_, err := Logger(log, "persona")(stubRunner(message.Message{}, nil)).Run(context.Background())
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "agent started")
	assert.Contains(t, buf.String(), "agent finished")

	buf.Reset()
	_, err = Logger(log, "persona")(stubRunner(message.Message{}, errors.New("boom"))).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, buf.String(), "agent finished with error")
	assert.Contains(t, buf.String(), "error=boom")
}

// --- Chaining ---

func TestMiddlewareOrder(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next Runner) Runner {
			return RunnerFunc(func(ctx context.Context) (message.Message, error) {
				order = append(order, name)
				return next.Run(ctx)
			})
		}
	}

	sc := &scriptedCompleter{replies: []message.Message{message.NewText("", role.Assistant, "{}")}}
	a := New("persona", "sys", sc, Options{Middleware: []Middleware{tag("outer"), tag("inner")}})

	_, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "inner"}, order)
}
