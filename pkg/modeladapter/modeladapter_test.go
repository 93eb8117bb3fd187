package modeladapter_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/germanamz/persona/pkg/modeladapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequest_BearerAuth(t *testing.T) {
	a := modeladapter.New("https://api.example.com", modeladapter.Auth{Key: "sk-test"}, nil)

	req, err := a.NewRequest(context.Background(), http.MethodPost, "/v1/chat/completions", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/v1/chat/completions", req.URL.String())
	assert.Equal(t, "Bearer sk-test", req.Header.Get("Authorization"))
}

func TestNewRequest_CustomHeader(t *testing.T) {
	a := modeladapter.New("https://api.example.com", modeladapter.Auth{Key: "sk-ant", Header: "x-api-key"}, nil)

	req, err := a.NewRequest(context.Background(), http.MethodPost, "/v1/messages", nil)
	require.NoError(t, err)
	assert.Equal(t, "sk-ant", req.Header.Get("x-api-key"))
	assert.Empty(t, req.Header.Get("Authorization"))
}

func TestNewRequest_CustomHeaderWithScheme(t *testing.T) {
	a := modeladapter.New("https://api.example.com", modeladapter.Auth{Key: "k", Header: "x-api-key", Scheme: "Token"}, nil)

	req, err := a.NewRequest(context.Background(), http.MethodGet, "/", nil)
	require.NoError(t, err)
	assert.Equal(t, "Token k", req.Header.Get("x-api-key"))
}

func TestNewRequest_NoAuthAndExtraHeaders(t *testing.T) {
	a := modeladapter.New("https://api.example.com", modeladapter.Auth{}, nil)
	a.Headers = map[string]string{"anthropic-version": "2023-06-01"}

	req, err := a.NewRequest(context.Background(), http.MethodGet, "/", nil)
	require.NoError(t, err)
	assert.Empty(t, req.Header.Get("Authorization"))
	assert.Equal(t, "2023-06-01", req.Header.Get("anthropic-version"))
}

func TestPostJSON_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var got map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		assert.Equal(t, "gpt-4", got["model"])

		w.Header().Set("x-ratelimit-remaining-requests", "42")
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "chatcmpl-1"})
	}))
	defer srv.Close()

	a := modeladapter.New(srv.URL, modeladapter.Auth{Key: "sk"}, srv.Client())
	a.HeaderParser = modeladapter.ParseOpenAIRateLimitHeaders

	var dest map[string]string
	err := a.PostJSON(context.Background(), "/v1/chat/completions", map[string]string{"model": "gpt-4"}, &dest)
	require.NoError(t, err)
	assert.Equal(t, "chatcmpl-1", dest["id"])

	info := a.LastRateLimitInfo()
	require.NotNil(t, info)
	assert.Equal(t, 42, info.RemainingRequests)
}

func TestPostJSON_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid api key"}`))
	}))
	defer srv.Close()

	a := modeladapter.New(srv.URL, modeladapter.Auth{}, srv.Client())

	err := a.PostJSON(context.Background(), "/v1/chat/completions", map[string]string{}, nil)

	var se *modeladapter.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.Code)
	assert.Contains(t, se.Body, "invalid api key")
}

func TestPostJSON_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	}))
	defer srv.Close()

	a := modeladapter.New(srv.URL, modeladapter.Auth{}, srv.Client())

	err := a.PostJSON(context.Background(), "/", map[string]string{}, nil)

	var rle *modeladapter.RateLimitError
	require.ErrorAs(t, err, &rle)
	assert.Equal(t, 7*time.Second, rle.RetryAfter)
	assert.Equal(t, "slow down", rle.Body)
}

func TestPostJSON_MarshalError(t *testing.T) {
	a := modeladapter.New("https://api.example.com", modeladapter.Auth{}, nil)

	err := a.PostJSON(context.Background(), "/", make(chan int), nil)
	assert.ErrorContains(t, err, "marshal payload")
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, time.Duration(0), modeladapter.ParseRetryAfter(""))
	assert.Equal(t, 3*time.Second, modeladapter.ParseRetryAfter("3"))
	assert.Equal(t, time.Duration(0), modeladapter.ParseRetryAfter("soon"))
	assert.Equal(t, time.Duration(0), modeladapter.ParseRetryAfter("Wed, 21 Oct 2015 07:28:00 GMT"))

	future := time.Now().Add(time.Hour).UTC().Format(http.TimeFormat)
	assert.Greater(t, modeladapter.ParseRetryAfter(future), 50*time.Minute)
}

func TestInvocation(t *testing.T) {
	assert.NoError(t, modeladapter.Invocation("gpt-4", nil))

	err := modeladapter.Invocation("gpt-4", errors.New("connection refused"))
	var ie *modeladapter.InvocationError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "gpt-4", ie.Model)
	assert.EqualError(t, err, "model invocation failed (gpt-4): connection refused")

	// Already wrapped errors are not wrapped twice.
	again := modeladapter.Invocation("other", fmt.Errorf("chain: %w", err))
	require.ErrorAs(t, again, &ie)
	assert.Equal(t, "gpt-4", ie.Model)

	assert.ErrorIs(t, modeladapter.Invocation("gpt-4", context.Canceled), context.Canceled)
	assert.False(t, errors.As(modeladapter.Invocation("gpt-4", context.Canceled), &ie))
	assert.False(t, errors.As(modeladapter.Invocation("gpt-4", fmt.Errorf("post: %w", context.DeadlineExceeded)), &ie))
}

func TestInvocationError_UnwrapsRateLimit(t *testing.T) {
	err := modeladapter.Invocation("", &modeladapter.RateLimitError{Body: "busy"})

	var rle *modeladapter.RateLimitError
	require.ErrorAs(t, err, &rle)
	assert.EqualError(t, err, "model invocation failed: rate limited: busy")
}
