package agent

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type captureSink struct {
	mu sync.Mutex
	b  strings.Builder
}

func (s *captureSink) Append(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.b.WriteString(text)
}

func (s *captureSink) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.b.String()
}

func fastRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		BackoffBase:       time.Millisecond,
		BackoffMultiplier: 1.0,
		MaxBackoff:        time.Millisecond,
	}
}

func messagesResponse(text string) string {
	return `{
		"content": [{"type": "text", "text": ` + mustJSON(text) + `}],
		"model": "fast-tier",
		"stop_reason": "end_turn",
		"usage": {"input_tokens": 100, "output_tokens": 40}
	}`
}

func mustJSON(s string) string {
	b, _ := json.Marshal(s)

	return string(b)
}

func TestClient_Invoke(t *testing.T) {
	var gotBody apiRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))

		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		_, _ = w.Write([]byte(messagesResponse("the profile")))
	}))
	defer server.Close()

	client := NewClient(server.URL, WithAPIKey("secret"), WithRetryConfig(fastRetry()), WithLogger(testLogger()))

	sink := &captureSink{}
	text, diags, err := client.Invoke(context.Background(), Request{
		TaskName:            "company_profiler",
		Prompt:              "profile Acme",
		SystemPrompt:        "you are a researcher",
		Model:               "fast-tier",
		AllowedCapabilities: []string{"web_search"},
	}, sink)

	require.NoError(t, err)
	assert.Equal(t, "the profile", text)
	assert.Equal(t, "the profile", sink.String(), "partial text must be streamed to the sink")
	assert.Equal(t, 140, diags.TotalTokens)
	assert.Equal(t, "end_turn", diags.StopReason)

	assert.Equal(t, "fast-tier", gotBody.Model)
	assert.Equal(t, "you are a researcher", gotBody.System)
	require.Len(t, gotBody.Tools, 1)
	assert.Equal(t, "web_search", gotBody.Tools[0].Name)
}

func TestClient_RetriesTransientErrors(t *testing.T) {
	var calls int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)

			return
		}

		_, _ = w.Write([]byte(messagesResponse("finally")))
	}))
	defer server.Close()

	client := NewClient(server.URL, WithRetryConfig(fastRetry()), WithLogger(testLogger()))

	text, _, err := client.Invoke(context.Background(), Request{TaskName: "t", Model: "m", Prompt: "p"}, nil)

	require.NoError(t, err)
	assert.Equal(t, "finally", text)
	assert.Equal(t, 3, calls)
}

func TestClient_FatalErrorNotRetried(t *testing.T) {
	var calls int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(server.URL, WithRetryConfig(fastRetry()), WithLogger(testLogger()))

	_, _, err := client.Invoke(context.Background(), Request{TaskName: "t", Model: "m", Prompt: "p"}, nil)

	require.Error(t, err)
	assert.True(t, IsFatal(err))
	assert.Equal(t, 1, calls)
}

func TestClient_ExhaustedRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient(server.URL, WithRetryConfig(fastRetry()), WithLogger(testLogger()))

	_, _, err := client.Invoke(context.Background(), Request{TaskName: "t", Model: "m", Prompt: "p"}, nil)

	require.Error(t, err)
	assert.ErrorContains(t, err, "after 3 attempts")
}

func TestClassifyHTTPError(t *testing.T) {
	assert.True(t, IsTransient(classifyHTTPError(http.StatusTooManyRequests, nil)))
	assert.True(t, IsTransient(classifyHTTPError(http.StatusBadGateway, nil)))
	assert.True(t, IsFatal(classifyHTTPError(http.StatusUnauthorized, nil)))
	assert.True(t, IsFatal(classifyHTTPError(http.StatusBadRequest, nil)))
	assert.True(t, IsFatal(classifyHTTPError(http.StatusTeapot, nil)))
}
