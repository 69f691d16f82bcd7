package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestRunner_Success(t *testing.T) {
	runner := NewRunner(testLogger())

	result := runner.Run(context.Background(), TaskSpec{
		ID:      "profiler",
		Timeout: time.Second,
		Invoke: func(_ context.Context, _ *Capture) (string, error) {
			return "all good", nil
		},
	})

	assert.True(t, result.Succeeded)
	assert.Equal(t, "profiler", result.TaskID)
	assert.Equal(t, "all good", result.RawText)
	assert.Empty(t, result.ErrorMessage)
	assert.GreaterOrEqual(t, result.ElapsedMillis, int64(0))
}

func TestRunner_TimeoutPreservesPartialOutput(t *testing.T) {
	runner := NewRunner(testLogger())

	result := runner.Run(context.Background(), TaskSpec{
		ID:      "slow",
		Timeout: 50 * time.Millisecond,
		Invoke: func(ctx context.Context, capture *Capture) (string, error) {
			capture.Append("partial ")
			capture.Append("telemetry")
			<-ctx.Done()

			return "", ctx.Err()
		},
	})

	assert.False(t, result.Succeeded)
	assert.Equal(t, "Timeout after 0s", result.ErrorMessage)
	assert.True(t, IsTimeoutMessage(result.ErrorMessage))
	assert.Equal(t, "partial telemetry", result.RawText)
}

func TestRunner_TimeoutMessageFormat(t *testing.T) {
	assert.Equal(t, "Timeout after 90s", TimeoutMessage(90*time.Second))
}

func TestRunner_ErrorBecomesData(t *testing.T) {
	runner := NewRunner(testLogger())

	result := runner.Run(context.Background(), TaskSpec{
		ID:      "flaky",
		Timeout: time.Second,
		Invoke: func(_ context.Context, _ *Capture) (string, error) {
			return "", errors.New("backend unavailable")
		},
	})

	assert.False(t, result.Succeeded)
	assert.Equal(t, "backend unavailable", result.ErrorMessage)
}

func TestRunner_PanicIsIsolated(t *testing.T) {
	runner := NewRunner(testLogger())

	result := runner.Run(context.Background(), TaskSpec{
		ID:      "bomb",
		Timeout: time.Second,
		Invoke: func(_ context.Context, _ *Capture) (string, error) {
			panic("kaboom")
		},
	})

	assert.False(t, result.Succeeded)
	assert.Contains(t, result.ErrorMessage, "kaboom")
}

func TestRunner_InvalidTimeout(t *testing.T) {
	runner := NewRunner(testLogger())

	result := runner.Run(context.Background(), TaskSpec{
		ID: "misconfigured",
		Invoke: func(_ context.Context, _ *Capture) (string, error) {
			return "never runs", nil
		},
	})

	assert.False(t, result.Succeeded)
	assert.Equal(t, InvalidTimeoutMessage(0), result.ErrorMessage)
	assert.GreaterOrEqual(t, result.ElapsedMillis, int64(0))
}

func TestRunner_RequiredStructuredOutput(t *testing.T) {
	runner := NewRunner(testLogger())

	parse := func(raw string) map[string]any {
		if raw == `{"score": 7}` {
			return map[string]any{"score": 7}
		}

		return nil
	}

	structured := runner.Run(context.Background(), TaskSpec{
		ID:                "analyst",
		Timeout:           time.Second,
		Parse:             parse,
		RequireStructured: true,
		Invoke: func(_ context.Context, _ *Capture) (string, error) {
			return `{"score": 7}`, nil
		},
	})

	require.True(t, structured.Succeeded)
	assert.Equal(t, map[string]any{"score": 7}, structured.Output)

	prose := runner.Run(context.Background(), TaskSpec{
		ID:                "analyst",
		Timeout:           time.Second,
		Parse:             parse,
		RequireStructured: true,
		Invoke: func(_ context.Context, _ *Capture) (string, error) {
			return "a rambling essay", nil
		},
	})

	assert.False(t, prose.Succeeded)
	assert.Equal(t, "a rambling essay", prose.RawText, "raw text kept for diagnostics")
	assert.Contains(t, prose.ErrorMessage, "no parseable structured output")
}

func TestRunner_OptionalStructuredOutput(t *testing.T) {
	runner := NewRunner(testLogger())

	result := runner.Run(context.Background(), TaskSpec{
		ID:      "reporter",
		Timeout: time.Second,
		Parse:   func(string) map[string]any { return nil },
		Invoke: func(_ context.Context, _ *Capture) (string, error) {
			return "free-form report", nil
		},
	})

	assert.True(t, result.Succeeded, "structure not required, prose is fine")
	assert.Nil(t, result.Output)
}
