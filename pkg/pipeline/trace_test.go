package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/scoutvc/diligence/pkg/otelhelper"
)

func TestRunBatch_RecordsBatchAndTaskSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	executor := NewExecutor(testLogger(), WithBatchTracer(provider.Tracer("test")))

	specs := []TaskSpec{
		{
			ID:      "steady",
			Timeout: time.Second,
			Invoke: func(_ context.Context, _ *Capture) (string, error) {
				return "fine", nil
			},
		},
		{
			ID:      "flaky",
			Timeout: time.Second,
			Invoke: func(_ context.Context, _ *Capture) (string, error) {
				return "", errors.New("backend unavailable")
			},
		},
	}

	executor.RunBatch(context.Background(), "research", specs, 2)

	spans := recorder.Ended()

	batch := findSpan(t, spans, "batch.research")
	assert.True(t, hasAttribute(batch, otelhelper.BatchNameKey, "research"))

	steady := findSpan(t, spans, "task.steady")
	assert.True(t, hasAttribute(steady, otelhelper.TaskIDKey, "steady"))
	assert.NotEqual(t, codes.Error, steady.Status().Code)

	// A failed task marks its span as errored with the task's error message.
	flaky := findSpan(t, spans, "task.flaky")
	assert.Equal(t, codes.Error, flaky.Status().Code)
	assert.Equal(t, "backend unavailable", flaky.Status().Description)
}

func TestRunBatch_TaskSpansNestUnderBatchSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	executor := NewExecutor(testLogger(), WithBatchTracer(provider.Tracer("test")))

	executor.RunBatch(context.Background(), "analysis", []TaskSpec{{
		ID:      "analyst",
		Timeout: time.Second,
		Invoke: func(_ context.Context, _ *Capture) (string, error) {
			return "done", nil
		},
	}}, 1)

	spans := recorder.Ended()

	batch := findSpan(t, spans, "batch.analysis")
	task := findSpan(t, spans, "task.analyst")

	assert.Equal(t, batch.SpanContext().SpanID(), task.Parent().SpanID())
}

func findSpan(t *testing.T, spans []sdktrace.ReadOnlySpan, name string) sdktrace.ReadOnlySpan {
	t.Helper()

	for _, span := range spans {
		if span.Name() == name {
			return span
		}
	}

	require.Failf(t, "span not recorded", "no span named %s", name)

	return nil
}

func hasAttribute(span sdktrace.ReadOnlySpan, key, value string) bool {
	for _, attr := range span.Attributes() {
		if string(attr.Key) == key && attr.Value.AsString() == value {
			return true
		}
	}

	return false
}
