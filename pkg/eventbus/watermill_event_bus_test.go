package eventbus

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scoutvc/diligence/pkg/events"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestGoChannelEventBus_PublishSubscribe(t *testing.T) {
	bus := NewGoChannelEventBus(testLogger())
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan *events.AnalysisFinished, 1)

	err := bus.Handle(events.AnalysisFinishedEvent, func(_ context.Context, event any) error {
		finished, ok := event.(*events.AnalysisFinished)
		require.True(t, ok)

		received <- finished

		return nil
	})
	require.NoError(t, err)
	require.NoError(t, bus.Subscribe(ctx))

	published := events.AnalysisFinished{
		BaseEvent:      events.NewBaseEvent(events.AnalysisFinishedEvent, "analysis-1"),
		Outcome:        "complete",
		Recommendation: "invest",
	}
	require.NoError(t, bus.Publish(ctx, "analysis-1", published))

	select {
	case got := <-received:
		assert.Equal(t, "analysis-1", got.AnalysisID)
		assert.Equal(t, "complete", got.Outcome)
		assert.Equal(t, "invest", got.Recommendation)
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestGoChannelEventBus_UnhandledEventTypesAreAcked(t *testing.T) {
	bus := NewGoChannelEventBus(testLogger())
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan *events.AnalysisFinished, 1)

	err := bus.Handle(events.AnalysisFinishedEvent, func(_ context.Context, event any) error {
		received <- event.(*events.AnalysisFinished)

		return nil
	})
	require.NoError(t, err)
	require.NoError(t, bus.Subscribe(ctx))

	// No handler registered for queued events: they must not wedge the stream.
	queued := events.AnalysisQueued{
		BaseEvent:   events.NewBaseEvent(events.AnalysisQueuedEvent, "analysis-1"),
		SubjectName: "Acme",
	}
	require.NoError(t, bus.Publish(ctx, "analysis-1", queued))

	finished := events.AnalysisFinished{
		BaseEvent: events.NewBaseEvent(events.AnalysisFinishedEvent, "analysis-1"),
		Outcome:   "partial",
	}
	require.NoError(t, bus.Publish(ctx, "analysis-1", finished))

	select {
	case got := <-received:
		assert.Equal(t, "partial", got.Outcome)
	case <-time.After(2 * time.Second):
		t.Fatal("handled event was not delivered after an unhandled one")
	}
}

func TestWatermillEventBus_GenerateID(t *testing.T) {
	bus := NewGoChannelEventBus(testLogger())
	defer bus.Close()

	assert.NotEmpty(t, bus.GenerateID())
	assert.NotEqual(t, bus.GenerateID(), bus.GenerateID())
}
