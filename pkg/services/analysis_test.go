package services

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scoutvc/diligence/pkg/diligence"
	"github.com/scoutvc/diligence/pkg/eventbus"
	"github.com/scoutvc/diligence/pkg/events"
	"github.com/scoutvc/diligence/pkg/models"
	"github.com/scoutvc/diligence/pkg/persistence/file"
	"github.com/scoutvc/diligence/pkg/pipeline"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// stubRunner scripts workflow outcomes without any agent calls.
type stubRunner struct {
	mu      sync.Mutex
	runs    int
	result  diligence.Result
	err     error
	started chan struct{}
	release chan struct{}
}

func newStubRunner(result diligence.Result, err error) *stubRunner {
	return &stubRunner{result: result, err: err}
}

func (r *stubRunner) Run(_ context.Context, subjectName, _, _ string) (diligence.Result, error) {
	r.mu.Lock()
	r.runs++
	r.mu.Unlock()

	if r.started != nil {
		r.started <- struct{}{}
	}

	if r.release != nil {
		<-r.release
	}

	if r.err != nil {
		return diligence.Result{}, r.err
	}

	result := r.result
	result.State = pipeline.NewState(subjectName, "", "")

	return result, nil
}

func (r *stubRunner) runCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.runs
}

func newService(t *testing.T, runner Runner, bus eventbus.EventBus) *Analysis {
	t.Helper()

	return NewAnalysis(file.NewPersistence(t.TempDir()), runner, bus, testLogger())
}

func TestSubmit_RunsToCompletion(t *testing.T) {
	runner := newStubRunner(diligence.Result{
		Outcome:  diligence.OutcomeComplete,
		Report:   "report text",
		Decision: &diligence.Decision{Recommendation: "invest", Confidence: 0.8},
	}, nil)
	service := newService(t, runner, nil)

	ctx := context.Background()

	analysis, err := service.Submit(ctx, SubmitRequest{
		Owner:       "key-1",
		SubjectName: "Acme Robotics",
	})
	require.NoError(t, err)
	assert.Equal(t, models.AnalysisStatusQueued, analysis.Status)

	service.Wait()

	got, err := service.Get(ctx, "key-1", analysis.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AnalysisStatusComplete, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, "invest", got.Result.Decision.Recommendation)
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, 1, runner.runCount())
}

func TestSubmit_ValidationRejectsBadRequests(t *testing.T) {
	service := newService(t, newStubRunner(diligence.Result{}, nil), nil)
	ctx := context.Background()

	_, err := service.Submit(ctx, SubmitRequest{Owner: "key-1", SubjectName: "A"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = service.Submit(ctx, SubmitRequest{SubjectName: "Acme"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestSubmit_EnforcesPerOwnerLimit(t *testing.T) {
	runner := newStubRunner(diligence.Result{Outcome: diligence.OutcomeComplete}, nil)
	runner.started = make(chan struct{}, DefaultMaxActivePerOwner+1)
	runner.release = make(chan struct{})

	service := newService(t, runner, nil)
	ctx := context.Background()

	for range DefaultMaxActivePerOwner {
		_, err := service.Submit(ctx, SubmitRequest{Owner: "key-1", SubjectName: "Acme Robotics"})
		require.NoError(t, err)
		<-runner.started
	}

	_, err := service.Submit(ctx, SubmitRequest{Owner: "key-1", SubjectName: "One Too Many"})
	assert.ErrorIs(t, err, ErrTooManyActiveAnalyses)

	// The limit is per key, not global.
	_, err = service.Submit(ctx, SubmitRequest{Owner: "key-2", SubjectName: "Other Corp"})
	require.NoError(t, err)
	<-runner.started

	close(runner.release)
	service.Wait()
}

func TestSubmit_RunnerErrorMarksFailed(t *testing.T) {
	service := newService(t, newStubRunner(diligence.Result{}, errors.New("graph exploded")), nil)
	ctx := context.Background()

	analysis, err := service.Submit(ctx, SubmitRequest{Owner: "key-1", SubjectName: "Acme Robotics"})
	require.NoError(t, err)

	service.Wait()

	got, err := service.Get(ctx, "key-1", analysis.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AnalysisStatusFailed, got.Status)
	assert.Contains(t, got.Error, "graph exploded")
}

func TestGet_ScopedToOwner(t *testing.T) {
	service := newService(t, newStubRunner(diligence.Result{Outcome: diligence.OutcomeComplete}, nil), nil)
	ctx := context.Background()

	analysis, err := service.Submit(ctx, SubmitRequest{Owner: "key-1", SubjectName: "Acme Robotics"})
	require.NoError(t, err)
	service.Wait()

	_, err = service.Get(ctx, "key-2", analysis.ID)
	assert.True(t, IsAnalysisNotFound(err), "another owner's analysis must read as not found")
}

func TestSubmit_PublishesLifecycleEvents(t *testing.T) {
	bus := eventbus.NewGoChannelEventBus(testLogger())
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	finished := make(chan *events.AnalysisFinished, 1)
	require.NoError(t, bus.Handle(events.AnalysisFinishedEvent, func(_ context.Context, event any) error {
		finished <- event.(*events.AnalysisFinished)

		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx))

	runner := newStubRunner(diligence.Result{
		Outcome:  diligence.OutcomeComplete,
		Decision: &diligence.Decision{Recommendation: "hold"},
	}, nil)
	service := newService(t, runner, bus)

	analysis, err := service.Submit(ctx, SubmitRequest{Owner: "key-1", SubjectName: "Acme Robotics"})
	require.NoError(t, err)
	service.Wait()

	select {
	case event := <-finished:
		assert.Equal(t, analysis.ID, event.AnalysisID)
		assert.Equal(t, diligence.OutcomeComplete, event.Outcome)
		assert.Equal(t, "hold", event.Recommendation)
	case <-time.After(2 * time.Second):
		t.Fatal("finished event not published")
	}
}
