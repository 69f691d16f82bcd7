package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/scoutvc/diligence/pkg/diligence"
	"github.com/scoutvc/diligence/pkg/eventbus"
	"github.com/scoutvc/diligence/pkg/events"
	"github.com/scoutvc/diligence/pkg/models"
	"github.com/scoutvc/diligence/pkg/otelhelper"
	"github.com/scoutvc/diligence/pkg/persistence"
)

// DefaultMaxActivePerOwner is the per-key concurrent job limit.
const DefaultMaxActivePerOwner = 5

// Runner executes one due-diligence workflow run. *diligence.Workflow
// satisfies it.
type Runner interface {
	Run(ctx context.Context, subjectName, subjectDescription, dealContext string) (diligence.Result, error)
}

// Analysis is the job service: it accepts submissions, runs them in the
// background, and exposes owner-scoped reads.
type Analysis struct {
	persistence       persistence.Persistence
	runner            Runner
	bus               eventbus.EventBus
	validator         *validator.Validate
	logger            *slog.Logger
	maxActivePerOwner int

	wg sync.WaitGroup
}

func NewAnalysis(
	p persistence.Persistence,
	runner Runner,
	bus eventbus.EventBus,
	logger *slog.Logger,
) *Analysis {
	return &Analysis{
		persistence:       p,
		runner:            runner,
		bus:               bus,
		validator:         validator.New(),
		logger:            logger.With("module", "analysis_service"),
		maxActivePerOwner: DefaultMaxActivePerOwner,
	}
}

// SubmitRequest is one analysis submission.
type SubmitRequest struct {
	Owner              string `validate:"required"`
	SubjectName        string `validate:"required,min=2,max=200"`
	SubjectDescription string `validate:"max=2000"`
	Context            string `validate:"max=2000"`
}

// Submit validates the request, enforces the per-key limit, persists the
// queued job, and starts the workflow in the background.
func (s *Analysis) Submit(ctx context.Context, req SubmitRequest) (*models.Analysis, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	active, err := s.persistence.CountActiveByOwner(ctx, req.Owner)
	if err != nil {
		return nil, fmt.Errorf("count active analyses: %w", err)
	}

	if active >= s.maxActivePerOwner {
		return nil, ErrTooManyActiveAnalyses
	}

	analysis := models.NewAnalysis(req.Owner, req.SubjectName, req.SubjectDescription, req.Context)
	if err := s.persistence.SaveAnalysis(ctx, analysis); err != nil {
		return nil, fmt.Errorf("save analysis: %w", err)
	}

	s.publish(ctx, analysis.ID, events.AnalysisQueued{
		BaseEvent:   events.NewBaseEvent(events.AnalysisQueuedEvent, analysis.ID),
		Owner:       analysis.Owner,
		SubjectName: analysis.SubjectName,
	})

	s.logger.InfoContext(ctx, "Analysis queued",
		"analysis_id", analysis.ID,
		"subject", analysis.SubjectName,
		"owner", analysis.Owner,
	)

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		// The run outlives the HTTP request that submitted it.
		s.run(context.WithoutCancel(ctx), analysis)
	}()

	return analysis, nil
}

// Get returns one analysis scoped to its owner. Another owner's analysis
// reads as not found.
func (s *Analysis) Get(ctx context.Context, owner, id string) (*models.Analysis, error) {
	analysis, err := s.persistence.AnalysisByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if analysis.Owner != owner {
		return nil, persistence.NewAnalysisError("GetByID", id, ErrAnalysisNotFound)
	}

	return analysis, nil
}

// List returns the owner's analyses, newest first.
func (s *Analysis) List(ctx context.Context, owner string) ([]*models.Analysis, error) {
	return s.persistence.AnalysesByOwner(ctx, owner)
}

// HealthCheck checks the health of the persistence layer.
func (s *Analysis) HealthCheck(ctx context.Context) (string, bool) {
	if s.persistence == nil {
		return "Persistence layer not initialized", false
	}

	if err := s.persistence.HealthCheck(ctx); err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// Wait blocks until all background runs have settled. Used on shutdown and in
// tests.
func (s *Analysis) Wait() {
	s.wg.Wait()
}

func (s *Analysis) run(ctx context.Context, analysis *models.Analysis) {
	started := time.Now()

	// Uses the globally registered tracer provider; a no-op one when tracing
	// is disabled.
	ctx, span := otelhelper.StartSpan(ctx, otel.Tracer("analysis-service"), "analysis.run",
		attribute.String(otelhelper.AnalysisIDKey, analysis.ID),
		attribute.String(otelhelper.SubjectNameKey, analysis.SubjectName),
	)
	defer span.End()

	analysis.MarkRunning()
	if err := s.persistence.SaveAnalysis(ctx, analysis); err != nil {
		s.logger.ErrorContext(ctx, "Failed to mark analysis running", "analysis_id", analysis.ID, "error", err)
	}

	s.publish(ctx, analysis.ID, events.AnalysisStarted{
		BaseEvent:   events.NewBaseEvent(events.AnalysisStartedEvent, analysis.ID),
		SubjectName: analysis.SubjectName,
	})

	result, err := s.runner.Run(ctx, analysis.SubjectName, analysis.SubjectDescription, analysis.Context)
	if err != nil {
		s.logger.ErrorContext(ctx, "Analysis run errored", "analysis_id", analysis.ID, "error", err)
		otelhelper.SetError(span, err, attribute.String(otelhelper.AnalysisIDKey, analysis.ID))

		analysis.MarkFailed(err)

		if saveErr := s.persistence.SaveAnalysis(ctx, analysis); saveErr != nil {
			s.logger.ErrorContext(ctx, "Failed to save failed analysis", "analysis_id", analysis.ID, "error", saveErr)
		}

		s.publish(ctx, analysis.ID, events.AnalysisFailed{
			BaseEvent: events.NewBaseEvent(events.AnalysisFailedEvent, analysis.ID),
			Error:     err.Error(),
		})

		return
	}

	analysis.MarkFinished(result)

	if err := s.persistence.SaveAnalysis(ctx, analysis); err != nil {
		s.logger.ErrorContext(ctx, "Failed to save finished analysis", "analysis_id", analysis.ID, "error", err)
	}

	finished := events.AnalysisFinished{
		BaseEvent:  events.NewBaseEvent(events.AnalysisFinishedEvent, analysis.ID),
		Outcome:    result.Outcome,
		RetryCount: result.State.RetryCount,
		Duration:   time.Since(started),
	}
	if result.Decision != nil {
		finished.Recommendation = result.Decision.Recommendation
	}

	s.publish(ctx, analysis.ID, finished)

	s.logger.InfoContext(ctx, "Analysis finished",
		"analysis_id", analysis.ID,
		"outcome", result.Outcome,
		"duration", time.Since(started),
	)
}

func (s *Analysis) publish(ctx context.Context, key string, event eventbus.Event) {
	if s.bus == nil {
		return
	}

	if err := s.bus.Publish(ctx, key, event); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish event",
			"event_type", event.GetType(),
			"analysis_id", key,
			"error", err,
		)
	}
}
