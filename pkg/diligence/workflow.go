package diligence

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/scoutvc/diligence/pkg/agent"
	"github.com/scoutvc/diligence/pkg/pipeline"
)

// Config tunes the workflow independently of the agent roster.
type Config struct {
	// Retry governs research validation: how many failing passes are allowed
	// and what success ratio lets the run proceed.
	Retry pipeline.RetryPolicy

	// ResearchConcurrency caps how many research agents run at once.
	ResearchConcurrency int

	// ReportCharLimit bounds how much report text the decision prompt carries.
	ReportCharLimit int
}

func DefaultConfig() Config {
	return Config{
		Retry:               pipeline.DefaultRetryPolicy(),
		ResearchConcurrency: 2,
		ReportCharLimit:     defaultReportCharLimit,
	}
}

// Option configures workflow construction.
type Option func(*Workflow)

func WithLogger(logger *slog.Logger) Option {
	return func(w *Workflow) {
		w.logger = logger
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(w *Workflow) {
		w.tracer = tracer
	}
}

// Workflow is the compiled due-diligence pipeline. It is immutable and safe
// for concurrent runs.
type Workflow struct {
	driver *pipeline.Driver
	cfg    Config
	logger *slog.Logger
	tracer trace.Tracer
}

// New compiles the stage graph:
//
//	init -(success)-> research -> validate_research -(complete)-> analysis -> synthesis -> finalize
//	  \-(failed)-> finalize         |-(incomplete)-> research (targeted retry)
//	                                \-(failed)-> finalize
func New(invoker agent.Invoker, cfg Config, opts ...Option) (*Workflow, error) {
	w := &Workflow{
		cfg:    cfg,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(w)
	}

	stages := NewStages(invoker, cfg, w.logger, w.tracer)

	graph := pipeline.NewGraph().
		AddStage(StageInit, stages.Init).
		AddStage(StageResearch, stages.Research).
		AddStage(StageValidateResearch, stages.ValidateResearch).
		AddStage(StageAnalysis, stages.Analysis).
		AddStage(StageSynthesis, stages.Synthesis).
		AddStage(StageFinalize, stages.Finalize).
		SetEntry(StageInit).
		SetTerminal(StageFinalize).
		AddConditionalEdges(StageInit, pipeline.CheckInitSuccess, map[pipeline.Decision]string{
			pipeline.DecisionSuccess: StageResearch,
			pipeline.DecisionFailed:  StageFinalize,
		}).
		AddEdge(StageResearch, StageValidateResearch).
		AddConditionalEdges(StageValidateResearch, pipeline.CheckBatchCompleteness(GroupResearch, cfg.Retry), map[pipeline.Decision]string{
			pipeline.DecisionComplete:   StageAnalysis,
			pipeline.DecisionIncomplete: StageResearch,
			pipeline.DecisionFailed:     StageFinalize,
		}).
		AddEdge(StageAnalysis, StageSynthesis).
		AddEdge(StageSynthesis, StageFinalize)

	driverOpts := []pipeline.DriverOption{pipeline.WithLogger(w.logger)}
	if w.tracer != nil {
		driverOpts = append(driverOpts, pipeline.WithTracer(w.tracer))
	}

	driver, err := graph.Compile(driverOpts...)
	if err != nil {
		return nil, fmt.Errorf("compile workflow graph: %w", err)
	}

	w.driver = driver

	return w, nil
}

// Decision is the decision agent's structured recommendation.
type Decision struct {
	Recommendation    string   `json:"recommendation"`
	Confidence        float64  `json:"confidence"`
	KeyFactorsFor     []string `json:"key_factors_for,omitempty"`
	KeyFactorsAgainst []string `json:"key_factors_against,omitempty"`
	Conditions        []string `json:"conditions,omitempty"`
	SummaryRationale  string   `json:"summary_rationale,omitempty"`
}

// Result is the terminal classification of one run plus its artifacts and the
// full final state for persistence.
type Result struct {
	Outcome  string         `json:"outcome"`
	Report   string         `json:"report,omitempty"`
	Decision *Decision      `json:"decision,omitempty"`
	State    pipeline.State `json:"state"`
}

// Run executes the workflow for one subject and classifies the outcome.
func (w *Workflow) Run(ctx context.Context, subjectName, subjectDescription, dealContext string) (Result, error) {
	state, err := w.driver.Run(ctx, pipeline.NewState(subjectName, subjectDescription, dealContext))
	if err != nil {
		return Result{State: state}, err
	}

	return buildResult(state), nil
}

func buildResult(state pipeline.State) Result {
	result := Result{
		Outcome: state.CurrentStage,
		State:   state,
	}

	if report, ok := state.Artifact(ArtifactFullReport).(string); ok {
		result.Report = report
	}

	if raw, ok := state.Artifact(ArtifactDecision).(map[string]any); ok {
		result.Decision = decodeDecision(raw)
	}

	return result
}

func decodeDecision(raw map[string]any) *Decision {
	decision := &Decision{}

	if v, ok := raw["recommendation"].(string); ok {
		decision.Recommendation = v
	}

	if v, ok := raw["confidence"].(float64); ok {
		decision.Confidence = v
	}

	decision.KeyFactorsFor = stringSlice(raw["key_factors_for"])
	decision.KeyFactorsAgainst = stringSlice(raw["key_factors_against"])
	decision.Conditions = stringSlice(raw["conditions"])

	if v, ok := raw["summary_rationale"].(string); ok {
		decision.SummaryRationale = v
	}

	return decision
}

func stringSlice(value any) []string {
	items, ok := value.([]any)
	if !ok {
		return nil
	}

	out := make([]string, 0, len(items))

	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}

	return out
}
