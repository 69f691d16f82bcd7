package diligence

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/scoutvc/diligence/pkg/agent"
	"github.com/scoutvc/diligence/pkg/pipeline"
)

// Stage names. Finalize is the terminal stage and runs on every path.
const (
	StageInit             = "init"
	StageResearch         = "research"
	StageValidateResearch = "validate_research"
	StageAnalysis         = "analysis"
	StageSynthesis        = "synthesis"
	StageFinalize         = "finalize"
)

// Batch groups under State.BatchResults.
const (
	GroupResearch  = "research"
	GroupAnalysis  = "analysis"
	GroupSynthesis = "synthesis"
)

// Artifact names under State.Artifacts.
const (
	ArtifactFullReport = "full_report"
	ArtifactDecision   = "decision"
)

// Terminal outcomes written to State.CurrentStage by the finalize stage.
const (
	OutcomeComplete = "complete"
	OutcomePartial  = "partial"
	OutcomeFailed   = "failed"
)

// Stages binds the agent invoker and batch executor into the workflow's stage
// functions. Each method is a pipeline.StageFunc.
type Stages struct {
	invoker  agent.Invoker
	executor *pipeline.Executor
	cfg      Config
	logger   *slog.Logger
}

// NewStages wires the stage functions. A nil tracer leaves batch and task
// spans unrecorded.
func NewStages(invoker agent.Invoker, cfg Config, logger *slog.Logger, tracer trace.Tracer) *Stages {
	executorOpts := []pipeline.ExecutorOption{}
	if tracer != nil {
		executorOpts = append(executorOpts, pipeline.WithBatchTracer(tracer))
	}

	return &Stages{
		invoker:  invoker,
		executor: pipeline.NewExecutor(logger, executorOpts...),
		cfg:      cfg,
		logger:   logger.With("module", "diligence_stages"),
	}
}

// Init validates the workflow inputs. An empty subject name is recorded as an
// error log entry that routes the run straight to finalize.
func (s *Stages) Init(ctx context.Context, state pipeline.State) pipeline.Update {
	update := pipeline.Update{CurrentStage: StageInit}

	if state.SubjectName == "" {
		s.logger.WarnContext(ctx, "Rejecting run with no subject name")

		update.Errors = []string{pipeline.MissingInputEntry("subject_name")}
	}

	return update
}

// Research fans the research agents out as one capped batch. When the retry
// worklist is non-empty only those agents re-run; results append, so earlier
// attempts stay in the record. Each failed task also lands in the error log.
func (s *Stages) Research(ctx context.Context, state pipeline.State) pipeline.Update {
	agents := ResearchAgents

	if len(state.FailedTaskIDs) > 0 {
		agents = make([]AgentConfig, 0, len(state.FailedTaskIDs))

		for _, id := range state.FailedTaskIDs {
			if cfg, ok := researchAgentByName(id); ok {
				agents = append(agents, cfg)
			}
		}

		s.logger.InfoContext(ctx, "Retrying failed research tasks",
			"task_ids", state.FailedTaskIDs,
			"retry_count", state.RetryCount,
		)
	}

	specs := make([]pipeline.TaskSpec, 0, len(agents))
	for _, cfg := range agents {
		specs = append(specs, s.taskSpec(cfg, ResearchPrompt(cfg.Name, state), agent.ParseJSONOutput, false))
	}

	results := s.executor.RunBatch(ctx, GroupResearch, specs, s.cfg.ResearchConcurrency)

	return pipeline.Update{
		CurrentStage: StageResearch,
		BatchResults: map[string][]pipeline.TaskResult{GroupResearch: results},
		Errors:       taskFailureEntries(results),
	}
}

// ValidateResearch audits the research batch against the retry policy. Below
// the threshold it rebuilds the retry worklist from the latest attempt per
// task and spends one unit of retry budget; at or above it the worklist is
// cleared so a later pass cannot re-run stale IDs.
func (s *Stages) ValidateResearch(ctx context.Context, state pipeline.State) pipeline.Update {
	update := pipeline.Update{
		CurrentStage:  StageValidateResearch,
		FailedTaskIDs: []string{},
	}

	ratio, attempted := state.SuccessRatio(GroupResearch)
	if !attempted {
		update.Errors = []string{pipeline.CriticalEntry("research batch recorded no attempts")}

		return update
	}

	if ratio >= s.cfg.Retry.SuccessThreshold {
		s.logger.InfoContext(ctx, "Research batch complete", "success_ratio", ratio)

		return update
	}

	latest := state.LatestResults(GroupResearch)
	failed := []string{}

	for _, id := range state.AttemptedTaskIDs(GroupResearch) {
		if !latest[id].Succeeded {
			failed = append(failed, id)
		}
	}

	s.logger.WarnContext(ctx, "Research batch below threshold",
		"success_ratio", ratio,
		"threshold", s.cfg.Retry.SuccessThreshold,
		"failed_task_ids", failed,
		"retry_count", state.RetryCount,
	)

	update.FailedTaskIDs = failed
	update.RetryCount = pipeline.IntPtr(state.RetryCount + 1)
	update.Errors = []string{pipeline.CriticalEntry(
		"research success ratio %.2f below threshold %.2f, %d tasks failed",
		ratio, s.cfg.Retry.SuccessThreshold, len(failed),
	)}

	return update
}

// Analysis runs two waves: the independent analysts fan out unbounded, then
// the risk assessor runs alone over their combined output. Failed research is
// not a blocker; analysts work with whatever data survived.
func (s *Stages) Analysis(ctx context.Context, state pipeline.State) pipeline.Update {
	specs := make([]pipeline.TaskSpec, 0, len(IndependentAnalysisAgents))
	for _, cfg := range IndependentAnalysisAgents {
		specs = append(specs, s.taskSpec(cfg, AnalysisPrompt(cfg.Name, state), agent.ParseJSONOutput, false))
	}

	wave := s.executor.RunBatch(ctx, GroupAnalysis, specs, 0)

	// The risk assessor needs the first wave's results in its prompt, so it
	// reads a locally merged view of the state.
	staged := pipeline.Merge(state, pipeline.Update{
		BatchResults: map[string][]pipeline.TaskResult{GroupAnalysis: wave},
	})

	riskSpec := s.taskSpec(RiskAssessor, RiskPrompt(staged), agent.ParseJSONOutput, false)
	riskResults := s.executor.RunBatch(ctx, GroupAnalysis, []pipeline.TaskSpec{riskSpec}, 1)

	combined := append(wave, riskResults...)

	return pipeline.Update{
		CurrentStage: StageAnalysis,
		BatchResults: map[string][]pipeline.TaskResult{GroupAnalysis: combined},
		Errors:       taskFailureEntries(combined),
	}
}

// Synthesis generates the report, then asks the decision agent for a
// schema-validated recommendation. The decision runs even when the report
// failed, on whatever material remains.
func (s *Stages) Synthesis(ctx context.Context, state pipeline.State) pipeline.Update {
	update := pipeline.Update{
		CurrentStage: StageSynthesis,
		Artifacts:    make(map[string]any),
	}

	reportSpec := s.taskSpec(ReportGenerator, ReportPrompt(state), nil, false)
	reportResults := s.executor.RunBatch(ctx, GroupSynthesis, []pipeline.TaskSpec{reportSpec}, 1)

	staged := state
	if report := reportResults[0]; report.Succeeded {
		update.Artifacts[ArtifactFullReport] = report.RawText

		staged = pipeline.Merge(state, pipeline.Update{
			Artifacts: map[string]any{ArtifactFullReport: report.RawText},
		})
	} else {
		s.logger.WarnContext(ctx, "Report generation failed, deciding without a report",
			"error", report.ErrorMessage,
		)
	}

	decisionSpec := s.taskSpec(DecisionAgent, DecisionPrompt(staged, s.cfg.ReportCharLimit), DecisionOutputSchema.Parser(), true)
	decisionResults := s.executor.RunBatch(ctx, GroupSynthesis, []pipeline.TaskSpec{decisionSpec}, 1)

	if decision := decisionResults[0]; decision.Succeeded {
		update.Artifacts[ArtifactDecision] = decision.Output
	}

	results := append(reportResults, decisionResults...)

	update.BatchResults = map[string][]pipeline.TaskResult{GroupSynthesis: results}
	update.Errors = taskFailureEntries(results)

	return update
}

// Finalize classifies the run. Both artifacts present is complete, one of the
// two is partial, neither is failed. An invalid-input run is always failed.
func (s *Stages) Finalize(ctx context.Context, state pipeline.State) pipeline.Update {
	outcome := classifyOutcome(state)

	s.logger.InfoContext(ctx, "Run finalized",
		"subject", state.SubjectName,
		"outcome", outcome,
		"retry_count", state.RetryCount,
		"errors", len(state.ErrorLog),
	)

	return pipeline.Update{CurrentStage: outcome}
}

// taskFailureEntries converts a batch's failed results into error log entries,
// one "<task_id>: <message>" line per failed task.
func taskFailureEntries(results []pipeline.TaskResult) []string {
	entries := []string{}

	for _, result := range results {
		if !result.Succeeded {
			entries = append(entries, fmt.Sprintf("%s: %s", result.TaskID, result.ErrorMessage))
		}
	}

	return entries
}

func classifyOutcome(state pipeline.State) string {
	for _, entry := range state.ErrorLog {
		if pipeline.IsMissingInputEntry(entry) {
			return OutcomeFailed
		}
	}

	hasReport := state.Artifact(ArtifactFullReport) != nil
	hasDecision := state.Artifact(ArtifactDecision) != nil

	switch {
	case hasReport && hasDecision:
		return OutcomeComplete
	case hasReport || hasDecision:
		return OutcomePartial
	default:
		return OutcomeFailed
	}
}

// taskSpec adapts one agent configuration into a schedulable task. Partial
// response text streams into the capture buffer so a timeout still leaves
// diagnostics behind.
func (s *Stages) taskSpec(cfg AgentConfig, prompt string, parse pipeline.StructuredParser, requireStructured bool) pipeline.TaskSpec {
	request := cfg.Request(prompt)

	return pipeline.TaskSpec{
		ID:                cfg.Name,
		Timeout:           cfg.Timeout,
		Parse:             parse,
		RequireStructured: requireStructured,
		Invoke: func(ctx context.Context, capture *pipeline.Capture) (string, error) {
			text, diags, err := s.invoker.Invoke(ctx, request, capture)
			if err != nil {
				return "", fmt.Errorf("invoke %s: %w", cfg.Name, err)
			}

			s.logger.InfoContext(ctx, "Agent responded",
				"agent", cfg.Name,
				"model", diags.Model,
				"total_tokens", diags.TotalTokens,
				"stop_reason", diags.StopReason,
			)

			return text, nil
		},
	}
}
