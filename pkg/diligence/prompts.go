package diligence

import (
	"fmt"
	"sort"
	"strings"

	"github.com/scoutvc/diligence/pkg/pipeline"
)

// defaultReportCharLimit caps how much of the generated report is fed back
// into the decision agent's prompt.
const defaultReportCharLimit = 24000

var researchPromptTemplates = map[string]string{
	"company_profiler": "Research the company %q.\n%s\nReturn a JSON object with: company_name, website, founded_year, headquarters, business_model, products (array), funding_stage, employee_count_estimate, and notable_facts (array).",
	"market_researcher": "Analyze the market for %q.\n%s\nReturn a JSON object with: market_name, tam_estimate, sam_estimate, growth_rate, key_trends (array), market_maturity, and barriers_to_entry (array).",
	"competitor_scout": "Identify the main competitors of %q.\n%s\nReturn a JSON object with: competitors (array of {name, description, strengths, weaknesses}), market_position, and differentiation.",
	"team_investigator": "Research the founding team of %q.\n%s\nReturn a JSON object with: founders (array of {name, role, background, prior_companies}), team_strengths (array), and team_gaps (array).",
	"news_monitor": "Find recent news about %q.\n%s\nReturn a JSON object with: recent_news (array of {headline, date, summary, sentiment}), overall_sentiment, and notable_events (array).",
}

var analysisPromptTemplates = map[string]string{
	"financial_analyst": "Analyze the financial position of %s based on the research below.\n\n%s\n\nReturn a JSON object with: funding_history, estimated_burn_rate, revenue_signals, financial_health_score (1-10), and concerns (array).",
	"tech_evaluator":    "Evaluate the technology of %s based on the research below.\n\n%s\n\nReturn a JSON object with: tech_stack_assessment, innovation_level, defensibility, scalability_assessment, tech_score (1-10), and risks (array).",
	"legal_reviewer":    "Review potential legal and regulatory issues for %s based on the research below.\n\n%s\n\nReturn a JSON object with: regulatory_environment, compliance_requirements (array), legal_risks (array), and legal_score (1-10).",
}

// subjectBrief renders the description and deal context lines shared by all
// research prompts.
func subjectBrief(state pipeline.State) string {
	var b strings.Builder

	if state.SubjectDescription != "" {
		fmt.Fprintf(&b, "Description: %s\n", state.SubjectDescription)
	}

	if state.Context != "" {
		fmt.Fprintf(&b, "Additional context: %s\n", state.Context)
	}

	return b.String()
}

// ResearchPrompt builds the prompt for one research agent.
func ResearchPrompt(agentName string, state pipeline.State) string {
	template, ok := researchPromptTemplates[agentName]
	if !ok {
		return fmt.Sprintf("Research %q.\n%s", state.SubjectName, subjectBrief(state))
	}

	return fmt.Sprintf(template, state.SubjectName, subjectBrief(state))
}

// AnalysisPrompt builds the prompt for one first-wave analysis agent. The
// research digest carries only successful task output; failed research simply
// leaves a gap the analyst works around.
func AnalysisPrompt(agentName string, state pipeline.State) string {
	template, ok := analysisPromptTemplates[agentName]
	if !ok {
		return fmt.Sprintf("Analyze %s based on the research below.\n\n%s", state.SubjectName, resultsDigest(state, GroupResearch))
	}

	return fmt.Sprintf(template, state.SubjectName, resultsDigest(state, GroupResearch))
}

// RiskPrompt builds the risk assessor's prompt from both the research layer
// and the first analysis wave.
func RiskPrompt(state pipeline.State) string {
	return fmt.Sprintf(
		"Assess the overall risk profile of %s.\n\nResearch findings:\n%s\nAnalysis findings:\n%s\nReturn a JSON object with: risk_categories (array of {category, severity, description}), overall_risk_level, mitigants (array), and risk_score (1-10 where 10 is highest risk).",
		state.SubjectName,
		resultsDigest(state, GroupResearch),
		resultsDigest(state, GroupAnalysis),
	)
}

// ReportPrompt builds the report generator's prompt from everything gathered
// so far.
func ReportPrompt(state pipeline.State) string {
	return fmt.Sprintf(
		"Write a comprehensive due diligence report on %s.\n\nResearch findings:\n%s\nAnalysis findings:\n%s\nStructure the report with sections for company overview, market, competition, team, financials, technology, legal, and risks. Note explicitly where data was unavailable. Write in markdown.",
		state.SubjectName,
		resultsDigest(state, GroupResearch),
		resultsDigest(state, GroupAnalysis),
	)
}

// DecisionPrompt builds the decision agent's prompt from the report and the
// risk assessment, truncating the report to the configured character limit.
func DecisionPrompt(state pipeline.State, reportCharLimit int) string {
	if reportCharLimit <= 0 {
		reportCharLimit = defaultReportCharLimit
	}

	report := "(report unavailable)"
	if value, ok := state.Artifact(ArtifactFullReport).(string); ok && value != "" {
		report = truncate(value, reportCharLimit)
	}

	risk := "(risk assessment unavailable)"
	if result, ok := state.LatestResults(GroupAnalysis)[RiskAssessor.Name]; ok && result.Succeeded {
		risk = taskDigest(result)
	}

	return fmt.Sprintf(
		"Based on the due diligence report and risk assessment below, make an investment recommendation for %s.\n\nReport:\n%s\n\nRisk assessment:\n%s\n\nReturn a JSON object with: recommendation (one of strong_invest, invest, hold, pass, strong_pass), confidence (0-1), key_factors_for (array), key_factors_against (array), conditions (array), and summary_rationale.",
		state.SubjectName,
		report,
		risk,
	)
}

// resultsDigest renders the latest successful results of a batch group as a
// titled section per task, in stable task-name order.
func resultsDigest(state pipeline.State, group string) string {
	latest := state.LatestResults(group)

	names := make([]string, 0, len(latest))
	for name := range latest {
		names = append(names, name)
	}

	sort.Strings(names)

	var b strings.Builder

	for _, name := range names {
		result := latest[name]
		if !result.Succeeded {
			fmt.Fprintf(&b, "## %s\n(no data: task did not complete)\n\n", name)

			continue
		}

		fmt.Fprintf(&b, "## %s\n%s\n\n", name, taskDigest(result))
	}

	if b.Len() == 0 {
		return "(no findings available)\n"
	}

	return b.String()
}

// taskDigest prefers the raw text of a result; structured output alone is
// rendered as its raw source anyway, so RawText is the canonical carrier.
func taskDigest(result pipeline.TaskResult) string {
	return strings.TrimSpace(result.RawText)
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}

	return s[:limit] + "\n\n[report truncated]"
}
