// Package diligence defines the startup due-diligence workflow: eleven agents
// in three layers (research, analysis, synthesis) wired into the pipeline
// engine's stage graph.
package diligence

import (
	"time"

	"github.com/scoutvc/diligence/pkg/agent"
)

// ModelTier is a semantic model class resolved to a backend identifier.
type ModelTier string

const (
	TierFast     ModelTier = "fast"
	TierStandard ModelTier = "standard"
	TierDeep     ModelTier = "deep"
)

var modelMapping = map[ModelTier]string{
	TierFast:     "claude-3-5-haiku-latest",
	TierStandard: "claude-sonnet-4-20250514",
	TierDeep:     "claude-opus-4-20250514",
}

// ModelID resolves a tier to its backend model identifier. Unknown values
// pass through so full model names can be used directly.
func ModelID(tier ModelTier) string {
	if id, ok := modelMapping[tier]; ok {
		return id
	}

	return string(tier)
}

// AgentConfig describes one agent: its identity, model tier, allowed backend
// capabilities, timeout, and persona.
type AgentConfig struct {
	Name         string
	Tier         ModelTier
	Capabilities []string
	Timeout      time.Duration
	SystemPrompt string
}

// Request builds the invocation request for this agent with the given prompt.
func (c AgentConfig) Request(prompt string) agent.Request {
	return agent.Request{
		TaskName:            c.Name,
		Prompt:              prompt,
		SystemPrompt:        c.SystemPrompt,
		Model:               ModelID(c.Tier),
		AllowedCapabilities: c.Capabilities,
	}
}

// Layer 1: research agents. Web-capable, fast tier, run as one capped batch.

var CompanyProfiler = AgentConfig{
	Name:         "company_profiler",
	Tier:         TierFast,
	Capabilities: []string{"web_search", "web_fetch"},
	Timeout:      90 * time.Second,
	SystemPrompt: "You are a company research specialist. Research companies thoroughly and return structured data about their business, founding, and operations.",
}

var MarketResearcher = AgentConfig{
	Name:         "market_researcher",
	Tier:         TierFast,
	Capabilities: []string{"web_search", "web_fetch"},
	Timeout:      90 * time.Second,
	SystemPrompt: "You are a market research analyst. Analyze market opportunities, TAM/SAM/SOM, trends, and competitive landscape.",
}

var CompetitorScout = AgentConfig{
	Name:         "competitor_scout",
	Tier:         TierFast,
	Capabilities: []string{"web_search", "web_fetch"},
	Timeout:      90 * time.Second,
	SystemPrompt: "You are a competitive intelligence specialist. Identify and analyze competitors, their strengths, weaknesses, and market positioning.",
}

var TeamInvestigator = AgentConfig{
	Name:         "team_investigator",
	Tier:         TierFast,
	Capabilities: []string{"web_search", "web_fetch"},
	Timeout:      90 * time.Second,
	SystemPrompt: "You are a team research specialist. Research founders and key team members, their backgrounds, experience, and track records.",
}

var NewsMonitor = AgentConfig{
	Name:         "news_monitor",
	Tier:         TierFast,
	Capabilities: []string{"web_search", "web_fetch"},
	Timeout:      90 * time.Second,
	SystemPrompt: "You are a news analyst. Find recent news, press releases, and media coverage about companies.",
}

// Layer 2: analysis agents. Text-only, work from research output.

var FinancialAnalyst = AgentConfig{
	Name:         "financial_analyst",
	Tier:         TierStandard,
	Timeout:      120 * time.Second,
	SystemPrompt: "You are a financial analyst. Analyze financial data, funding history, burn rate, and financial health indicators.",
}

var TechEvaluator = AgentConfig{
	Name:         "tech_evaluator",
	Tier:         TierStandard,
	Timeout:      120 * time.Second,
	SystemPrompt: "You are a technology evaluator. Assess technical architecture, innovation, defensibility, and scalability.",
}

var LegalReviewer = AgentConfig{
	Name:         "legal_reviewer",
	Tier:         TierFast,
	Timeout:      90 * time.Second,
	SystemPrompt: "You are a legal analyst. Identify potential legal issues, regulatory concerns, and compliance requirements.",
}

// RiskAssessor runs after the other analysts join; its input is their output.
var RiskAssessor = AgentConfig{
	Name:         "risk_assessor",
	Tier:         TierFast,
	Timeout:      120 * time.Second,
	SystemPrompt: "You are a risk assessment specialist. Identify and evaluate business, market, technical, and regulatory risks.",
}

// Layer 3: synthesis agents, strictly sequential.

var ReportGenerator = AgentConfig{
	Name:         "report_generator",
	Tier:         TierStandard,
	Timeout:      180 * time.Second,
	SystemPrompt: "You are a report writer. Synthesize research and analysis into comprehensive, well-structured due diligence reports.",
}

var DecisionAgent = AgentConfig{
	Name:         "decision_agent",
	Tier:         TierDeep,
	Timeout:      180 * time.Second,
	SystemPrompt: "You are an investment decision advisor. Synthesize all available information to provide investment recommendations with confidence levels and key factors.",
}

// ResearchAgents is the full first-layer batch, in submission order.
var ResearchAgents = []AgentConfig{
	CompanyProfiler,
	MarketResearcher,
	CompetitorScout,
	TeamInvestigator,
	NewsMonitor,
}

// IndependentAnalysisAgents is the first analysis wave; RiskAssessor depends
// on their output and is sequenced after the join.
var IndependentAnalysisAgents = []AgentConfig{
	FinancialAnalyst,
	TechEvaluator,
	LegalReviewer,
}

// DecisionOutputSchema constrains the decision agent's structured output.
var DecisionOutputSchema = agent.MustCompileSchema(`{
	"type": "object",
	"required": ["recommendation", "confidence"],
	"properties": {
		"recommendation": {
			"type": "string",
			"enum": ["strong_invest", "invest", "hold", "pass", "strong_pass"]
		},
		"confidence": {"type": "number", "minimum": 0, "maximum": 1},
		"key_factors_for": {"type": "array", "items": {"type": "string"}},
		"key_factors_against": {"type": "array", "items": {"type": "string"}},
		"conditions": {"type": "array", "items": {"type": "string"}},
		"summary_rationale": {"type": "string"}
	}
}`)

func researchAgentByName(name string) (AgentConfig, bool) {
	for _, cfg := range ResearchAgents {
		if cfg.Name == name {
			return cfg, true
		}
	}

	return AgentConfig{}, false
}
