// Package web provides HTTP handlers and REST API endpoints for analyses.
package web

import (
	"time"

	"github.com/scoutvc/diligence/pkg/diligence"
	"github.com/scoutvc/diligence/pkg/models"
)

// CreateAnalysisRequest represents the request body for submitting an analysis.
type CreateAnalysisRequest struct {
	SubjectName        string `json:"subject_name"                  validate:"required,min=2,max=200"`
	SubjectDescription string `json:"subject_description,omitempty" validate:"max=2000"`
	Context            string `json:"context,omitempty"             validate:"max=2000"`
}

// AnalysisSummary is the list-view projection of an analysis.
type AnalysisSummary struct {
	ID             string                `json:"id"`
	SubjectName    string                `json:"subject_name"`
	Status         models.AnalysisStatus `json:"status"`
	Recommendation string                `json:"recommendation,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
	StartedAt      *time.Time            `json:"started_at,omitempty"`
	CompletedAt    *time.Time            `json:"completed_at,omitempty"`
}

// AnalysisDetail is the single-analysis projection, including the report and
// decision once the run is terminal.
type AnalysisDetail struct {
	AnalysisSummary

	SubjectDescription string               `json:"subject_description,omitempty"`
	Context            string               `json:"context,omitempty"`
	Error              string               `json:"error,omitempty"`
	Report             string               `json:"report,omitempty"`
	Decision           *diligence.Decision  `json:"decision,omitempty"`
	ErrorLog           []string             `json:"error_log,omitempty"`
}

func NewAnalysisSummary(analysis *models.Analysis) AnalysisSummary {
	summary := AnalysisSummary{
		ID:          analysis.ID,
		SubjectName: analysis.SubjectName,
		Status:      analysis.Status,
		CreatedAt:   analysis.CreatedAt,
		StartedAt:   analysis.StartedAt,
		CompletedAt: analysis.CompletedAt,
	}

	if analysis.Result != nil && analysis.Result.Decision != nil {
		summary.Recommendation = analysis.Result.Decision.Recommendation
	}

	return summary
}

func NewAnalysisDetail(analysis *models.Analysis) AnalysisDetail {
	detail := AnalysisDetail{
		AnalysisSummary:    NewAnalysisSummary(analysis),
		SubjectDescription: analysis.SubjectDescription,
		Context:            analysis.Context,
		Error:              analysis.Error,
	}

	if analysis.Result != nil {
		detail.Report = analysis.Result.Report
		detail.Decision = analysis.Result.Decision
		detail.ErrorLog = analysis.Result.State.ErrorLog
	}

	return detail
}
