// Package models defines the domain records for due-diligence analysis jobs.
package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/scoutvc/diligence/pkg/diligence"
)

// AnalysisStatus represents the lifecycle state of an analysis job.
type AnalysisStatus string

const (
	AnalysisStatusQueued   AnalysisStatus = "queued"   // Accepted, not yet picked up
	AnalysisStatusRunning  AnalysisStatus = "running"  // Workflow in progress
	AnalysisStatusComplete AnalysisStatus = "complete" // Report and decision produced
	AnalysisStatusPartial  AnalysisStatus = "partial"  // One of report/decision missing
	AnalysisStatusFailed   AnalysisStatus = "failed"   // No usable output
)

// Terminal reports whether the status is final.
func (s AnalysisStatus) Terminal() bool {
	switch s {
	case AnalysisStatusComplete, AnalysisStatusPartial, AnalysisStatusFailed:
		return true
	default:
		return false
	}
}

// Analysis is one due-diligence job: the request, its lifecycle state, and
// once terminal, the workflow result.
type Analysis struct {
	ID                 string         `json:"id"`
	Owner              string         `json:"owner"` // API key identity that submitted the job
	SubjectName        string         `json:"subject_name"        validate:"required,min=2,max=200"`
	SubjectDescription string         `json:"subject_description" validate:"max=2000"`
	Context            string         `json:"context,omitempty"   validate:"max=2000"`
	Status             AnalysisStatus `json:"status"`
	Error              string         `json:"error,omitempty"`

	Result *diligence.Result `json:"result,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewAnalysis creates a queued analysis job.
func NewAnalysis(owner, subjectName, subjectDescription, dealContext string) *Analysis {
	return &Analysis{
		ID:                 uuid.New().String(),
		Owner:              owner,
		SubjectName:        subjectName,
		SubjectDescription: subjectDescription,
		Context:            dealContext,
		Status:             AnalysisStatusQueued,
		CreatedAt:          time.Now().UTC(),
	}
}

// MarkRunning transitions the job to running.
func (a *Analysis) MarkRunning() {
	now := time.Now().UTC()
	a.Status = AnalysisStatusRunning
	a.StartedAt = &now
}

// MarkFinished records the workflow result and maps its outcome onto the job
// status.
func (a *Analysis) MarkFinished(result diligence.Result) {
	now := time.Now().UTC()
	a.CompletedAt = &now
	a.Result = &result

	switch result.Outcome {
	case diligence.OutcomeComplete:
		a.Status = AnalysisStatusComplete
	case diligence.OutcomePartial:
		a.Status = AnalysisStatusPartial
	default:
		a.Status = AnalysisStatusFailed
	}
}

// MarkFailed records an error that prevented the workflow from finishing.
func (a *Analysis) MarkFailed(err error) {
	now := time.Now().UTC()
	a.CompletedAt = &now
	a.Status = AnalysisStatusFailed

	if err != nil {
		a.Error = err.Error()
	}
}
