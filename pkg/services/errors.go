// Package services implements the analysis job lifecycle: submission with
// per-key concurrency limits, background execution, retrieval, and expiry.
package services

import (
	"errors"

	"github.com/scoutvc/diligence/pkg/persistence"
)

// Business logic errors. These indicate client errors (4xx responses).
var (
	// ErrAnalysisNotFound is returned when an analysis does not exist or
	// belongs to another owner.
	ErrAnalysisNotFound = persistence.ErrAnalysisNotFound

	// ErrInvalidRequest indicates the submission failed validation.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrTooManyActiveAnalyses indicates the owner hit the concurrent job
	// limit (429 Too Many Requests).
	ErrTooManyActiveAnalyses = errors.New("too many active analyses for this key")
)

// IsAnalysisNotFound checks if an error indicates an analysis was not found.
func IsAnalysisNotFound(err error) bool {
	return errors.Is(err, ErrAnalysisNotFound)
}
