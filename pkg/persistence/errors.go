// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrAnalysisNotFound indicates an analysis was not found by the given identifier.
	ErrAnalysisNotFound = errors.New("analysis not found")

	// ErrAnalysisAlreadyExists indicates an analysis with the same identifier already exists.
	ErrAnalysisAlreadyExists = errors.New("analysis already exists")

	// ErrInvalidAnalysisStatus indicates an invalid analysis status was provided.
	ErrInvalidAnalysisStatus = errors.New("invalid analysis status")
)

// AnalysisError wraps analysis-related errors with additional context.
type AnalysisError struct {
	Op         string // Operation being performed (e.g., "GetByID", "Save", "Delete")
	AnalysisID string // Analysis ID if applicable
	Owner      string // Owner identity if applicable
	Err        error  // Underlying error
}

func (e *AnalysisError) Error() string {
	target := e.AnalysisID
	if e.Owner != "" {
		target = fmt.Sprintf("owner %s", e.Owner)
	}

	return fmt.Sprintf("%s operation failed for analysis %s: %v", e.Op, target, e.Err)
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for analysis errors.
func (e *AnalysisError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewAnalysisError creates a new analysis error with context.
func NewAnalysisError(op, analysisID string, err error) *AnalysisError {
	return &AnalysisError{
		Op:         op,
		AnalysisID: analysisID,
		Err:        err,
	}
}

// NewAnalysisOwnerError creates a new analysis error for owner-scoped operations.
func NewAnalysisOwnerError(op, owner string, err error) *AnalysisError {
	return &AnalysisError{
		Op:    op,
		Owner: owner,
		Err:   err,
	}
}

// IsAnalysisNotFound checks if an error indicates an analysis was not found.
func IsAnalysisNotFound(err error) bool {
	return errors.Is(err, ErrAnalysisNotFound)
}
