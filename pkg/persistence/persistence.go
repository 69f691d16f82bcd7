// Package persistence provides the storage abstraction for analysis jobs.
package persistence

import (
	"context"
	"time"

	"github.com/scoutvc/diligence/pkg/models"
)

type Persistence interface {
	// SaveAnalysis inserts or replaces an analysis record.
	SaveAnalysis(ctx context.Context, analysis *models.Analysis) error

	// AnalysisByID returns one analysis, or ErrAnalysisNotFound.
	AnalysisByID(ctx context.Context, id string) (*models.Analysis, error)

	// AnalysesByOwner returns the owner's analyses, newest first.
	AnalysesByOwner(ctx context.Context, owner string) ([]*models.Analysis, error)

	// CountActiveByOwner counts the owner's non-terminal analyses, for
	// per-key concurrency limiting.
	CountActiveByOwner(ctx context.Context, owner string) (int, error)

	// DeleteAnalysis removes one analysis record.
	DeleteAnalysis(ctx context.Context, id string) error

	// PurgeFinishedBefore removes terminal analyses completed before the
	// cutoff and returns how many were removed. Backends with native TTL
	// support may return 0 without scanning.
	PurgeFinishedBefore(ctx context.Context, cutoff time.Time) (int, error)

	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}
