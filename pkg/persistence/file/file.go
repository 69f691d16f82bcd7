// Package file provides a file-based persistence implementation for analyses.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/scoutvc/diligence/pkg/models"
	"github.com/scoutvc/diligence/pkg/persistence"
)

var _ persistence.Persistence = (*Persistence)(nil)

// Persistence implements persistence.Persistence on the local filesystem, one
// JSON document per analysis under <root>/analyses.
type Persistence struct {
	root string
}

// NewPersistence creates a file persistence rooted at the given directory.
// Accepts a plain path or a file:// URL.
func NewPersistence(root string) *Persistence {
	return &Persistence{
		root: strings.Replace(root, "file://", "", 1),
	}
}

func (fp *Persistence) dir() string {
	return filepath.Join(fp.root, "analyses")
}

func (fp *Persistence) path(id string) string {
	return filepath.Join(fp.dir(), id+".json")
}

func (fp *Persistence) SaveAnalysis(_ context.Context, analysis *models.Analysis) error {
	if err := os.MkdirAll(fp.dir(), 0o755); err != nil {
		return persistence.NewAnalysisError("Save", analysis.ID, err)
	}

	data, err := json.MarshalIndent(analysis, "", "  ")
	if err != nil {
		return persistence.NewAnalysisError("Save", analysis.ID, err)
	}

	if err := os.WriteFile(fp.path(analysis.ID), data, 0o644); err != nil {
		return persistence.NewAnalysisError("Save", analysis.ID, err)
	}

	return nil
}

func (fp *Persistence) AnalysisByID(_ context.Context, id string) (*models.Analysis, error) {
	data, err := os.ReadFile(fp.path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, persistence.NewAnalysisError("GetByID", id, persistence.ErrAnalysisNotFound)
		}

		return nil, persistence.NewAnalysisError("GetByID", id, err)
	}

	var analysis models.Analysis
	if err := json.Unmarshal(data, &analysis); err != nil {
		return nil, persistence.NewAnalysisError("GetByID", id, fmt.Errorf("decode analysis: %w", err))
	}

	return &analysis, nil
}

func (fp *Persistence) AnalysesByOwner(ctx context.Context, owner string) ([]*models.Analysis, error) {
	all, err := fp.loadAll(ctx)
	if err != nil {
		return nil, persistence.NewAnalysisOwnerError("List", owner, err)
	}

	analyses := make([]*models.Analysis, 0)

	for _, analysis := range all {
		if analysis.Owner == owner {
			analyses = append(analyses, analysis)
		}
	}

	sort.Slice(analyses, func(i, j int) bool {
		return analyses[i].CreatedAt.After(analyses[j].CreatedAt)
	})

	return analyses, nil
}

func (fp *Persistence) CountActiveByOwner(ctx context.Context, owner string) (int, error) {
	analyses, err := fp.AnalysesByOwner(ctx, owner)
	if err != nil {
		return 0, err
	}

	active := 0

	for _, analysis := range analyses {
		if !analysis.Status.Terminal() {
			active++
		}
	}

	return active, nil
}

func (fp *Persistence) DeleteAnalysis(_ context.Context, id string) error {
	if err := os.Remove(fp.path(id)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return persistence.NewAnalysisError("Delete", id, persistence.ErrAnalysisNotFound)
		}

		return persistence.NewAnalysisError("Delete", id, err)
	}

	return nil
}

func (fp *Persistence) PurgeFinishedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	all, err := fp.loadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("purge analyses: %w", err)
	}

	purged := 0

	for _, analysis := range all {
		if !analysis.Status.Terminal() || analysis.CompletedAt == nil {
			continue
		}

		if analysis.CompletedAt.Before(cutoff) {
			if err := os.Remove(fp.path(analysis.ID)); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return purged, fmt.Errorf("purge analysis %s: %w", analysis.ID, err)
			}

			purged++
		}
	}

	return purged, nil
}

// HealthCheck verifies the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Close performs any necessary cleanup. For file-based persistence, there is
// nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

func (fp *Persistence) loadAll(ctx context.Context) ([]*models.Analysis, error) {
	entries, err := os.ReadDir(fp.dir())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("list analysis files: %w", err)
	}

	analyses := make([]*models.Analysis, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		id := strings.TrimSuffix(entry.Name(), ".json")

		analysis, err := fp.AnalysisByID(ctx, id)
		if err != nil {
			if persistence.IsAnalysisNotFound(err) {
				continue
			}

			return nil, err
		}

		analyses = append(analyses, analysis)
	}

	return analyses, nil
}
