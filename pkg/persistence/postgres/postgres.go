// Package postgres provides a PostgreSQL persistence implementation for
// analyses. The full record lives in a JSONB column; lifecycle fields are
// promoted to real columns for indexing and purging.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // postgres driver
	"github.com/scoutvc/diligence/pkg/models"
	"github.com/scoutvc/diligence/pkg/persistence"
)

const schema = `
CREATE TABLE IF NOT EXISTS analyses (
	id           TEXT PRIMARY KEY,
	owner        TEXT        NOT NULL,
	status       TEXT        NOT NULL,
	data         JSONB       NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_analyses_owner ON analyses (owner, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_analyses_completed ON analyses (completed_at) WHERE completed_at IS NOT NULL;
`

var _ persistence.Persistence = (*Persistence)(nil)

type Persistence struct {
	db *sql.DB
}

// NewPersistence opens a connection pool and ensures the schema exists.
func NewPersistence(ctx context.Context, databaseURL string) (*Persistence, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("migrate analyses schema: %w", err)
	}

	return &Persistence{db: db}, nil
}

func (pp *Persistence) SaveAnalysis(ctx context.Context, analysis *models.Analysis) error {
	data, err := json.Marshal(analysis)
	if err != nil {
		return persistence.NewAnalysisError("Save", analysis.ID, err)
	}

	_, err = pp.db.ExecContext(ctx, `
		INSERT INTO analyses (id, owner, status, data, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			data = EXCLUDED.data,
			completed_at = EXCLUDED.completed_at`,
		analysis.ID, analysis.Owner, analysis.Status, data, analysis.CreatedAt, analysis.CompletedAt,
	)
	if err != nil {
		return persistence.NewAnalysisError("Save", analysis.ID, err)
	}

	return nil
}

func (pp *Persistence) AnalysisByID(ctx context.Context, id string) (*models.Analysis, error) {
	var data []byte

	err := pp.db.QueryRowContext(ctx, `SELECT data FROM analyses WHERE id = $1`, id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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

func (pp *Persistence) AnalysesByOwner(ctx context.Context, owner string) ([]*models.Analysis, error) {
	rows, err := pp.db.QueryContext(ctx,
		`SELECT data FROM analyses WHERE owner = $1 ORDER BY created_at DESC`, owner)
	if err != nil {
		return nil, persistence.NewAnalysisOwnerError("List", owner, err)
	}
	defer rows.Close()

	analyses := make([]*models.Analysis, 0)

	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, persistence.NewAnalysisOwnerError("List", owner, err)
		}

		var analysis models.Analysis
		if err := json.Unmarshal(data, &analysis); err != nil {
			return nil, persistence.NewAnalysisOwnerError("List", owner, fmt.Errorf("decode analysis: %w", err))
		}

		analyses = append(analyses, &analysis)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewAnalysisOwnerError("List", owner, err)
	}

	return analyses, nil
}

func (pp *Persistence) CountActiveByOwner(ctx context.Context, owner string) (int, error) {
	var count int

	err := pp.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM analyses WHERE owner = $1 AND status IN ($2, $3)`,
		owner, models.AnalysisStatusQueued, models.AnalysisStatusRunning,
	).Scan(&count)
	if err != nil {
		return 0, persistence.NewAnalysisOwnerError("CountActive", owner, err)
	}

	return count, nil
}

func (pp *Persistence) DeleteAnalysis(ctx context.Context, id string) error {
	result, err := pp.db.ExecContext(ctx, `DELETE FROM analyses WHERE id = $1`, id)
	if err != nil {
		return persistence.NewAnalysisError("Delete", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewAnalysisError("Delete", id, err)
	}

	if affected == 0 {
		return persistence.NewAnalysisError("Delete", id, persistence.ErrAnalysisNotFound)
	}

	return nil
}

func (pp *Persistence) PurgeFinishedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := pp.db.ExecContext(ctx,
		`DELETE FROM analyses WHERE completed_at IS NOT NULL AND completed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge analyses: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge analyses: %w", err)
	}

	return int(affected), nil
}

func (pp *Persistence) HealthCheck(ctx context.Context) error {
	if err := pp.db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}

	return nil
}

func (pp *Persistence) Close(_ context.Context) error {
	return pp.db.Close()
}
