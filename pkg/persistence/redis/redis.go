// Package redis provides a Redis persistence implementation for analyses.
// Terminal analyses expire via native TTL instead of an explicit purge scan.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/scoutvc/diligence/pkg/models"
	"github.com/scoutvc/diligence/pkg/persistence"
)

const (
	analysisKeyPrefix = "diligence:analysis:"
	ownerKeyPrefix    = "diligence:owner:"

	// DefaultResultTTL is how long a terminal analysis stays readable.
	DefaultResultTTL = 24 * time.Hour
)

var _ persistence.Persistence = (*Persistence)(nil)

type Persistence struct {
	client    *redis.Client
	resultTTL time.Duration
}

// NewPersistence connects to Redis using a redis:// URL.
func NewPersistence(redisURL string) (*Persistence, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	return &Persistence{
		client:    redis.NewClient(opts),
		resultTTL: DefaultResultTTL,
	}, nil
}

func analysisKey(id string) string {
	return analysisKeyPrefix + id
}

func ownerKey(owner string) string {
	return ownerKeyPrefix + owner
}

func (rp *Persistence) SaveAnalysis(ctx context.Context, analysis *models.Analysis) error {
	data, err := json.Marshal(analysis)
	if err != nil {
		return persistence.NewAnalysisError("Save", analysis.ID, err)
	}

	ttl := time.Duration(0)
	if analysis.Status.Terminal() {
		ttl = rp.resultTTL
	}

	pipe := rp.client.TxPipeline()
	pipe.Set(ctx, analysisKey(analysis.ID), data, ttl)
	pipe.SAdd(ctx, ownerKey(analysis.Owner), analysis.ID)

	if _, err := pipe.Exec(ctx); err != nil {
		return persistence.NewAnalysisError("Save", analysis.ID, err)
	}

	return nil
}

func (rp *Persistence) AnalysisByID(ctx context.Context, id string) (*models.Analysis, error) {
	data, err := rp.client.Get(ctx, analysisKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
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

func (rp *Persistence) AnalysesByOwner(ctx context.Context, owner string) ([]*models.Analysis, error) {
	ids, err := rp.client.SMembers(ctx, ownerKey(owner)).Result()
	if err != nil {
		return nil, persistence.NewAnalysisOwnerError("List", owner, err)
	}

	analyses := make([]*models.Analysis, 0, len(ids))
	expired := make([]any, 0)

	for _, id := range ids {
		analysis, err := rp.AnalysisByID(ctx, id)
		if err != nil {
			if persistence.IsAnalysisNotFound(err) {
				// The record hit its TTL; drop the index entry lazily.
				expired = append(expired, id)

				continue
			}

			return nil, persistence.NewAnalysisOwnerError("List", owner, err)
		}

		analyses = append(analyses, analysis)
	}

	if len(expired) > 0 {
		rp.client.SRem(ctx, ownerKey(owner), expired...)
	}

	sortNewestFirst(analyses)

	return analyses, nil
}

func (rp *Persistence) CountActiveByOwner(ctx context.Context, owner string) (int, error) {
	analyses, err := rp.AnalysesByOwner(ctx, owner)
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

func (rp *Persistence) DeleteAnalysis(ctx context.Context, id string) error {
	analysis, err := rp.AnalysisByID(ctx, id)
	if err != nil {
		return persistence.NewAnalysisError("Delete", id, persistence.ErrAnalysisNotFound)
	}

	pipe := rp.client.TxPipeline()
	pipe.Del(ctx, analysisKey(id))
	pipe.SRem(ctx, ownerKey(analysis.Owner), id)

	if _, err := pipe.Exec(ctx); err != nil {
		return persistence.NewAnalysisError("Delete", id, err)
	}

	return nil
}

// PurgeFinishedBefore is a no-op: terminal records carry a TTL and expire on
// their own.
func (rp *Persistence) PurgeFinishedBefore(_ context.Context, _ time.Time) (int, error) {
	return 0, nil
}

func (rp *Persistence) HealthCheck(ctx context.Context) error {
	if err := rp.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	return nil
}

func (rp *Persistence) Close(_ context.Context) error {
	return rp.client.Close()
}

func sortNewestFirst(analyses []*models.Analysis) {
	sort.Slice(analyses, func(i, j int) bool {
		return analyses[i].CreatedAt.After(analyses[j].CreatedAt)
	})
}
