package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scoutvc/diligence/pkg/diligence"
	"github.com/scoutvc/diligence/pkg/models"
	"github.com/scoutvc/diligence/pkg/persistence"
	"github.com/scoutvc/diligence/pkg/persistence/file"
)

func TestSweeper_PurgesOnlyExpiredTerminalAnalyses(t *testing.T) {
	store := file.NewPersistence(t.TempDir())
	ctx := context.Background()

	expired := models.NewAnalysis("key-1", "Expired", "", "")
	expired.MarkFinished(diligence.Result{Outcome: diligence.OutcomeComplete})
	past := time.Now().UTC().Add(-25 * time.Hour)
	expired.CompletedAt = &past

	recent := models.NewAnalysis("key-1", "Recent", "", "")
	recent.MarkFinished(diligence.Result{Outcome: diligence.OutcomeComplete})

	running := models.NewAnalysis("key-1", "Running", "", "")
	running.MarkRunning()

	for _, a := range []*models.Analysis{expired, recent, running} {
		require.NoError(t, store.SaveAnalysis(ctx, a))
	}

	sweeper := NewSweeper(store, DefaultResultTTL, testLogger())

	purged, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	_, err = store.AnalysisByID(ctx, expired.ID)
	assert.True(t, persistence.IsAnalysisNotFound(err))

	_, err = store.AnalysisByID(ctx, recent.ID)
	assert.NoError(t, err)

	_, err = store.AnalysisByID(ctx, running.ID)
	assert.NoError(t, err)
}

func TestSweeper_StartStop(t *testing.T) {
	sweeper := NewSweeper(file.NewPersistence(t.TempDir()), 0, testLogger())
	assert.Equal(t, DefaultResultTTL, sweeper.ttl)

	require.NoError(t, sweeper.Start())
	sweeper.Stop()
}
