package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/scoutvc/diligence/pkg/persistence"
)

// DefaultResultTTL is how long finished analyses stay retrievable.
const DefaultResultTTL = 24 * time.Hour

// sweepSchedule runs the purge hourly; the TTL gives the actual retention.
const sweepSchedule = "@hourly"

// Sweeper periodically purges finished analyses past their retention window.
// Backends with native TTL (Redis) make the purge a cheap no-op.
type Sweeper struct {
	cron        *cron.Cron
	persistence persistence.Persistence
	ttl         time.Duration
	logger      *slog.Logger
}

func NewSweeper(p persistence.Persistence, ttl time.Duration, logger *slog.Logger) *Sweeper {
	if ttl <= 0 {
		ttl = DefaultResultTTL
	}

	return &Sweeper{
		cron:        cron.New(),
		persistence: p,
		ttl:         ttl,
		logger:      logger.With("module", "result_sweeper"),
	}
}

func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc(sweepSchedule, s.sweep); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("Result sweeper started", "ttl", s.ttl, "schedule", sweepSchedule)

	return nil
}

// Stop halts scheduling and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("Result sweeper stopped")
}

// Sweep purges immediately, outside the schedule.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	return s.persistence.PurgeFinishedBefore(ctx, time.Now().UTC().Add(-s.ttl))
}

func (s *Sweeper) sweep() {
	purged, err := s.Sweep(context.Background())
	if err != nil {
		s.logger.Error("Result sweep failed", "error", err)

		return
	}

	if purged > 0 {
		s.logger.Info("Purged expired analyses", "count", purged)
	}
}
