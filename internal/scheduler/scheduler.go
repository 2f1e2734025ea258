package scheduler

import (
	"context"
	"fmt"
	"time"

	"frc_cassandra/ingestion/internal/metrics"
	"frc_cassandra/ingestion/internal/rating"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Repository is the part of the match repository the scheduler drives
type Repository interface {
	rating.MatchSource
	Sync(ctx context.Context, year int) error
}

// Scheduler periodically resyncs the current season and folds new results
// into the rating engine. The engine's applied-match ledger keeps each
// replay incremental.
type Scheduler struct {
	schedule string
	repo     Repository
	engine   *rating.Engine
	now      func() time.Time
	cron     *cron.Cron
}

// NewScheduler creates a scheduler for a standard five-field cron schedule
func NewScheduler(schedule string, repo Repository, engine *rating.Engine) *Scheduler {
	return &Scheduler{
		schedule: schedule,
		repo:     repo,
		engine:   engine,
		now:      time.Now,
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
	}
}

// Start registers the sync job and starts the cron runner
func (s *Scheduler) Start(ctx context.Context) error {
	log.Info().Msg("Scheduler starting...")

	if _, err := s.cron.AddFunc(s.schedule, func() {
		if err := s.RunOnce(ctx); err != nil {
			log.Error().Err(err).Msg("Scheduled sync failed")
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule sync: %w", err)
	}

	s.cron.Start()
	log.Info().
		Str("schedule", s.schedule).
		Msg("Season sync scheduled")

	return nil
}

// Stop stops the cron runner and waits for a running job to finish
func (s *Scheduler) Stop() {
	log.Info().Msg("Stopping scheduler...")
	<-s.cron.Stop().Done()
	log.Info().Msg("Scheduler stopped")
}

// RunOnce syncs the current year, then replays any newly recorded matches
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()
	year := s.now().Year()

	syncErr := s.repo.Sync(ctx, year)
	if syncErr != nil {
		// Memory stays usable after a storage failure, so ratings still advance
		log.Error().Err(syncErr).Int("year", year).Msg("Season sync failed")
	}

	stats, err := s.engine.Replay(ctx, s.repo)
	if err != nil {
		metrics.RecordError("scheduler", "replay")
		return fmt.Errorf("replay after sync: %w", err)
	}

	log.Info().
		Int("year", year).
		Int("new_matches", stats.Applied).
		Dur("duration", time.Since(start)).
		Msg("Scheduled sync complete")

	return syncErr
}
