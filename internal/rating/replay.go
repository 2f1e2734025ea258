package rating

import (
	"context"
	"errors"
	"fmt"
	"time"

	"frc_cassandra/ingestion/internal/models"

	"github.com/rs/zerolog/log"
)

// MatchSource is the ordered read side of the match repository
type MatchSource interface {
	Years() []int
	GetYearEvents(year int) ([]string, error)
	GetEventMatches(year int, eventKey string) ([]models.Match, error)
}

// ReplayStats summarizes one Replay pass
type ReplayStats struct {
	Applied    int
	Unplayed   int
	Malformed  int
	Duplicates int
}

// Replay applies every recorded match in year, event and canonical match order.
// Matches without a result are skipped and already applied matches are ignored,
// so running Replay again only folds in what is new.
func (e *Engine) Replay(ctx context.Context, source MatchSource) (ReplayStats, error) {
	start := time.Now()
	var stats ReplayStats

	for _, year := range source.Years() {
		events, err := source.GetYearEvents(year)
		if err != nil {
			return stats, fmt.Errorf("replay year %d: %w", year, err)
		}

		for _, eventKey := range events {
			if err := ctx.Err(); err != nil {
				return stats, err
			}

			matches, err := source.GetEventMatches(year, eventKey)
			if err != nil {
				return stats, fmt.Errorf("replay event %s: %w", eventKey, err)
			}

			for _, m := range matches {
				e.replayOne(m, &stats)
			}
		}
	}

	log.Info().
		Int("applied", stats.Applied).
		Int("unplayed", stats.Unplayed).
		Int("malformed", stats.Malformed).
		Int("duplicates", stats.Duplicates).
		Int("teams", e.Len()).
		Dur("duration", time.Since(start)).
		Msg("Rating replay complete")

	return stats, nil
}

func (e *Engine) replayOne(m models.Match, stats *ReplayStats) {
	if !m.Played() {
		stats.Unplayed++
		return
	}

	err := e.Update(m)
	switch {
	case err == nil:
		stats.Applied++
	case errors.Is(err, ErrMatchAlreadyApplied):
		stats.Duplicates++
	default:
		stats.Malformed++
		log.Warn().Err(err).Str("match", m.Key).Msg("Skipping match during replay")
	}
}
