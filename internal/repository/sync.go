package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"frc_cassandra/ingestion/internal/metrics"
	"frc_cassandra/ingestion/internal/models"
	"frc_cassandra/ingestion/internal/storage"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// fetchMargin widens each event's active window on both sides
const fetchMargin = 24 * time.Hour

// SyncAll syncs every year, up to the configured number at once.
// A failing year does not stop the others; all failures are joined.
func (r *MatchRepository) SyncAll(ctx context.Context, years []int) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(r.concurrency)

	for _, year := range years {
		g.Go(func() error {
			if err := r.Sync(ctx, year); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}

	_ = g.Wait()
	return errors.Join(errs...)
}

// Sync runs one synchronization pass for a year:
// load or create the partition, reconcile the event list with the provider,
// refetch matches for events inside their active window, then persist once.
func (r *MatchRepository) Sync(ctx context.Context, year int) error {
	start := time.Now()
	logger := log.With().
		Str("sync_id", uuid.NewString()).
		Int("year", year).
		Logger()

	logger.Info().Msg("Starting year sync")

	p, err := r.partition(ctx, year, logger)
	if err != nil {
		// Leave the stored year untouched
		metrics.RecordError("repository", "storage")
		metrics.RecordSync("error", time.Since(start).Seconds())
		return fmt.Errorf("year %d: %w", year, err)
	}
	r.reconcile(ctx, p, logger)

	counts := map[string]int{}
	for _, key := range r.keys(year) {
		if err := ctx.Err(); err != nil {
			metrics.RecordSync("cancelled", time.Since(start).Seconds())
			return err
		}
		outcome := r.syncEvent(ctx, year, key, logger)
		counts[outcome]++
		metrics.RecordFetchDecision(outcome)
	}

	err = r.persist(ctx, year)

	r.mu.RLock()
	eventCount, matchCount := p.Len(), p.MatchCount()
	r.mu.RUnlock()
	metrics.MatchesCached.WithLabelValues(strconv.Itoa(year)).Set(float64(matchCount))

	status := "success"
	if err != nil {
		status = "error"
		metrics.RecordError("repository", "storage")
	}
	metrics.RecordSync(status, time.Since(start).Seconds())

	logger.Info().
		Int("events", eventCount).
		Int("matches", matchCount).
		Int("updated", counts[outcomeUpdated]).
		Int("not_modified", counts[outcomeNotModified]).
		Int("skipped", counts[outcomeSkipped]).
		Int("failed", counts[outcomeFailed]).
		Dur("duration", time.Since(start)).
		Msg("Year sync complete")

	return err
}

// partition returns the in-memory partition for year, loading it from the
// store or creating an empty skeleton on first use. A corrupt stored year also
// yields a skeleton; any other store failure is returned and nothing is registered.
// Dry runs never read the store.
func (r *MatchRepository) partition(ctx context.Context, year int, logger zerolog.Logger) (*models.YearPartition, error) {
	r.mu.RLock()
	p, ok := r.data[year]
	r.mu.RUnlock()
	if ok {
		return p, nil
	}

	if r.dryRun {
		p = models.NewYearPartition(year)
	} else {
		loaded, err := r.store.Load(ctx, year)
		switch {
		case err == nil:
			logger.Debug().Int("events", loaded.Len()).Msg("Loaded cached year partition")
			p = loaded
		case errors.Is(err, storage.ErrNotExist):
			p = models.NewYearPartition(year)
		case errors.Is(err, storage.ErrCorrupt):
			logger.Error().Err(err).Msg("Cached year partition corrupt, starting from an empty skeleton")
			p = models.NewYearPartition(year)
		default:
			logger.Error().Err(err).Msg("Failed to load cached year partition")
			return nil, err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Another pass may have registered the year meanwhile
	if existing, ok := r.data[year]; ok {
		return existing, nil
	}
	r.data[year] = p
	return p, nil
}

// reconcile adds official upstream events missing from the partition.
// Events are never removed, even when they disappear upstream.
func (r *MatchRepository) reconcile(ctx context.Context, p *models.YearPartition, logger zerolog.Logger) {
	events, err := r.provider.FetchEvents(ctx, p.Year)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to fetch event list, using cached events")
		metrics.RecordError("repository", "events")
		return
	}

	models.SortEvents(events)
	events = models.FilterOfficial(events)

	r.mu.Lock()
	defer r.mu.Unlock()

	added := 0
	for _, event := range events {
		if _, ok := p.Event(event.Key); ok {
			continue
		}
		p.Append(&models.EventEntry{Info: event})
		added++
	}

	if added > 0 {
		logger.Info().Int("added", added).Msg("New events added to partition")
	}
}

func (r *MatchRepository) keys(year int) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.data[year]; ok {
		return p.Keys()
	}
	return nil
}

const (
	outcomeSkipped     = "skipped"
	outcomeNotModified = "not_modified"
	outcomeEmpty       = "empty"
	outcomeUpdated     = "updated"
	outcomeFailed      = "failed"
)

// syncEvent refetches one event's matches when its window calls for it.
// Provider failures are contained here so sibling events still sync.
func (r *MatchRepository) syncEvent(ctx context.Context, year int, key string, logger zerolog.Logger) string {
	r.mu.RLock()
	entry, ok := r.data[year].Event(key)
	var (
		info         models.Event
		lastModified string
		cached       int
	)
	if ok {
		info, lastModified, cached = entry.Info, entry.LastModified, len(entry.Matches)
	}
	r.mu.RUnlock()

	if !ok || r.dryRun || !ShouldFetch(info, cached > 0, r.now()) {
		return outcomeSkipped
	}

	result, err := r.provider.FetchEventMatches(ctx, key, lastModified)
	if err != nil {
		logger.Warn().Err(err).Str("event", key).Msg("Failed to fetch event matches, keeping last known data")
		metrics.RecordError("repository", "matches")
		return outcomeFailed
	}

	if result.NotModified {
		logger.Debug().Str("event", key).Msg("Event matches not modified")
		return outcomeNotModified
	}

	if len(result.Matches) == 0 {
		return outcomeEmpty
	}

	ordered := r.prepare(year, key, result.Matches)

	r.mu.Lock()
	entry.Matches = ordered
	entry.LastModified = result.LastModified
	r.mu.Unlock()

	logger.Debug().
		Str("event", key).
		Int("matches", len(ordered)).
		Msg("Event matches updated")
	return outcomeUpdated
}

// prepare drops structurally malformed matches and applies the canonical order
func (r *MatchRepository) prepare(year int, eventKey string, matches []models.Match) []models.Match {
	valid := make([]models.Match, 0, len(matches))
	for _, m := range matches {
		if err := m.Validate(); err != nil {
			log.Warn().
				Err(err).
				Int("year", year).
				Str("event", eventKey).
				Msg("Dropping malformed match")
			metrics.MalformedMatchesDropped.Inc()
			continue
		}
		valid = append(valid, m)
	}
	return models.SortMatches(valid)
}

// ShouldFetch reports whether an event's matches need refetching at now:
// inside [start-1d, end+1d], or when nothing is cached and start-1d has passed.
func ShouldFetch(event models.Event, hasMatches bool, now time.Time) bool {
	windowStart := event.StartDate.Add(-fetchMargin)
	windowEnd := event.EndDate.Add(fetchMargin)

	if !now.Before(windowStart) && !now.After(windowEnd) {
		return true
	}
	return !hasMatches && now.After(windowStart)
}
