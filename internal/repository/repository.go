// Package repository keeps a chronologically ordered, locally durable mirror
// of TBA events and matches, refreshed incrementally from the provider.
package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"frc_cassandra/ingestion/internal/client"
	"frc_cassandra/ingestion/internal/models"
	"frc_cassandra/ingestion/internal/storage"

	"github.com/rs/zerolog/log"
)

// ErrNotFound is returned for reads against a year or event that was never initialized
var ErrNotFound = errors.New("not found")

// Provider is the remote source of events and matches
type Provider interface {
	FetchEvents(ctx context.Context, year int) ([]models.Event, error)
	// FetchEventMatches is a conditional fetch: lastModified is the token
	// from the previous response, empty for an unconditional fetch.
	FetchEventMatches(ctx context.Context, eventKey, lastModified string) (client.MatchesResult, error)
}

// Option configures a MatchRepository
type Option func(*MatchRepository)

// WithClock overrides the time source used for fetch window decisions
func WithClock(now func() time.Time) Option {
	return func(r *MatchRepository) {
		if now != nil {
			r.now = now
		}
	}
}

// WithDryRun builds partitions from event metadata only: the store is neither
// read nor written and no matches are fetched. Matches are added with AppendMatch.
func WithDryRun() Option {
	return func(r *MatchRepository) {
		r.dryRun = true
	}
}

// WithConcurrency sets how many years SyncAll processes at once
func WithConcurrency(n int) Option {
	return func(r *MatchRepository) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// MatchRepository is the in-memory year -> event -> matches view backed by a YearStore
type MatchRepository struct {
	mu   sync.RWMutex
	data map[int]*models.YearPartition

	store       storage.YearStore
	provider    Provider
	now         func() time.Time
	dryRun      bool
	concurrency int
}

// New creates an empty repository. Call Sync, SyncAll or LoadCached to populate it.
func New(store storage.YearStore, provider Provider, opts ...Option) *MatchRepository {
	r := &MatchRepository{
		data:        make(map[int]*models.YearPartition),
		store:       store,
		provider:    provider,
		now:         time.Now,
		concurrency: 1,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// LoadCached loads every persisted year into memory without contacting the provider
func (r *MatchRepository) LoadCached(ctx context.Context) error {
	years, err := r.store.Years(ctx)
	if err != nil {
		return err
	}

	var errs []error
	for _, year := range years {
		p, err := r.store.Load(ctx, year)
		if err != nil {
			log.Error().Err(err).Int("year", year).Msg("Failed to load cached year")
			errs = append(errs, fmt.Errorf("year %d: %w", year, err))
			continue
		}

		r.mu.Lock()
		r.data[year] = p
		r.mu.Unlock()

		log.Info().
			Int("year", year).
			Int("events", p.Len()).
			Int("matches", p.MatchCount()).
			Msg("Cached year loaded")
	}

	return errors.Join(errs...)
}

// Years returns the initialized years in ascending order
func (r *MatchRepository) Years() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	years := make([]int, 0, len(r.data))
	for y := range r.data {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

// GetYearEvents returns the event keys of a year in chronological order
func (r *MatchRepository) GetYearEvents(year int) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.data[year]
	if !ok {
		return nil, fmt.Errorf("year %d: %w", year, ErrNotFound)
	}
	return p.Keys(), nil
}

// GetEvent returns a copy of an event's metadata, token and matches
func (r *MatchRepository) GetEvent(year int, eventKey string) (models.EventEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, err := r.lookup(year, eventKey)
	if err != nil {
		return models.EventEntry{}, err
	}

	out := *entry
	out.Matches = append([]models.Match{}, entry.Matches...)
	return out, nil
}

// GetEventMatches returns the event's matches in canonical order.
// An event with no recorded matches yields an empty slice.
func (r *MatchRepository) GetEventMatches(year int, eventKey string) ([]models.Match, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, err := r.lookup(year, eventKey)
	if err != nil {
		return nil, err
	}
	return append([]models.Match{}, entry.Matches...), nil
}

// AddEventMatches replaces an event's matches and freshness token, then persists the year.
// Matches for an event unknown to the partition are logged and still admitted.
func (r *MatchRepository) AddEventMatches(ctx context.Context, year int, eventKey string, matches []models.Match, lastModified string) error {
	ordered := r.prepare(year, eventKey, matches)

	r.mu.Lock()
	p, ok := r.data[year]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("year %d: %w", year, ErrNotFound)
	}

	entry, ok := p.Event(eventKey)
	if !ok {
		log.Warn().
			Int("year", year).
			Str("event", eventKey).
			Msg("Event is not in the data store, but matches for it are being added")
		entry = &models.EventEntry{Info: models.Event{Key: eventKey, Year: year}}
		p.Append(entry)
	}
	entry.Matches = ordered
	entry.LastModified = lastModified
	r.mu.Unlock()

	return r.persist(ctx, year)
}

// AppendMatch adds one match to an event in memory, replacing a match with the same key
func (r *MatchRepository) AppendMatch(year int, eventKey string, match models.Match) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, err := r.lookup(year, eventKey)
	if err != nil {
		return err
	}

	for i := range entry.Matches {
		if entry.Matches[i].Key == match.Key {
			entry.Matches[i] = match
			return nil
		}
	}
	entry.Matches = append(entry.Matches, match)
	return nil
}

// lookup must be called with r.mu held
func (r *MatchRepository) lookup(year int, eventKey string) (*models.EventEntry, error) {
	p, ok := r.data[year]
	if !ok {
		return nil, fmt.Errorf("year %d: %w", year, ErrNotFound)
	}
	entry, ok := p.Event(eventKey)
	if !ok {
		return nil, fmt.Errorf("event %s in year %d: %w", eventKey, year, ErrNotFound)
	}
	return entry, nil
}

// persist writes a snapshot of the year to the store
func (r *MatchRepository) persist(ctx context.Context, year int) error {
	if r.dryRun {
		return nil
	}

	r.mu.RLock()
	p, ok := r.data[year]
	var snapshot *models.YearPartition
	if ok {
		snapshot = p.Clone()
	}
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("year %d: %w", year, ErrNotFound)
	}

	if err := r.store.Save(ctx, snapshot); err != nil {
		log.Error().Err(err).Int("year", year).Msg("Failed to persist year partition")
		return fmt.Errorf("year %d: %w", year, err)
	}
	return nil
}
