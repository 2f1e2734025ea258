// Package storage persists one serialized partition per season.
//
// Every backend replaces a year atomically: a reader sees either the previous
// partition or the new one, never a partial write.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"frc_cassandra/ingestion/internal/metrics"
	"frc_cassandra/ingestion/internal/models"
)

// Sentinel errors shared by all backends.
// ErrCorrupt always comes wrapped together with ErrStorage.
var (
	ErrNotExist = errors.New("year not stored")
	ErrStorage  = errors.New("storage failure")
	ErrCorrupt  = errors.New("corrupt partition")
)

// nameSuffix is appended to the year to name a stored unit
const nameSuffix = "-event_matches"

// YearStore is durable storage for year partitions
type YearStore interface {
	// Load returns the stored partition, or ErrNotExist.
	Load(ctx context.Context, year int) (*models.YearPartition, error)
	// Save atomically replaces the stored partition for p.Year.
	Save(ctx context.Context, p *models.YearPartition) error
	// Years lists stored years in ascending order.
	Years(ctx context.Context) ([]int, error)
}

// Name returns the stable unit name for a year, e.g. "2016-event_matches"
func Name(year int) string {
	return fmt.Sprintf("%d%s", year, nameSuffix)
}

func encode(p *models.YearPartition) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode %s: %v", ErrStorage, Name(p.Year), err)
	}
	return data, nil
}

func decode(year int, data []byte) (*models.YearPartition, error) {
	p := models.NewYearPartition(year)
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("%w: %w: failed to decode %s: %v", ErrStorage, ErrCorrupt, Name(year), err)
	}
	if p.Year != year {
		return nil, fmt.Errorf("%w: %w: %s holds year %d", ErrStorage, ErrCorrupt, Name(year), p.Year)
	}
	return p, nil
}

// observe records an operation metric and passes err through
func observe(backend, operation string, start time.Time, err error) error {
	status := "success"
	switch {
	case errors.Is(err, ErrNotExist):
		status = "not_found"
	case err != nil:
		status = "error"
	}
	metrics.RecordStoreOperation(backend, operation, status, time.Since(start).Seconds())
	return err
}

// MemoryStore keeps encoded partitions in process memory.
// It is used for dry runs and tests.
type MemoryStore struct {
	mu    sync.Mutex
	years map[int][]byte
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{years: make(map[int][]byte)}
}

// Load implements YearStore
func (s *MemoryStore) Load(ctx context.Context, year int) (p *models.YearPartition, err error) {
	defer func(start time.Time) { err = observe("memory", "load", start, err) }(time.Now())

	s.mu.Lock()
	data, ok := s.years[year]
	s.mu.Unlock()

	if !ok {
		return nil, ErrNotExist
	}
	return decode(year, data)
}

// Save implements YearStore
func (s *MemoryStore) Save(ctx context.Context, p *models.YearPartition) (err error) {
	defer func(start time.Time) { err = observe("memory", "save", start, err) }(time.Now())

	data, err := encode(p)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.years[p.Year] = data
	s.mu.Unlock()
	return nil
}

// Years implements YearStore
func (s *MemoryStore) Years(ctx context.Context) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	years := make([]int, 0, len(s.years))
	for y := range s.years {
		years = append(years, y)
	}
	sort.Ints(years)
	return years, nil
}

// Health implements HealthChecker
func (s *MemoryStore) Health(ctx context.Context) error {
	return nil
}

// HealthChecker is implemented by stores that can report backend reachability
type HealthChecker interface {
	Health(ctx context.Context) error
}
