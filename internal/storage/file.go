package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"frc_cassandra/ingestion/internal/models"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog/log"
)

const fileExtension = ".json"

// FileStore keeps one JSON file per year in a cache directory:
// <dir>/<year>-event_matches.json
type FileStore struct {
	dir string
}

// NewFileStore creates the cache directory if needed
func NewFileStore(dir string) (*FileStore, error) {
	dir = strings.TrimRight(dir, "/")
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: failed to create cache directory %s: %v", ErrStorage, dir, err)
	}

	log.Info().Str("dir", dir).Msg("File year store ready")
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(year int) string {
	return filepath.Join(s.dir, Name(year)+fileExtension)
}

// Load implements YearStore
func (s *FileStore) Load(ctx context.Context, year int) (p *models.YearPartition, err error) {
	defer func(start time.Time) { err = observe("file", "load", start, err) }(time.Now())

	data, err := os.ReadFile(s.path(year))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("%w: failed to read %s: %v", ErrStorage, s.path(year), err)
	}

	return decode(year, data)
}

// Save implements YearStore.
// The partition is written to a temporary file and renamed over the old one.
func (s *FileStore) Save(ctx context.Context, p *models.YearPartition) (err error) {
	defer func(start time.Time) { err = observe("file", "save", start, err) }(time.Now())

	data, err := encode(p)
	if err != nil {
		return err
	}

	if err := renameio.WriteFile(s.path(p.Year), data, 0o644); err != nil {
		return fmt.Errorf("%w: failed to write %s: %v", ErrStorage, s.path(p.Year), err)
	}

	log.Debug().
		Int("year", p.Year).
		Int("bytes", len(data)).
		Msg("Year partition written")
	return nil
}

// Years implements YearStore
func (s *FileStore) Years(ctx context.Context) ([]int, error) {
	pattern := filepath.Join(s.dir, "????"+nameSuffix+fileExtension)
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list cache files: %v", ErrStorage, err)
	}

	years := make([]int, 0, len(files))
	for _, f := range files {
		year, err := strconv.Atoi(filepath.Base(f)[:4])
		if err != nil {
			continue
		}
		years = append(years, year)
	}
	sort.Ints(years)
	return years, nil
}

// Health implements HealthChecker by checking the cache directory is present
func (s *FileStore) Health(ctx context.Context) error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return fmt.Errorf("cache directory health check failed: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("cache directory health check failed: %s is not a directory", s.dir)
	}
	return nil
}
