package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"frc_cassandra/ingestion/internal/config"
	"frc_cassandra/ingestion/internal/metrics"
	"frc_cassandra/ingestion/internal/models"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePartition(year int) *models.YearPartition {
	red, blue := 120, 80
	p := models.NewYearPartition(year)
	p.Append(&models.EventEntry{
		Info: models.Event{
			Key:       "2016casj",
			StartDate: time.Date(year, time.March, 24, 0, 0, 0, 0, time.UTC),
			EndDate:   time.Date(year, time.March, 26, 0, 0, 0, 0, time.UTC),
		},
		LastModified: "Thu, 24 Mar 2016 20:00:00 GMT",
		Matches: []models.Match{{
			Key:         "2016casj_qm1",
			CompLevel:   models.CompLevelQualification,
			SetNumber:   1,
			MatchNumber: 1,
			Red:         models.Alliance{TeamKeys: []string{"frc254"}, Score: &red},
			Blue:        models.Alliance{TeamKeys: []string{"frc1678"}, Score: &blue},
		}},
	})
	p.Append(&models.EventEntry{Info: models.Event{Key: "2016abca"}})
	return p
}

// exerciseStore runs the contract every YearStore backend must satisfy
func exerciseStore(t *testing.T, store YearStore) {
	ctx := context.Background()

	_, err := store.Load(ctx, 2016)
	assert.ErrorIs(t, err, ErrNotExist)

	require.NoError(t, store.Save(ctx, samplePartition(2016)))
	require.NoError(t, store.Save(ctx, samplePartition(2014)))

	loaded, err := store.Load(ctx, 2016)
	require.NoError(t, err)
	assert.Equal(t, []string{"2016casj", "2016abca"}, loaded.Keys(), "Event order should survive a round trip")

	entry, ok := loaded.Event("2016casj")
	require.True(t, ok)
	assert.Equal(t, "Thu, 24 Mar 2016 20:00:00 GMT", entry.LastModified)
	require.Len(t, entry.Matches, 1)
	assert.Equal(t, 120, *entry.Matches[0].Red.Score)

	// Overwrite replaces the whole year
	replacement := models.NewYearPartition(2016)
	replacement.Append(&models.EventEntry{Info: models.Event{Key: "2016new"}})
	require.NoError(t, store.Save(ctx, replacement))

	loaded, err = store.Load(ctx, 2016)
	require.NoError(t, err)
	assert.Equal(t, []string{"2016new"}, loaded.Keys())

	years, err := store.Years(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{2014, 2016}, years)
}

func TestName(t *testing.T) {
	assert.Equal(t, "2016-event_matches", Name(2016))
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir + "/")
	require.NoError(t, err)

	exerciseStore(t, store)

	_, err = os.Stat(filepath.Join(dir, "2016-event_matches.json"))
	assert.NoError(t, err, "Files follow the <year>-event_matches naming scheme")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "No temporary files should be left behind")
}

func TestFileStore_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "cache")
	_, err := NewFileStore(dir)
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestFileStore_IgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "abcd-event_matches.json"), []byte("{}"), 0o644))
	require.NoError(t, store.Save(context.Background(), samplePartition(2019)))

	years, err := store.Years(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{2019}, years)
}

func TestFileStore_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "2017-event_matches.json"), []byte("{broken"), 0o644))

	_, err = store.Load(context.Background(), 2017)
	assert.ErrorIs(t, err, ErrStorage)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestFileStore_ReadFailureIsNotCorrupt(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	// A directory in place of the file fails the read itself
	require.NoError(t, os.Mkdir(filepath.Join(dir, "2017-event_matches.json"), 0o755))

	_, err = store.Load(context.Background(), 2017)
	assert.ErrorIs(t, err, ErrStorage)
	assert.NotErrorIs(t, err, ErrCorrupt)
}

func TestFileStore_Health(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	assert.NoError(t, store.Health(context.Background()))

	require.NoError(t, os.RemoveAll(dir))
	assert.Error(t, store.Health(context.Background()))
}

func counterValue(t *testing.T, labels ...string) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, metrics.StoreOperationsTotal.WithLabelValues(labels...).Write(&m))
	return m.GetCounter().GetValue()
}

func TestMemoryStore_RecordsOperations(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	saves := counterValue(t, "memory", "save", "success")
	misses := counterValue(t, "memory", "load", "not_found")

	_, err := store.Load(ctx, 2030)
	require.ErrorIs(t, err, ErrNotExist)
	require.NoError(t, store.Save(ctx, samplePartition(2030)))

	assert.Equal(t, saves+1, counterValue(t, "memory", "save", "success"))
	assert.Equal(t, misses+1, counterValue(t, "memory", "load", "not_found"))
	assert.NoError(t, store.Health(ctx))
}

func TestFileStore_YearMismatch(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "2017-event_matches.json"), []byte(`{"year": 2015, "events": []}`), 0o644))

	_, err = store.Load(context.Background(), 2017)
	assert.ErrorIs(t, err, ErrStorage)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestOpen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")

	store, closeStore, err := Open(context.Background(), &config.Config{CacheBackend: config.BackendFile, CacheDir: dir})
	require.NoError(t, err)
	defer closeStore()

	assert.IsType(t, &FileStore{}, store)

	_, _, err = Open(context.Background(), &config.Config{CacheBackend: "s3"})
	assert.Error(t, err)
}
