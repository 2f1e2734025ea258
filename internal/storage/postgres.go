package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"frc_cassandra/ingestion/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

const schema = `
	CREATE TABLE IF NOT EXISTS year_partitions (
		year       INTEGER PRIMARY KEY,
		name       TEXT NOT NULL,
		payload    JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)
`

// PostgresStore keeps each year as one row of year_partitions.
// Saves are a single upsert statement, so readers never see a partial year.
type PostgresStore struct {
	Pool *pgxpool.Pool
}

// NewPostgresStore creates a connection pool and ensures the schema exists
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse database config: %v", ErrStorage, err)
	}

	// Set pool configuration
	poolConfig.MaxConns = 5
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create connection pool: %v", ErrStorage, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: failed to ping database: %v", ErrStorage, err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: failed to create schema: %v", ErrStorage, err)
	}

	log.Info().
		Str("host", poolConfig.ConnConfig.Host).
		Str("database", poolConfig.ConnConfig.Database).
		Msg("Successfully connected to database")

	return &PostgresStore{Pool: pool}, nil
}

// Load implements YearStore
func (s *PostgresStore) Load(ctx context.Context, year int) (p *models.YearPartition, err error) {
	defer func(start time.Time) { err = observe("postgres", "load", start, err) }(time.Now())

	var payload []byte
	err = s.Pool.QueryRow(ctx, `SELECT payload FROM year_partitions WHERE year = $1`, year).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("%w: failed to load %s: %v", ErrStorage, Name(year), err)
	}

	return decode(year, payload)
}

// Save implements YearStore
func (s *PostgresStore) Save(ctx context.Context, p *models.YearPartition) (err error) {
	defer func(start time.Time) { err = observe("postgres", "save", start, err) }(time.Now())

	data, err := encode(p)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO year_partitions (year, name, payload)
		VALUES ($1, $2, $3)
		ON CONFLICT (year) DO UPDATE SET
			payload = EXCLUDED.payload,
			updated_at = NOW()
	`
	if _, err := s.Pool.Exec(ctx, query, p.Year, Name(p.Year), data); err != nil {
		return fmt.Errorf("%w: failed to save %s: %v", ErrStorage, Name(p.Year), err)
	}
	return nil
}

// Years implements YearStore
func (s *PostgresStore) Years(ctx context.Context) ([]int, error) {
	rows, err := s.Pool.Query(ctx, `SELECT year FROM year_partitions ORDER BY year`)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list years: %v", ErrStorage, err)
	}

	years, err := pgx.CollectRows(rows, pgx.RowTo[int])
	if err != nil {
		return nil, fmt.Errorf("%w: failed to scan years: %v", ErrStorage, err)
	}
	return years, nil
}

// Close closes the database connection pool
func (s *PostgresStore) Close() {
	if s.Pool != nil {
		s.Pool.Close()
		log.Info().Msg("Database connection pool closed")
	}
}

// Health checks if the database is healthy
func (s *PostgresStore) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.Pool.Ping(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	return nil
}

// PoolStats returns database pool statistics
func (s *PostgresStore) PoolStats() map[string]interface{} {
	stat := s.Pool.Stat()
	return map[string]interface{}{
		"total_conns":    stat.TotalConns(),
		"acquired_conns": stat.AcquiredConns(),
		"idle_conns":     stat.IdleConns(),
		"max_conns":      stat.MaxConns(),
	}
}
