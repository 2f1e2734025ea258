package storage

import (
	"context"
	"fmt"

	"frc_cassandra/ingestion/internal/config"

	"github.com/rs/zerolog/log"
)

// Open builds the YearStore selected by CACHE_BACKEND.
// The returned close function releases the backend's connections.
func Open(ctx context.Context, cfg *config.Config) (YearStore, func(), error) {
	switch cfg.CacheBackend {
	case config.BackendFile:
		store, err := NewFileStore(cfg.CacheDir)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil

	case config.BackendRedis:
		store, err := NewRedisStore(ctx, RedisConfig{
			Addr:     cfg.RedisAddr(),
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		})
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("addr", cfg.RedisAddr()).Msg("Using redis year store")
		return store, func() {
			if err := store.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close redis store")
			}
		}, nil

	case config.BackendPostgres:
		store, err := NewPostgresStore(ctx, cfg.DatabaseDSN())
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("host", cfg.DatabaseHost).Msg("Using postgres year store")
		return store, store.Close, nil
	}

	return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
}
