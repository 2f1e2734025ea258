package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"frc_cassandra/ingestion/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// RedisStore keeps each year under one key: <prefix><year>-event_matches.
// A single SET replaces the value atomically.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: failed to ping redis at %s: %v", ErrStorage, cfg.Addr, err)
	}

	log.Info().Str("addr", cfg.Addr).Int("db", cfg.DB).Msg("Redis year store connected")
	return NewRedisStoreFromClient(client, cfg.Prefix), nil
}

// NewRedisStoreFromClient wraps an existing client
func NewRedisStoreFromClient(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(year int) string {
	return s.prefix + Name(year)
}

// Load implements YearStore
func (s *RedisStore) Load(ctx context.Context, year int) (p *models.YearPartition, err error) {
	defer func(start time.Time) { err = observe("redis", "load", start, err) }(time.Now())

	data, err := s.client.Get(ctx, s.key(year)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("%w: failed to get %s: %v", ErrStorage, s.key(year), err)
	}

	return decode(year, data)
}

// Save implements YearStore
func (s *RedisStore) Save(ctx context.Context, p *models.YearPartition) (err error) {
	defer func(start time.Time) { err = observe("redis", "save", start, err) }(time.Now())

	data, err := encode(p)
	if err != nil {
		return err
	}

	if err := s.client.Set(ctx, s.key(p.Year), data, 0).Err(); err != nil {
		return fmt.Errorf("%w: failed to set %s: %v", ErrStorage, s.key(p.Year), err)
	}
	return nil
}

// Years implements YearStore
func (s *RedisStore) Years(ctx context.Context) ([]int, error) {
	var years []int

	iter := s.client.Scan(ctx, 0, s.prefix+"*"+nameSuffix, 100).Iterator()
	for iter.Next(ctx) {
		name := strings.TrimPrefix(iter.Val(), s.prefix)
		year, err := strconv.Atoi(strings.TrimSuffix(name, nameSuffix))
		if err != nil {
			continue
		}
		years = append(years, year)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to scan keys: %v", ErrStorage, err)
	}

	sort.Ints(years)
	return years, nil
}

// Health checks if Redis answers a ping
func (s *RedisStore) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// Close closes the Redis client
func (s *RedisStore) Close() error {
	return s.client.Close()
}
