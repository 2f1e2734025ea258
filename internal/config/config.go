package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Cache backends accepted by CACHE_BACKEND
const (
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config holds all application configuration
type Config struct {
	// The Blue Alliance API
	TBAAuthKey    string        `envconfig:"TBA_AUTH_KEY"`
	TBABaseURL    string        `envconfig:"TBA_BASE_URL" default:"https://www.thebluealliance.com/api/v3"`
	TBATimeout    time.Duration `envconfig:"TBA_TIMEOUT" default:"30s"`
	TBAMaxRetries int           `envconfig:"TBA_MAX_RETRIES" default:"3"`

	// Year store
	CacheBackend string `envconfig:"CACHE_BACKEND" default:"file"`
	CacheDir     string `envconfig:"CACHE_DIR" default:"cache"`
	RedisPrefix  string `envconfig:"REDIS_PREFIX" default:"cassandra:"`

	// Database
	DatabaseHost     string `envconfig:"DATABASE_HOST" default:"localhost"`
	DatabasePort     int    `envconfig:"DATABASE_PORT" default:"5432"`
	DatabaseName     string `envconfig:"DATABASE_NAME" default:"cassandra"`
	DatabaseUser     string `envconfig:"DATABASE_USER" default:"cassandra"`
	DatabasePassword string `envconfig:"DATABASE_PASSWORD" default:""`
	DatabaseSSLMode  string `envconfig:"DATABASE_SSL_MODE" default:"disable"`

	// Redis
	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	// Application
	AppEnv   string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Sync
	StartYear       int    `envconfig:"START_YEAR" default:"2008"`
	EndYear         int    `envconfig:"END_YEAR" default:"0"` // 0 means the current year
	SyncConcurrency int    `envconfig:"SYNC_CONCURRENCY" default:"1"`
	EnableScheduler bool   `envconfig:"ENABLE_SCHEDULER" default:"true"`
	SyncCron        string `envconfig:"SYNC_CRON" default:"*/15 * * * *"`

	// Rating model
	TrueSkillMu              float64 `envconfig:"TRUESKILL_MU" default:"25"`
	TrueSkillSigma           float64 `envconfig:"TRUESKILL_SIGMA" default:"8.333333333333334"`
	TrueSkillBeta            float64 `envconfig:"TRUESKILL_BETA" default:"4.166666666666667"`
	TrueSkillTau             float64 `envconfig:"TRUESKILL_TAU" default:"0.08333333333333334"`
	TrueSkillDrawProbability float64 `envconfig:"TRUESKILL_DRAW_PROBABILITY" default:"0.10"`

	// HTTP
	APIPort       int  `envconfig:"API_PORT" default:"8080"`
	EnableMetrics bool `envconfig:"ENABLE_METRICS" default:"true"`
	MetricsPort   int  `envconfig:"METRICS_PORT" default:"9090"`
}

// Load loads configuration from environment variables
// It first attempts to load from .env file if in development mode
func Load() (*Config, error) {
	// Try to load .env file (ignore error if doesn't exist)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.CacheBackend {
	case BackendFile, BackendRedis, BackendPostgres:
	default:
		return fmt.Errorf("CACHE_BACKEND must be one of file, redis, postgres (got %q)", c.CacheBackend)
	}

	if c.CacheBackend == BackendPostgres && c.DatabasePassword == "" {
		return fmt.Errorf("DATABASE_PASSWORD is required for the postgres backend")
	}

	if c.EndYear != 0 && c.EndYear < c.StartYear {
		return fmt.Errorf("END_YEAR %d is before START_YEAR %d", c.EndYear, c.StartYear)
	}

	if c.SyncConcurrency < 1 {
		return fmt.Errorf("SYNC_CONCURRENCY must be at least 1")
	}

	if c.TrueSkillSigma <= 0 || c.TrueSkillBeta <= 0 {
		return fmt.Errorf("TRUESKILL_SIGMA and TRUESKILL_BETA must be positive")
	}

	if c.TrueSkillDrawProbability < 0 || c.TrueSkillDrawProbability >= 1 {
		return fmt.Errorf("TRUESKILL_DRAW_PROBABILITY must be in [0, 1)")
	}

	return nil
}

// RequireAuthKey reports an error when no TBA key is configured.
// Only binaries that talk to the provider need one.
func (c *Config) RequireAuthKey() error {
	if c.TBAAuthKey == "" {
		return fmt.Errorf("TBA_AUTH_KEY is required")
	}
	return nil
}

// Years returns every season from StartYear through EndYear (or the current year).
// It is empty when StartYear is still in the future.
func (c *Config) Years(now time.Time) []int {
	end := c.EndYear
	if end == 0 {
		end = now.Year()
	}
	if end < c.StartYear {
		return nil
	}

	years := make([]int, 0, end-c.StartYear+1)
	for y := c.StartYear; y <= end; y++ {
		years = append(years, y)
	}
	return years
}

// DatabaseDSN returns the PostgreSQL connection string
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DatabaseUser,
		c.DatabasePassword,
		c.DatabaseHost,
		c.DatabasePort,
		c.DatabaseName,
		c.DatabaseSSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// MustLoad loads configuration or panics on error
// Use this in main() where we want to fail fast
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	return cfg
}
