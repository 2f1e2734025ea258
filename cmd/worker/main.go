package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"frc_cassandra/ingestion/internal/api"
	"frc_cassandra/ingestion/internal/client"
	"frc_cassandra/ingestion/internal/config"
	"frc_cassandra/ingestion/internal/metrics"
	"frc_cassandra/ingestion/internal/rating"
	"frc_cassandra/ingestion/internal/repository"
	"frc_cassandra/ingestion/internal/scheduler"
	"frc_cassandra/ingestion/internal/storage"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load configuration
	cfg := config.MustLoad()

	// Setup logger
	setupLogger(cfg)

	log.Info().Msg("Starting Cassandra match sync worker")

	if err := cfg.RequireAuthKey(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	log.Info().
		Str("env", cfg.AppEnv).
		Str("log_level", cfg.LogLevel).
		Str("cache_backend", cfg.CacheBackend).
		Msg("Configuration loaded")

	// Create context that listens for cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("Received shutdown signal, gracefully shutting down...")
		cancel()
	}()

	// Initialize TBA client
	tba := client.NewClient(cfg.TBABaseURL, cfg.TBAAuthKey, cfg.TBATimeout)
	tba.SetRetryPolicy(cfg.TBAMaxRetries, time.Second)
	log.Info().Msg("TBA client initialized")

	// Initialize year store
	store, closeStore, err := storage.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open year store")
	}
	defer closeStore()

	repo := repository.New(store, tba, repository.WithConcurrency(cfg.SyncConcurrency))

	engine, err := rating.NewEngine(rating.ParamsFromConfig(cfg))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create rating engine")
	}

	// Start metrics HTTP server
	if cfg.EnableMetrics {
		go startMetricsServer(cfg.MetricsPort)
	}

	// Update system uptime metric
	startTime := time.Now()
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				metrics.SystemUptime.Set(time.Since(startTime).Seconds())
			case <-ctx.Done():
				return
			}
		}
	}()

	// Initial sync of every configured year, then derive beliefs from history
	years := cfg.Years(time.Now())
	if len(years) == 0 {
		log.Fatal().Int("start_year", cfg.StartYear).Msg("No seasons to sync")
	}
	log.Info().
		Int("from", years[0]).
		Int("to", years[len(years)-1]).
		Msg("Running initial sync...")

	if err := repo.SyncAll(ctx, years); err != nil {
		log.Error().Err(err).Msg("Initial sync finished with errors, continuing anyway...")
	} else {
		log.Info().Msg("Initial sync completed successfully")
	}

	if _, err := engine.Replay(ctx, repo); err != nil {
		log.Error().Err(err).Msg("Initial rating replay failed")
	}

	// Start API server
	apiServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.APIPort),
		Handler:           api.NewRouter(api.NewHandler(repo, engine, storeHealth(store))),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Int("port", cfg.APIPort).Msg("Starting API server")
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("API server failed")
			cancel()
		}
	}()

	// Create and start scheduler
	sched := scheduler.NewScheduler(cfg.SyncCron, repo, engine)

	if cfg.EnableScheduler {
		if err := sched.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to start scheduler")
		}
	}

	// Keep running until context is cancelled
	<-ctx.Done()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	log.Info().Msg("Shutting down API server...")
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("API server shutdown failed")
	}

	if cfg.EnableScheduler {
		sched.Stop()
	}

	log.Info().Msg("Worker shutdown complete")
}

// setupLogger configures the zerolog logger
func setupLogger(cfg *config.Config) {
	// Pretty console logging in development
	if cfg.IsDevelopment() {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}

	// Set log level
	level := zerolog.InfoLevel
	if cfg.LogLevel != "" {
		parsedLevel, err := zerolog.ParseLevel(cfg.LogLevel)
		if err == nil {
			level = parsedLevel
		}
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("level", level.String()).
		Msg("Logger initialized")
}

// storeHealth returns the store's health check, or nil when it has none
func storeHealth(store storage.YearStore) api.StoreHealth {
	if hc, ok := store.(storage.HealthChecker); ok {
		return hc
	}
	return nil
}

// startMetricsServer starts the Prometheus metrics HTTP server
func startMetricsServer(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	addr := fmt.Sprintf(":%d", port)
	log.Info().Int("port", port).Msg("Starting metrics server")

	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error().Err(err).Msg("Metrics server failed")
	}
}
