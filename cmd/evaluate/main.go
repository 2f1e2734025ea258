// Command evaluate scores the rating engine against one or more recorded seasons.
// Every played match is predicted before its result is applied, and the mean
// squared error of the blue win probability (the Brier score) is reported.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"frc_cassandra/ingestion/internal/client"
	"frc_cassandra/ingestion/internal/config"
	"frc_cassandra/ingestion/internal/evaluation"
	"frc_cassandra/ingestion/internal/models"
	"frc_cassandra/ingestion/internal/rating"
	"frc_cassandra/ingestion/internal/repository"
	"frc_cassandra/ingestion/internal/storage"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	yearsFlag := flag.String("years", "2016", "comma separated seasons to evaluate")
	offline := flag.Bool("offline", false, "evaluate the cached data without contacting TBA")
	warm := flag.Bool("warm", false, "replay earlier cached seasons before evaluating")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	years, err := parseYears(*yearsFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid -years")
	}

	ctx := context.Background()
	cfg := config.MustLoad()

	store, closeStore, err := storage.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open year store")
	}
	defer closeStore()

	// 1. Populate the repository from the cache, then refresh the evaluated seasons
	var provider repository.Provider
	if !*offline {
		if err := cfg.RequireAuthKey(); err != nil {
			log.Fatal().Err(err).Msg("Invalid configuration")
		}
		tba := client.NewClient(cfg.TBABaseURL, cfg.TBAAuthKey, cfg.TBATimeout)
		tba.SetRetryPolicy(cfg.TBAMaxRetries, time.Second)
		provider = tba
	}

	repo := repository.New(store, provider, repository.WithConcurrency(cfg.SyncConcurrency))
	if err := repo.LoadCached(ctx); err != nil {
		log.Warn().Err(err).Msg("Some cached years could not be loaded")
	}
	if !*offline {
		if err := repo.SyncAll(ctx, years); err != nil {
			log.Error().Err(err).Msg("Sync finished with errors, evaluating what is available")
		}
	}

	engine, err := rating.NewEngine(rating.ParamsFromConfig(cfg))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create rating engine")
	}

	// 2. Optionally carry beliefs in from earlier seasons
	if *warm {
		stats, err := engine.Replay(ctx, before{MatchSource: repo, year: years[0]})
		if err != nil {
			log.Fatal().Err(err).Msg("Warm-up replay failed")
		}
		log.Info().Int("applied", stats.Applied).Msg("Beliefs warmed from earlier seasons")
	}

	// 3. Start an empty dry-run mirror of the evaluated seasons; it receives
	// each match just before the match is predicted
	mirror := repository.New(storage.NewMemoryStore(), cachedEvents{repo}, repository.WithDryRun())
	for _, year := range years {
		if err := mirror.Sync(ctx, year); err != nil {
			log.Fatal().Err(err).Int("year", year).Msg("Failed to prepare evaluation mirror")
		}
	}

	// 4. Predict then update through every evaluated season
	res, err := evaluation.Run(ctx, repo, engine, years, evaluation.WithRecorder(mirror))
	if err != nil {
		log.Fatal().Err(err).Msg("Evaluation failed")
	}
	if res.Matches == 0 {
		log.Fatal().Ints("years", years).Msg("No played matches to evaluate")
	}

	log.Info().
		Int("matches", res.Matches).
		Float64("brier", res.Brier).
		Float64("accuracy", res.Accuracy()).
		Int("teams", engine.Len()).
		Int("mirrored", mirrored(mirror, years)).
		Msg("Evaluation complete")

	fmt.Println(res.Brier)
}

func parseYears(raw string) ([]int, error) {
	var years []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		y, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("bad year %q: %w", part, err)
		}
		years = append(years, y)
	}
	if len(years) == 0 {
		return nil, fmt.Errorf("no years given")
	}
	sort.Ints(years)
	return years, nil
}

// before limits a match source to the seasons preceding year
type before struct {
	rating.MatchSource
	year int
}

func (b before) Years() []int {
	var out []int
	for _, y := range b.MatchSource.Years() {
		if y < b.year {
			out = append(out, y)
		}
	}
	return out
}

// cachedEvents serves a repository's event metadata as a provider, so a dry-run
// repository can be seeded with the same events without contacting TBA
type cachedEvents struct {
	repo *repository.MatchRepository
}

func (c cachedEvents) FetchEvents(ctx context.Context, year int) ([]models.Event, error) {
	keys, err := c.repo.GetYearEvents(year)
	if err != nil {
		return nil, err
	}

	events := make([]models.Event, 0, len(keys))
	for _, key := range keys {
		entry, err := c.repo.GetEvent(year, key)
		if err != nil {
			return nil, err
		}
		events = append(events, entry.Info)
	}
	return events, nil
}

func (c cachedEvents) FetchEventMatches(ctx context.Context, eventKey, lastModified string) (client.MatchesResult, error) {
	return client.MatchesResult{}, fmt.Errorf("matches for %s are not served from the cache", eventKey)
}

// mirrored counts the matches recorded into the mirror
func mirrored(mirror *repository.MatchRepository, years []int) int {
	n := 0
	for _, year := range years {
		keys, err := mirror.GetYearEvents(year)
		if err != nil {
			continue
		}
		for _, key := range keys {
			matches, err := mirror.GetEventMatches(year, key)
			if err == nil {
				n += len(matches)
			}
		}
	}
	return n
}
