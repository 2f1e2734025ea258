// Package evaluation scores the rating engine against recorded history:
// each match is predicted before its result is applied.
package evaluation

import (
	"context"
	"fmt"
	"strconv"

	"frc_cassandra/ingestion/internal/metrics"
	"frc_cassandra/ingestion/internal/models"
	"frc_cassandra/ingestion/internal/rating"

	"github.com/rs/zerolog/log"
)

// Result holds the accumulated score of an evaluation run
type Result struct {
	Matches int     `json:"matches"`
	Brier   float64 `json:"brier"`
	Correct int     `json:"correct"`

	squaredError float64
}

// Accuracy is the share of matches whose favourite matched the outcome
func (r Result) Accuracy() float64 {
	if r.Matches == 0 {
		return 0
	}
	return float64(r.Correct) / float64(r.Matches)
}

func (r *Result) add(pBlue, outcome float64) {
	r.Matches++
	r.squaredError += (pBlue - outcome) * (pBlue - outcome)
	r.Brier = r.squaredError / float64(r.Matches)
	if (pBlue > 0.5) == (outcome == 1) {
		r.Correct++
	}
}

// Recorder receives each evaluated match before it is predicted
type Recorder interface {
	AppendMatch(year int, eventKey string, match models.Match) error
}

// Option configures a Run
type Option func(*runner)

// WithRecorder mirrors every evaluated match into rec, in evaluation order
func WithRecorder(rec Recorder) Option {
	return func(r *runner) {
		r.recorder = rec
	}
}

type runner struct {
	source   rating.MatchSource
	engine   *rating.Engine
	recorder Recorder
}

// Run predicts then applies every played match of the given years in repository
// order and returns the Brier score. The outcome is 1 when blue wins, else 0.
// An empty years slice evaluates every year the source knows.
func Run(ctx context.Context, source rating.MatchSource, engine *rating.Engine, years []int, opts ...Option) (Result, error) {
	run := &runner{source: source, engine: engine}
	for _, opt := range opts {
		opt(run)
	}

	if len(years) == 0 {
		years = source.Years()
	}

	var total Result
	for _, year := range years {
		yr, err := run.year(ctx, year)
		if err != nil {
			return total, err
		}

		total.Matches += yr.Matches
		total.Correct += yr.Correct
		total.squaredError += yr.squaredError

		metrics.BrierScore.WithLabelValues(strconv.Itoa(year)).Set(yr.Brier)
		log.Info().
			Int("year", year).
			Int("matches", yr.Matches).
			Float64("brier", yr.Brier).
			Float64("accuracy", yr.Accuracy()).
			Msg("Year evaluated")
	}

	if total.Matches > 0 {
		total.Brier = total.squaredError / float64(total.Matches)
	}
	return total, nil
}

func (run *runner) year(ctx context.Context, year int) (Result, error) {
	var r Result

	events, err := run.source.GetYearEvents(year)
	if err != nil {
		return r, fmt.Errorf("evaluate year %d: %w", year, err)
	}

	for _, eventKey := range events {
		if err := ctx.Err(); err != nil {
			return r, err
		}

		matches, err := run.source.GetEventMatches(year, eventKey)
		if err != nil {
			return r, fmt.Errorf("evaluate event %s: %w", eventKey, err)
		}

		for _, m := range matches {
			if err := m.ValidateResult(); err != nil {
				continue
			}

			if run.recorder != nil {
				if err := run.recorder.AppendMatch(year, eventKey, m); err != nil {
					return r, fmt.Errorf("record match %s: %w", m.Key, err)
				}
			}

			pBlue, _, err := run.engine.Predict(m.Blue.TeamKeys, m.Red.TeamKeys)
			if err != nil {
				return r, err
			}

			if err := run.engine.Update(m); err != nil {
				// Already folded in by an earlier replay; its prediction is not out of sample
				log.Debug().Err(err).Str("match", m.Key).Msg("Match not scored")
				continue
			}

			outcome := 0.0
			if m.Outcome() == models.OutcomeBlue {
				outcome = 1
			}
			r.add(pBlue, outcome)
		}
	}

	return r, nil
}
