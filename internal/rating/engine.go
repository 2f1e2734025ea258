package rating

import (
	"fmt"
	"math"
	"sync"

	"frc_cassandra/ingestion/internal/metrics"
	"frc_cassandra/ingestion/internal/models"

	"github.com/rs/zerolog/log"
)

// Engine holds the belief of every team seen so far.
// All methods are safe for concurrent use; updates are serialized.
type Engine struct {
	mu      sync.Mutex
	params  Params
	beliefs map[string]Belief
	applied map[string]struct{}
}

// NewEngine creates an engine with no teams
func NewEngine(params Params) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		params:  params,
		beliefs: make(map[string]Belief),
		applied: make(map[string]struct{}),
	}, nil
}

// Params returns the engine's environment
func (e *Engine) Params() Params {
	return e.params
}

// belief returns the team's belief, registering the prior on first access.
// Must be called with e.mu held.
func (e *Engine) belief(team string) Belief {
	b, ok := e.beliefs[team]
	if !ok {
		b = Belief{Mu: e.params.Mu, Sigma: e.params.Sigma}
		e.beliefs[team] = b
	}
	return b
}

// lookup returns the team's belief or the prior, without registering the team.
// Must be called with e.mu held.
func (e *Engine) lookup(team string) Belief {
	if b, ok := e.beliefs[team]; ok {
		return b
	}
	return Belief{Mu: e.params.Mu, Sigma: e.params.Sigma}
}

// Belief returns a team's current belief without registering it
func (e *Engine) Belief(team string) (Belief, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.beliefs[team]
	return b, ok
}

// Snapshot returns a copy of every belief
func (e *Engine) Snapshot() map[string]Belief {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string]Belief, len(e.beliefs))
	for team, b := range e.beliefs {
		out[team] = b
	}
	return out
}

// Len returns the number of teams with a belief
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.beliefs)
}

// Applied reports whether a match key has already been folded into the beliefs
func (e *Engine) Applied(matchKey string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.applied[matchKey]
	return ok
}

// Predict returns the probabilities that blue and red win.
// The two values always sum to 1. Unseen teams are rated at the prior.
func (e *Engine) Predict(blue, red []string) (float64, float64, error) {
	if len(blue) == 0 || len(red) == 0 {
		return 0, 0, fmt.Errorf("%w: blue has %d teams, red has %d", ErrInvalidAlliance, len(blue), len(red))
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var delta, variance float64
	for _, team := range blue {
		b := e.lookup(team)
		delta += b.Mu
		variance += b.Sigma * b.Sigma
	}
	for _, team := range red {
		b := e.lookup(team)
		delta -= b.Mu
		variance += b.Sigma * b.Sigma
	}

	n := float64(len(blue) + len(red))
	pBlue := cdf(delta / math.Sqrt(n*e.params.Beta*e.params.Beta+variance))
	return pBlue, 1 - pBlue, nil
}

// Update folds one played match into the beliefs of all its teams.
// Either every participant is revised or, on error, none is.
func (e *Engine) Update(match models.Match) error {
	if err := match.ValidateResult(); err != nil {
		metrics.RecordRatingUpdate("rejected", e.Len())
		return err
	}
	if err := distinctTeams(match); err != nil {
		metrics.RecordRatingUpdate("rejected", e.Len())
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.applied[match.Key]; ok {
		metrics.RecordRatingUpdate("duplicate", len(e.beliefs))
		return fmt.Errorf("%w: %s", ErrMatchAlreadyApplied, match.Key)
	}

	// Winner first; a tie keeps blue first and uses the draw corrections
	first, second := match.Blue.TeamKeys, match.Red.TeamKeys
	outcome := match.Outcome()
	if outcome == models.OutcomeRed {
		first, second = second, first
	}

	revised := e.rate(first, second, outcome == models.OutcomeDraw)
	for team, b := range revised {
		e.beliefs[team] = b
	}
	e.applied[match.Key] = struct{}{}

	metrics.RecordRatingUpdate("applied", len(e.beliefs))
	log.Debug().
		Str("match", match.Key).
		Str("outcome", outcome.String()).
		Int("teams", len(revised)).
		Msg("Beliefs updated")
	return nil
}

// rate computes revised beliefs for a two-team result without touching e.beliefs.
// Must be called with e.mu held.
func (e *Engine) rate(winner, loser []string, draw bool) map[string]Belief {
	tau2 := e.params.Tau * e.params.Tau
	beta2 := e.params.Beta * e.params.Beta

	// Dynamics widen every prior before the observation is applied
	prior := make(map[string]Belief, len(winner)+len(loser))
	var muWinner, muLoser, c2 float64
	for _, team := range winner {
		b := e.belief(team)
		b.Sigma = math.Sqrt(b.Sigma*b.Sigma + tau2)
		prior[team] = b
		muWinner += b.Mu
		c2 += b.Sigma*b.Sigma + beta2
	}
	for _, team := range loser {
		b := e.belief(team)
		b.Sigma = math.Sqrt(b.Sigma*b.Sigma + tau2)
		prior[team] = b
		muLoser += b.Mu
		c2 += b.Sigma*b.Sigma + beta2
	}

	c := math.Sqrt(c2)
	margin := drawMargin(e.params.DrawProbability, len(winner)+len(loser), e.params.Beta) / c
	diff := (muWinner - muLoser) / c

	var v, w float64
	if draw {
		v, w = vDraw(diff, margin), wDraw(diff, margin)
	} else {
		v, w = vWin(diff, margin), wWin(diff, margin)
	}

	revised := make(map[string]Belief, len(prior))
	apply := func(teams []string, sign float64) {
		for _, team := range teams {
			b := prior[team]
			s2 := b.Sigma * b.Sigma
			revised[team] = Belief{
				Mu:    b.Mu + sign*s2/c*v,
				Sigma: math.Sqrt(s2 * (1 - s2/c2*w)),
			}
		}
	}
	apply(winner, 1)
	apply(loser, -1)
	return revised
}

func distinctTeams(match models.Match) error {
	seen := make(map[string]struct{}, len(match.Red.TeamKeys))
	for _, team := range match.Red.TeamKeys {
		seen[team] = struct{}{}
	}
	for _, team := range match.Blue.TeamKeys {
		if _, ok := seen[team]; ok {
			return fmt.Errorf("%w: match %s has %s on both alliances", models.ErrMalformedMatch, match.Key, team)
		}
	}
	return nil
}
