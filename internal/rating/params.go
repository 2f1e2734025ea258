// Package rating maintains per-team TrueSkill beliefs and turns them into
// win probabilities for two-alliance matches.
package rating

import (
	"errors"
	"fmt"

	"frc_cassandra/ingestion/internal/config"
)

// Default TrueSkill environment
const (
	DefaultMu              = 25.0
	DefaultSigma           = DefaultMu / 3
	DefaultBeta            = DefaultSigma / 2
	DefaultTau             = DefaultSigma / 100
	DefaultDrawProbability = 0.10
)

var (
	// ErrInvalidAlliance is returned when Predict is given an empty alliance
	ErrInvalidAlliance = errors.New("invalid alliance")
	// ErrMatchAlreadyApplied is returned by Update for a match key already in the ledger
	ErrMatchAlreadyApplied = errors.New("match already applied")
	// ErrInvalidParams is returned by NewEngine for an unusable environment
	ErrInvalidParams = errors.New("invalid rating parameters")
)

// Params is the rating environment shared by every belief
type Params struct {
	Mu              float64 // prior mean
	Sigma           float64 // prior uncertainty
	Beta            float64 // per-team performance noise
	Tau             float64 // dynamics added before each update
	DrawProbability float64
}

// DefaultParams returns the standard TrueSkill environment
func DefaultParams() Params {
	return Params{
		Mu:              DefaultMu,
		Sigma:           DefaultSigma,
		Beta:            DefaultBeta,
		Tau:             DefaultTau,
		DrawProbability: DefaultDrawProbability,
	}
}

// ParamsFromConfig reads the TRUESKILL_* settings
func ParamsFromConfig(cfg *config.Config) Params {
	return Params{
		Mu:              cfg.TrueSkillMu,
		Sigma:           cfg.TrueSkillSigma,
		Beta:            cfg.TrueSkillBeta,
		Tau:             cfg.TrueSkillTau,
		DrawProbability: cfg.TrueSkillDrawProbability,
	}
}

// Validate checks that the environment yields finite updates
func (p Params) Validate() error {
	switch {
	case p.Sigma <= 0:
		return fmt.Errorf("%w: sigma must be positive, got %v", ErrInvalidParams, p.Sigma)
	case p.Beta <= 0:
		return fmt.Errorf("%w: beta must be positive, got %v", ErrInvalidParams, p.Beta)
	case p.Tau < 0:
		return fmt.Errorf("%w: tau must not be negative, got %v", ErrInvalidParams, p.Tau)
	case p.DrawProbability < 0 || p.DrawProbability >= 1:
		return fmt.Errorf("%w: draw probability must be in [0, 1), got %v", ErrInvalidParams, p.DrawProbability)
	}
	return nil
}

// Belief is a team's skill estimate
type Belief struct {
	Mu    float64 `json:"mu"`
	Sigma float64 `json:"sigma"`
}

// Conservative is the mu - 3*sigma leaderboard estimate
func (b Belief) Conservative() float64 {
	return b.Mu - 3*b.Sigma
}
