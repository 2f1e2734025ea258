package models

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrMalformedMatch is returned when a match lacks the fields needed to derive an outcome
var ErrMalformedMatch = errors.New("malformed match")

// CompLevel is the round of an event a match belongs to
type CompLevel string

const (
	CompLevelQualification CompLevel = "qm"
	CompLevelEighthFinal   CompLevel = "ef"
	CompLevelQuarterFinal  CompLevel = "qf"
	CompLevelSemiFinal     CompLevel = "sf"
	CompLevelFinal         CompLevel = "f"
)

// compLevels lists every level in play order
var compLevels = []CompLevel{
	CompLevelQualification,
	CompLevelEighthFinal,
	CompLevelQuarterFinal,
	CompLevelSemiFinal,
	CompLevelFinal,
}

// Rank returns the precedence of the level, or -1 for an unknown level
func (c CompLevel) Rank() int {
	for i, level := range compLevels {
		if level == c {
			return i
		}
	}
	return -1
}

// Valid reports whether c is one of the known levels
func (c CompLevel) Valid() bool {
	return c.Rank() >= 0
}

// Outcome is the result of a match derived from its scores
type Outcome int

const (
	OutcomeUnknown Outcome = iota
	OutcomeRed
	OutcomeBlue
	OutcomeDraw
)

// String returns the alliance color that won, "draw", or "unknown"
func (o Outcome) String() string {
	switch o {
	case OutcomeRed:
		return "red"
	case OutcomeBlue:
		return "blue"
	case OutcomeDraw:
		return "draw"
	default:
		return "unknown"
	}
}

// Alliance is the group of teams on one side of a match
type Alliance struct {
	TeamKeys []string `json:"team_keys"`
	Score    *int     `json:"score,omitempty"` // nil until the match is played
}

// Match represents a single FRC match
type Match struct {
	Key         string    `json:"key"`
	EventKey    string    `json:"event_key"`
	CompLevel   CompLevel `json:"comp_level"`
	SetNumber   int       `json:"set_number"`
	MatchNumber int       `json:"match_number"`
	Red         Alliance  `json:"red"`
	Blue        Alliance  `json:"blue"`
	Time        time.Time `json:"time,omitempty"`
}

// Played returns true if both alliances have a recorded score
func (m *Match) Played() bool {
	return m.Red.Score != nil && m.Blue.Score != nil
}

// Outcome derives the winner from the scores
func (m *Match) Outcome() Outcome {
	if !m.Played() {
		return OutcomeUnknown
	}
	switch red, blue := *m.Red.Score, *m.Blue.Score; {
	case red > blue:
		return OutcomeRed
	case blue > red:
		return OutcomeBlue
	default:
		return OutcomeDraw
	}
}

// Validate checks the structural fields every stored match must carry.
// Unplayed matches are valid; use ValidateResult before rating a match.
func (m *Match) Validate() error {
	if m.Key == "" {
		return fmt.Errorf("%w: missing key", ErrMalformedMatch)
	}
	if !m.CompLevel.Valid() {
		return fmt.Errorf("%w: match %s has unknown comp level %q", ErrMalformedMatch, m.Key, m.CompLevel)
	}
	return nil
}

// ValidateResult checks that the match has everything needed to derive an outcome
func (m *Match) ValidateResult() error {
	if err := m.Validate(); err != nil {
		return err
	}
	if len(m.Red.TeamKeys) == 0 || len(m.Blue.TeamKeys) == 0 {
		return fmt.Errorf("%w: match %s is missing alliance teams", ErrMalformedMatch, m.Key)
	}
	if !m.Played() {
		return fmt.Errorf("%w: match %s has no score", ErrMalformedMatch, m.Key)
	}
	return nil
}

// AllianceInput is the alliance shape returned by The Blue Alliance
type AllianceInput struct {
	Score    int      `json:"score"` // -1 when not played
	TeamKeys []string `json:"team_keys"`
}

// MatchInput is used for creating matches from the TBA API
type MatchInput struct {
	Key         string `json:"key"`
	EventKey    string `json:"event_key"`
	CompLevel   string `json:"comp_level"`
	SetNumber   int    `json:"set_number"`
	MatchNumber int    `json:"match_number"`
	Alliances   struct {
		Red  AllianceInput `json:"red"`
		Blue AllianceInput `json:"blue"`
	} `json:"alliances"`
	Time       *int64 `json:"time,omitempty"`
	ActualTime *int64 `json:"actual_time,omitempty"`
}

// ToMatch converts MatchInput (from API) to Match model
func (mi *MatchInput) ToMatch() Match {
	match := Match{
		Key:         mi.Key,
		EventKey:    mi.EventKey,
		CompLevel:   CompLevel(mi.CompLevel),
		SetNumber:   mi.SetNumber,
		MatchNumber: mi.MatchNumber,
		Red:         mi.Alliances.Red.toAlliance(),
		Blue:        mi.Alliances.Blue.toAlliance(),
	}

	// Prefer the time the match was actually played
	if mi.ActualTime != nil {
		match.Time = time.Unix(*mi.ActualTime, 0).UTC()
	} else if mi.Time != nil {
		match.Time = time.Unix(*mi.Time, 0).UTC()
	}

	return match
}

func (ai AllianceInput) toAlliance() Alliance {
	alliance := Alliance{TeamKeys: append([]string(nil), ai.TeamKeys...)}
	if ai.Score >= 0 {
		score := ai.Score
		alliance.Score = &score
	}
	return alliance
}

// SortMatches returns matches in canonical event order: grouped by comp level
// (qm, ef, qf, sf, f), then by match number and set number within each level.
// Matches with an unknown level sort after finals.
func SortMatches(matches []Match) []Match {
	sorted := make([]Match, len(matches))
	copy(sorted, matches)

	rank := func(c CompLevel) int {
		if r := c.Rank(); r >= 0 {
			return r
		}
		return len(compLevels)
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if ra, rb := rank(a.CompLevel), rank(b.CompLevel); ra != rb {
			return ra < rb
		}
		if a.MatchNumber != b.MatchNumber {
			return a.MatchNumber < b.MatchNumber
		}
		return a.SetNumber < b.SetNumber
	})

	return sorted
}
