package rating

import (
	"context"
	"fmt"
	"testing"

	"frc_cassandra/ingestion/internal/config"
	"frc_cassandra/ingestion/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(DefaultParams())
	require.NoError(t, err)
	return e
}

func result(key string, blue []string, blueScore int, red []string, redScore int) models.Match {
	return models.Match{
		Key:         key,
		CompLevel:   models.CompLevelQualification,
		SetNumber:   1,
		MatchNumber: 1,
		Blue:        models.Alliance{TeamKeys: blue, Score: &blueScore},
		Red:         models.Alliance{TeamKeys: red, Score: &redScore},
	}
}

func TestDefaultParams(t *testing.T) {
	p := DefaultParams()
	assert.Equal(t, 25.0, p.Mu)
	assert.InDelta(t, 25.0/3, p.Sigma, 1e-12)
	assert.InDelta(t, 25.0/6, p.Beta, 1e-12)
	assert.InDelta(t, 25.0/300, p.Tau, 1e-12)
	assert.Equal(t, 0.10, p.DrawProbability)
	assert.NoError(t, p.Validate())
}

func TestParamsFromConfig(t *testing.T) {
	p := ParamsFromConfig(&config.Config{
		TrueSkillMu:              30,
		TrueSkillSigma:           10,
		TrueSkillBeta:            5,
		TrueSkillTau:             0.1,
		TrueSkillDrawProbability: 0,
	})
	assert.Equal(t, Params{Mu: 30, Sigma: 10, Beta: 5, Tau: 0.1}, p)
	assert.NoError(t, p.Validate())
}

func TestParams_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Params)
	}{
		{"zero sigma", func(p *Params) { p.Sigma = 0 }},
		{"negative beta", func(p *Params) { p.Beta = -1 }},
		{"negative tau", func(p *Params) { p.Tau = -0.1 }},
		{"draw probability of one", func(p *Params) { p.DrawProbability = 1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.modify(&p)
			_, err := NewEngine(p)
			assert.ErrorIs(t, err, ErrInvalidParams)
		})
	}
}

func TestScenario_SingleWin(t *testing.T) {
	e := newEngine(t)
	a, b := []string{"frc1"}, []string{"frc2"}

	pBlue, pRed, err := e.Predict(a, b)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, pBlue, 1e-12)
	assert.InDelta(t, 0.5, pRed, 1e-12)

	require.NoError(t, e.Update(result("2016test_qm1", a, 100, b, 50)))

	t1, ok := e.Belief("frc1")
	require.True(t, ok)
	t2, ok := e.Belief("frc2")
	require.True(t, ok)

	assert.Greater(t, t1.Mu, DefaultMu)
	assert.Less(t, t2.Mu, DefaultMu)
	assert.InDelta(t, DefaultMu-t2.Mu, t1.Mu-DefaultMu, 1e-9, "Equal priors move by the same amount")
	assert.Less(t, t1.Sigma, DefaultSigma)
	assert.Less(t, t2.Sigma, DefaultSigma)

	pBlue, _, err = e.Predict(a, b)
	require.NoError(t, err)
	assert.Greater(t, pBlue, 0.5)
}

func TestScenario_RedWin(t *testing.T) {
	e := newEngine(t)
	require.NoError(t, e.Update(result("2016test_qm1", []string{"frc1"}, 10, []string{"frc2"}, 70)))

	blue, _ := e.Belief("frc1")
	red, _ := e.Belief("frc2")
	assert.Less(t, blue.Mu, red.Mu)
}

func TestScenario_Draw(t *testing.T) {
	e := newEngine(t)
	blue := []string{"frc1", "frc2", "frc3"}
	red := []string{"frc4", "frc5", "frc6"}

	require.NoError(t, e.Update(result("2016test_qm1", blue, 80, red, 80)))

	for _, team := range append(append([]string{}, blue...), red...) {
		b, ok := e.Belief(team)
		require.True(t, ok)
		assert.InDelta(t, DefaultMu, b.Mu, 1e-9, "A tie between equal alliances moves no mean")
		assert.Less(t, b.Sigma, DefaultSigma, "A tie is still informative")
	}
}

func TestScenario_DrawPullsMeansTogether(t *testing.T) {
	e := newEngine(t)
	require.NoError(t, e.Update(result("m1", []string{"frc1"}, 100, []string{"frc2"}, 0)))

	before1, _ := e.Belief("frc1")
	before2, _ := e.Belief("frc2")

	require.NoError(t, e.Update(result("m2", []string{"frc1"}, 50, []string{"frc2"}, 50)))

	after1, _ := e.Belief("frc1")
	after2, _ := e.Belief("frc2")
	assert.Less(t, after1.Mu, before1.Mu)
	assert.Greater(t, after2.Mu, before2.Mu)
	assert.Greater(t, after1.Mu, after2.Mu, "A tie does not flip the order")
}

func TestPredict_ComplementAndSymmetry(t *testing.T) {
	e := newEngine(t)
	require.NoError(t, e.Update(result("m1", []string{"frc1", "frc2"}, 90, []string{"frc3", "frc4"}, 40)))
	require.NoError(t, e.Update(result("m2", []string{"frc3", "frc5"}, 60, []string{"frc1", "frc6"}, 20)))

	pairs := [][2][]string{
		{{"frc1", "frc2"}, {"frc3", "frc4"}},
		{{"frc5"}, {"frc6", "frc1", "frc2"}},
		{{"frc1"}, {"frc99"}},
	}

	for i, pair := range pairs {
		t.Run(fmt.Sprintf("pair_%d", i), func(t *testing.T) {
			p, q, err := e.Predict(pair[0], pair[1])
			require.NoError(t, err)
			assert.InDelta(t, 1.0, p+q, 1e-12)
			assert.GreaterOrEqual(t, p, 0.0)
			assert.LessOrEqual(t, p, 1.0)

			q2, p2, err := e.Predict(pair[1], pair[0])
			require.NoError(t, err)
			assert.InDelta(t, p, p2, 1e-12)
			assert.InDelta(t, q, q2, 1e-12)
		})
	}
}

func TestPredict_EmptyAlliance(t *testing.T) {
	e := newEngine(t)

	_, _, err := e.Predict(nil, []string{"frc1"})
	assert.ErrorIs(t, err, ErrInvalidAlliance)

	_, _, err = e.Predict([]string{"frc1"}, []string{})
	assert.ErrorIs(t, err, ErrInvalidAlliance)

	assert.Zero(t, e.Len(), "A rejected prediction registers no team")
}

func TestPredict_UnseenTeamsUsePrior(t *testing.T) {
	e := newEngine(t)
	require.NoError(t, e.Update(result("m1", []string{"frc1"}, 3, []string{"frc2"}, 1)))

	pBlue, _, err := e.Predict([]string{"frc254"}, []string{"frc1678"})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, pBlue, 1e-12)

	_, ok := e.Belief("frc254")
	assert.False(t, ok, "Predicting does not register teams")
	assert.Equal(t, 2, e.Len())

	// Update registers on first access
	require.NoError(t, e.Update(result("m2", []string{"frc254"}, 3, []string{"frc1678"}, 1)))
	_, ok = e.Belief("frc254")
	assert.True(t, ok)
	assert.Equal(t, 4, e.Len())
}

func TestUpdate_MalformedLeavesStateUnchanged(t *testing.T) {
	e := newEngine(t)
	require.NoError(t, e.Update(result("m1", []string{"frc1"}, 3, []string{"frc2"}, 1)))
	before := e.Snapshot()

	unscored := result("m2", []string{"frc1"}, 0, []string{"frc3"}, 0)
	unscored.Red.Score = nil

	noTeams := result("m3", []string{"frc1"}, 1, nil, 0)

	shared := result("m4", []string{"frc1", "frc2"}, 1, []string{"frc2"}, 0)

	noKey := result("", []string{"frc1"}, 1, []string{"frc2"}, 0)

	for _, m := range []models.Match{unscored, noTeams, shared, noKey} {
		err := e.Update(m)
		assert.ErrorIs(t, err, models.ErrMalformedMatch)
	}

	assert.Equal(t, before, e.Snapshot())
	assert.False(t, e.Applied("m2"))
}

func TestUpdate_DuplicateRejected(t *testing.T) {
	e := newEngine(t)
	m := result("m1", []string{"frc1"}, 3, []string{"frc2"}, 1)

	require.NoError(t, e.Update(m))
	before := e.Snapshot()

	assert.ErrorIs(t, e.Update(m), ErrMatchAlreadyApplied)
	assert.Equal(t, before, e.Snapshot())
	assert.True(t, e.Applied("m1"))
}

func TestUpdate_SigmaShrinksTowardFloor(t *testing.T) {
	e := newEngine(t)
	teams := []string{"frc1", "frc2", "frc3", "frc4"}

	// Round robin with alternating results keeps every match informative
	n := 0
	for round := 0; round < 25; round++ {
		for i := range teams {
			for j := i + 1; j < len(teams); j++ {
				n++
				blueScore, redScore := 10, 20
				if (round+i+j)%2 == 0 {
					blueScore, redScore = redScore, blueScore
				}
				m := result(fmt.Sprintf("m%d", n), []string{teams[i]}, blueScore, []string{teams[j]}, redScore)
				require.NoError(t, e.Update(m))
			}
		}
	}

	for _, team := range teams {
		b, ok := e.Belief(team)
		require.True(t, ok)
		assert.Less(t, b.Sigma, DefaultSigma/2)
		assert.Greater(t, b.Sigma, 0.0)
	}
}

type fakeSource struct {
	years   []int
	events  map[int][]string
	matches map[string][]models.Match
}

func (s *fakeSource) Years() []int { return s.years }

func (s *fakeSource) GetYearEvents(year int) ([]string, error) {
	events, ok := s.events[year]
	if !ok {
		return nil, fmt.Errorf("year %d missing", year)
	}
	return events, nil
}

func (s *fakeSource) GetEventMatches(year int, eventKey string) ([]models.Match, error) {
	return s.matches[eventKey], nil
}

func history() *fakeSource {
	unplayed := result("2016b_qm3", []string{"frc1"}, 0, []string{"frc2"}, 0)
	unplayed.Blue.Score, unplayed.Red.Score = nil, nil

	return &fakeSource{
		years:  []int{2015, 2016},
		events: map[int][]string{2015: {"2015a"}, 2016: {"2016a", "2016b"}},
		matches: map[string][]models.Match{
			"2015a": {
				result("2015a_qm1", []string{"frc1", "frc2"}, 50, []string{"frc3", "frc4"}, 30),
				result("2015a_qm2", []string{"frc1", "frc3"}, 20, []string{"frc2", "frc4"}, 20),
			},
			"2016a": {
				result("2016a_qm1", []string{"frc4"}, 90, []string{"frc1"}, 10),
			},
			"2016b": {
				result("2016b_qm1", []string{"frc2", "frc3"}, 5, []string{"frc1", "frc4"}, 9),
				result("2016b_qm2", []string{"frc2"}, 5, nil, 9),
				unplayed,
			},
		},
	}
}

func TestReplay_Deterministic(t *testing.T) {
	first, second := newEngine(t), newEngine(t)

	stats, err := first.Replay(context.Background(), history())
	require.NoError(t, err)
	assert.Equal(t, ReplayStats{Applied: 4, Unplayed: 1, Malformed: 1}, stats)

	_, err = second.Replay(context.Background(), history())
	require.NoError(t, err)

	assert.Equal(t, first.Snapshot(), second.Snapshot())
	assert.Equal(t, 4, first.Len())
}

func TestReplay_Incremental(t *testing.T) {
	e := newEngine(t)
	src := history()

	_, err := e.Replay(context.Background(), src)
	require.NoError(t, err)

	src.matches["2016a"] = append(src.matches["2016a"], result("2016a_qm2", []string{"frc5"}, 1, []string{"frc6"}, 0))

	stats, err := e.Replay(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Applied)
	assert.Equal(t, 4, stats.Duplicates)
	assert.Equal(t, 6, e.Len())
}

func TestReplay_SourceError(t *testing.T) {
	e := newEngine(t)
	src := history()
	src.years = append(src.years, 2017)

	_, err := e.Replay(context.Background(), src)
	assert.Error(t, err)
}

func TestReplay_Cancelled(t *testing.T) {
	e := newEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Replay(ctx, history())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, e.Len())
}

func TestGaussianCorrections(t *testing.T) {
	// Reference values from the standard TrueSkill truncation functions
	assert.InDelta(t, 0.7978845608, vWin(0, 0), 1e-9)
	assert.InDelta(t, 0.6366197724, wWin(0, 0), 1e-9)
	assert.InDelta(t, 0.0, vDraw(0, 0.5), 1e-12)
	assert.InDelta(t, -vDraw(0.3, 0.5), vDraw(-0.3, 0.5), 1e-12)

	w := wDraw(0, 0.5)
	assert.Greater(t, w, 0.0)
	assert.Less(t, w, 1.0)

	assert.InDelta(t, 0.7404666, drawMargin(0.10, 2, DefaultBeta), 1e-6)
}
