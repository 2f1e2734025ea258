package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func match(key string, level CompLevel, set, number int) Match {
	return Match{Key: key, CompLevel: level, SetNumber: set, MatchNumber: number}
}

func TestSortMatches_CanonicalOrder(t *testing.T) {
	unordered := []Match{
		match("f1m2", CompLevelFinal, 1, 2),
		match("qm10", CompLevelQualification, 1, 10),
		match("sf2m1", CompLevelSemiFinal, 2, 1),
		match("qf1m1", CompLevelQuarterFinal, 1, 1),
		match("qm2", CompLevelQualification, 1, 2),
		match("sf1m1", CompLevelSemiFinal, 1, 1),
		match("ef1m1", CompLevelEighthFinal, 1, 1),
		match("f1m1", CompLevelFinal, 1, 1),
		match("qm1", CompLevelQualification, 1, 1),
		match("sf1m2", CompLevelSemiFinal, 1, 2),
	}

	sorted := SortMatches(unordered)

	keys := make([]string, len(sorted))
	for i, m := range sorted {
		keys[i] = m.Key
	}
	assert.Equal(t, []string{
		"qm1", "qm2", "qm10",
		"ef1m1",
		"qf1m1",
		"sf1m1", "sf2m1", "sf1m2",
		"f1m1", "f1m2",
	}, keys)

	// Every level block is contiguous and ascending by (match, set)
	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		require.LessOrEqual(t, prev.CompLevel.Rank(), cur.CompLevel.Rank())
		if prev.CompLevel == cur.CompLevel {
			assert.True(t, prev.MatchNumber < cur.MatchNumber ||
				(prev.MatchNumber == cur.MatchNumber && prev.SetNumber <= cur.SetNumber))
		}
	}

	assert.Equal(t, "f1m2", unordered[0].Key, "Input slice should not be reordered")
}

func TestCompLevel_Rank(t *testing.T) {
	assert.Equal(t, 0, CompLevelQualification.Rank())
	assert.Equal(t, 4, CompLevelFinal.Rank())
	assert.Equal(t, -1, CompLevel("xx").Rank())
	assert.False(t, CompLevel("").Valid())
}

func TestMatch_Outcome(t *testing.T) {
	m := Match{Key: "k", CompLevel: CompLevelQualification}
	assert.Equal(t, OutcomeUnknown, m.Outcome())
	assert.False(t, m.Played())

	m.Red.Score, m.Blue.Score = intPtr(100), intPtr(50)
	assert.Equal(t, OutcomeRed, m.Outcome())

	m.Blue.Score = intPtr(120)
	assert.Equal(t, OutcomeBlue, m.Outcome())

	m.Blue.Score = intPtr(100)
	assert.Equal(t, OutcomeDraw, m.Outcome())
	assert.Equal(t, "draw", m.Outcome().String())
}

func TestMatch_Validate(t *testing.T) {
	m := Match{CompLevel: CompLevelQualification}
	assert.ErrorIs(t, m.Validate(), ErrMalformedMatch)

	m.Key = "2016casj_qm1"
	assert.NoError(t, m.Validate(), "Unplayed matches are structurally valid")
	assert.ErrorIs(t, m.ValidateResult(), ErrMalformedMatch)

	m.Red = Alliance{TeamKeys: []string{"frc254"}, Score: intPtr(10)}
	m.Blue = Alliance{TeamKeys: []string{"frc1678"}, Score: intPtr(5)}
	assert.NoError(t, m.ValidateResult())

	m.Blue.TeamKeys = nil
	assert.ErrorIs(t, m.ValidateResult(), ErrMalformedMatch)

	m.CompLevel = "zz"
	assert.ErrorIs(t, m.Validate(), ErrMalformedMatch)
}

func TestMatchInput_ToMatch(t *testing.T) {
	raw := `{
		"key": "2016casj_qm1",
		"event_key": "2016casj",
		"comp_level": "qm",
		"set_number": 1,
		"match_number": 1,
		"alliances": {
			"red": {"score": 100, "team_keys": ["frc254", "frc971", "frc604"]},
			"blue": {"score": -1, "team_keys": ["frc1678", "frc115", "frc8"]}
		},
		"time": 1458922800,
		"actual_time": 1458923000
	}`

	var input MatchInput
	require.NoError(t, json.Unmarshal([]byte(raw), &input))

	m := input.ToMatch()
	assert.Equal(t, "2016casj_qm1", m.Key)
	assert.Equal(t, CompLevelQualification, m.CompLevel)
	require.NotNil(t, m.Red.Score)
	assert.Equal(t, 100, *m.Red.Score)
	assert.Nil(t, m.Blue.Score, "A score of -1 means not played")
	assert.Equal(t, []string{"frc1678", "frc115", "frc8"}, m.Blue.TeamKeys)
	assert.Equal(t, time.Unix(1458923000, 0).UTC(), m.Time)
}

func TestEventInput_ToEvent(t *testing.T) {
	input := EventInput{Key: "2016casj", EventType: 0, StartDate: "2016-03-24", EndDate: "2016-03-26", Year: 2016}
	e, err := input.ToEvent()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2016, time.March, 24, 0, 0, 0, 0, time.UTC), e.StartDate)
	assert.False(t, e.OffSeason())

	input.StartDate = "not a date"
	_, err = input.ToEvent()
	assert.Error(t, err)
}

func TestSortAndFilterEvents(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2016, time.March, d, 0, 0, 0, 0, time.UTC) }
	events := []Event{
		{Key: "late", StartDate: day(20)},
		{Key: "offseason", StartDate: day(1), EventType: 99},
		{Key: "early", StartDate: day(2)},
		{Key: "tie", StartDate: day(20)},
	}

	SortEvents(events)
	official := FilterOfficial(events)

	keys := make([]string, len(official))
	for i, e := range official {
		keys[i] = e.Key
	}
	assert.Equal(t, []string{"early", "late", "tie"}, keys)
}

func TestYearPartition_OrderAndJSON(t *testing.T) {
	p := NewYearPartition(2016)
	p.Append(&EventEntry{Info: Event{Key: "b"}})
	p.Append(&EventEntry{Info: Event{Key: "a"}})
	p.Append(&EventEntry{Info: Event{Key: "c"}, LastModified: "tok"})

	assert.Equal(t, []string{"b", "a", "c"}, p.Keys(), "Insertion order is partition order")

	p.Append(&EventEntry{Info: Event{Key: "a"}, Matches: []Match{{Key: "a_qm1", CompLevel: CompLevelQualification}}})
	assert.Equal(t, []string{"b", "a", "c"}, p.Keys(), "Replacing an entry keeps its position")
	assert.Equal(t, 1, p.MatchCount())

	data, err := json.Marshal(p)
	require.NoError(t, err)

	var restored YearPartition
	require.NoError(t, json.Unmarshal(data, &restored))
	assert.Equal(t, 2016, restored.Year)
	assert.Equal(t, []string{"b", "a", "c"}, restored.Keys())

	entry, ok := restored.Event("c")
	require.True(t, ok)
	assert.Equal(t, "tok", entry.LastModified)

	_, ok = restored.Event("missing")
	assert.False(t, ok)
}

func TestYearPartition_CloneIsDeep(t *testing.T) {
	p := NewYearPartition(2016)
	p.Append(&EventEntry{
		Info: Event{Key: "e"},
		Matches: []Match{{
			Key: "e_qm1", CompLevel: CompLevelQualification,
			Red: Alliance{TeamKeys: []string{"frc1"}, Score: intPtr(1)},
		}},
	})

	c := p.Clone()
	entry, _ := c.Event("e")
	entry.Matches[0].Red.TeamKeys[0] = "frc2"
	*entry.Matches[0].Red.Score = 9

	orig, _ := p.Event("e")
	assert.Equal(t, "frc1", orig.Matches[0].Red.TeamKeys[0])
	assert.Equal(t, 1, *orig.Matches[0].Red.Score)
}
