package models

import (
	"encoding/json"
)

// EventEntry is the cached state of one event: its metadata,
// the provider's freshness token and the canonically ordered matches
type EventEntry struct {
	Info         Event   `json:"info"`
	LastModified string  `json:"last_modified"`
	Matches      []Match `json:"matches"`
}

// YearPartition holds every event of a season in start date order.
// The order is fixed when an event is first added and never re-sorted.
type YearPartition struct {
	Year   int           `json:"year"`
	Events []*EventEntry `json:"events"`

	index map[string]int
}

// NewYearPartition creates an empty partition for year
func NewYearPartition(year int) *YearPartition {
	return &YearPartition{Year: year, index: make(map[string]int)}
}

// Keys returns the event keys in partition order
func (p *YearPartition) Keys() []string {
	keys := make([]string, len(p.Events))
	for i, e := range p.Events {
		keys[i] = e.Info.Key
	}
	return keys
}

// Event returns the entry for key
func (p *YearPartition) Event(key string) (*EventEntry, bool) {
	p.ensureIndex()
	i, ok := p.index[key]
	if !ok {
		return nil, false
	}
	return p.Events[i], true
}

// Append adds an entry at the end of the partition.
// An entry with the same key replaces the existing one in place.
func (p *YearPartition) Append(entry *EventEntry) {
	p.ensureIndex()
	if i, ok := p.index[entry.Info.Key]; ok {
		p.Events[i] = entry
		return
	}
	p.index[entry.Info.Key] = len(p.Events)
	p.Events = append(p.Events, entry)
}

// Len returns the number of events
func (p *YearPartition) Len() int {
	return len(p.Events)
}

// MatchCount returns the number of matches across all events
func (p *YearPartition) MatchCount() int {
	n := 0
	for _, e := range p.Events {
		n += len(e.Matches)
	}
	return n
}

// Clone returns a deep copy of the partition
func (p *YearPartition) Clone() *YearPartition {
	out := NewYearPartition(p.Year)
	for _, e := range p.Events {
		entry := &EventEntry{
			Info:         e.Info,
			LastModified: e.LastModified,
			Matches:      make([]Match, len(e.Matches)),
		}
		for i, m := range e.Matches {
			entry.Matches[i] = m.clone()
		}
		out.Append(entry)
	}
	return out
}

// UnmarshalJSON restores a partition and rebuilds its key index
func (p *YearPartition) UnmarshalJSON(data []byte) error {
	type plain YearPartition
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}

	*p = YearPartition{Year: decoded.Year}
	p.index = make(map[string]int, len(decoded.Events))
	for _, e := range decoded.Events {
		if e == nil {
			continue
		}
		p.Append(e)
	}
	return nil
}

func (p *YearPartition) ensureIndex() {
	if p.index != nil {
		return
	}
	p.index = make(map[string]int, len(p.Events))
	for i, e := range p.Events {
		p.index[e.Info.Key] = i
	}
}

func (m Match) clone() Match {
	m.Red = m.Red.clone()
	m.Blue = m.Blue.clone()
	return m
}

func (a Alliance) clone() Alliance {
	out := Alliance{TeamKeys: append([]string(nil), a.TeamKeys...)}
	if a.Score != nil {
		score := *a.Score
		out.Score = &score
	}
	return out
}
