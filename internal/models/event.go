package models

import (
	"fmt"
	"sort"
	"time"
)

// OffSeasonEventType is the first TBA event type code that does not count toward official standings
const OffSeasonEventType = 99

// dateLayout is the TBA date format for event start and end dates
const dateLayout = "2006-01-02"

// Event represents an FRC competition
type Event struct {
	Key       string    `json:"key"`
	Name      string    `json:"name"`
	EventCode string    `json:"event_code"`
	EventType int       `json:"event_type"`
	Year      int       `json:"year"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

// OffSeason returns true for events excluded from synchronization
func (e *Event) OffSeason() bool {
	return e.EventType >= OffSeasonEventType
}

// EventInput is the simple event shape returned by /events/{year}/simple
type EventInput struct {
	Key       string `json:"key"`
	Name      string `json:"name"`
	EventCode string `json:"event_code"`
	EventType int    `json:"event_type"`
	Year      int    `json:"year"`
	StartDate string `json:"start_date"` // YYYY-MM-DD
	EndDate   string `json:"end_date"`   // YYYY-MM-DD
}

// ToEvent converts EventInput (from API) to Event model
func (ei *EventInput) ToEvent() (Event, error) {
	event := Event{
		Key:       ei.Key,
		Name:      ei.Name,
		EventCode: ei.EventCode,
		EventType: ei.EventType,
		Year:      ei.Year,
	}

	start, err := time.Parse(dateLayout, ei.StartDate)
	if err != nil {
		return Event{}, fmt.Errorf("event %s: invalid start_date %q: %w", ei.Key, ei.StartDate, err)
	}
	end, err := time.Parse(dateLayout, ei.EndDate)
	if err != nil {
		return Event{}, fmt.Errorf("event %s: invalid end_date %q: %w", ei.Key, ei.EndDate, err)
	}

	event.StartDate = start
	event.EndDate = end
	return event, nil
}

// SortEvents orders events by start date, keeping provider order for ties
func SortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].StartDate.Before(events[j].StartDate)
	})
}

// FilterOfficial drops off-season events
func FilterOfficial(events []Event) []Event {
	official := make([]Event, 0, len(events))
	for _, e := range events {
		if !e.OffSeason() {
			official = append(official, e)
		}
	}
	return official
}
