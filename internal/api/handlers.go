package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"frc_cassandra/ingestion/internal/models"
	"frc_cassandra/ingestion/internal/rating"
	"frc_cassandra/ingestion/internal/repository"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// PredictionResponse is the body of GET /api/v1/predict
type PredictionResponse struct {
	Blue     []string `json:"blue"`
	Red      []string `json:"red"`
	BlueWins float64  `json:"blue_win_probability"`
	RedWins  float64  `json:"red_win_probability"`
}

// TeamResponse is the body of GET /api/v1/teams/{team}
type TeamResponse struct {
	Team         string  `json:"team"`
	Mu           float64 `json:"mu"`
	Sigma        float64 `json:"sigma"`
	Conservative float64 `json:"conservative"`
}

// EventResponse is the body of GET /api/v1/years/{year}/events/{event}
type EventResponse struct {
	Event        models.Event `json:"event"`
	LastModified string       `json:"last_modified,omitempty"`
	MatchCount   int          `json:"match_count"`
}

// Health reports liveness, store reachability, and cache and engine sizes.
// An unreachable store answers 503.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status": "healthy",
		"years":  h.matches.Years(),
		"teams":  h.predictor.Len(),
	}
	status := http.StatusOK

	if h.store != nil {
		if err := h.store.Health(r.Context()); err != nil {
			log.Warn().Err(err).Msg("Store health check failed")
			resp["status"] = "degraded"
			resp["store_error"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		if ps, ok := h.store.(poolStatser); ok {
			resp["store_pool"] = ps.PoolStats()
		}
	}

	h.jsonResponse(w, status, resp)
}

// Predict returns win probabilities for ?blue=frc1,frc2&red=frc3,frc4
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	blue := splitTeams(r.URL.Query().Get("blue"))
	red := splitTeams(r.URL.Query().Get("red"))

	pBlue, pRed, err := h.predictor.Predict(blue, red)
	if err != nil {
		h.handleError(w, err)
		return
	}

	h.jsonResponse(w, http.StatusOK, PredictionResponse{Blue: blue, Red: red, BlueWins: pBlue, RedWins: pRed})
}

// GetTeam returns a team's current belief
func (h *Handler) GetTeam(w http.ResponseWriter, r *http.Request) {
	team := chi.URLParam(r, "team")

	b, ok := h.predictor.Belief(team)
	if !ok {
		h.errorResponse(w, http.StatusNotFound, "team has no rating")
		return
	}

	h.jsonResponse(w, http.StatusOK, TeamResponse{
		Team:         team,
		Mu:           b.Mu,
		Sigma:        b.Sigma,
		Conservative: b.Conservative(),
	})
}

// GetYears lists the cached years
func (h *Handler) GetYears(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, http.StatusOK, map[string][]int{"years": h.matches.Years()})
}

// GetYearEvents lists a year's events in chronological order
func (h *Handler) GetYearEvents(w http.ResponseWriter, r *http.Request) {
	year, ok := h.year(w, r)
	if !ok {
		return
	}

	events, err := h.matches.GetYearEvents(year)
	if err != nil {
		h.handleError(w, err)
		return
	}

	h.jsonResponse(w, http.StatusOK, map[string]interface{}{"year": year, "events": events})
}

// GetEvent returns an event's metadata and freshness token
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	year, ok := h.year(w, r)
	if !ok {
		return
	}

	entry, err := h.matches.GetEvent(year, chi.URLParam(r, "event"))
	if err != nil {
		h.handleError(w, err)
		return
	}

	h.jsonResponse(w, http.StatusOK, EventResponse{
		Event:        entry.Info,
		LastModified: entry.LastModified,
		MatchCount:   len(entry.Matches),
	})
}

// GetEventMatches returns an event's matches in canonical order
func (h *Handler) GetEventMatches(w http.ResponseWriter, r *http.Request) {
	year, ok := h.year(w, r)
	if !ok {
		return
	}

	matches, err := h.matches.GetEventMatches(year, chi.URLParam(r, "event"))
	if err != nil {
		h.handleError(w, err)
		return
	}

	h.jsonResponse(w, http.StatusOK, matches)
}

func (h *Handler) year(w http.ResponseWriter, r *http.Request) (int, bool) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		h.errorResponse(w, http.StatusBadRequest, "year must be an integer")
		return 0, false
	}
	return year, true
}

func splitTeams(raw string) []string {
	var teams []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			teams = append(teams, t)
		}
	}
	return teams
}

func (h *Handler) handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		h.errorResponse(w, http.StatusNotFound, err.Error())
	case errors.Is(err, rating.ErrInvalidAlliance):
		h.errorResponse(w, http.StatusBadRequest, err.Error())
	default:
		log.Error().Err(err).Msg("Request failed")
		h.errorResponse(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Warn().Err(err).Msg("Failed to encode response")
	}
}

func (h *Handler) errorResponse(w http.ResponseWriter, status int, message string) {
	h.jsonResponse(w, status, map[string]string{"error": message})
}
