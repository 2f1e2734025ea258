// Package api serves read-only JSON views of the match cache and the rating engine.
package api

import (
	"context"
	"net/http"
	"time"

	"frc_cassandra/ingestion/internal/models"
	"frc_cassandra/ingestion/internal/rating"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"
)

// MatchReader is the read side of the match repository
type MatchReader interface {
	Years() []int
	GetYearEvents(year int) ([]string, error)
	GetEvent(year int, eventKey string) (models.EventEntry, error)
	GetEventMatches(year int, eventKey string) ([]models.Match, error)
}

// Predictor is the read side of the rating engine
type Predictor interface {
	Predict(blue, red []string) (float64, float64, error)
	Belief(team string) (rating.Belief, bool)
	Len() int
}

// StoreHealth reports whether the year store backend is reachable.
// A store that also exposes PoolStats has them included in /health.
type StoreHealth interface {
	Health(ctx context.Context) error
}

type poolStatser interface {
	PoolStats() map[string]interface{}
}

// Handler holds the dependencies shared by every route
type Handler struct {
	matches   MatchReader
	predictor Predictor
	store     StoreHealth
}

// NewHandler creates a handler over the repository and engine.
// store may be nil, in which case /health skips the store check.
func NewHandler(matches MatchReader, predictor Predictor, store StoreHealth) *Handler {
	return &Handler{matches: matches, predictor: predictor, store: store}
}

// NewRouter mounts every route with the standard middleware stack
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/predict", h.Predict)
		r.Get("/teams/{team}", h.GetTeam)
		r.Get("/years", h.GetYears)
		r.Get("/years/{year}/events", h.GetYearEvents)
		r.Get("/years/{year}/events/{event}", h.GetEvent)
		r.Get("/years/{year}/events/{event}/matches", h.GetEventMatches)
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		log.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}
