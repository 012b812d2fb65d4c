package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"mnemo/internal/engine"
)

// Server is the mnemo HTTP API server.
type Server struct {
	engine  *engine.Engine
	router  chi.Router
	version string
	started time.Time
}

// New creates a new Server around an engine.
func New(eng *engine.Engine, version string) *Server {
	s := &Server{
		engine:  eng,
		version: version,
		started: time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)

		r.Post("/experiences", s.handleRecord)
		r.Get("/experiences/{id}", s.handleGetExperience)
		r.Post("/experiences/{id}/adjust", s.handleAdjust)
		r.Post("/experiences/{id}/validate", s.handleValidate)

		r.Post("/retrieve/similar", s.handleRetrieveSimilar)
		r.Post("/retrieve/means", s.handleRetrieveMeans)
		r.Post("/retrieve/prediction", s.handleRetrievePrediction)
		r.Post("/means/bias", s.handleMeansBias)
		r.Get("/boredom", s.handleBoredom)
		r.Post("/actions/compare", s.handleCompareActions)

		r.Get("/timeline", s.handleTimeline)
		r.Get("/timeline/structure", s.handleTimelineStructure)

		r.Get("/archive/segments", s.handleArchiveSegments)
		r.Get("/archive/segments/{id}", s.handleArchiveSegment)
		r.Get("/archive/narrative", s.handleArchiveNarrative)

		r.Get("/purposes", s.handlePurposes)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"records": s.engine.Store.Len(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.engine.Status())
}
