package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"mnemo/internal/bias"
	"mnemo/internal/engine"
	"mnemo/internal/experience"
	"mnemo/internal/retrieval"
)

// retrieveTimeout bounds every retrieval scan started from a handler.
const retrieveTimeout = 10 * time.Second

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	var in engine.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	rec, err := s.engine.Record(r.Context(), in)
	if err != nil {
		var verr *experience.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, verr.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleGetExperience(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	rec := s.engine.Store.ByID(id)
	if rec == nil {
		writeError(w, http.StatusNotFound, "no such experience")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleAdjust(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req struct {
		Reason     string  `json:"reason"`
		Factor     float64 `json:"factor"`
		Impact     float64 `json:"impact"`
		AdjustedBy string  `json:"adjusted_by"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Reason == "" {
		writeError(w, http.StatusBadRequest, "reason required")
		return
	}

	ok := s.engine.Store.Update(id, func(rec *experience.Record) {
		rec.AddAdjustment(req.Reason, req.Factor, req.Impact, req.AdjustedBy)
	})
	if !ok {
		writeError(w, http.StatusNotFound, "no such experience")
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Store.ByID(id))
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req struct {
		Confirmed bool `json:"confirmed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	ok := s.engine.Store.Update(id, func(rec *experience.Record) {
		rec.RecordValidation(req.Confirmed)
	})
	if !ok {
		writeError(w, http.StatusNotFound, "no such experience")
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Store.ByID(id))
}

func (s *Server) handleRetrieveSimilar(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Context         string             `json:"context"`
		Purpose         string             `json:"purpose"`
		PurposeDesires  map[string]float64 `json:"purpose_desires"`
		TopK            int                `json:"top_k"`
		MinSimilarity   float64            `json:"min_similarity"`
		IncludeNegative bool               `json:"include_negative"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), retrieveTimeout)
	defer cancel()

	results, err := s.engine.Retriever.RetrieveSimilar(ctx, retrieval.Query{
		Context:         req.Context,
		Purpose:         req.Purpose,
		PurposeDesires:  req.PurposeDesires,
		TopK:            req.TopK,
		MinSimilarity:   req.MinSimilarity,
		IncludeNegative: req.IncludeNegative,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(results),
		"partial": err != nil,
		"results": results,
	})
}

func (s *Server) handleRetrieveMeans(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Purpose        string             `json:"purpose"`
		PurposeDesires map[string]float64 `json:"purpose_desires"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), retrieveTimeout)
	defer cancel()

	ranks, err := s.engine.Retriever.RetrieveForMeansSelection(ctx, req.Purpose, req.PurposeDesires)
	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(ranks),
		"partial": err != nil,
		"ranks":   ranks,
	})
}

func (s *Server) handleRetrievePrediction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Purpose        string             `json:"purpose"`
		PurposeDesires map[string]float64 `json:"purpose_desires"`
		Means          string             `json:"means"`
		MeansType      string             `json:"means_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), retrieveTimeout)
	defer cancel()

	results, err := s.engine.Retriever.RetrieveForPrediction(ctx, req.Purpose, req.PurposeDesires, req.Means, req.MeansType)
	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(results),
		"partial": err != nil,
		"results": results,
	})
}

func (s *Server) handleMeansBias(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Means          string             `json:"means"`
		MeansType      string             `json:"means_type"`
		Purpose        string             `json:"purpose"`
		PurposeDesires map[string]float64 `json:"purpose_desires"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Means == "" || req.MeansType == "" || req.Purpose == "" {
		writeError(w, http.StatusBadRequest, "means, means_type and purpose required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), retrieveTimeout)
	defer cancel()

	biasVal, err := s.engine.Retriever.CalculateMeansBias(ctx, req.Means, req.MeansType, req.Purpose, req.PurposeDesires)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"means":      req.Means,
		"means_type": req.MeansType,
		"purpose":    req.Purpose,
		"bias":       biasVal,
	})
}

func (s *Server) handleBoredom(w http.ResponseWriter, r *http.Request) {
	purpose := r.URL.Query().Get("purpose")
	means := r.URL.Query().Get("means")
	if purpose == "" || means == "" {
		writeError(w, http.StatusBadRequest, "purpose and means parameters required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), retrieveTimeout)
	defer cancel()

	level, err := s.engine.Retriever.DetectBoredom(ctx, purpose, means)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"purpose": purpose,
		"means":   means,
		"boredom": level,
	})
}

func (s *Server) handleCompareActions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Hyperbolic bool `json:"hyperbolic"`
		Candidates map[string]struct {
			Predicted float64 `json:"predicted"`
			Delay     float64 `json:"delay"`
			History   []struct {
				Timestamp     time.Time `json:"timestamp"`
				Achieved      bool      `json:"achieved"`
				Effectiveness float64   `json:"effectiveness"`
				Delta         float64   `json:"delta"`
			} `json:"history"`
		} `json:"candidates"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if len(req.Candidates) == 0 {
		writeError(w, http.StatusBadRequest, "candidates required")
		return
	}

	candidates := make(map[string]bias.Candidate, len(req.Candidates))
	for name, c := range req.Candidates {
		cand := bias.Candidate{Predicted: c.Predicted, Delay: c.Delay}
		for _, h := range c.History {
			cand.History = append(cand.History, bias.Outcome{
				Timestamp:     h.Timestamp,
				Achieved:      h.Achieved,
				Effectiveness: h.Effectiveness,
				Delta:         h.Delta,
			})
		}
		candidates[name] = cand
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ranking": s.engine.Bias.CompareActions(candidates, req.Hyperbolic),
	})
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	n := s.engine.Timeline.Len()
	if v := r.URL.Query().Get("n"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			n = parsed
		}
	}
	entries := s.engine.Timeline.Recent(n)
	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(entries),
		"entries": entries,
	})
}

func (s *Server) handleTimelineStructure(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Timeline.Stats())
}

func (s *Server) handleArchiveSegments(w http.ResponseWriter, r *http.Request) {
	segments := s.engine.Archive.Segments()
	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(segments),
		"segments": segments,
	})
}

func (s *Server) handleArchiveSegment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	seg, ok := s.engine.Archive.Segment(id)
	if !ok {
		writeError(w, http.StatusNotFound, "no such segment")
		return
	}
	writeJSON(w, http.StatusOK, seg)
}

func (s *Server) handleArchiveNarrative(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"narrative": s.engine.Archive.Narrative(),
	})
}

func (s *Server) handlePurposes(w http.ResponseWriter, r *http.Request) {
	purposes := s.engine.Store.Purposes()
	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(purposes),
		"purposes": purposes,
	})
}
