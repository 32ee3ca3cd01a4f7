package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/cloudcompass/recommender/internal/repository"
)

type recommendRequest struct {
	Query string `json:"query"`

	// TopK overrides the configured number of recommendations for this
	// request; 0 keeps the default.
	TopK int `json:"top_k"`
}

// handleRecommend runs the pipeline for a query and optionally persists
// the result to history. A history failure is logged, never surfaced.
func (s *HTTPServer) handleRecommend(w http.ResponseWriter, r *http.Request) {
	var req recommendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	if req.TopK < 0 {
		writeError(w, http.StatusBadRequest, "top_k must not be negative")
		return
	}

	result, err := s.pipeline.Recommend(r.Context(), req.Query, req.TopK)
	if err != nil {
		s.logger.Error("recommendation failed", "query", req.Query, "error", err)
		writeError(w, http.StatusInternalServerError, "recommendation failed")
		return
	}

	if s.history != nil {
		record := &repository.RecommendationRecord{
			ID:                  uuid.New(),
			Query:               result.Query,
			Requirements:        result.Requirements,
			Recommendations:     result.Recommendations,
			Summary:             result.Summary,
			CandidatesRetrieved: result.CandidatesRetrieved,
			CandidatesReranked:  result.CandidatesReranked,
			ProcessingMillis:    result.ProcessingTime.Milliseconds(),
			CreatedAt:           time.Now().UTC(),
		}
		if err := s.history.Save(r.Context(), record); err != nil {
			s.logger.Warn("failed to save recommendation history", "error", err)
		}
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleListHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "history is not enabled")
		return
	}

	limit := queryInt(r, "limit", 20)
	offset := queryInt(r, "offset", 0)

	records, total, err := s.history.ListRecent(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("failed to list history", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"records": records,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}

func (s *HTTPServer) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "history is not enabled")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid record ID")
		return
	}

	record, err := s.history.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "record not found")
			return
		}
		s.logger.Error("failed to get history record", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get history record")
		return
	}

	writeJSON(w, http.StatusOK, record)
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
