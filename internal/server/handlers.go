package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kiokusearch/kioku/internal/models"
	"github.com/kiokusearch/kioku/internal/retrieve"
	"github.com/kiokusearch/kioku/internal/source"
	"github.com/kiokusearch/kioku/internal/store"
)

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if !s.requireReady(w) {
		return
	}
	var req models.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("ingest request",
		zap.String("source", string(req.Source)), zap.String("target", req.Target))

	report, err := s.pipeline.Ingest(r.Context(), req)
	if err != nil {
		s.logger.Error("ingest failed", zap.Error(err))
		if report == nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		// The job ran and failed; the report says why.
		var extErr *source.ExtractionError
		status := http.StatusInternalServerError
		if errors.Is(err, models.ErrUnsupportedSource) || errors.As(err, &extErr) {
			status = http.StatusBadRequest
		}
		s.respondJSON(w, status, report)
		return
	}
	s.respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if !s.requireReady(w) {
		return
	}
	var query models.RetrieveQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("search request", zap.String("query", query.Query), zap.Int("limit", query.Limit))

	start := time.Now()
	results, err := s.engine.Retrieve(r.Context(), &query)
	if err != nil {
		if errors.Is(err, retrieve.ErrEmptyQuery) || errors.Is(err, models.ErrUnsupportedSource) {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, models.SearchResponse{
		Results:     results,
		Total:       len(results),
		Query:       query.Query,
		QueryTimeMS: time.Since(start).Milliseconds(),
	})
}

func (s *Server) handleDeleteSources(w http.ResponseWriter, r *http.Request) {
	if !s.requireReady(w) {
		return
	}
	sourcePath := r.URL.Query().Get("sourcePath")
	repoURL := r.URL.Query().Get("repoUrl")
	if (sourcePath == "") == (repoURL == "") {
		s.respondError(w, http.StatusBadRequest, "specify exactly one of sourcePath and repoUrl")
		return
	}

	var removed int
	if sourcePath != "" {
		s.logger.Debug("delete by source path", zap.String("source_path", sourcePath))
		removed = s.syncer.DeleteBySourcePath(r.Context(), sourcePath)
	} else {
		s.logger.Debug("delete by repo url", zap.String("repo_url", repoURL))
		removed = s.syncer.DeleteByRepoURL(r.Context(), repoURL)
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "deleted",
		"records_deleted": removed,
	})
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	if !s.requireReady(w) {
		return
	}
	id := chi.URLParam(r, "id")
	rec, ok := s.index.Get(id)
	if !ok {
		s.respondError(w, http.StatusNotFound, "record not found")
		return
	}
	s.respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	report := models.StatusReport{
		Ready:      s.syncer.Ready(),
		Records:    s.index.Count(),
		BySource:   s.index.CountBySource(),
		Dimensions: s.index.Dimensions(),
		Dirty:      s.syncer.Pending(),
		Backend:    s.config.Storage.Backend,
		Keyword:    s.config.Storage.KeywordEnabledOrDefault(),
	}
	usage, err := store.DiskUsage(s.config.Storage.ActivePaths()...)
	if err != nil {
		s.logger.Warn("disk usage unavailable", zap.Error(err))
	} else {
		report.DiskUsage = usage
	}
	s.respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requireReady rejects requests until the indexes are loaded from the store.
func (s *Server) requireReady(w http.ResponseWriter) bool {
	if !s.syncer.Ready() {
		s.respondError(w, http.StatusServiceUnavailable, "index is loading")
		return false
	}
	return true
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
