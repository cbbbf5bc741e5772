// Package chi exposes the paper search service over HTTP: health,
// single and batch search, paper lookup, and Prometheus metrics.
package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/trendllm/paperdex/internal/db"
	"github.com/trendllm/paperdex/internal/domain"
	logpkg "github.com/trendllm/paperdex/internal/logger"
	"github.com/trendllm/paperdex/internal/metrics"
	healthuc "github.com/trendllm/paperdex/internal/usecase/health"
	searchuc "github.com/trendllm/paperdex/internal/usecase/search"
)

// Error codes returned in JSON error bodies.
const (
	codeBadRequest       = "bad_request"
	codeValidationFailed = "validation_failed"
	codeNotFound         = "not_found"
	codeUpstreamError    = "upstream_error"
	codeInternalError    = "internal_error"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Server is the HTTP API over the retrieval engine.
type Server struct {
	engine *searchuc.Service
	papers db.CatalogReader
	health *healthuc.Service
	logger *zap.Logger
}

// NewServer creates an HTTP API server.
func NewServer(engine *searchuc.Service, papers db.CatalogReader, health *healthuc.Service, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{engine: engine, papers: papers, health: health, logger: logger}
}

// Router assembles the route tree with the full middleware chain.
// apiKeys enables bearer auth when non-empty; health and metrics stay
// open either way.
func (s *Server) Router(apiKeys []string) http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(s.logger))
	r.Use(metrics.Middleware())
	r.Use(jsonRecoverer())
	r.Use(BearerAuthMiddleware(apiKeys))

	r.Get("/health", s.handleHealth)
	r.Get("/search", s.handleSearch)
	r.Post("/search/batch", s.handleSearchBatch)
	r.Get("/papers/{id}", s.handleGetPaper)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

type searchResponse struct {
	Query   string       `json:"query"`
	Mode    string       `json:"mode"`
	Count   int          `json:"count"`
	Results []domain.Hit `json:"results"`
}

// handleSearch handles GET /search?q=...&limit=10&mode=vector.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "missing query parameter q")
		return
	}
	modeStr := r.URL.Query().Get("mode")

	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())
		return
	}

	hits, err := s.engine.Search(r.Context(), query, limit, modeStr)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, searchResponse{
		Query:   query,
		Mode:    modeStr,
		Count:   len(hits),
		Results: emptyIfNil(hits),
	})
}

type batchSearchRequest struct {
	Queries []string `json:"queries"`
	Limit   int      `json:"limit"`
	Mode    string   `json:"mode"`
}

type batchSearchResponse struct {
	Count   int                    `json:"count"`
	Results []searchuc.QueryResult `json:"results"`
}

// handleSearchBatch handles POST /search/batch.
func (s *Server) handleSearchBatch(w http.ResponseWriter, r *http.Request) {
	var req batchSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Queries) == 0 {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "queries is required")
		return
	}

	results, err := s.engine.SearchBatch(r.Context(), req.Queries, req.Limit, req.Mode)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, batchSearchResponse{
		Count:   len(results),
		Results: results,
	})
}

// handleGetPaper handles GET /papers/{id}.
func (s *Server) handleGetPaper(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	papers, err := s.papers.FetchByIDs(r.Context(), []string{id})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if len(papers) == 0 {
		writeError(w, http.StatusNotFound, codeNotFound, "paper not found")
		return
	}

	writeJSON(w, http.StatusOK, papers[0])
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	status := http.StatusOK
	if report.Status != healthuc.Healthy {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

// handleDomainError maps the error taxonomy onto HTTP statuses: client
// data problems are 400, missing resources 404, remote dependency
// failures 502, the rest 500. Failures log through the request-scoped
// logger so the entry carries the request id.
func handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrDataValidation):
		writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, "not found")
	case errors.Is(err, domain.ErrTransientRemote), errors.Is(err, domain.ErrPermanentRemote):
		logpkg.FromContext(r.Context()).Warn("upstream failure", zap.Error(err))
		writeError(w, http.StatusBadGateway, codeUpstreamError, "upstream dependency failed")
	default:
		logpkg.FromContext(r.Context()).Error("internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
	}
}

// parseLimit parses the optional limit query parameter. Empty means 0,
// which the engine replaces with its default; range clamping is the
// engine's business too.
func parseLimit(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, fmt.Errorf("limit must be a non-negative integer")
	}
	return limit, nil
}

func emptyIfNil(hits []domain.Hit) []domain.Hit {
	if hits == nil {
		return []domain.Hit{}
	}
	return hits
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}
