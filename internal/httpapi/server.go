package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"ubacktest/internal/domain"
	"ubacktest/internal/pipeline"
)

// Runner executes one backtest request. Implemented by pipeline.Pipeline.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (*domain.BacktestResult, error)
}

// Server serves the backtest HTTP API.
type Server struct {
	runner Runner
	log    *slog.Logger
}

// NewServer creates an API server around the given runner.
func NewServer(runner Runner, log *slog.Logger) *Server {
	return &Server{runner: runner, log: log}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/backtest", s.handleBacktest)
	mux.HandleFunc("GET /api/health", s.handleHealth)
}

// Handler returns an http.Handler with CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleBacktest(w http.ResponseWriter, r *http.Request) {
	var req BacktestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	result, err := s.runner.Run(r.Context(), pipeline.Request{
		Inputs: req.ToInputs(),
		Code:   req.Code,
	})
	if err != nil {
		s.writeTaxonomyError(w, err)
		return
	}
	writeJSON(w, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, HealthResponse{Status: "ok"})
}

// writeTaxonomyError maps pipeline errors onto HTTP status codes. Only the
// free-text message leaves the process; internal detail stays in the logs.
func (s *Server) writeTaxonomyError(w http.ResponseWriter, err error) {
	var (
		uie *domain.UserInputError
		ude *domain.UpstreamDataError
		se  *domain.SandboxError
		rie *domain.ResultIntegrityError
		rle *domain.RateLimitedError
	)
	switch {
	case errors.As(err, &uie):
		writeError(w, http.StatusBadRequest, uie.Msg)
	case errors.As(err, &ude):
		writeError(w, http.StatusBadRequest, ude.Msg)
	case errors.As(err, &rle):
		writeError(w, http.StatusTooManyRequests, rle.Error())
	case errors.As(err, &se):
		s.log.Error("sandbox failure", "kind", se.Kind, "err", se.Msg)
		writeError(w, http.StatusServiceUnavailable, "the execution engine is unavailable; please try again")
	case errors.As(err, &rie):
		s.log.Error("result integrity failure", "err", rie.Msg)
		writeError(w, http.StatusInternalServerError, "an internal error corrupted the result; the run was aborted")
	default:
		s.log.Error("unclassified pipeline failure", "err", err)
		writeError(w, http.StatusInternalServerError, "an unexpected internal error occurred")
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
