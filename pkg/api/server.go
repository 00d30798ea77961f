package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vjranagit/runmetrics/pkg/query"
	"github.com/vjranagit/runmetrics/pkg/store"
	"github.com/vjranagit/runmetrics/pkg/types"
)

// Server implements the HTTP API: run creation, point appends, aggregation
// queries and scalar summaries.
type Server struct {
	store  store.RunStore
	engine *query.Engine
	addr   string
	server *http.Server
}

// NewServer creates a new API server.
func NewServer(addr string, s store.RunStore) *Server {
	return &Server{
		store:  s,
		engine: query.NewEngine(s),
		addr:   addr,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/runs", s.handleRuns)
	mux.HandleFunc("/api/v1/log", s.handleLog)
	mux.HandleFunc("/api/v1/query", s.handleQuery)
	mux.HandleFunc("/api/v1/summary", s.handleSummary)
	mux.HandleFunc("/health", s.handleHealth)

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// handleRuns creates a run (POST) or lists a project's runs (GET).
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateRun(w, r)
	case http.MethodGet:
		s.handleListRuns(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req types.CreateRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
		return
	}

	info, err := s.store.CreateRun(r.Context(), req.Project, req.RunID, req.Config)
	if err != nil {
		if errors.Is(err, store.ErrRunExists) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, fmt.Sprintf("Create failed: %v", err), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	project := r.URL.Query().Get("project")
	if project == "" {
		http.Error(w, "Missing project parameter", http.StatusBadRequest)
		return
	}

	runs, err := s.store.ListRuns(r.Context(), project)
	if err != nil {
		if errors.Is(err, store.ErrProjectNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("List failed: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, runs)
}

// handleLog appends a batch of points for one run.
func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req types.AppendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	for metric, points := range req.Metrics {
		for _, p := range points {
			err := s.store.Append(ctx, req.Project, req.RunID, metric, p.Step, p.Value)
			if err != nil {
				if errors.Is(err, store.ErrRunNotFound) {
					http.Error(w, err.Error(), http.StatusNotFound)
					return
				}
				if errors.Is(err, store.ErrStepOutOfOrder) {
					http.Error(w, err.Error(), http.StatusBadRequest)
					return
				}
				http.Error(w, fmt.Sprintf("Append failed: %v", err), http.StatusInternalServerError)
				return
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// handleQuery serves labeled aggregate series, the renderer contract.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	req, err := parseQueryRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := s.engine.Query(r.Context(), req)
	if err != nil {
		writeQueryError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleSummary serves per-group scalar summaries.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	req, err := parseQueryRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	summaries, warnings, err := s.engine.Summarize(r.Context(), req)
	if err != nil {
		writeQueryError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"summaries": summaries,
		"warnings":  warnings,
	})
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func parseQueryRequest(r *http.Request) (*types.QueryRequest, error) {
	q := r.URL.Query()

	req := &types.QueryRequest{
		Project:    q.Get("project"),
		Metric:     q.Get("metric"),
		GroupBy:    q.Get("group_by"),
		Dispersion: types.DispersionMode(q.Get("dispersion")),
	}
	if req.Project == "" {
		return nil, fmt.Errorf("missing project parameter")
	}
	if req.Metric == "" {
		return nil, fmt.Errorf("missing metric parameter")
	}
	if !req.Dispersion.Valid() {
		return nil, fmt.Errorf("unknown dispersion mode %q", req.Dispersion)
	}

	if runs := q.Get("runs"); runs != "" {
		req.Runs = strings.Split(runs, ",")
	}

	if maxStep := q.Get("max_step"); maxStep != "" {
		stepCap, err := strconv.ParseUint(maxStep, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid max_step: %v", err)
		}
		req.MaxStep = &stepCap
	}

	if window := q.Get("smooth_window"); window != "" {
		w, err := strconv.Atoi(window)
		if err != nil || w < 1 {
			return nil, fmt.Errorf("invalid smooth_window: %q", window)
		}
		req.SmoothWindow = w
	}

	return req, nil
}

func writeQueryError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrProjectNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	http.Error(w, fmt.Sprintf("Query failed: %v", err), http.StatusBadRequest)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
