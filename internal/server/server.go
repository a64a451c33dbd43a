package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/cwbudde/lensmount/internal/metrics"
	"github.com/cwbudde/lensmount/internal/model"
)

// Server represents the HTTP server
type Server struct {
	jobManager *JobManager
	worker     *Worker
	metrics    *metrics.Manager
	defaults   JobConfig
	addr       string
	server     *http.Server
}

// NewServer creates a new HTTP server. Jobs without an axis type, merit
// function or cycle count take them from defaults.
func NewServer(addr string, worker *Worker, defaults JobConfig) *Server {
	return &Server{
		jobManager: worker.jm,
		worker:     worker,
		metrics:    worker.metrics,
		defaults:   defaults,
		addr:       addr,
	}
}

// Handler returns the routed handler with middleware applied
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/jobs", s.handleJobs)
	mux.HandleFunc("/api/v1/jobs/", s.handleJobsWithID)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "ok",
			"running": len(s.jobManager.GetRunningJobs()),
			"queued":  len(s.worker.queue),
		})
	})
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}

	return s.loggingMiddleware(s.corsMiddleware(mux))
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("Starting HTTP server", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down HTTP server")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// handleJobs handles /api/v1/jobs
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateJob(w, r)
	case http.MethodGet:
		s.handleListJobs(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleJobsWithID handles /api/v1/jobs/:id/*
func (s *Server) handleJobsWithID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/v1/jobs/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "Job ID required", http.StatusBadRequest)
		return
	}

	jobID := parts[0]
	sub := ""
	if len(parts) > 1 {
		sub = parts[1]
	}

	switch sub {
	case "", "status":
		s.handleGetJobStatus(w, r, jobID)
	case "scores":
		s.handleGetScores(w, r, jobID)
	case "stream":
		s.handleJobStream(w, r, jobID)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// handleCreateJob handles POST /api/v1/jobs
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	config := s.defaults
	config.ConfigPath = ""
	if err := json.NewDecoder(r.Body).Decode(&config); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	if config.ConfigPath == "" {
		http.Error(w, "configPath is required", http.StatusBadRequest)
		return
	}
	if abs, err := filepath.Abs(config.ConfigPath); err == nil {
		config.ConfigPath = abs
	}
	if config.Merit == "" {
		config.Merit = string(model.MeritSpot)
	}
	merit, err := model.ParseMeritKind(config.Merit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	config.Merit = string(merit)
	if config.Cycles < model.CyclesNone {
		http.Error(w, "cycles must be -1 (none), 0 (auto) or positive", http.StatusBadRequest)
		return
	}
	config.Backend = s.defaults.Backend

	job := s.jobManager.CreateJob(config)
	if err := s.worker.Enqueue(job.ID); err != nil {
		s.jobManager.UpdateJob(job.ID, func(j *Job) {
			j.State = StateFailed
			j.Error = err.Error()
		})
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	slog.Info("Job queued", "job_id", job.ID, "config", config.ConfigPath)
	writeJSON(w, http.StatusCreated, job)
}

// handleListJobs handles GET /api/v1/jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.jobManager.ListJobs())
}

// handleGetJobStatus handles GET /api/v1/jobs/:id/status
func (s *Server) handleGetJobStatus(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	var elapsed time.Duration
	if job.EndTime != nil {
		elapsed = job.EndTime.Sub(job.StartTime)
	} else {
		elapsed = time.Since(job.StartTime)
	}

	var rate float64
	if elapsed.Seconds() > 0 {
		rate = float64(job.Evaluated) / elapsed.Seconds()
	}

	response := map[string]any{
		"id":                    job.ID,
		"state":                 job.State,
		"config":                job.Config,
		"total":                 job.Total,
		"evaluated":             job.Evaluated,
		"bestIndex":             job.BestIndex,
		"bestScore":             job.BestScore,
		"finalScore":            job.FinalScore,
		"best":                  job.Best,
		"elapsed":               elapsed.Seconds(),
		"combinationsPerSecond": rate,
		"startTime":             job.StartTime,
		"endTime":               job.EndTime,
		"error":                 job.Error,
		"errorKind":             job.ErrorKind,
	}

	writeJSON(w, http.StatusOK, response)
}

// handleGetScores handles GET /api/v1/jobs/:id/scores
func (s *Server) handleGetScores(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	scores := job.Scores
	if scores == nil {
		scores = []float64{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":        job.ID,
		"state":     job.State,
		"scores":    scores,
		"bestIndex": job.BestIndex,
	})
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
