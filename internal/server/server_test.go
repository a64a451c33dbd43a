package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cwbudde/lensmount/internal/model"
)

func newTestServer(t *testing.T) (*Server, *Worker) {
	t.Helper()
	w, _ := newTestWorker(t)
	defaults := JobConfig{
		AxisType: "OPTICAL",
		Merit:    "SPOT",
		Cycles:   model.CyclesNone,
		Backend:  model.BackendSim,
	}
	return NewServer("127.0.0.1:0", w, defaults), w
}

// completedJob runs a job synchronously and returns its ID.
func completedJob(t *testing.T, w *Worker) string {
	t.Helper()
	job := w.jm.CreateJob(JobConfig{
		ConfigPath: testConfigPath(t),
		AxisType:   "OPTICAL",
		Merit:      "SPOT",
		Cycles:     model.CyclesNone,
	})
	if err := w.runJob(context.Background(), job.ID); err != nil {
		t.Fatalf("runJob failed: %v", err)
	}
	return job.ID
}

func TestServer_CreateJob(t *testing.T) {
	s, w := newTestServer(t)

	body, _ := json.Marshal(map[string]any{"configPath": testConfigPath(t), "merit": "wave"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var job Job
	if err := json.NewDecoder(rec.Body).Decode(&job); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if job.ID == "" {
		t.Error("Job ID should not be empty")
	}
	if job.State != StatePending {
		t.Errorf("Expected state pending, got %s", job.State)
	}
	if job.Config.Merit != "WAVE" {
		t.Errorf("Merit should be normalised to WAVE, got %s", job.Config.Merit)
	}
	if job.Config.AxisType != "OPTICAL" || job.Config.Cycles != model.CyclesNone {
		t.Errorf("Defaults not applied: %+v", job.Config)
	}
	if len(w.queue) != 1 {
		t.Errorf("Expected 1 queued job, got %d", len(w.queue))
	}
}

func TestServer_CreateJobInvalid(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"missing config path", `{"merit": "SPOT"}`},
		{"unknown merit", `{"configPath": "lenses.json", "merit": "RMS"}`},
		{"bad cycles", `{"configPath": "lenses.json", "cycles": -2}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d", rec.Code)
			}
		})
	}

	if len(s.jobManager.ListJobs()) != 0 {
		t.Error("Rejected requests should not create jobs")
	}
}

func TestServer_ListJobs(t *testing.T) {
	s, _ := newTestServer(t)
	s.jobManager.CreateJob(JobConfig{ConfigPath: "a.json"})
	s.jobManager.CreateJob(JobConfig{ConfigPath: "b.json"})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var jobs []Job
	if err := json.NewDecoder(rec.Body).Decode(&jobs); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("Expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0].Config.ConfigPath != "a.json" {
		t.Error("Jobs should be listed in submission order")
	}
}

func TestServer_GetJobStatus(t *testing.T) {
	s, w := newTestServer(t)
	jobID := completedJob(t, w)

	for _, path := range []string{"/api/v1/jobs/" + jobID, "/api/v1/jobs/" + jobID + "/status"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected status 200, got %d", path, rec.Code)
		}

		var status map[string]any
		if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if status["state"] != string(StateCompleted) {
			t.Errorf("Expected state completed, got %v", status["state"])
		}
		if status["bestIndex"] != float64(3) {
			t.Errorf("Expected bestIndex 3, got %v", status["bestIndex"])
		}
		if status["evaluated"] != float64(6) {
			t.Errorf("Expected 6 evaluated, got %v", status["evaluated"])
		}
	}
}

func TestServer_GetScores(t *testing.T) {
	s, w := newTestServer(t)
	jobID := completedJob(t, w)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+jobID+"/scores", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var resp struct {
		Scores []float64 `json:"scores"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(resp.Scores) != 6 {
		t.Errorf("Expected 6 scores, got %d", len(resp.Scores))
	}
}

func TestServer_NotFound(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/api/v1/jobs/nonexistent", http.StatusNotFound},
		{http.MethodGet, "/api/v1/jobs/nonexistent/scores", http.StatusNotFound},
		{http.MethodGet, "/api/v1/jobs/nonexistent/stream", http.StatusNotFound},
		{http.MethodGet, "/api/v1/jobs/nonexistent/bogus", http.StatusNotFound},
		{http.MethodGet, "/api/v1/jobs/", http.StatusBadRequest},
		{http.MethodDelete, "/api/v1/jobs", http.StatusMethodNotAllowed},
		{http.MethodPost, "/api/v1/jobs/nonexistent", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, tt.path, nil)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)

		if rec.Code != tt.want {
			t.Errorf("%s %s: expected status %d, got %d", tt.method, tt.path, tt.want, rec.Code)
		}
	}
}

func TestServer_StreamCompletedJob(t *testing.T) {
	s, w := newTestServer(t)
	jobID := completedJob(t, w)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/jobs/" + jobID + "/stream")
	if err != nil {
		t.Fatalf("Stream request failed: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Expected text/event-stream, got %s", ct)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read stream: %v", err)
	}

	data, ok := strings.CutPrefix(strings.TrimSpace(string(body)), "data: ")
	if !ok {
		t.Fatalf("Expected SSE data line, got %q", body)
	}
	var event ProgressEvent
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		t.Fatalf("Failed to decode event: %v", err)
	}
	if event.State != StateCompleted || event.BestIndex != 3 {
		t.Errorf("Unexpected event: %+v", event)
	}
}

func TestServer_HealthAndMetrics(t *testing.T) {
	s, w := newTestServer(t)
	completedJob(t, w)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("Expected healthz 200, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected metrics 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, name := range []string{"lensmount_evaluations_total 6", `lensmount_runs_total{outcome="succeeded"} 1`} {
		if !strings.Contains(body, name) {
			t.Errorf("Metrics output missing %q", name)
		}
	}
}

func TestServer_CORSPreflight(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/jobs", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("Missing CORS header")
	}
}
