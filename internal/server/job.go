package server

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/cwbudde/lensmount/internal/store"
	"github.com/google/uuid"
)

// JobState represents the current state of a job
type JobState string

const (
	StatePending   JobState = "pending"
	StateRunning   JobState = "running"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
	StateCancelled JobState = "cancelled"
)

// JobConfig is an alias to avoid duplication with store.RunConfig
type JobConfig = store.RunConfig

// Job represents a mount selection run submitted over the API
type Job struct {
	ID         string            `json:"id"`
	State      JobState          `json:"state"`
	Config     JobConfig         `json:"config"`
	Total      int               `json:"total"`
	Evaluated  int               `json:"evaluated"`
	BestIndex  int               `json:"bestIndex"`
	BestScore  float64           `json:"bestScore"`
	FinalScore float64           `json:"finalScore"`
	Best       []store.Selection `json:"best,omitempty"`
	Scores     []float64         `json:"-"`
	StartTime  time.Time         `json:"startTime"`
	EndTime    *time.Time        `json:"endTime,omitempty"`
	Error      string            `json:"error,omitempty"`
	ErrorKind  string            `json:"errorKind,omitempty"`
}

// clone returns a copy that does not share slices with j
func (j *Job) clone() *Job {
	cp := *j
	cp.Scores = slices.Clone(j.Scores)
	cp.Best = slices.Clone(j.Best)
	return &cp
}

// JobManager manages the lifecycle of jobs
type JobManager struct {
	mu          sync.RWMutex
	jobs        map[string]*Job
	order       []string
	broadcaster *EventBroadcaster
}

// NewJobManager creates a new JobManager
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:        make(map[string]*Job),
		broadcaster: NewEventBroadcaster(),
	}
}

// CreateJob creates a new pending job with the given configuration
func (jm *JobManager) CreateJob(config JobConfig) *Job {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job := &Job{
		ID:        uuid.New().String(),
		State:     StatePending,
		Config:    config,
		BestIndex: -1,
		StartTime: time.Now(),
	}

	jm.jobs[job.ID] = job
	jm.order = append(jm.order, job.ID)
	return job.clone()
}

// GetJob returns a snapshot of a job
func (jm *JobManager) GetJob(id string) (*Job, bool) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	job, exists := jm.jobs[id]
	if !exists {
		return nil, false
	}
	return job.clone(), true
}

// ListJobs returns snapshots of all jobs in submission order
func (jm *JobManager) ListJobs() []*Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	jobs := make([]*Job, 0, len(jm.order))
	for _, id := range jm.order {
		jobs = append(jobs, jm.jobs[id].clone())
	}
	return jobs
}

// UpdateJob atomically updates a job using the provided function
func (jm *JobManager) UpdateJob(id string, updateFn func(*Job)) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, exists := jm.jobs[id]
	if !exists {
		return fmt.Errorf("job not found: %s", id)
	}

	updateFn(job)
	return nil
}

// GetRunningJobs returns all jobs currently in the running state
func (jm *JobManager) GetRunningJobs() []*Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	runningJobs := make([]*Job, 0)
	for _, id := range jm.order {
		if job := jm.jobs[id]; job.State == StateRunning {
			runningJobs = append(runningJobs, job.clone())
		}
	}
	return runningJobs
}
