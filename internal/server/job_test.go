package server

import (
	"sync"
	"testing"
)

func TestJobManager_CreateJob(t *testing.T) {
	jm := NewJobManager()

	job := jm.CreateJob(JobConfig{ConfigPath: "lenses.json", AxisType: "OPTICAL", Merit: "SPOT"})

	if job.ID == "" {
		t.Error("Job ID should not be empty")
	}
	if job.State != StatePending {
		t.Errorf("Initial state should be pending, got %s", job.State)
	}
	if job.BestIndex != -1 {
		t.Errorf("Initial best index should be -1, got %d", job.BestIndex)
	}
	if job.Config.ConfigPath != "lenses.json" {
		t.Errorf("Config not set correctly")
	}
}

func TestJobManager_GetJob(t *testing.T) {
	jm := NewJobManager()
	job := jm.CreateJob(JobConfig{ConfigPath: "lenses.json"})

	retrieved, exists := jm.GetJob(job.ID)
	if !exists {
		t.Fatal("Job should exist")
	}
	if retrieved.ID != job.ID {
		t.Error("Retrieved wrong job")
	}

	if _, exists := jm.GetJob("nonexistent"); exists {
		t.Error("Should not find nonexistent job")
	}
}

func TestJobManager_ListJobsInSubmissionOrder(t *testing.T) {
	jm := NewJobManager()

	if len(jm.ListJobs()) != 0 {
		t.Error("Should start with no jobs")
	}

	first := jm.CreateJob(JobConfig{ConfigPath: "a.json"})
	second := jm.CreateJob(JobConfig{ConfigPath: "b.json"})

	jobs := jm.ListJobs()
	if len(jobs) != 2 {
		t.Fatalf("Expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0].ID != first.ID || jobs[1].ID != second.ID {
		t.Error("Jobs should be listed in submission order")
	}
}

func TestJobManager_UpdateJob(t *testing.T) {
	jm := NewJobManager()
	job := jm.CreateJob(JobConfig{ConfigPath: "lenses.json"})

	err := jm.UpdateJob(job.ID, func(j *Job) {
		j.State = StateRunning
		j.Evaluated = 3
		j.Scores = append(j.Scores, 0.5, 0.25, 0.75)
		j.BestScore = 0.25
	})
	if err != nil {
		t.Errorf("Update should succeed: %v", err)
	}

	updated, _ := jm.GetJob(job.ID)
	if updated.State != StateRunning || updated.Evaluated != 3 || updated.BestScore != 0.25 {
		t.Errorf("Job not updated: %+v", updated)
	}

	if running := jm.GetRunningJobs(); len(running) != 1 {
		t.Errorf("Expected 1 running job, got %d", len(running))
	}

	if err := jm.UpdateJob("nonexistent", func(j *Job) {}); err == nil {
		t.Error("Update of nonexistent job should fail")
	}
}

func TestJobManager_SnapshotsAreIndependent(t *testing.T) {
	jm := NewJobManager()
	job := jm.CreateJob(JobConfig{ConfigPath: "lenses.json"})
	jm.UpdateJob(job.ID, func(j *Job) { j.Scores = []float64{1, 2} })

	snap, _ := jm.GetJob(job.ID)
	snap.Scores[0] = 99

	again, _ := jm.GetJob(job.ID)
	if again.Scores[0] != 1 {
		t.Error("Modifying a snapshot changed the stored job")
	}
}

func TestJobManager_ThreadSafety(t *testing.T) {
	jm := NewJobManager()
	job := jm.CreateJob(JobConfig{ConfigPath: "lenses.json"})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			jm.UpdateJob(job.ID, func(j *Job) {
				j.Scores = append(j.Scores, float64(i))
				j.Evaluated = len(j.Scores)
			})
		}(i)
		go func() {
			defer wg.Done()
			jm.GetJob(job.ID)
		}()
	}
	wg.Wait()

	final, _ := jm.GetJob(job.ID)
	if final.Evaluated != 10 {
		t.Errorf("Expected 10 evaluations, got %d", final.Evaluated)
	}
}
