package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/cwbudde/lensmount/internal/harness"
	"github.com/cwbudde/lensmount/internal/lens"
	"github.com/cwbudde/lensmount/internal/metrics"
	"github.com/cwbudde/lensmount/internal/model"
	"github.com/cwbudde/lensmount/internal/mount"
	"github.com/cwbudde/lensmount/internal/store"
)

// ErrQueueFull is returned by Enqueue when no more jobs can wait.
var ErrQueueFull = errors.New("job queue full")

const defaultQueueSize = 64

// OpenModelFunc opens the optical model a job runs against.
type OpenModelFunc func(ctx context.Context) (model.Model, error)

// Worker runs queued jobs one at a time. The optical model is shared state
// and is never driven by two jobs at once.
type Worker struct {
	jm        *JobManager
	store     *store.FSStore
	metrics   *metrics.Manager
	openModel OpenModelFunc
	maxTuples int
	queue     chan string
}

// NewWorker creates a worker. metrics may be nil.
func NewWorker(jm *JobManager, st *store.FSStore, m *metrics.Manager, open OpenModelFunc, maxTuples int) *Worker {
	return &Worker{
		jm:        jm,
		store:     st,
		metrics:   m,
		openModel: open,
		maxTuples: maxTuples,
		queue:     make(chan string, defaultQueueSize),
	}
}

// Enqueue schedules a job.
func (w *Worker) Enqueue(jobID string) error {
	select {
	case w.queue <- jobID:
		w.metrics.SetQueued(len(w.queue))
		return nil
	default:
		return ErrQueueFull
	}
}

// Run processes jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case jobID := <-w.queue:
			w.metrics.SetQueued(len(w.queue))
			if err := w.runJob(ctx, jobID); err != nil {
				slog.Debug("Job ended with error", "job_id", jobID, "error", err)
			}
		}
	}
}

// runJob executes one mount selection run.
func (w *Worker) runJob(ctx context.Context, jobID string) error {
	job, exists := w.jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	if err := w.jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateRunning
	}); err != nil {
		return err
	}
	w.broadcastState(jobID)
	defer w.jm.broadcaster.CleanupJob(jobID)

	slog.Info("Starting job", "job_id", jobID, "config", job.Config.ConfigPath)

	err := w.execute(ctx, job)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		w.markJobCancelled(jobID)
	default:
		w.markJobFailed(jobID, err)
	}
	w.metrics.RunFailed(err)
	return err
}

func (w *Worker) execute(ctx context.Context, job *Job) error {
	cfg, err := lens.Load(job.Config.ConfigPath)
	if err != nil {
		return err
	}

	merit, err := model.ParseMeritKind(job.Config.Merit)
	if err != nil {
		return err
	}
	if job.Config.AxisType == "" {
		job.Config.AxisType = lens.DefaultAxisType
	}
	opts := harness.Options{
		AxisType:        job.Config.AxisType,
		Cycles:          job.Config.Cycles,
		Merit:           merit,
		VariableAirGaps: job.Config.VariableAirGaps,
		MaxTuples:       w.maxTuples,
		BaseDir:         filepath.Dir(job.Config.ConfigPath),
	}

	m, err := w.openModel(ctx)
	if err != nil {
		return fmt.Errorf("failed to open model: %w", err)
	}
	defer func() {
		if err := m.Close(); err != nil {
			slog.Warn("Failed to close model", "job_id", job.ID, "error", err)
		}
	}()

	trace, err := store.NewTraceWriter(w.store.BaseDir(), job.ID, false)
	if err != nil {
		return err
	}
	defer trace.Close()

	last := time.Now()
	obs := harness.ObserverFunc(func(i, total int, c mount.Combination, score float64) {
		now := time.Now()
		w.metrics.ObserveEvaluation(now.Sub(last))
		last = now

		if err := trace.Write(store.TraceEntry{Index: i, Tags: c.Tags(), Score: score, Timestamp: now}); err != nil {
			slog.Warn("Failed to write trace entry", "job_id", job.ID, "index", i, "error", err)
		}

		w.jm.UpdateJob(job.ID, func(j *Job) {
			j.Total = total
			j.Evaluated = i + 1
			j.Scores = append(j.Scores, score)
			if j.BestIndex < 0 || score < j.BestScore {
				j.BestIndex, j.BestScore = i, score
			}
		})
		w.broadcastState(job.ID)
	})

	start := time.Now()
	res, err := harness.Run(ctx, m, cfg, opts, obs)
	if err != nil {
		return err
	}
	if err := trace.Flush(); err != nil {
		slog.Warn("Failed to flush trace", "job_id", job.ID, "error", err)
	}

	record := store.NewRunRecord(job.ID, job.Config, res.Best, res.BestIndex, res.BestScore, res.FinalScore, len(res.Scores), len(res.Combinations))
	if err := w.store.SaveRecord(job.ID, record); err != nil {
		return fmt.Errorf("failed to save run record: %w", err)
	}

	endTime := time.Now()
	w.jm.UpdateJob(job.ID, func(j *Job) {
		j.State = StateCompleted
		j.Config = job.Config
		j.BestIndex = res.BestIndex
		j.BestScore = res.BestScore
		j.FinalScore = res.FinalScore
		j.Best = record.Best
		j.EndTime = &endTime
	})
	w.metrics.RunSucceeded(res.BestScore)

	slog.Info("Job completed",
		"job_id", job.ID,
		"elapsed", time.Since(start),
		"combinations", len(res.Combinations),
		"best_index", res.BestIndex,
		"best_score", res.BestScore,
		"final_score", res.FinalScore,
	)
	w.broadcastState(job.ID)
	return nil
}

// broadcastState sends the current state of a job to its stream subscribers
func (w *Worker) broadcastState(jobID string) {
	job, exists := w.jm.GetJob(jobID)
	if !exists {
		return
	}
	w.jm.broadcaster.Broadcast(eventFromJob(job))
}

// markJobFailed marks a job as failed with an error message
func (w *Worker) markJobFailed(jobID string, err error) {
	endTime := time.Now()
	w.jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.ErrorKind = metrics.FailureKind(err)
		j.EndTime = &endTime
	})
	slog.Error("Job failed", "job_id", jobID, "error", err)
	w.broadcastState(jobID)
}

// markJobCancelled marks a job as cancelled
func (w *Worker) markJobCancelled(jobID string) {
	endTime := time.Now()
	w.jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCancelled
		j.EndTime = &endTime
	})
	slog.Info("Job cancelled", "job_id", jobID)
	w.broadcastState(jobID)
}
