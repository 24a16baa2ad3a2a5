// Package worker implements the job-processing loop: claim, heartbeat,
// pipeline execution, and failure routing. Any number of workers may run
// against the same queue; mutual exclusion comes entirely from the
// database-level lease.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"offbook/internal/pipeline"
	"offbook/internal/queue"
)

const (
	// DefaultPollInterval is the sleep between empty claim attempts.
	DefaultPollInterval = 5 * time.Second

	// DefaultHeartbeatInterval renews the 10-minute lease well before expiry.
	DefaultHeartbeatInterval = 60 * time.Second
)

// Worker polls the queue and executes claimed jobs through the pipeline.
type Worker struct {
	ID       string
	Queue    *queue.Store
	Pipeline *pipeline.Pipeline
	Logger   *slog.Logger

	PollInterval      time.Duration
	HeartbeatInterval time.Duration

	running atomic.Bool
	wg      sync.WaitGroup
}

// New creates a worker with a generated id.
func New(store *queue.Store, pl *pipeline.Pipeline, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		ID:                "worker-" + uuid.NewString()[:8],
		Queue:             store,
		Pipeline:          pl,
		Logger:            logger,
		PollInterval:      DefaultPollInterval,
		HeartbeatInterval: DefaultHeartbeatInterval,
	}
}

// Run polls for jobs until Stop is called or the context is cancelled.
// Context cancellation is a normal shutdown, not an error.
func (w *Worker) Run(ctx context.Context) error {
	w.running.Store(true)
	w.Logger.Info("worker started", "worker_id", w.ID)
	defer w.Logger.Info("worker stopped", "worker_id", w.ID)

	for w.running.Load() {
		if ctx.Err() != nil {
			break
		}

		job, err := w.Queue.ClaimNext(ctx, w.ID)
		if err != nil {
			w.Logger.Error("claim failed", "worker_id", w.ID, "error", err)
			w.sleep(ctx)
			continue
		}
		if job == nil {
			w.sleep(ctx)
			continue
		}

		w.processJob(ctx, job)
	}
	w.wg.Wait()
	return nil
}

// Stop flips the running flag. Cooperative: an in-flight chunk finishes
// before the loop observes the flag.
func (w *Worker) Stop() {
	w.running.Store(false)
}

func (w *Worker) sleep(ctx context.Context) {
	interval := w.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	select {
	case <-ctx.Done():
	case <-time.After(interval):
	}
}

// processJob runs one claimed job under a heartbeat. If a lease renewal
// fails, ownership is gone: the job context is cancelled, no further
// mutations are made to the job row, and the worker stops.
func (w *Worker) processJob(ctx context.Context, job *queue.Job) {
	logger := w.Logger.With("worker_id", w.ID, "job_id", job.ID)
	logger.Info("processing job", "filename", job.Filename, "retry_count", job.RetryCount)

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var leaseLost atomic.Bool
	stopHeartbeat := w.startHeartbeat(jobCtx, job.ID, &leaseLost, cancel, logger)
	defer stopHeartbeat()

	result, err := w.Pipeline.Run(jobCtx, job, func(progress pipeline.Progress) {
		logger.Debug("progress",
			"chunks", fmt.Sprintf("%d/%d", progress.ChunksCompleted, progress.TotalChunks),
			"lines", progress.LinesCompleted,
			"percent", int(progress.ProgressPercent))
	})
	stopHeartbeat()

	if leaseLost.Load() {
		// Another worker may own this job now. No further writes to it.
		logger.Warn("lease lost, abandoning job and stopping worker")
		w.Stop()
		return
	}

	if err != nil {
		logger.Error("job failed", "error", err)
		if hfErr := w.Queue.HandleFailure(ctx, job.ID, err); hfErr != nil {
			logger.Error("failure routing failed", "error", hfErr)
		}
		return
	}

	switch result.Outcome {
	case pipeline.OutcomeCompleted:
		err := w.Queue.Complete(ctx, job.ID, w.ID, queue.CompletionResult{
			Status:     queue.StatusCompleted,
			PlaybookID: result.PlaybookID,
		})
		if err != nil {
			if errors.Is(err, queue.ErrLeaseLost) {
				logger.Warn("lease lost at completion, result discarded")
				return
			}
			logger.Error("completion failed", "error", err)
			return
		}
		logger.Info("job completed", "playbook_id", result.PlaybookID)
	case pipeline.OutcomePaused:
		logger.Info("job paused, stopping work")
	case pipeline.OutcomeCancelled:
		logger.Info("job cancelled")
	}
}

// startHeartbeat renews the lease on an interval. Returns a stop function
// safe to call more than once.
func (w *Worker) startHeartbeat(ctx context.Context, jobID string, leaseLost *atomic.Bool, cancelJob context.CancelFunc, logger *slog.Logger) func() {
	interval := w.HeartbeatInterval
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}

	done := make(chan struct{})
	var once sync.Once
	stop := func() { once.Do(func() { close(done) }) }

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				renewed, err := w.Queue.RenewLock(ctx, jobID, w.ID)
				if err != nil {
					logger.Error("heartbeat failed", "error", err)
					continue
				}
				if !renewed {
					// Fencing: failure to renew means ownership is gone.
					leaseLost.Store(true)
					cancelJob()
					return
				}
				logger.Debug("lease renewed")
			}
		}
	}()
	return stop
}
