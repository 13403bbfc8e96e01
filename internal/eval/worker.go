package eval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fairyhunter13/ai-convo-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/ai-convo-evaluator/internal/domain"
)

// Handler runs one dispatched job and returns the job result.
type Handler func(ctx domain.Context, job domain.Job) (map[string]any, error)

// Worker owns the single polling loop: claim the oldest queued job,
// dispatch by type, write the terminal status, re-poll immediately after a
// dispatch and sleep the poll interval when the queue is empty.
type Worker struct {
	deps         Deps
	handlers     map[domain.JobType]Handler
	pollInterval time.Duration
}

// NewWorker registers the five pipeline runners.
func NewWorker(deps Deps) *Worker {
	interval := deps.Cfg.WorkerPollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	w := &Worker{
		deps:         deps,
		pollInterval: interval,
		handlers: map[domain.JobType]Handler{
			domain.JobEvaluateBatch:       deps.RunBatch,
			domain.JobEvaluateAdversarial: deps.RunAdversarial,
			domain.JobEvaluateCustom:      deps.RunCustom,
			domain.JobEvaluateCustomBatch: deps.RunCustomBatch,
			domain.JobEvaluateVoiceRx:     deps.RunVoiceRx,
		},
	}
	return w
}

// RecoverStuck fails running jobs left behind by a previous process and
// cancels their runs. Called once at startup.
func (w *Worker) RecoverStuck(ctx context.Context) {
	threshold := w.deps.Cfg.StuckJobThreshold
	if threshold <= 0 {
		threshold = 30 * time.Minute
	}
	n, err := w.deps.Jobs.FailStuckRunning(ctx, int(threshold.Seconds()))
	if err != nil {
		slog.Error("stuck job recovery failed", slog.Any("error", err))
		return
	}
	if n > 0 {
		slog.Warn("failed stuck jobs from previous run", slog.Int64("count", n))
	}
}

// Run polls until the context ends.
func (w *Worker) Run(ctx context.Context) {
	slog.Info("worker started", slog.Duration("poll_interval", w.pollInterval))
	for {
		if ctx.Err() != nil {
			slog.Info("worker stopped")
			return
		}
		job, err := w.deps.Jobs.ClaimNextQueued(ctx)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				slog.Error("queue poll failed", slog.Any("error", err))
			}
			select {
			case <-ctx.Done():
				slog.Info("worker stopped")
				return
			case <-time.After(w.pollInterval):
			}
			continue
		}
		w.dispatch(ctx, job)
		// immediate re-poll after a dispatch
	}
}

// dispatch runs one claimed job to a terminal status.
func (w *Worker) dispatch(ctx context.Context, job domain.Job) {
	jobType := string(job.JobType)
	log := slog.With(slog.String("job_id", job.ID), slog.String("job_type", jobType))
	observability.JobsPickedTotal.WithLabelValues(jobType).Inc()
	observability.JobsRunning.WithLabelValues(jobType).Inc()
	defer observability.JobsRunning.WithLabelValues(jobType).Dec()
	start := time.Now()

	handler, ok := w.handlers[job.JobType]
	if !ok {
		log.Error("unknown job type")
		w.finish(ctx, job, nil, fmt.Errorf("Unknown job type"))
		return
	}

	log.Info("job started")
	result, err := w.runHandler(ctx, handler, job)
	observability.JobDuration.WithLabelValues(jobType).Observe(time.Since(start).Seconds())
	w.finish(ctx, job, result, err)
}

// runHandler isolates handler panics so one bad job cannot kill the loop.
func (w *Worker) runHandler(ctx context.Context, handler Handler, job domain.Job) (result map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, job)
}

// finish writes the terminal job status and cascades run cancellation.
func (w *Worker) finish(ctx context.Context, job domain.Job, result map[string]any, err error) {
	jobType := string(job.JobType)
	log := slog.With(slog.String("job_id", job.ID), slog.String("job_type", jobType))
	switch {
	case err == nil:
		if werr := w.deps.Jobs.MarkCompleted(ctx, job.ID, result); werr != nil {
			log.Error("mark completed failed", slog.Any("error", werr))
		}
		observability.JobsFinishedTotal.WithLabelValues(jobType, string(domain.JobCompleted)).Inc()
		log.Info("job completed")
	case errors.Is(err, domain.ErrJobCancelled):
		if werr := w.deps.Jobs.MarkCancelled(ctx, job.ID); werr != nil && !errors.Is(werr, domain.ErrConflict) {
			log.Error("mark cancelled failed", slog.Any("error", werr))
		}
		if werr := w.deps.Runs.CancelRunningByJobID(ctx, job.ID); werr != nil {
			log.Error("run cancel cascade failed", slog.Any("error", werr))
		}
		observability.JobsFinishedTotal.WithLabelValues(jobType, string(domain.JobCancelled)).Inc()
		log.Info("job cancelled")
	default:
		if werr := w.deps.Jobs.MarkFailed(ctx, job.ID, err.Error()); werr != nil {
			log.Error("mark failed failed", slog.Any("error", werr))
		}
		observability.JobsFinishedTotal.WithLabelValues(jobType, string(domain.JobFailed)).Inc()
		log.Error("job failed", slog.Any("error", err))
	}
}

// CancelJob implements the cancel endpoint semantics: queued or running
// jobs move to cancelled; an already-cancelled job re-applies the run
// cascade; completed and failed jobs conflict.
func (w *Worker) CancelJob(ctx context.Context, jobID string) error {
	job, err := w.deps.Jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	switch job.Status {
	case domain.JobQueued, domain.JobRunning:
		w.deps.Probe.MarkCancelled(jobID)
		if err := w.deps.Jobs.MarkCancelled(ctx, jobID); err != nil {
			return err
		}
	case domain.JobCancelled:
		w.deps.Probe.MarkCancelled(jobID)
	default:
		return fmt.Errorf("%w: job is %s", domain.ErrConflict, job.Status)
	}
	if err := w.deps.Runs.CancelRunningByJobID(ctx, jobID); err != nil {
		return err
	}
	return nil
}
