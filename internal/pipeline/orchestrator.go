// Package pipeline runs the cleaning stages of one job in order, committing
// each outcome to the job registry and publishing progress after it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jaki95/dataset-cleaner/internal/domain"
	"github.com/jaki95/dataset-cleaner/internal/job"
	"github.com/jaki95/dataset-cleaner/internal/metrics"
	"github.com/jaki95/dataset-cleaner/internal/progress"
	"github.com/jaki95/dataset-cleaner/internal/stage"
)

// Orchestrator drives jobs through a fixed list of stages.
type Orchestrator struct {
	stages  []stage.Stage
	jobs    *job.Manager
	bus     *progress.Bus
	metrics *metrics.Collector
	logger  *slog.Logger
}

// Options holds the optional collaborators of an Orchestrator.
type Options struct {
	Metrics *metrics.Collector
	Logger  *slog.Logger
}

// New creates an orchestrator over stages.
func New(stages []stage.Stage, jobs *job.Manager, bus *progress.Bus, opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		stages:  stages,
		jobs:    jobs,
		bus:     bus,
		metrics: opts.Metrics,
		logger:  logger,
	}
}

// Run executes every stage for a job the caller has already moved to
// processing. It returns nil when the job completed; otherwise the job has
// been failed and the returned error says why.
func (o *Orchestrator) Run(ctx context.Context, jobID string) error {
	logger := o.logger.With("jobId", jobID)

	ds, err := o.jobs.Dataset(jobID)
	if err != nil {
		return err
	}

	o.metrics.JobStarted()
	o.publish(jobID, progress.Event{
		Progress: job.ProgressUploaded,
		Status:   job.StatusProcessing,
		Message:  "Processing started",
	})
	logger.Info("Starting pipeline", "stages", len(o.stages), "rows", ds.Rows(), "columns", len(ds.Columns))

	var outcomes []domain.StageOutcome
	for i, s := range o.stages {
		if err := o.interrupted(ctx, jobID); err != nil {
			return o.fail(logger, jobID, s.Name(), err)
		}

		logger.Info("Starting stage", "stage", s.Name())
		next, outcome, err := o.execute(ctx, s, ds, outcomes)
		if err != nil {
			if ctxErr := contextError(ctx); ctxErr != nil {
				return o.fail(logger, jobID, s.Name(), ctxErr)
			}
			o.metrics.StageFault(s.Name())
			return o.fail(logger, jobID, s.Name(), fmt.Errorf("stage %s: %w", s.Name(), err))
		}

		pct := float64((i+1)*job.ProgressComplete) / float64(len(o.stages))
		if err := o.jobs.CommitStage(jobID, outcome, next, pct); err != nil {
			logger.Error("Failed to commit stage", "stage", s.Name(), "error", err)
			return err
		}
		o.metrics.ObserveStage(outcome)
		o.publish(jobID, progress.Event{
			Stage:    s.Name(),
			Progress: pct,
			Status:   job.StatusProcessing,
			Message:  fmt.Sprintf("Stage %s completed", s.Name()),
		})
		logger.Info("Stage completed",
			"stage", s.Name(),
			"duration", outcome.Duration,
			"degraded", outcome.Degraded,
			"columnErrors", len(outcome.Errors))

		ds = next
		outcomes = append(outcomes, outcome)
	}

	if err := o.jobs.Complete(jobID, "Processing completed successfully"); err != nil {
		logger.Error("Failed to complete job", "error", err)
		return err
	}
	o.metrics.JobFinished(job.StatusCompleted)
	o.publish(jobID, progress.Event{
		Stage:    domain.StageReport,
		Progress: job.ProgressComplete,
		Status:   job.StatusCompleted,
		Message:  "Processing completed successfully",
	})
	o.bus.Close(jobID)
	logger.Info("Job completed successfully", "rows", ds.Rows(), "columns", len(ds.Columns))
	return nil
}

// execute runs one stage, turning a panic into a stage fault.
func (o *Orchestrator) execute(ctx context.Context, s stage.Stage, ds *domain.Dataset, prior []domain.StageOutcome) (next *domain.Dataset, outcome domain.StageOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			next, outcome = nil, domain.StageOutcome{Stage: s.Name()}
			err = fmt.Errorf("%w: %v", ErrStagePanic, r)
		}
	}()
	return s.Execute(ctx, ds, prior)
}

// interrupted reports a cancellation requested on the registry or through
// ctx.
func (o *Orchestrator) interrupted(ctx context.Context, jobID string) error {
	if o.jobs.CancelRequested(jobID) {
		return ErrCancelled
	}
	return contextError(ctx)
}

func contextError(ctx context.Context) error {
	switch {
	case ctx.Err() == nil:
		return nil
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return ErrTimedOut
	default:
		return ErrCancelled
	}
}

// fail moves the job to failed, publishes the terminal event and closes the
// job's topic.
func (o *Orchestrator) fail(logger *slog.Logger, jobID, stageName string, cause error) error {
	reason := failureReason(cause)
	if err := o.jobs.Fail(jobID, reason); err != nil {
		logger.Error("Failed to mark job as failed", "error", err)
		return errors.Join(cause, err)
	}
	o.metrics.JobFinished(job.StatusFailed)
	o.publish(jobID, progress.Event{
		Stage:   stageName,
		Status:  job.StatusFailed,
		Message: "Processing failed",
		Error:   reason,
	})
	o.bus.Close(jobID)

	if errors.Is(cause, ErrCancelled) {
		logger.Warn("Job cancelled", "stage", stageName)
	} else {
		logger.Error("Job failed", "stage", stageName, "error", cause)
	}
	return cause
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrCancelled):
		return job.ReasonCancelled
	case errors.Is(err, ErrTimedOut):
		return "timed out"
	default:
		return err.Error()
	}
}

func (o *Orchestrator) publish(jobID string, e progress.Event) {
	if _, ok := o.bus.Publish(jobID, e); !ok {
		o.logger.Warn("Progress topic already closed", "jobId", jobID, "stage", e.Stage)
	}
}
