package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/jaki95/dataset-cleaner/config"
	"github.com/jaki95/dataset-cleaner/internal/domain"
	"github.com/jaki95/dataset-cleaner/internal/job"
	"github.com/jaki95/dataset-cleaner/internal/knowledge"
	"github.com/jaki95/dataset-cleaner/internal/metrics"
	"github.com/jaki95/dataset-cleaner/internal/pipeline"
	"github.com/jaki95/dataset-cleaner/internal/progress"
	"github.com/jaki95/dataset-cleaner/internal/stage"
	"github.com/jaki95/dataset-cleaner/internal/storage"
	"github.com/jaki95/dataset-cleaner/internal/tabular"
)

// Processor is the job submission boundary: it registers datasets as jobs,
// runs each started job in its own goroutine and exports the artifacts of
// completed jobs.
type Processor struct {
	cfg          *config.Config
	jobs         *job.Manager
	bus          *progress.Bus
	orchestrator *pipeline.Orchestrator
	store        storage.Storage
	logger       *slog.Logger

	baseCtx   context.Context
	cancelAll context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	closed    bool
}

// Options holds the collaborators of a Processor. A nil Knowledge service is
// built from the configuration; a nil Storage disables artifact export.
type Options struct {
	Knowledge knowledge.Service
	Storage   storage.Storage
	Metrics   *metrics.Collector
	Logger    *slog.Logger
}

// NewProcessor builds a Processor with the given configuration.
func NewProcessor(cfg *config.Config, opts Options) *Processor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	svc := opts.Knowledge
	if svc == nil {
		svc = NewKnowledgeService(cfg.Knowledge, opts.Metrics, logger)
	}

	jobs := job.NewManager()
	bus := progress.NewBus()
	stages := stage.Pipeline(svc, StageOptions(cfg, logger))
	ctx, cancel := context.WithCancel(context.Background())

	return &Processor{
		cfg:          cfg,
		jobs:         jobs,
		bus:          bus,
		orchestrator: pipeline.New(stages, jobs, bus, pipeline.Options{Metrics: opts.Metrics, Logger: logger}),
		store:        opts.Storage,
		logger:       logger,
		baseCtx:      ctx,
		cancelAll:    cancel,
	}
}

// NewKnowledgeService returns the configured domain knowledge service behind
// a rate limiter and circuit breaker, or an unavailable one when no URL is
// set.
func NewKnowledgeService(cfg config.KnowledgeConfig, observer *metrics.Collector, logger *slog.Logger) knowledge.Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.URL == "" {
		logger.Info("No domain knowledge service configured, using rule-based profiles")
		return knowledge.Unavailable{}
	}
	client := knowledge.NewHTTPClient(cfg.URL, &http.Client{Timeout: cfg.Timeout})
	guardOpts := knowledge.GuardOptions{
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
		MaxFailures:       cfg.BreakerFailures,
		Cooldown:          cfg.BreakerCooldown,
		Logger:            logger,
	}
	if observer != nil {
		guardOpts.Observer = observer
	}
	return knowledge.NewGuarded(client, guardOpts)
}

// StageOptions maps the pipeline configuration onto stage options.
func StageOptions(cfg *config.Config, logger *slog.Logger) stage.Options {
	opts := stage.DefaultOptions()
	opts.Workers = cfg.Pipeline.Workers
	opts.KNNNeighbors = cfg.Pipeline.KNNNeighbors
	opts.OutlierAction = cfg.Pipeline.OutlierAction
	opts.IForestTrees = cfg.Pipeline.IForestTrees
	opts.IForestMinRows = cfg.Pipeline.IForestMinRows
	opts.Seed = cfg.Pipeline.Seed
	opts.KnowledgeTimeout = cfg.Knowledge.Timeout
	opts.SampleRows = cfg.Knowledge.SampleRows
	opts.Logger = logger
	return opts
}

// CreateJob registers ds as a new job and returns its id.
func (p *Processor) CreateJob(name string, ds *domain.Dataset) (string, error) {
	if ds == nil {
		return "", fmt.Errorf("%w: no dataset", ErrInvalidDataset)
	}
	status := p.jobs.CreateJob(name, ds)
	p.logger.Info("Job created", "jobId", status.ID, "name", status.Name, "rows", status.Rows, "columns", status.Columns)
	return status.ID, nil
}

// CreateJobFromCSV parses r as CSV and registers it as a new job.
func (p *Processor) CreateJobFromCSV(name string, r io.Reader) (string, error) {
	ds, err := tabular.Read(r)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidDataset, err)
	}
	return p.CreateJob(name, ds)
}

// StartProcessing accepts an uploaded job and runs it in the background. It
// returns job.ErrNotFound, job.ErrAlreadyRunning or job.ErrInvalidState when
// the job cannot be started.
func (p *Processor) StartProcessing(jobID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrShuttingDown
	}
	if err := p.jobs.Start(jobID); err != nil {
		return err
	}

	p.wg.Add(1)
	go p.processInBackground(jobID)
	return nil
}

// processInBackground handles the background processing of a job
func (p *Processor) processInBackground(jobID string) {
	defer p.wg.Done()
	logger := p.logger.With("jobId", jobID)
	logger.Info("Starting background processing")

	ctx, cancel := context.WithTimeout(p.baseCtx, p.cfg.Pipeline.JobTimeout)
	defer cancel()

	if err := p.orchestrator.Run(ctx, jobID); err != nil {
		logger.Warn("Background processing ended without completion", "error", err)
		return
	}

	artifacts, err := p.export(ctx, jobID)
	if err != nil {
		logger.Error("Failed to export artifacts", "error", err)
		return
	}
	if len(artifacts) > 0 {
		if err := p.jobs.SetArtifacts(jobID, artifacts); err != nil {
			logger.Error("Failed to record artifacts", "error", err)
			return
		}
		logger.Info("Artifacts exported", "artifacts", artifacts)
	}
}

// export writes the cleaned dataset and the report of a completed job.
func (p *Processor) export(ctx context.Context, jobID string) ([]string, error) {
	if p.store == nil {
		return nil, nil
	}
	status, err := p.jobs.GetJob(jobID)
	if err != nil {
		return nil, err
	}
	ds, err := p.jobs.Dataset(jobID)
	if err != nil {
		return nil, err
	}

	cleaned, err := tabular.Encode(ds)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cleaned dataset: %w", err)
	}
	report, err := json.MarshalIndent(status.Report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}

	var locations []string
	for _, a := range []struct {
		key, contentType string
		data             []byte
	}{
		{storage.CleanedKey(jobID), "text/csv; charset=utf-8", cleaned},
		{storage.ReportKey(jobID), "application/json", report},
	} {
		location, err := p.store.Save(ctx, a.key, a.contentType, a.data)
		if err != nil {
			return nil, fmt.Errorf("failed to save %s: %w", a.key, err)
		}
		locations = append(locations, location)
	}
	return locations, nil
}

// GetStatus returns a snapshot of the job, including its report once
// completed.
func (p *Processor) GetStatus(jobID string) (*job.Status, error) {
	return p.jobs.GetJob(jobID)
}

// SubscribeProgress streams the job's progress events until it reaches a
// terminal status or ctx is done.
func (p *Processor) SubscribeProgress(ctx context.Context, jobID string) (<-chan progress.Event, error) {
	if _, err := p.jobs.GetJob(jobID); err != nil {
		return nil, err
	}
	return p.bus.Subscribe(ctx, jobID), nil
}

// Cancel marks the job for cancellation at its next stage boundary.
func (p *Processor) Cancel(jobID string) error {
	if err := p.jobs.RequestCancel(jobID); err != nil {
		return err
	}
	p.logger.Info("Job cancellation requested", "jobId", jobID)
	return nil
}

// ListJobs lists jobs with pagination.
func (p *Processor) ListJobs(page, pageSize int) *job.Response {
	return p.jobs.ListJobs(page, pageSize)
}

// Dataset returns a copy of the job's latest dataset.
func (p *Processor) Dataset(jobID string) (*domain.Dataset, error) {
	return p.jobs.Dataset(jobID)
}

// OpenArtifact opens one exported artifact of a completed job.
func (p *Processor) OpenArtifact(ctx context.Context, jobID, name string) (io.ReadCloser, error) {
	status, err := p.jobs.GetJob(jobID)
	if err != nil {
		return nil, err
	}
	if p.store == nil {
		return nil, ErrNoStorage
	}
	if status.Status != job.StatusCompleted || len(status.Artifacts) == 0 {
		return nil, fmt.Errorf("%w: job is %s", ErrArtifactNotReady, status.Status)
	}
	return p.store.Open(ctx, jobID+"/"+name)
}

// Shutdown stops accepting jobs and waits for running ones. When ctx ends
// first, running jobs are cancelled and awaited.
func (p *Processor) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancelAll()
		return nil
	case <-ctx.Done():
		p.logger.Warn("Shutdown deadline reached, cancelling running jobs")
		p.cancelAll()
		<-done
		return ctx.Err()
	}
}
