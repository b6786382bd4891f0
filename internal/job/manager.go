package job

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jaki95/dataset-cleaner/internal/domain"
)

// DefaultName is used for jobs created without a name.
const DefaultName = "dataset"

type record struct {
	status  *Status
	dataset *domain.Dataset
}

// Manager is the job registry. Reads may run concurrently; every write goes
// through the transition table, and only the run that moved a job to
// processing may commit to it.
type Manager struct {
	mu   sync.RWMutex
	jobs map[string]*record
	now  func() time.Time
}

// NewManager creates a new job manager
func NewManager() *Manager {
	return &Manager{
		jobs: make(map[string]*record),
		now:  time.Now,
	}
}

// CreateJob registers a dataset as a new job in the uploaded state.
func (m *Manager) CreateJob(name string, ds *domain.Dataset) *Status {
	if name == "" {
		name = DefaultName
	}
	status := &Status{
		ID:        uuid.NewString(),
		Name:      name,
		Status:    StatusUploaded,
		Progress:  ProgressUploaded,
		Message:   "Job created",
		Rows:      ds.Rows(),
		Columns:   len(ds.Columns),
		Outcomes:  []domain.StageOutcome{},
		CreatedAt: m.now(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[status.ID] = &record{status: status, dataset: ds.Clone()}
	return status.clone()
}

// GetJob returns a snapshot of the job.
func (m *Manager) GetJob(jobID string) (*Status, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, err := m.lookup(jobID)
	if err != nil {
		return nil, err
	}
	return rec.status.clone(), nil
}

// Dataset returns a copy of the job's latest committed dataset.
func (m *Manager) Dataset(jobID string) (*domain.Dataset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, err := m.lookup(jobID)
	if err != nil {
		return nil, err
	}
	return rec.dataset.Clone(), nil
}

// Start moves an uploaded job to processing. It is the single point that
// grants a run ownership of the job.
func (m *Manager) Start(jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.lookup(jobID)
	if err != nil {
		return err
	}
	switch rec.status.Status {
	case StatusProcessing:
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, jobID)
	case StatusUploaded:
	default:
		return fmt.Errorf("%w: %s is %s", ErrInvalidState, jobID, rec.status.Status)
	}

	now := m.now()
	rec.status.Status = StatusProcessing
	rec.status.Message = "Processing started"
	rec.status.StartTime = &now
	return nil
}

// CommitStage stores a stage outcome and the dataset it produced. Progress
// never decreases.
func (m *Manager) CommitStage(jobID string, outcome domain.StageOutcome, ds *domain.Dataset, progress float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.processing(jobID)
	if err != nil {
		return err
	}
	rec.status.Outcomes = append(rec.status.Outcomes, outcome)
	rec.status.Stage = outcome.Stage
	rec.status.Progress = math.Max(rec.status.Progress, math.Min(progress, ProgressComplete))
	rec.status.Message = fmt.Sprintf("Stage %s completed", outcome.Stage)
	if outcome.Report != nil {
		rec.status.Report = outcome.Report
	}
	if ds != nil {
		rec.dataset = ds
		rec.status.Rows = ds.Rows()
		rec.status.Columns = len(ds.Columns)
	}
	return nil
}

// Complete moves a processing job to completed.
func (m *Manager) Complete(jobID, message string) error {
	return m.finish(jobID, StatusCompleted, message, "")
}

// Fail moves a processing job to failed with reason as its terminal error.
// Committed outcomes are kept.
func (m *Manager) Fail(jobID, reason string) error {
	return m.finish(jobID, StatusFailed, fmt.Sprintf("Job failed: %s", reason), reason)
}

func (m *Manager) finish(jobID, to, message, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.lookup(jobID)
	if err != nil {
		return err
	}
	if !canTransition(rec.status.Status, to) {
		return fmt.Errorf("%w: %s cannot move from %s to %s", ErrInvalidState, jobID, rec.status.Status, to)
	}

	now := m.now()
	rec.status.Status = to
	rec.status.Message = message
	rec.status.Error = reason
	rec.status.EndTime = &now
	if to == StatusCompleted {
		rec.status.Progress = ProgressComplete
	}
	return nil
}

// SetArtifacts records where a completed job's outputs were written.
func (m *Manager) SetArtifacts(jobID string, artifacts []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.lookup(jobID)
	if err != nil {
		return err
	}
	rec.status.Artifacts = append([]string(nil), artifacts...)
	return nil
}

// RequestCancel marks a job for cancellation. The run owning it acts on the
// mark at the next stage boundary.
func (m *Manager) RequestCancel(jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.lookup(jobID)
	if err != nil {
		return err
	}
	if IsTerminal(rec.status.Status) {
		return fmt.Errorf("%w: %s is %s", ErrInvalidState, jobID, rec.status.Status)
	}
	rec.status.CancelRequested = true
	rec.status.Message = "Cancellation requested"
	return nil
}

// CancelRequested reports whether the job is marked for cancellation.
func (m *Manager) CancelRequested(jobID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.jobs[jobID]
	return ok && rec.status.CancelRequested
}

// ListJobs lists all jobs with pagination, oldest first.
func (m *Manager) ListJobs(page, pageSize int) *Response {
	page, pageSize = normalizePage(page, pageSize)

	m.mu.RLock()
	jobs := make([]*Status, 0, len(m.jobs))
	for _, rec := range m.jobs {
		jobs = append(jobs, rec.status.clone())
	}
	m.mu.RUnlock()

	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID < jobs[j].ID
		}
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})

	resp := &Response{
		Jobs:       []*Status{},
		Page:       page,
		PageSize:   pageSize,
		TotalJobs:  len(jobs),
		TotalPages: (len(jobs) + pageSize - 1) / pageSize,
	}
	start := (page - 1) * pageSize
	if start >= len(jobs) {
		return resp
	}
	end := min(start+pageSize, len(jobs))
	resp.Jobs = jobs[start:end]
	return resp
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > MaxPageSize {
		pageSize = DefaultPageSize
	}
	return page, pageSize
}

func (m *Manager) lookup(jobID string) (*record, error) {
	rec, ok := m.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	return rec, nil
}

func (m *Manager) processing(jobID string) (*record, error) {
	rec, err := m.lookup(jobID)
	if err != nil {
		return nil, err
	}
	if rec.status.Status != StatusProcessing {
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidState, jobID, rec.status.Status)
	}
	return rec, nil
}
