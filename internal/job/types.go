package job

import (
	"time"

	"github.com/jaki95/dataset-cleaner/internal/domain"
)

// Constants for job status
const (
	StatusUploaded   = "uploaded"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Constants for progress percentages
const (
	ProgressUploaded = 0
	ProgressPerStage = 20
	ProgressComplete = 100
)

// Constants for pagination
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// ReasonCancelled is the terminal error of a job failed by cancellation.
const ReasonCancelled = "cancelled"

// transitions lists the statuses each status may move to. Terminal statuses
// have no entry.
var transitions = map[string][]string{
	StatusUploaded:   {StatusProcessing},
	StatusProcessing: {StatusCompleted, StatusFailed},
}

func canTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves status.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}

// Status is a snapshot of a cleaning job.
type Status struct {
	ID              string                `json:"id"`
	Name            string                `json:"name"`
	Status          string                `json:"status"`
	Progress        float64               `json:"progress"`
	Stage           string                `json:"stage,omitempty"`
	Message         string                `json:"message"`
	Error           string                `json:"error,omitempty"`
	Rows            int                   `json:"rows"`
	Columns         int                   `json:"columns"`
	Outcomes        []domain.StageOutcome `json:"outcomes"`
	Report          *domain.Report        `json:"report,omitempty"`
	Artifacts       []string              `json:"artifacts,omitempty"`
	CancelRequested bool                  `json:"cancel_requested"`
	CreatedAt       time.Time             `json:"created_at"`
	StartTime       *time.Time            `json:"start_time,omitempty"`
	EndTime         *time.Time            `json:"end_time,omitempty"`
}

// clone returns a copy of s that shares nothing mutable with it.
func (s *Status) clone() *Status {
	c := *s
	c.Outcomes = append([]domain.StageOutcome{}, s.Outcomes...)
	c.Artifacts = append([]string(nil), s.Artifacts...)
	if s.StartTime != nil {
		t := *s.StartTime
		c.StartTime = &t
	}
	if s.EndTime != nil {
		t := *s.EndTime
		c.EndTime = &t
	}
	return &c
}

// Response represents the response for job listing.
type Response struct {
	Jobs       []*Status `json:"jobs"`
	Page       int       `json:"page"`
	PageSize   int       `json:"page_size"`
	TotalJobs  int       `json:"total_jobs"`
	TotalPages int       `json:"total_pages"`
}
