// Package stage implements the five cleaning stages. Every stage works on a
// clone of its input and returns the updated clone with a StageOutcome.
package stage

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/jaki95/dataset-cleaner/internal/domain"
	"github.com/jaki95/dataset-cleaner/internal/knowledge"
	"github.com/jaki95/dataset-cleaner/internal/profiler"
)

// Stage is one step of the cleaning pipeline. A returned error is a
// stage-level fault; column-level problems are recorded in the outcome.
type Stage interface {
	Name() string
	Execute(ctx context.Context, ds *domain.Dataset, prior []domain.StageOutcome) (*domain.Dataset, domain.StageOutcome, error)
}

// Outlier actions.
const (
	ActionClip = "clip"
	ActionNull = "null"
	ActionFlag = "flag"
)

// Defaults for Options.
const (
	DefaultWorkers          = 4
	DefaultKNNNeighbors     = 5
	DefaultIForestTrees     = 100
	DefaultIForestSample    = 256
	DefaultIForestMinRows   = 16
	DefaultSeed             = 42
	DefaultKnowledgeTimeout = 10 * time.Second
)

// Options tunes the stages.
type Options struct {
	Workers          int
	KNNNeighbors     int
	OutlierAction    string
	IForestTrees     int
	IForestSample    int
	IForestMinRows   int
	Seed             int64
	KnowledgeTimeout time.Duration
	SampleRows       int
	Logger           *slog.Logger
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Workers:          DefaultWorkers,
		KNNNeighbors:     DefaultKNNNeighbors,
		OutlierAction:    ActionClip,
		IForestTrees:     DefaultIForestTrees,
		IForestSample:    DefaultIForestSample,
		IForestMinRows:   DefaultIForestMinRows,
		Seed:             DefaultSeed,
		KnowledgeTimeout: DefaultKnowledgeTimeout,
		SampleRows:       knowledge.DefaultSampleRows,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Workers < 1 {
		o.Workers = d.Workers
	}
	if o.KNNNeighbors < 1 {
		o.KNNNeighbors = d.KNNNeighbors
	}
	switch o.OutlierAction {
	case ActionClip, ActionNull, ActionFlag:
	default:
		o.OutlierAction = d.OutlierAction
	}
	if o.IForestTrees < 1 {
		o.IForestTrees = d.IForestTrees
	}
	if o.IForestSample < 2 {
		o.IForestSample = d.IForestSample
	}
	if o.IForestMinRows < 1 {
		o.IForestMinRows = d.IForestMinRows
	}
	if o.KnowledgeTimeout <= 0 {
		o.KnowledgeTimeout = d.KnowledgeTimeout
	}
	if o.SampleRows <= 0 {
		o.SampleRows = d.SampleRows
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Pipeline returns the five stages in their fixed order.
func Pipeline(service knowledge.Service, opts Options) []Stage {
	return []Stage{
		NewSchemaValidation(service, opts),
		NewMissingImputation(opts),
		NewOutlierHandling(opts),
		NewTransformation(opts),
		NewReportGeneration(),
	}
}

func begin(name string) *domain.StageOutcome {
	return &domain.StageOutcome{Stage: name, StartedAt: time.Now()}
}

func finish(out *domain.StageOutcome) domain.StageOutcome {
	out.Duration = time.Since(out.StartedAt)
	return *out
}

func addError(out *domain.StageOutcome, column, operation, message string) {
	out.Errors = append(out.Errors, domain.ColumnError{Column: column, Operation: operation, Message: message})
}

// findOutcome returns the outcome of the named stage among prior.
func findOutcome(prior []domain.StageOutcome, name string) (domain.StageOutcome, bool) {
	for _, o := range prior {
		if o.Stage == name {
			return o, true
		}
	}
	return domain.StageOutcome{}, false
}

// parseNumeric returns the column as floats, NaN where a cell is missing or
// not a number, along with the observed values in row order.
func parseNumeric(values []any) (parsed []float64, observed []float64) {
	parsed = make([]float64, len(values))
	for i, v := range values {
		f, ok := profiler.ParseNumber(v)
		if !ok || profiler.IsMissing(v) {
			parsed[i] = math.NaN()
			continue
		}
		parsed[i] = f
		observed = append(observed, f)
	}
	return parsed, observed
}
