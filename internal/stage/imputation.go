package stage

import (
	"context"
	"fmt"

	"github.com/jaki95/dataset-cleaner/internal/domain"
	"github.com/jaki95/dataset-cleaner/internal/profiler"
	"github.com/jaki95/dataset-cleaner/internal/stats"
	"golang.org/x/sync/errgroup"
)

// Imputation methods.
const (
	MethodMedian = "median"
	MethodKNN    = "knn"
	MethodMode   = "mode"
)

// Missing-fraction thresholds that select the imputation strategy.
const (
	medianMaxMissing = 0.05
	knnMaxMissing    = 0.30
)

// MissingImputation fills missing values column by column.
type MissingImputation struct {
	opts Options
}

// NewMissingImputation creates the imputation stage.
func NewMissingImputation(opts Options) *MissingImputation {
	return &MissingImputation{opts: opts.withDefaults()}
}

// Name implements Stage.
func (s *MissingImputation) Name() string { return domain.StageImputation }

type imputation struct {
	skip        string
	highMissing bool
	method      string
	values      []any
	count       int
	err         error
}

// Execute implements Stage. Every column is planned against the same
// snapshot; plans are then applied in column order.
func (s *MissingImputation) Execute(ctx context.Context, ds *domain.Dataset, _ []domain.StageOutcome) (*domain.Dataset, domain.StageOutcome, error) {
	out := begin(s.Name())
	next := ds.Clone()
	profiler.Refresh(next)

	plans := make([]imputation, len(next.Columns))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for i, name := range next.Columns {
		g.Go(func() error {
			plans[i] = s.plan(next, name)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, finish(out), err
	}

	report := &domain.ImputationReport{
		MissingCounts: make(map[string]int, len(next.Columns)),
		Imputed:       []domain.ImputedColumn{},
		Skipped:       []domain.SkippedColumn{},
	}
	for i, name := range next.Columns {
		plan := plans[i]
		report.MissingCounts[name] = next.Profiles[name].Missing
		switch {
		case plan.err != nil:
			addError(out, name, "impute", plan.err.Error())
		case plan.skip != "":
			report.Skipped = append(report.Skipped, domain.SkippedColumn{Column: name, Reason: plan.skip})
			if plan.highMissing {
				report.HighMissing = append(report.HighMissing, name)
			}
		case plan.values != nil:
			if err := next.SetColumn(name, plan.values); err != nil {
				addError(out, name, "impute", err.Error())
				continue
			}
			report.Imputed = append(report.Imputed, domain.ImputedColumn{Column: name, Method: plan.method, Count: plan.count})
			next.Record(domain.Mutation{
				Stage:     s.Name(),
				Column:    name,
				Operation: "impute_" + plan.method,
				Rows:      plan.count,
			})
		}
	}
	out.Imputation = report

	profiler.Refresh(next)
	return next, finish(out), nil
}

func (s *MissingImputation) plan(ds *domain.Dataset, name string) imputation {
	p := ds.Profiles[name]
	values := ds.Values[name]

	if p.Protected {
		return imputation{skip: "protected column"}
	}
	if p.Missing == 0 {
		return imputation{}
	}

	switch p.Type {
	case domain.TypeNumeric:
		switch m := p.MissingFraction; {
		case m <= medianMaxMissing:
			return imputeMedian(values)
		case m <= knnMaxMissing:
			features := knnFeatures(ds, name)
			if len(features) == 0 {
				return imputeMedian(values)
			}
			return imputeKNN(ds, name, features, s.opts.KNNNeighbors)
		default:
			return imputation{
				skip:        fmt.Sprintf("high missing fraction %.2f, candidate for removal", m),
				highMissing: true,
			}
		}
	case domain.TypeCategorical:
		return imputeMode(values)
	default:
		return imputation{skip: fmt.Sprintf("%s column not imputed", p.Type)}
	}
}

func imputeMedian(values []any) imputation {
	_, observed := parseNumeric(values)
	if len(observed) == 0 {
		return imputation{err: fmt.Errorf("no observed values to impute from")}
	}
	median := stats.Median(observed)

	filled := append([]any(nil), values...)
	count := 0
	for i, v := range values {
		if profiler.IsMissing(v) {
			filled[i] = median
			count++
		}
	}
	return imputation{method: MethodMedian, values: filled, count: count}
}

func imputeMode(values []any) imputation {
	counts := make(map[string]int)
	first := make(map[string]any)
	var order []string
	for _, v := range values {
		if profiler.IsMissing(v) {
			continue
		}
		key := profiler.ToString(v)
		if _, seen := counts[key]; !seen {
			order = append(order, key)
			first[key] = v
		}
		counts[key]++
	}
	if len(order) == 0 {
		return imputation{err: fmt.Errorf("no observed values to impute from")}
	}

	best := order[0]
	for _, key := range order[1:] {
		if counts[key] > counts[best] {
			best = key
		}
	}

	filled := append([]any(nil), values...)
	count := 0
	for i, v := range values {
		if profiler.IsMissing(v) {
			filled[i] = first[best]
			count++
		}
	}
	return imputation{method: MethodMode, values: filled, count: count}
}
