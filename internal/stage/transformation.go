package stage

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/jaki95/dataset-cleaner/internal/domain"
	"github.com/jaki95/dataset-cleaner/internal/profiler"
	"golang.org/x/sync/errgroup"
)

// Removal reasons.
const (
	ReasonHighMissing     = "high missing fraction"
	ReasonHighCardinality = "high cardinality, no predictive value"
	ReasonReferenceID     = "reference-id, no predictive value"
)

const (
	removalMaxMissing  = 0.70
	removalMinDistinct = 0.95
	maxProblemExamples = 3
)

var referenceIDPattern = regexp.MustCompile(`(?i)^.*_?id$`)

// Transformation normalizes column values and then decides which columns to
// drop.
type Transformation struct {
	opts Options
}

// NewTransformation creates the transformation stage.
func NewTransformation(opts Options) *Transformation {
	return &Transformation{opts: opts.withDefaults()}
}

// Name implements Stage.
func (s *Transformation) Name() string { return domain.StageTransformation }

type columnTransforms struct {
	values  []any
	applied []domain.AppliedTransformation
	errors  []domain.ColumnError
}

// Execute implements Stage.
func (s *Transformation) Execute(ctx context.Context, ds *domain.Dataset, prior []domain.StageOutcome) (*domain.Dataset, domain.StageOutcome, error) {
	out := begin(s.Name())
	next := ds.Clone()
	profiler.Refresh(next)

	results := make([]columnTransforms, len(next.Columns))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for i, name := range next.Columns {
		g.Go(func() error {
			results[i] = transformColumn(next.Profiles[name], next.Hints, next.Values[name])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, finish(out), err
	}

	report := &domain.TransformationReport{
		Applied:   []domain.AppliedTransformation{},
		Removed:   []domain.RemovedColumn{},
		Decisions: []domain.RemovalDecision{},
	}
	for i, name := range next.Columns {
		res := results[i]
		out.Errors = append(out.Errors, res.errors...)
		if len(res.applied) == 0 {
			continue
		}
		if err := next.SetColumn(name, res.values); err != nil {
			addError(out, name, "transform", err.Error())
			continue
		}
		for _, a := range res.applied {
			report.Applied = append(report.Applied, a)
			next.Record(domain.Mutation{
				Stage:     s.Name(),
				Column:    name,
				Operation: a.Transformation,
				Rows:      a.RowsAffected,
			})
		}
	}

	profiler.Refresh(next)
	s.decideRemovals(next, prior, report)
	out.Transformation = report

	profiler.Refresh(next)
	return next, finish(out), nil
}

// transformColumn runs the applicable transformations in order, each on the
// output of the previous successful one.
func transformColumn(p domain.ColumnProfile, hints *domain.Hints, values []any) columnTransforms {
	res := columnTransforms{values: values}
	for _, name := range applicable(p, hints) {
		transformed, result, err := runTransform(name, res.values)
		if err != nil {
			res.errors = append(res.errors, domain.ColumnError{Column: p.Name, Operation: name, Message: err.Error()})
			continue
		}
		if len(result.problems) > 0 {
			res.errors = append(res.errors, domain.ColumnError{
				Column:    p.Name,
				Operation: name,
				Message:   problemMessage(result.problems),
			})
		}
		res.values = transformed
		res.applied = append(res.applied, domain.AppliedTransformation{
			Column:         p.Name,
			Transformation: name,
			RowsAffected:   result.affected,
			NewlyMissing:   result.newlyMissing,
		})
	}
	return res
}

func problemMessage(problems []string) string {
	examples := problems
	if len(examples) > maxProblemExamples {
		examples = examples[:maxProblemExamples]
	}
	quoted := make([]string, len(examples))
	for i, e := range examples {
		quoted[i] = fmt.Sprintf("%q", e)
	}
	return fmt.Sprintf("%d unrecognised values left unchanged (%s)", len(problems), strings.Join(quoted, ", "))
}

// decideRemovals records a decision for every column and drops the removed
// ones. High-missing candidates deferred by imputation that survive are
// recorded as retained.
func (s *Transformation) decideRemovals(ds *domain.Dataset, prior []domain.StageOutcome, report *domain.TransformationReport) {
	candidates := make(map[string]bool)
	if o, ok := findOutcome(prior, domain.StageImputation); ok && o.Imputation != nil {
		for _, name := range o.Imputation.HighMissing {
			candidates[name] = true
		}
	}

	for _, name := range ds.Columns {
		p := ds.Profiles[name]
		hint, _ := ds.Hints.Column(name)
		remove, reason := removalDecision(p, hint)
		if !remove && candidates[name] {
			reason = fmt.Sprintf("high-missing candidate retained (missing fraction %.2f)", p.MissingFraction)
		}
		report.Decisions = append(report.Decisions, domain.RemovalDecision{
			Column:          name,
			Removed:         remove,
			Reason:          reason,
			Protected:       p.Protected,
			MissingFraction: p.MissingFraction,
			DistinctRatio:   p.DistinctRatio,
		})
		if remove {
			report.Removed = append(report.Removed, domain.RemovedColumn{Column: name, Reason: reason})
		}
	}

	for _, r := range report.Removed {
		ds.Drop(r.Column)
		ds.Record(domain.Mutation{
			Stage:     s.Name(),
			Column:    r.Column,
			Operation: "remove_column",
			Detail:    r.Reason,
			Rows:      ds.Rows(),
		})
	}
}

// removalDecision decides whether a column is dropped. Protected columns are
// always kept.
func removalDecision(p domain.ColumnProfile, hint domain.ColumnHint) (bool, string) {
	if p.Protected {
		return false, "protected column"
	}
	if p.MissingFraction > removalMaxMissing {
		return true, ReasonHighMissing
	}
	lowInformation := hint.NoPredictiveValue || hint.Remove
	textual := p.Type == domain.TypeCategorical || p.Type == domain.TypeText
	if p.DistinctRatio > removalMinDistinct && textual && lowInformation {
		return true, ReasonHighCardinality
	}
	if referenceIDPattern.MatchString(p.Name) && p.DistinctRatio > removalMinDistinct {
		return true, ReasonReferenceID
	}
	return false, "retained"
}
