package stage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jaki95/dataset-cleaner/internal/domain"
)

// ReportGeneration aggregates the prior outcomes into the final report.
type ReportGeneration struct{}

// NewReportGeneration creates the report stage.
func NewReportGeneration() *ReportGeneration {
	return &ReportGeneration{}
}

// Name implements Stage.
func (s *ReportGeneration) Name() string { return domain.StageReport }

// Execute implements Stage. It fails only when a prior outcome is missing.
func (s *ReportGeneration) Execute(_ context.Context, ds *domain.Dataset, prior []domain.StageOutcome) (*domain.Dataset, domain.StageOutcome, error) {
	out := begin(s.Name())

	schema, ok := findOutcome(prior, domain.StageSchema)
	if !ok || schema.Schema == nil {
		return nil, finish(out), fmt.Errorf("%w: %s", ErrMissingOutcome, domain.StageSchema)
	}
	imputation, ok := findOutcome(prior, domain.StageImputation)
	if !ok || imputation.Imputation == nil {
		return nil, finish(out), fmt.Errorf("%w: %s", ErrMissingOutcome, domain.StageImputation)
	}
	outliers, ok := findOutcome(prior, domain.StageOutliers)
	if !ok || outliers.Outliers == nil {
		return nil, finish(out), fmt.Errorf("%w: %s", ErrMissingOutcome, domain.StageOutliers)
	}
	transformation, ok := findOutcome(prior, domain.StageTransformation)
	if !ok || transformation.Transformation == nil {
		return nil, finish(out), fmt.Errorf("%w: %s", ErrMissingOutcome, domain.StageTransformation)
	}

	report := &domain.Report{
		Domain:          schema.Schema.Domain,
		Rows:            ds.Rows(),
		ColumnsBefore:   len(schema.Schema.Columns),
		ColumnsAfter:    len(ds.Columns),
		Schema:          schema.Schema,
		Missing:         imputation.Imputation,
		Outliers:        outliers.Outliers,
		Transformations: transformation.Transformation,
		Mutations:       append([]domain.Mutation{}, ds.Mutations...),
		GeneratedAt:     time.Now(),
	}
	for _, o := range []domain.StageOutcome{schema, imputation, outliers, transformation} {
		report.Degraded = report.Degraded || o.Degraded
		report.Errors = append(report.Errors, o.Errors...)
	}
	report.Summary = summarize(report)
	out.Report = report

	return ds.Clone(), finish(out), nil
}

func summarize(r *domain.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Cleaned %s dataset: %d rows, %d columns in, %d columns out.",
		r.Domain, r.Rows, r.ColumnsBefore, r.ColumnsAfter)

	fmt.Fprintf(&b, " Imputed %d columns, skipped %d.", len(r.Missing.Imputed), len(r.Missing.Skipped))

	outliers, columns := 0, 0
	for _, c := range r.Outliers.Columns {
		if c.Count > 0 {
			outliers += c.Count
			columns++
		}
	}
	fmt.Fprintf(&b, " Handled %d outliers in %d columns.", outliers, columns)

	fmt.Fprintf(&b, " Applied %d transformations, removed %d columns.",
		len(r.Transformations.Applied), len(r.Transformations.Removed))
	if len(r.Transformations.Removed) > 0 {
		parts := make([]string, len(r.Transformations.Removed))
		for i, rc := range r.Transformations.Removed {
			parts[i] = fmt.Sprintf("%s (%s)", rc.Column, rc.Reason)
		}
		fmt.Fprintf(&b, " Removed: %s.", strings.Join(parts, "; "))
	}

	if len(r.Errors) > 0 {
		fmt.Fprintf(&b, " %d column errors recorded.", len(r.Errors))
	}
	if r.Degraded {
		b.WriteString(" Domain knowledge service unavailable; rule-based profiling used.")
	}
	return b.String()
}
