// Package knowledge talks to the domain knowledge service: an external
// analyser that, given column profiles, suggests a domain label, type and
// unit overrides, removals and transformations.
package knowledge

import (
	"context"

	"github.com/jaki95/dataset-cleaner/internal/domain"
	"github.com/jaki95/dataset-cleaner/internal/profiler"
)

// DefaultSampleRows is the number of leading rows sent with a request.
const DefaultSampleRows = 5

// Service analyses a dataset summary and returns validated hints.
type Service interface {
	Analyze(ctx context.Context, req Request) (*domain.Hints, error)
}

// Request is the profile summary sent to the service.
type Request struct {
	Columns    []ColumnSummary     `json:"columns"`
	SampleRows []map[string]string `json:"sample_rows,omitempty"`
}

// ColumnSummary describes one column of the request.
type ColumnSummary struct {
	Name            string            `json:"name"`
	Type            domain.ColumnType `json:"type"`
	Unit            domain.Unit       `json:"unit"`
	MissingFraction float64           `json:"missing_fraction"`
	Samples         []string          `json:"samples"`
}

// ColumnNames returns the names of the summarised columns in order.
func (r Request) ColumnNames() []string {
	names := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		names[i] = c.Name
	}
	return names
}

// NewRequest builds a request from the current profiles of ds and its first
// sampleRows rows.
func NewRequest(ds *domain.Dataset, sampleRows int) Request {
	req := Request{Columns: make([]ColumnSummary, 0, len(ds.Columns))}
	for _, name := range ds.Columns {
		p := ds.Profiles[name]
		req.Columns = append(req.Columns, ColumnSummary{
			Name:            name,
			Type:            p.Type,
			Unit:            p.Unit,
			MissingFraction: p.MissingFraction,
			Samples:         append([]string{}, p.Samples...),
		})
	}

	rows := ds.Rows()
	if sampleRows < rows {
		rows = sampleRows
	}
	for i := 0; i < rows; i++ {
		row := make(map[string]string, len(ds.Columns))
		for _, name := range ds.Columns {
			row[name] = profiler.ToString(ds.Values[name][i])
		}
		req.SampleRows = append(req.SampleRows, row)
	}
	return req
}

// Unavailable is the Service used when no service is configured.
type Unavailable struct{}

// Analyze always fails with ErrUnavailable.
func (Unavailable) Analyze(context.Context, Request) (*domain.Hints, error) {
	return nil, ErrNotConfigured
}
