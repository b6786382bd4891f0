package stage

import (
	"context"
	"fmt"
	"testing"

	"github.com/jaki95/dataset-cleaner/internal/domain"
	"github.com/jaki95/dataset-cleaner/internal/knowledge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaRejectsEmptyDataset(t *testing.T) {
	tests := []struct {
		name string
		ds   *domain.Dataset
	}{
		{name: "no columns", ds: &domain.Dataset{Values: map[string][]any{}}},
		{name: "no rows", ds: &domain.Dataset{Columns: []string{"a"}, Values: map[string][]any{"a": {}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, _, err := NewSchemaValidation(nil, testOptions()).Execute(context.Background(), tt.ds, nil)
			assert.ErrorIs(t, err, ErrEmptyDataset)
			assert.Nil(t, next)
		})
	}
}

func TestSchemaRejectsAllProtectedColumns(t *testing.T) {
	ds := newDataset(t, []string{"created"}, map[string][]any{
		"created": {"2021-01-01", "2021-02-01", "2021-03-01"},
	})
	_, _, err := NewSchemaValidation(nil, testOptions()).Execute(context.Background(), ds, nil)
	assert.ErrorIs(t, err, ErrNoCleanableColumns)
}

func TestSchemaDegradesOnMalformedResponse(t *testing.T) {
	ds := newDataset(t, []string{"patient_id", "diagnosis", "blood_pressure"}, map[string][]any{
		"patient_id":     {"p1", "p2", "p3"},
		"diagnosis":      {"flu", "cold", "flu"},
		"blood_pressure": {120.0, 130.0, nil},
	})
	svc := &knowledge.MockService{
		AnalyzeFunc: func(ctx context.Context, req knowledge.Request) (*domain.Hints, error) {
			return nil, fmt.Errorf("%w: not json", knowledge.ErrMalformedResponse)
		},
	}

	next, out, err := NewSchemaValidation(svc, testOptions()).Execute(context.Background(), ds, nil)
	require.NoError(t, err)

	assert.True(t, out.Degraded)
	assert.True(t, out.Schema.Degraded)
	assert.Equal(t, "healthcare", out.Schema.Domain)
	assert.Equal(t, "healthcare", next.Hints.Domain)
	assert.Empty(t, next.Hints.Columns)
	assert.Equal(t, domain.TypeNumeric, out.Schema.DTypes["blood_pressure"])
	require.Len(t, next.Mutations, 1)
	assert.Equal(t, "profile", next.Mutations[0].Operation)
}

func TestSchemaNilHintsAreMalformed(t *testing.T) {
	ds := newDataset(t, []string{"price"}, map[string][]any{"price": {1.0, 2.0}})
	svc := &knowledge.MockService{
		AnalyzeFunc: func(ctx context.Context, req knowledge.Request) (*domain.Hints, error) {
			return nil, nil
		},
	}

	_, out, err := NewSchemaValidation(svc, testOptions()).Execute(context.Background(), ds, nil)
	require.NoError(t, err)
	assert.True(t, out.Degraded)
	assert.Equal(t, "e-commerce", out.Schema.Domain)
}

func TestSchemaMergesHints(t *testing.T) {
	ds := newDataset(t, []string{"created", "code", "empty"}, map[string][]any{
		"created": {"2021-01-01", "2021-02-01", "2021-03-01", "2021-04-01"},
		"code":    {"1", "2", "1", "2"},
		"empty":   {nil, nil, nil, nil},
	})
	var seen knowledge.Request
	svc := &knowledge.MockService{
		AnalyzeFunc: func(ctx context.Context, req knowledge.Request) (*domain.Hints, error) {
			seen = req
			return &domain.Hints{
				Domain: "logistics",
				Columns: map[string]domain.ColumnHint{
					"created": {
						Type:            domain.TypeNumeric,
						Remove:          true,
						Transformations: []string{domain.TransformText, domain.TransformDate},
					},
					"code":  {Type: domain.TypeCategorical},
					"ghost": {Remove: true},
				},
			}, nil
		},
	}

	next, out, err := NewSchemaValidation(svc, testOptions()).Execute(context.Background(), ds, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"created", "code", "empty"}, seen.ColumnNames())
	assert.False(t, out.Degraded)
	assert.Equal(t, "logistics", out.Schema.Domain)

	assert.Equal(t, domain.TypeDatetime, out.Schema.DTypes["created"])
	assert.Equal(t, domain.TypeCategorical, out.Schema.DTypes["code"])
	assert.Equal(t, []string{"created"}, out.Schema.Protected)
	assert.Equal(t, []string{`column "empty" is empty`}, out.Schema.Issues)

	created, ok := next.Hints.Column("created")
	require.True(t, ok)
	assert.False(t, created.Remove)
	assert.Empty(t, created.Type)
	assert.Equal(t, []string{domain.TransformDate}, created.Transformations)

	_, ok = next.Hints.Column("ghost")
	assert.False(t, ok)

	assert.ElementsMatch(t, []string{
		`discarded type "numeric" for protected column "created"`,
		`discarded removal suggestion for protected column "created"`,
		`discarded hint for unknown column "ghost"`,
	}, out.Notes)
}

func TestSchemaDoesNotMutateInput(t *testing.T) {
	ds := newDataset(t, []string{"price"}, map[string][]any{"price": {"$1", "$2"}})
	_, _, err := NewSchemaValidation(nil, testOptions()).Execute(context.Background(), ds, nil)
	require.NoError(t, err)
	assert.Empty(t, ds.Profiles)
	assert.Empty(t, ds.Mutations)
	assert.Nil(t, ds.Hints)
}
