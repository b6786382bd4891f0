package stage

import (
	"context"
	"testing"

	"github.com/jaki95/dataset-cleaner/internal/domain"
	"github.com/jaki95/dataset-cleaner/internal/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func imputeOnly(t *testing.T, opts Options, ds *domain.Dataset) (*domain.Dataset, domain.StageOutcome) {
	t.Helper()
	next, out, err := NewMissingImputation(opts).Execute(context.Background(), ds, nil)
	require.NoError(t, err)
	require.NotNil(t, out.Imputation)
	return next, out
}

func TestImputationMedianIsExact(t *testing.T) {
	values := make([]any, 20)
	var observed []float64
	for i := 0; i < 19; i++ {
		v := float64(i*i) / 3
		values[i] = v
		observed = append(observed, v)
	}
	values[19] = nil

	ds := newDataset(t, []string{"load"}, map[string][]any{"load": values})
	next, out := imputeOnly(t, testOptions(), ds)

	assert.Equal(t, stats.Median(observed), next.Values["load"][19])
	assert.Equal(t, []domain.ImputedColumn{{Column: "load", Method: MethodMedian, Count: 1}}, out.Imputation.Imputed)
	assert.Equal(t, 1, out.Imputation.MissingCounts["load"])
	assert.Nil(t, ds.Values["load"][19], "input must not be mutated")
}

func TestImputationKNN(t *testing.T) {
	x := make([]any, 10)
	y := make([]any, 10)
	for i := 0; i < 10; i++ {
		x[i] = float64(i + 1)
		y[i] = float64((i + 1) * 10)
	}
	y[9] = nil

	ds := newDataset(t, []string{"x", "y"}, map[string][]any{"x": x, "y": y})
	next, out := imputeOnly(t, testOptions(), ds)

	// Nearest five donors by x are rows 8..4: y = 90, 80, 70, 60, 50.
	assert.InDelta(t, 70.0, next.Values["y"][9], 1e-9)
	assert.Equal(t, []domain.ImputedColumn{{Column: "y", Method: MethodKNN, Count: 1}}, out.Imputation.Imputed)
}

func TestImputationKNNTiesGoToEarlierRow(t *testing.T) {
	x := []any{0.0, 4.0, 2.0, 8.0, 8.0, 8.0, 8.0, 8.0, 8.0, 8.0}
	y := []any{100.0, 200.0, nil, 5.0, 5.0, 5.0, 5.0, 5.0, 5.0, 5.0}

	opts := testOptions()
	opts.KNNNeighbors = 1
	ds := newDataset(t, []string{"x", "y"}, map[string][]any{"x": x, "y": y})
	next, _ := imputeOnly(t, opts, ds)

	assert.Equal(t, 100.0, next.Values["y"][2])
}

func TestImputationKNNWithoutFeaturesFallsBackToMedian(t *testing.T) {
	y := []any{1.0, 2.0, 3.0, 4.0, 5.0, 6.0, 7.0, 8.0, 9.0, nil}
	label := []any{"a", "b", "a", "b", "a", "b", "a", "b", "a", "b"}

	ds := newDataset(t, []string{"y", "label"}, map[string][]any{"y": y, "label": label})
	next, out := imputeOnly(t, testOptions(), ds)

	assert.Equal(t, 5.0, next.Values["y"][9])
	assert.Equal(t, MethodMedian, out.Imputation.Imputed[0].Method)
}

func TestImputationModeTieBreaksOnFirstSeen(t *testing.T) {
	ds := newDataset(t, []string{"color"}, map[string][]any{
		"color": {"red", "blue", "blue", "red", "red", "blue", nil},
	})
	next, out := imputeOnly(t, testOptions(), ds)

	assert.Equal(t, "red", next.Values["color"][6])
	assert.Equal(t, MethodMode, out.Imputation.Imputed[0].Method)
}

func TestImputationSkips(t *testing.T) {
	ds := newDataset(t, []string{"score", "comment", "created"}, map[string][]any{
		"score":   {1.0, nil, nil, nil, nil, 6.0, 7.0, 8.0, 9.0, 10.0},
		"comment": {"a", "b", "c", "d", "e", "f", "g", "h", "i", nil},
		"created": {"2020-01-01", "2020-01-02", "2020-01-03", "2020-01-04", "2020-01-05", "2020-01-06", "2020-01-07", "2020-01-08", "2020-01-09", nil},
	})
	next, out := imputeOnly(t, testOptions(), ds)

	assert.Empty(t, out.Imputation.Imputed)
	assert.Equal(t, []string{"score"}, out.Imputation.HighMissing)

	reasons := map[string]string{}
	for _, s := range out.Imputation.Skipped {
		reasons[s.Column] = s.Reason
	}
	assert.Contains(t, reasons["score"], "high missing fraction")
	assert.Equal(t, "text column not imputed", reasons["comment"])
	assert.Equal(t, "protected column", reasons["created"])
	assert.Nil(t, next.Values["created"][9])
}

func TestImputationPlansFromSnapshot(t *testing.T) {
	// Both columns are KNN targets; each must be imputed from the other's
	// original values, not from values filled earlier in the same pass.
	a := []any{1.0, 2.0, 3.0, 4.0, 5.0, 6.0, 7.0, 8.0, nil, 10.0}
	b := []any{10.0, 20.0, 30.0, 40.0, 50.0, 60.0, 70.0, 80.0, 90.0, nil}

	ds := newDataset(t, []string{"a", "b"}, map[string][]any{"a": a, "b": b})
	first, _ := imputeOnly(t, testOptions(), ds)
	second, _ := imputeOnly(t, testOptions(), ds)

	assert.Equal(t, first.Values, second.Values)
	// Row 9 has a = 10, nearest donors by a are rows 7, 6, 5, 4, 3.
	assert.InDelta(t, 60.0, first.Values["b"][9], 1e-9)
}
