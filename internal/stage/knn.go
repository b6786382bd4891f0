package stage

import (
	"fmt"
	"math"
	"sort"

	"github.com/jaki95/dataset-cleaner/internal/domain"
	"github.com/jaki95/dataset-cleaner/internal/profiler"
	"github.com/jaki95/dataset-cleaner/internal/stats"
)

// knnFeatures returns the numeric, unprotected columns other than target.
func knnFeatures(ds *domain.Dataset, target string) []string {
	var features []string
	for _, name := range ds.Columns {
		p := ds.Profiles[name]
		if name == target || p.Protected || p.Type != domain.TypeNumeric || p.Observed() == 0 {
			continue
		}
		features = append(features, name)
	}
	return features
}

// scaledFeatures returns the feature columns min-max scaled to [0, 1], NaN
// where a cell is missing. A constant column scales to 0.
func scaledFeatures(ds *domain.Dataset, features []string) [][]float64 {
	scaled := make([][]float64, len(features))
	for j, name := range features {
		parsed, observed := parseNumeric(ds.Values[name])
		lo, hi := stats.MinMax(observed)
		col := make([]float64, len(parsed))
		for i, v := range parsed {
			switch {
			case math.IsNaN(v):
				col[i] = math.NaN()
			case hi > lo:
				col[i] = (v - lo) / (hi - lo)
			default:
				col[i] = 0
			}
		}
		scaled[j] = col
	}
	return scaled
}

// nanEuclidean is the Euclidean distance over the coordinates present in
// both rows, scaled up by total/present. ok is false when no coordinate is
// shared.
func nanEuclidean(features [][]float64, a, b int) (float64, bool) {
	var sum float64
	present := 0
	for _, col := range features {
		x, y := col[a], col[b]
		if math.IsNaN(x) || math.IsNaN(y) {
			continue
		}
		d := x - y
		sum += d * d
		present++
	}
	if present == 0 {
		return 0, false
	}
	return math.Sqrt(float64(len(features)) / float64(present) * sum), true
}

type neighbour struct {
	row  int
	dist float64
}

// imputeKNN fills each missing cell of target with the mean of its k nearest
// donors. Ties in distance go to the earlier row. A row sharing no feature
// with any donor gets the mean of all donors.
func imputeKNN(ds *domain.Dataset, target string, features []string, k int) imputation {
	values := ds.Values[target]
	parsed, observed := parseNumeric(values)
	if len(observed) == 0 {
		return imputation{err: fmt.Errorf("no donors with observed values")}
	}

	var donors []int
	for i, v := range parsed {
		if !math.IsNaN(v) {
			donors = append(donors, i)
		}
	}
	fallback := stats.Mean(observed)
	scaled := scaledFeatures(ds, features)

	filled := append([]any(nil), values...)
	count := 0
	for row, v := range values {
		if !profiler.IsMissing(v) {
			continue
		}

		candidates := make([]neighbour, 0, len(donors))
		for _, d := range donors {
			if dist, ok := nanEuclidean(scaled, row, d); ok {
				candidates = append(candidates, neighbour{row: d, dist: dist})
			}
		}
		if len(candidates) == 0 {
			filled[row] = fallback
			count++
			continue
		}

		sort.SliceStable(candidates, func(i, j int) bool {
			if candidates[i].dist != candidates[j].dist {
				return candidates[i].dist < candidates[j].dist
			}
			return candidates[i].row < candidates[j].row
		})
		if len(candidates) > k {
			candidates = candidates[:k]
		}

		var sum float64
		for _, c := range candidates {
			sum += parsed[c.row]
		}
		filled[row] = sum / float64(len(candidates))
		count++
	}
	return imputation{method: MethodKNN, values: filled, count: count}
}
