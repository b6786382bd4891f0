package stage

import (
	"context"
	"fmt"
	"math"

	"github.com/jaki95/dataset-cleaner/internal/domain"
	"github.com/jaki95/dataset-cleaner/internal/profiler"
	"github.com/jaki95/dataset-cleaner/internal/stats"
)

// Outlier detection methods.
const (
	MethodIQR             = "iqr"
	MethodZScore          = "zscore"
	MethodIsolationForest = "isolation_forest"
)

const (
	iqrMinObserved    = 4
	zScoreMinObserved = 3
	zScoreThreshold   = 3.0
	contamination     = 0.05
)

// OutlierHandling detects outliers with three methods and acts on the values
// at least two of them agree on.
type OutlierHandling struct {
	opts Options
}

// NewOutlierHandling creates the outlier stage.
func NewOutlierHandling(opts Options) *OutlierHandling {
	return &OutlierHandling{opts: opts.withDefaults()}
}

// Name implements Stage.
func (s *OutlierHandling) Name() string { return domain.StageOutliers }

// columnVotes holds, per method that could be computed for a column, the rows
// that method flagged.
type columnVotes struct {
	methods []string
	flags   map[string][]bool
	lower   float64
	upper   float64
}

func (v *columnVotes) add(method string, flags []bool) {
	v.methods = append(v.methods, method)
	v.flags[method] = flags
}

// confirmed applies the consensus rule: with two or more computable methods a
// value needs two votes, otherwise IQR decides alone.
func (v *columnVotes) confirmed(row int) bool {
	if len(v.methods) < 2 {
		flags, ok := v.flags[MethodIQR]
		return ok && flags[row]
	}
	votes := 0
	for _, m := range v.methods {
		if v.flags[m][row] {
			votes++
		}
	}
	return votes >= 2
}

// Execute implements Stage.
func (s *OutlierHandling) Execute(ctx context.Context, ds *domain.Dataset, _ []domain.StageOutcome) (*domain.Dataset, domain.StageOutcome, error) {
	out := begin(s.Name())
	next := ds.Clone()
	profiler.Refresh(next)

	eligible := s.eligibleColumns(next)
	parsed := make(map[string][]float64, len(eligible))
	for _, name := range eligible {
		parsed[name], _ = parseNumeric(next.Values[name])
	}

	forest := s.forestFlags(next, eligible, parsed)
	if forest == nil && len(eligible) > 0 {
		out.Notes = append(out.Notes, fmt.Sprintf(
			"isolation forest skipped: %d rows, %d required", next.Rows(), s.opts.IForestMinRows))
	}

	report := &domain.OutlierReport{Columns: []domain.OutlierColumn{}}
	for _, name := range eligible {
		if err := ctx.Err(); err != nil {
			return nil, finish(out), err
		}

		votes := detect(parsed[name], forest)
		col := domain.OutlierColumn{
			Column:       name,
			Methods:      votes.methods,
			MethodCounts: make(map[string]int, len(votes.methods)),
			Action:       s.opts.OutlierAction,
			Lower:        votes.lower,
			Upper:        votes.upper,
		}
		for _, m := range votes.methods {
			for row, flagged := range votes.flags[m] {
				if flagged && !math.IsNaN(parsed[name][row]) {
					col.MethodCounts[m]++
				}
			}
		}

		var values []any
		values, col.Count = applyAction(next.Values[name], parsed[name], votes, s.opts.OutlierAction)
		if col.Count > 0 && s.opts.OutlierAction != ActionFlag {
			if err := next.SetColumn(name, values); err != nil {
				addError(out, name, "outliers", err.Error())
				continue
			}
			next.Record(domain.Mutation{
				Stage:     s.Name(),
				Column:    name,
				Operation: "outliers_" + s.opts.OutlierAction,
				Detail:    fmt.Sprintf("bounds [%g, %g]", votes.lower, votes.upper),
				Rows:      col.Count,
			})
		}
		report.Columns = append(report.Columns, col)
	}
	out.Outliers = report

	profiler.Refresh(next)
	return next, finish(out), nil
}

// eligibleColumns returns the numeric, unprotected, non-boolean columns with
// at least one observed value.
func (s *OutlierHandling) eligibleColumns(ds *domain.Dataset) []string {
	var eligible []string
	for _, name := range ds.Columns {
		p := ds.Profiles[name]
		if p.Type != domain.TypeNumeric || p.Protected || p.Unit == domain.UnitBoolean || p.Observed() == 0 {
			continue
		}
		eligible = append(eligible, name)
	}
	return eligible
}

// forestFlags scores every row jointly over the eligible columns, missing
// cells taking the column median, and flags rows scoring strictly above the
// contamination quantile. It returns nil when there are too few rows.
func (s *OutlierHandling) forestFlags(ds *domain.Dataset, eligible []string, parsed map[string][]float64) []bool {
	rows := ds.Rows()
	if len(eligible) == 0 || rows < s.opts.IForestMinRows {
		return nil
	}

	data := make([][]float64, rows)
	for i := range data {
		data[i] = make([]float64, len(eligible))
	}
	for j, name := range eligible {
		col := parsed[name]
		var observed []float64
		for _, v := range col {
			if !math.IsNaN(v) {
				observed = append(observed, v)
			}
		}
		median := stats.Median(observed)
		for i, v := range col {
			if math.IsNaN(v) {
				v = median
			}
			data[i][j] = v
		}
	}

	forest := fitIsolationForest(data, s.opts.IForestTrees, s.opts.IForestSample, s.opts.Seed)
	scores := make([]float64, rows)
	for i, row := range data {
		scores[i] = forest.Score(row)
	}
	threshold := stats.Quantile(scores, 1-contamination)

	flags := make([]bool, rows)
	for i, score := range scores {
		flags[i] = score > threshold
	}
	return flags
}

// detect runs IQR and z-score on one column and adds the forest votes.
func detect(values []float64, forest []bool) *columnVotes {
	var observed []float64
	for _, v := range values {
		if !math.IsNaN(v) {
			observed = append(observed, v)
		}
	}

	votes := &columnVotes{flags: make(map[string][]bool)}
	if len(observed) > 0 {
		votes.lower, votes.upper = stats.IQRBounds(observed)
	}

	if len(observed) >= iqrMinObserved {
		flags := make([]bool, len(values))
		for i, v := range values {
			flags[i] = !math.IsNaN(v) && (v < votes.lower || v > votes.upper)
		}
		votes.add(MethodIQR, flags)
	}

	if len(observed) >= zScoreMinObserved {
		mean, std := stats.Mean(observed), stats.PopStd(observed)
		if std > 0 {
			flags := make([]bool, len(values))
			for i, v := range values {
				flags[i] = !math.IsNaN(v) && math.Abs(v-mean)/std > zScoreThreshold
			}
			votes.add(MethodZScore, flags)
		}
	}

	if forest != nil {
		votes.add(MethodIsolationForest, forest)
	}
	return votes
}

// applyAction returns a copy of values with the confirmed outliers clipped to
// the IQR bounds, set missing, or left alone, and the number confirmed.
func applyAction(values []any, parsed []float64, votes *columnVotes, action string) ([]any, int) {
	out := append([]any(nil), values...)
	count := 0
	for row, v := range parsed {
		if math.IsNaN(v) || !votes.confirmed(row) {
			continue
		}
		count++
		switch action {
		case ActionClip:
			out[row] = math.Min(math.Max(v, votes.lower), votes.upper)
		case ActionNull:
			out[row] = nil
		}
	}
	return out, count
}
