package stage

import (
	"fmt"
	"math"
	"strings"

	"github.com/jaki95/dataset-cleaner/internal/domain"
	"github.com/jaki95/dataset-cleaner/internal/profiler"
)

// transformResult summarises one column transformation. problems are values
// the transformation could not handle and left unchanged.
type transformResult struct {
	affected     int
	newlyMissing int
	problems     []string
}

// transformFunc rewrites a copy of a column.
type transformFunc func(values []any) ([]any, transformResult)

// transformOrder is the fixed order transformations run in.
var transformOrder = []string{
	domain.TransformCurrency,
	domain.TransformDate,
	domain.TransformPercentage,
	domain.TransformBoolean,
	domain.TransformText,
}

var transforms = map[string]transformFunc{
	domain.TransformCurrency:   cleanCurrency,
	domain.TransformDate:       cleanDate,
	domain.TransformPercentage: cleanPercentage,
	domain.TransformBoolean:    cleanBoolean,
	domain.TransformText:       cleanText,
}

// applicable returns the transformations to run on a column, in order.
func applicable(p domain.ColumnProfile, hints *domain.Hints) []string {
	var names []string
	for _, t := range transformOrder {
		suggested := hints.Suggests(p.Name, t)
		var use bool
		switch t {
		case domain.TransformCurrency:
			use = p.Unit == domain.UnitCurrency || suggested
		case domain.TransformDate:
			use = p.Type == domain.TypeDatetime || suggested
		case domain.TransformPercentage:
			use = p.Unit == domain.UnitPercentage || suggested
		case domain.TransformBoolean:
			use = p.Unit == domain.UnitBoolean || suggested
		case domain.TransformText:
			use = ((p.Type == domain.TypeText || p.Type == domain.TypeCategorical) && p.Unit == domain.UnitNone) || suggested
		}
		if p.Protected && t != domain.TransformDate {
			use = false
		}
		if use {
			names = append(names, t)
		}
	}
	return names
}

// cleanCurrency parses every value as a number. Values that cannot be parsed
// become missing.
func cleanCurrency(values []any) ([]any, transformResult) {
	out := make([]any, len(values))
	var res transformResult
	for i, v := range values {
		if profiler.IsMissing(v) {
			out[i] = nil
			continue
		}
		if f, ok := profiler.ParseNumber(v); ok {
			out[i] = f
		} else {
			out[i] = nil
			res.newlyMissing++
		}
		if v != out[i] {
			res.affected++
		}
	}
	return out, res
}

// cleanDate reduces years and year ranges to a year number and dates to
// DateLayout. Implausible years become missing.
func cleanDate(values []any) ([]any, transformResult) {
	out := make([]any, len(values))
	var res transformResult
	for i, v := range values {
		out[i] = v
		if profiler.IsMissing(v) {
			continue
		}
		year, isYear := profiler.ParseYear(v)
		if !isYear {
			if s, ok := v.(string); ok {
				year, isYear = profiler.ParseYearRange(s)
			}
		}
		switch {
		case isYear && profiler.PlausibleYear(year):
			out[i] = float64(year)
		case isYear:
			out[i] = nil
			res.newlyMissing++
		default:
			s, ok := v.(string)
			if !ok {
				res.problems = append(res.problems, profiler.ToString(v))
				continue
			}
			t, ok := profiler.ParseDate(s)
			switch {
			case !ok:
				res.problems = append(res.problems, s)
			case profiler.PlausibleYear(t.Year()):
				out[i] = t.Format(profiler.DateLayout)
			default:
				out[i] = nil
				res.newlyMissing++
			}
		}
		if v != out[i] {
			res.affected++
		}
	}
	return out, res
}

// cleanPercentage parses values and divides them by 100 when they read as
// whole percentages: all within [0, 100] and either written with a percent
// sign or above 1.
func cleanPercentage(values []any) ([]any, transformResult) {
	out := make([]any, len(values))
	parsed := make([]float64, len(values))
	var res transformResult
	inRange, marked := true, false
	maxValue := math.Inf(-1)

	for i, v := range values {
		out[i] = v
		parsed[i] = math.NaN()
		if profiler.IsMissing(v) {
			continue
		}
		if profiler.HasPercentSign(v) {
			marked = true
		}
		f, ok := profiler.ParseNumber(stripPercentWord(v))
		if !ok {
			res.problems = append(res.problems, profiler.ToString(v))
			continue
		}
		parsed[i] = f
		if f < 0 || f > 100 {
			inRange = false
		}
		maxValue = math.Max(maxValue, f)
	}

	divide := inRange && (marked || maxValue > 1)
	for i, f := range parsed {
		if math.IsNaN(f) {
			continue
		}
		if divide {
			f /= 100
		}
		out[i] = f
		if values[i] != out[i] {
			res.affected++
		}
	}
	return out, res
}

func stripPercentWord(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	lower := strings.ToLower(s)
	return strings.ReplaceAll(lower, "percent", "")
}

// cleanBoolean maps recognised tokens to true or false.
func cleanBoolean(values []any) ([]any, transformResult) {
	out := make([]any, len(values))
	var res transformResult
	for i, v := range values {
		out[i] = v
		if profiler.IsMissing(v) {
			continue
		}
		b, ok := profiler.ParseBool(v)
		if !ok {
			res.problems = append(res.problems, profiler.ToString(v))
			continue
		}
		out[i] = b
		if v != out[i] {
			res.affected++
		}
	}
	return out, res
}

// cleanText trims, lowercases and collapses whitespace in string values.
func cleanText(values []any) ([]any, transformResult) {
	out := make([]any, len(values))
	var res transformResult
	for i, v := range values {
		out[i] = v
		s, ok := v.(string)
		if !ok || profiler.IsMissing(v) {
			continue
		}
		out[i] = strings.Join(strings.Fields(strings.ToLower(s)), " ")
		if v != out[i] {
			res.affected++
		}
	}
	return out, res
}

// runTransform applies one transformation to a copy of values. A panic is
// reported as an error and nothing is committed.
func runTransform(name string, values []any) (out []any, res transformResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("%s panicked: %v", name, r)
		}
	}()
	fn, ok := transforms[name]
	if !ok {
		return nil, transformResult{}, fmt.Errorf("unknown transformation %q", name)
	}
	out, res = fn(append([]any(nil), values...))
	return out, res, nil
}
