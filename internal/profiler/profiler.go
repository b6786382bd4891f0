// Package profiler computes per-column statistics: inferred type, unit,
// missingness, cardinality and the protected flag.
package profiler

import (
	"strings"

	"github.com/jaki95/dataset-cleaner/internal/domain"
)

const (
	typeThreshold = 0.9
	unitThreshold = 0.5
	unitSample    = 100
	sampleSize    = 5
	categorical   = 0.5
)

var (
	yearNameHints     = []string{"year", "yr", "date"}
	currencyNameHints = []string{"price", "cost", "amount", "salary", "revenue", "fee"}
	percentNameHints  = []string{"percent", "pct"}
)

// Profile computes the profile of every column of ds. It does not modify ds.
//
// Accepted hints stored on the dataset are applied after rule inference; they
// never touch a protected column. A column that was protected in the
// dataset's previous profiles stays protected.
func Profile(ds *domain.Dataset) map[string]domain.ColumnProfile {
	profiles := make(map[string]domain.ColumnProfile, len(ds.Columns))
	for _, name := range ds.Columns {
		p := Column(name, ds.Values[name])
		if prev, ok := ds.Profiles[name]; ok && prev.Protected && !p.Protected {
			p.Type = domain.TypeDatetime
			p.Unit = domain.UnitNone
			p.Protected = true
		}
		if hint, ok := ds.Hints.Column(name); ok {
			p = applyHint(p, hint)
		}
		profiles[name] = p
	}
	return profiles
}

// Refresh recomputes the profiles of ds in place.
func Refresh(ds *domain.Dataset) {
	ds.Profiles = Profile(ds)
}

// Column profiles a single column by rules alone.
func Column(name string, values []any) domain.ColumnProfile {
	p := domain.ColumnProfile{
		Name: name,
		Rows: len(values),
		Unit: domain.UnitNone,
	}

	observed := make([]any, 0, len(values))
	distinct := make(map[string]struct{})
	for _, v := range values {
		if IsMissing(v) {
			p.Missing++
			continue
		}
		observed = append(observed, v)
		key := ToString(v)
		if _, seen := distinct[key]; !seen {
			distinct[key] = struct{}{}
			if len(p.Samples) < sampleSize {
				p.Samples = append(p.Samples, key)
			}
		}
	}
	p.Distinct = len(distinct)
	if p.Rows > 0 {
		p.MissingFraction = float64(p.Missing) / float64(p.Rows)
	}
	if len(observed) == 0 {
		p.Type = domain.TypeNumeric
		return p
	}
	p.DistinctRatio = float64(p.Distinct) / float64(len(observed))

	p.Type = inferType(name, observed, p.DistinctRatio)
	if p.Type == domain.TypeDatetime {
		p.Protected = true
		return p
	}
	p.Unit = detectUnit(name, observed, p.Distinct)
	return p
}

func inferType(name string, observed []any, distinctRatio float64) domain.ColumnType {
	yearNamed := nameContains(name, yearNameHints)
	var dates, numbers int
	for _, v := range observed {
		if isDateLike(v, yearNamed) {
			dates++
		}
		if _, ok := ParseNumber(v); ok {
			numbers++
		}
	}
	n := float64(len(observed))
	switch {
	case float64(dates)/n > typeThreshold:
		return domain.TypeDatetime
	case float64(numbers)/n > typeThreshold:
		return domain.TypeNumeric
	case distinctRatio < categorical:
		return domain.TypeCategorical
	default:
		return domain.TypeText
	}
}

func isDateLike(v any, yearNamed bool) bool {
	if yearNamed {
		if y, ok := ParseYear(v); ok && PlausibleYear(y) {
			return true
		}
	}
	s, ok := v.(string)
	if !ok {
		return false
	}
	if _, ok := ParseYearRange(s); ok {
		return true
	}
	_, ok = ParseDate(s)
	return ok
}

func detectUnit(name string, observed []any, distinct int) domain.Unit {
	sample := observed
	if len(sample) > unitSample {
		sample = sample[:unitSample]
	}

	var currency, percent, numeric, booleans int
	tokens := make(map[string]struct{})
	for _, v := range sample {
		if HasCurrencySymbol(v) {
			currency++
		}
		if HasPercentSign(v) {
			percent++
		}
		if _, ok := ParseNumber(v); ok {
			numeric++
		}
		if _, ok := ParseBool(v); ok {
			booleans++
			tokens[strings.ToLower(strings.TrimSpace(ToString(v)))] = struct{}{}
		}
	}

	n := float64(len(sample))
	mostlyNumeric := float64(numeric)/n > unitThreshold
	switch {
	case float64(currency)/n > unitThreshold:
		return domain.UnitCurrency
	case mostlyNumeric && nameContains(name, currencyNameHints):
		return domain.UnitCurrency
	case float64(percent)/n > unitThreshold:
		return domain.UnitPercentage
	case mostlyNumeric && nameContains(name, percentNameHints):
		return domain.UnitPercentage
	case booleans == len(sample) && len(tokens) <= 2 && distinct <= 2:
		return domain.UnitBoolean
	}
	return domain.UnitNone
}

func applyHint(p domain.ColumnProfile, hint domain.ColumnHint) domain.ColumnProfile {
	if p.Protected {
		return p
	}
	if hint.Type.Valid() {
		p.Type = hint.Type
		if p.Type == domain.TypeDatetime {
			p.Protected = true
			p.Unit = domain.UnitNone
			return p
		}
	}
	if hint.Unit.Valid() {
		p.Unit = hint.Unit
	}
	return p
}

func nameContains(name string, hints []string) bool {
	lower := strings.ToLower(name)
	for _, h := range hints {
		if strings.Contains(lower, h) {
			return true
		}
	}
	return false
}
