package profiler

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Plausible year range for year and date values.
const (
	MinYear = 1900
	MaxYear = 2100
)

// DateLayout is the canonical representation of normalized dates.
const DateLayout = "2006-01-02"

const currencySymbols = "$€£¥₹"

var missingTokens = map[string]bool{
	"":     true,
	"na":   true,
	"n/a":  true,
	"nan":  true,
	"null": true,
	"none": true,
	"-":    true,
}

var boolTokens = map[string]bool{
	"yes":   true,
	"no":    false,
	"true":  true,
	"false": false,
	"1":     true,
	"0":     false,
	"y":     true,
	"n":     false,
	"t":     true,
	"f":     false,
}

var dateLayouts = []string{
	DateLayout,
	"2006/01/02",
	"01/02/2006",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"02-Jan-2006",
	"Jan 2, 2006",
	"January 2, 2006",
}

var (
	yearPattern      = regexp.MustCompile(`^\d{4}$`)
	yearRangePattern = regexp.MustCompile(`^(\d{4})\s*[-–/]\s*(\d{4})$`)
	numberCleaner    = strings.NewReplacer(
		"$", "", "€", "", "£", "", "¥", "", "₹", "",
		",", "", "%", "", " ", "", "\u00a0", "",
	)
)

// IsMissing reports whether v counts as a missing value.
func IsMissing(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case float64:
		return math.IsNaN(x)
	case string:
		return missingTokens[strings.ToLower(strings.TrimSpace(x))]
	}
	return false
}

// ToString renders a cell the way it would be written to a CSV file.
func ToString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	}
	return fmt.Sprint(v)
}

// ParseNumber parses v as a number after stripping currency symbols,
// thousands separators, percent signs and whitespace.
func ParseNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0, false
		}
		return x, true
	case int:
		return float64(x), true
	case string:
		if IsMissing(x) {
			return 0, false
		}
		cleaned := numberCleaner.Replace(strings.TrimSpace(x))
		if cleaned == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(cleaned, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// HasCurrencySymbol reports whether the string form of v carries a currency
// symbol.
func HasCurrencySymbol(v any) bool {
	s, ok := v.(string)
	return ok && strings.ContainsAny(s, currencySymbols)
}

// HasPercentSign reports whether the string form of v carries a percent sign.
func HasPercentSign(v any) bool {
	s, ok := v.(string)
	return ok && (strings.Contains(s, "%") || strings.Contains(strings.ToLower(s), "percent"))
}

// ParseBool maps a canonical boolean token to its value.
func ParseBool(v any) (bool, bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	case float64:
		switch x {
		case 1:
			return true, true
		case 0:
			return false, true
		}
		return false, false
	case string:
		b, ok := boolTokens[strings.ToLower(strings.TrimSpace(x))]
		return b, ok
	}
	return false, false
}

// ParseDate parses s with any of the supported date layouts.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseYearRange parses "2019-2020" style ranges and returns the start year.
func ParseYearRange(s string) (int, bool) {
	m := yearRangePattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, false
	}
	start, _ := strconv.Atoi(m[1])
	return start, true
}

// ParseYear parses a bare four-digit year, as a string or a whole float.
func ParseYear(v any) (int, bool) {
	switch x := v.(type) {
	case float64:
		if x != math.Trunc(x) || x < 1000 || x > 9999 {
			return 0, false
		}
		return int(x), true
	case string:
		s := strings.TrimSpace(x)
		if !yearPattern.MatchString(s) {
			return 0, false
		}
		y, _ := strconv.Atoi(s)
		return y, true
	}
	return 0, false
}

// PlausibleYear reports whether y lies within [MinYear, MaxYear].
func PlausibleYear(y int) bool {
	return y >= MinYear && y <= MaxYear
}
