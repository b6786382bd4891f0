package knowledge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/jaki95/dataset-cleaner/internal/domain"
)

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

type response struct {
	Domain  string                    `json:"domain"`
	Columns map[string]columnResponse `json:"columns"`
}

type columnResponse struct {
	Type              string   `json:"type"`
	Unit              string   `json:"unit"`
	Remove            bool     `json:"remove"`
	Reason            string   `json:"reason"`
	NoPredictiveValue bool     `json:"no_predictive_value"`
	Transformations   []string `json:"transformations"`
}

// ExtractJSON returns the JSON object carried by raw. The object may be the
// whole payload, sit inside a fenced code block, or be embedded in prose.
func ExtractJSON(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", fmt.Errorf("%w: empty payload", ErrMalformedResponse)
	}
	if json.Valid([]byte(text)) {
		return text, nil
	}
	for _, m := range fencedJSON.FindAllStringSubmatch(text, -1) {
		if json.Valid([]byte(m[1])) {
			return m[1], nil
		}
	}
	for start := strings.IndexByte(text, '{'); start >= 0; {
		if obj, ok := balancedObject(text[start:]); ok && json.Valid([]byte(obj)) {
			return obj, nil
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", fmt.Errorf("%w: no JSON object found", ErrMalformedResponse)
}

// balancedObject returns the prefix of s up to the brace closing s[0].
func balancedObject(s string) (string, bool) {
	depth := 0
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[:i+1], true
			}
		}
	}
	return "", false
}

// ParseResponse extracts and strictly validates a service payload. Unknown
// fields, unknown columns and values outside the enums are rejected.
func ParseResponse(raw []byte, columns []string) (*domain.Hints, error) {
	text, err := ExtractJSON(string(raw))
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.DisallowUnknownFields()
	var resp response
	if err := dec.Decode(&resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data", ErrMalformedResponse)
	}

	return validate(resp, columns)
}

func validate(resp response, columns []string) (*domain.Hints, error) {
	known := make(map[string]bool, len(columns))
	for _, c := range columns {
		known[c] = true
	}

	label := strings.TrimSpace(resp.Domain)
	if label == "" {
		return nil, fmt.Errorf("%w: missing domain", ErrMalformedResponse)
	}

	hints := &domain.Hints{
		Domain:  strings.ToLower(label),
		Columns: make(map[string]domain.ColumnHint, len(resp.Columns)),
	}
	for name, col := range resp.Columns {
		if !known[name] {
			return nil, fmt.Errorf("%w: unknown column %q", ErrMalformedResponse, name)
		}
		hint := domain.ColumnHint{
			Type:              domain.ColumnType(col.Type),
			Unit:              domain.Unit(col.Unit),
			Remove:            col.Remove,
			Reason:            col.Reason,
			NoPredictiveValue: col.NoPredictiveValue,
		}
		if col.Type != "" && !hint.Type.Valid() {
			return nil, fmt.Errorf("%w: column %q: invalid type %q", ErrMalformedResponse, name, col.Type)
		}
		if col.Unit != "" && !hint.Unit.Valid() {
			return nil, fmt.Errorf("%w: column %q: invalid unit %q", ErrMalformedResponse, name, col.Unit)
		}
		for _, t := range col.Transformations {
			if !domain.KnownTransformation(t) {
				return nil, fmt.Errorf("%w: column %q: unknown transformation %q", ErrMalformedResponse, name, t)
			}
			hint.Transformations = append(hint.Transformations, t)
		}
		hints.Columns[name] = hint
	}
	return hints, nil
}
