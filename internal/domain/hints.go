package domain

// Transformation names understood by the transformation stage.
const (
	TransformCurrency   = "clean_currency"
	TransformDate       = "clean_date"
	TransformPercentage = "clean_percentage"
	TransformBoolean    = "clean_boolean"
	TransformText       = "clean_text"
)

// KnownTransformation reports whether name is a transformation the pipeline
// can apply.
func KnownTransformation(name string) bool {
	switch name {
	case TransformCurrency, TransformDate, TransformPercentage, TransformBoolean, TransformText:
		return true
	}
	return false
}

// Hints are the accepted suggestions of the domain knowledge service.
type Hints struct {
	Domain  string                `json:"domain"`
	Columns map[string]ColumnHint `json:"columns,omitempty"`
}

// ColumnHint is the per-column part of Hints. Empty Type or Unit means no
// override.
type ColumnHint struct {
	Type              ColumnType `json:"type,omitempty"`
	Unit              Unit       `json:"unit,omitempty"`
	Remove            bool       `json:"remove,omitempty"`
	Reason            string     `json:"reason,omitempty"`
	NoPredictiveValue bool       `json:"no_predictive_value,omitempty"`
	Transformations   []string   `json:"transformations,omitempty"`
}

// Column returns the hint for the named column, if any.
func (h *Hints) Column(name string) (ColumnHint, bool) {
	if h == nil {
		return ColumnHint{}, false
	}
	hint, ok := h.Columns[name]
	return hint, ok
}

// Suggests reports whether the service suggested transformation t for column.
func (h *Hints) Suggests(column, t string) bool {
	hint, ok := h.Column(column)
	if !ok {
		return false
	}
	for _, s := range hint.Transformations {
		if s == t {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of h.
func (h *Hints) Clone() *Hints {
	if h == nil {
		return nil
	}
	clone := &Hints{Domain: h.Domain, Columns: make(map[string]ColumnHint, len(h.Columns))}
	for name, hint := range h.Columns {
		hint.Transformations = append([]string(nil), hint.Transformations...)
		clone.Columns[name] = hint
	}
	return clone
}
