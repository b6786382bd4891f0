package domain

// ColumnType is the inferred semantic type of a column.
type ColumnType string

const (
	TypeNumeric     ColumnType = "numeric"
	TypeCategorical ColumnType = "categorical"
	TypeDatetime    ColumnType = "datetime"
	TypeText        ColumnType = "text"
)

// Valid reports whether t is one of the known column types.
func (t ColumnType) Valid() bool {
	switch t {
	case TypeNumeric, TypeCategorical, TypeDatetime, TypeText:
		return true
	}
	return false
}

// Unit is the detected unit of a column's values.
type Unit string

const (
	UnitNone       Unit = "none"
	UnitCurrency   Unit = "currency"
	UnitPercentage Unit = "percentage"
	UnitBoolean    Unit = "boolean"
)

// Valid reports whether u is one of the known units.
func (u Unit) Valid() bool {
	switch u {
	case UnitNone, UnitCurrency, UnitPercentage, UnitBoolean:
		return true
	}
	return false
}

// ColumnProfile holds the statistics of one column at a point in time.
type ColumnProfile struct {
	Name            string     `json:"name"`
	Type            ColumnType `json:"type"`
	Unit            Unit       `json:"unit"`
	Rows            int        `json:"rows"`
	Missing         int        `json:"missing"`
	Distinct        int        `json:"distinct"`
	MissingFraction float64    `json:"missing_fraction"`
	DistinctRatio   float64    `json:"distinct_ratio"`
	Protected       bool       `json:"protected"`
	Samples         []string   `json:"samples,omitempty"`
}

// Observed returns the number of non-missing values.
func (p ColumnProfile) Observed() int {
	return p.Rows - p.Missing
}

// Clone returns a copy that shares no slices with p.
func (p ColumnProfile) Clone() ColumnProfile {
	p.Samples = append([]string(nil), p.Samples...)
	return p
}
