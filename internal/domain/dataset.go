package domain

import (
	"fmt"
	"time"
)

// Dataset is the in-memory table a job cleans: ordered columns, their values,
// the latest profiles and an append-only log of everything applied to it.
//
// A value is nil when missing, otherwise a string, float64 or bool.
type Dataset struct {
	Columns   []string                 `json:"columns"`
	Values    map[string][]any         `json:"-"`
	Profiles  map[string]ColumnProfile `json:"profiles"`
	Mutations []Mutation               `json:"mutations"`
	Hints     *Hints                   `json:"hints,omitempty"`
}

// Mutation records one operation applied to the dataset.
type Mutation struct {
	Stage     string    `json:"stage"`
	Column    string    `json:"column,omitempty"`
	Operation string    `json:"operation"`
	Detail    string    `json:"detail,omitempty"`
	Rows      int       `json:"rows"`
	Timestamp time.Time `json:"timestamp"`
}

// NewDataset builds a dataset from a header and column-major values.
func NewDataset(columns []string, values map[string][]any) (*Dataset, error) {
	rows := -1
	seen := make(map[string]bool, len(columns))
	for _, name := range columns {
		if seen[name] {
			return nil, fmt.Errorf("duplicate column %q", name)
		}
		seen[name] = true

		col, ok := values[name]
		if !ok {
			return nil, fmt.Errorf("column %q has no values", name)
		}
		if rows >= 0 && len(col) != rows {
			return nil, fmt.Errorf("column %q has %d rows, expected %d", name, len(col), rows)
		}
		rows = len(col)
	}

	return &Dataset{
		Columns:  append([]string(nil), columns...),
		Values:   values,
		Profiles: make(map[string]ColumnProfile),
	}, nil
}

// Rows returns the number of rows in the dataset.
func (d *Dataset) Rows() int {
	if len(d.Columns) == 0 {
		return 0
	}
	return len(d.Values[d.Columns[0]])
}

// Column returns the values of the named column.
func (d *Dataset) Column(name string) ([]any, bool) {
	values, ok := d.Values[name]
	return values, ok
}

// HasColumn reports whether the dataset still contains the column.
func (d *Dataset) HasColumn(name string) bool {
	_, ok := d.Values[name]
	return ok
}

// SetColumn replaces the values of an existing column.
func (d *Dataset) SetColumn(name string, values []any) error {
	current, ok := d.Values[name]
	if !ok {
		return fmt.Errorf("unknown column %q", name)
	}
	if len(values) != len(current) {
		return fmt.Errorf("column %q: got %d values, expected %d", name, len(values), len(current))
	}
	d.Values[name] = values
	return nil
}

// Drop removes a column and its profile.
func (d *Dataset) Drop(name string) {
	if !d.HasColumn(name) {
		return
	}
	delete(d.Values, name)
	delete(d.Profiles, name)
	for i, col := range d.Columns {
		if col == name {
			d.Columns = append(d.Columns[:i:i], d.Columns[i+1:]...)
			break
		}
	}
}

// Record appends an entry to the mutation log.
func (d *Dataset) Record(m Mutation) {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	d.Mutations = append(d.Mutations, m)
}

// Clone returns a deep copy. Stages work on clones so that a failed stage
// never leaves a half-applied state behind.
func (d *Dataset) Clone() *Dataset {
	clone := &Dataset{
		Columns:   append([]string(nil), d.Columns...),
		Values:    make(map[string][]any, len(d.Values)),
		Profiles:  make(map[string]ColumnProfile, len(d.Profiles)),
		Mutations: append([]Mutation(nil), d.Mutations...),
		Hints:     d.Hints.Clone(),
	}
	for name, values := range d.Values {
		clone.Values[name] = append([]any(nil), values...)
	}
	for name, profile := range d.Profiles {
		clone.Profiles[name] = profile.Clone()
	}
	return clone
}

// Row returns the values of row i keyed by column name.
func (d *Dataset) Row(i int) map[string]any {
	row := make(map[string]any, len(d.Columns))
	for _, name := range d.Columns {
		row[name] = d.Values[name][i]
	}
	return row
}
