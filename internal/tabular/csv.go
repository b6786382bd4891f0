// Package tabular converts between CSV and datasets.
package tabular

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jaki95/dataset-cleaner/internal/domain"
)

// BOM is written before the header so spreadsheet tools detect UTF-8.
const BOM = "\ufeff"

var (
	ErrNoHeader     = errors.New("csv has no header row")
	ErrEmptyColumn  = errors.New("csv header has an empty column name")
	ErrDuplicateCol = errors.New("csv header has a duplicate column name")
)

// Read parses a CSV with a header row into a dataset. Empty cells are
// missing. A column whose cells all parse as plain numbers is read as
// float64; any other column keeps its strings.
func Read(r io.Reader) (*domain.Dataset, error) {
	br := bufio.NewReader(r)
	if prefix, err := br.Peek(len(BOM)); err == nil && string(prefix) == BOM {
		if _, err := br.Discard(len(BOM)); err != nil {
			return nil, err
		}
	}

	reader := csv.NewReader(br)
	reader.FieldsPerRecord = 0
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	columns := make([]string, len(header))
	seen := make(map[string]bool, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("%w at position %d", ErrEmptyColumn, i+1)
		}
		if seen[name] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateCol, name)
		}
		seen[name] = true
		columns[i] = name
	}

	raw := make([][]string, len(columns))
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row %d: %w", line, err)
		}
		for i, cell := range record {
			raw[i] = append(raw[i], cell)
		}
	}

	values := make(map[string][]any, len(columns))
	for i, name := range columns {
		values[name] = convert(raw[i])
	}
	return domain.NewDataset(columns, values)
}

func convert(cells []string) []any {
	out := make([]any, len(cells))
	numeric := true
	floats := make([]float64, len(cells))
	for i, cell := range cells {
		cell = strings.TrimSpace(cell)
		if cell == "" {
			continue
		}
		f, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			numeric = false
			break
		}
		floats[i] = f
	}

	for i, cell := range cells {
		switch {
		case strings.TrimSpace(cell) == "":
			out[i] = nil
		case numeric:
			out[i] = floats[i]
		default:
			out[i] = cell
		}
	}
	return out
}

// Write writes ds as CSV with a BOM and a header row.
func Write(w io.Writer, ds *domain.Dataset) error {
	if _, err := io.WriteString(w, BOM); err != nil {
		return err
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(ds.Columns); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	record := make([]string, len(ds.Columns))
	for row := 0; row < ds.Rows(); row++ {
		for i, name := range ds.Columns {
			record[i] = FormatValue(ds.Values[name][row])
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV row %d: %w", row+1, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// Encode returns ds as CSV bytes.
func Encode(ds *domain.Dataset) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, ds); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FormatValue renders one cell. Missing values are empty.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}
