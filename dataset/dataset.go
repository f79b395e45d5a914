// Package dataset holds the immutable in-memory table that split rules are
// evaluated against, together with the loaders that build it from uploaded
// CSV and XLSX files.
package dataset

import (
	"fmt"
	"path/filepath"
	"strings"
)

// DefaultSummaryLimit caps the distinct values reported per column
const DefaultSummaryLimit = 50

// DefaultExt is used when a dataset's source name carries no extension
const DefaultExt = ".xlsx"

// Row holds one cell per dataset column, in column order.
// Rows returned by a Dataset are shared and must not be modified.
type Row []Cell

// Dataset is an ordered set of uniquely named columns and ordered rows.
// A Dataset is never mutated after New returns, so it is safe to read from
// many goroutines at once.
type Dataset struct {
	name    string
	ext     string
	columns []string
	index   map[string]int
	rows    []Row
}

// New builds a Dataset. Every row must have exactly len(columns) cells and
// column names must be unique. The column and row slices are copied; the
// cells of each row are taken over by the Dataset and must not be modified.
func New(name string, columns []string, rows []Row) (*Dataset, error) {
	index := make(map[string]int, len(columns))
	for i, col := range columns {
		if _, exists := index[col]; exists {
			return nil, fmt.Errorf("duplicate column %q", col)
		}
		index[col] = i
	}

	for i, row := range rows {
		if len(row) != len(columns) {
			return nil, fmt.Errorf("row %d has %d cells, expected %d", i, len(row), len(columns))
		}
	}

	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		ext = DefaultExt
	}

	cols := make([]string, len(columns))
	copy(cols, columns)
	rs := make([]Row, len(rows))
	copy(rs, rows)

	return &Dataset{
		name:    name,
		ext:     ext,
		columns: cols,
		index:   index,
		rows:    rs,
	}, nil
}

// Name returns the source name the dataset was loaded from
func (d *Dataset) Name() string {
	return d.name
}

// Ext returns the lower-cased file extension (with dot) of the source
func (d *Dataset) Ext() string {
	return d.ext
}

// Columns returns the column names in order
func (d *Dataset) Columns() []string {
	cols := make([]string, len(d.columns))
	copy(cols, d.columns)
	return cols
}

// ColumnIndex returns the position of a column
func (d *Dataset) ColumnIndex(column string) (int, bool) {
	i, ok := d.index[column]
	return i, ok
}

// Rows returns the rows in source order
func (d *Dataset) Rows() []Row {
	rows := make([]Row, len(d.rows))
	copy(rows, d.rows)
	return rows
}

// Row returns the i-th row
func (d *Dataset) Row(i int) Row {
	return d.rows[i]
}

// Len returns the number of rows
func (d *Dataset) Len() int {
	return len(d.rows)
}

// ColumnSummary returns up to limit distinct non-empty values of column in
// first-seen order, stringified the same way rules compare them.
// A limit <= 0 uses DefaultSummaryLimit. Unknown columns yield nil.
func (d *Dataset) ColumnSummary(column string, limit int) []string {
	i, ok := d.index[column]
	if !ok {
		return nil
	}
	if limit <= 0 {
		limit = DefaultSummaryLimit
	}

	seen := make(map[string]struct{})
	values := []string{}
	for _, row := range d.rows {
		cell := row[i]
		if cell.IsEmpty() {
			continue
		}
		s := cell.String()
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		values = append(values, s)
		if len(values) == limit {
			break
		}
	}
	return values
}

// Summary is the column overview handed to rule-building clients
type Summary struct {
	Columns      []string            `json:"columns"`
	ColumnValues map[string][]string `json:"column_values"`
	TotalRows    int                 `json:"total_rows"`
}

// Summary builds the column overview with limit values per column
func (d *Dataset) Summary(limit int) Summary {
	values := make(map[string][]string, len(d.columns))
	for _, col := range d.columns {
		values[col] = d.ColumnSummary(col, limit)
	}
	return Summary{
		Columns:      d.Columns(),
		ColumnValues: values,
		TotalRows:    len(d.rows),
	}
}
