package models

import (
	"fmt"
	"strings"

	"github.com/mhr-212/Healthcare-Data-Warehouse/pkg/errors"
)

// Record is one row of a Dataset. It is bound to the dataset schema, so
// column lookups by name never fail at access time for known columns.
type Record struct {
	schema *schema
	values []Value
}

type schema struct {
	columns []string
	index   map[string]int
}

// Get returns the value of column, and false if the column is not part of
// the schema.
func (r Record) Get(column string) (Value, bool) {
	i, ok := r.schema.index[column]
	if !ok {
		return Null(), false
	}
	return r.values[i], true
}

// Values returns a copy of the row's cells in schema order.
func (r Record) Values() []Value {
	out := make([]Value, len(r.values))
	copy(out, r.values)
	return out
}

// Map renders the record as column -> value.
func (r Record) Map() map[string]Value {
	out := make(map[string]Value, len(r.values))
	for i, c := range r.schema.columns {
		out[c] = r.values[i]
	}
	return out
}

// Dataset is an ordered, immutable sequence of records sharing one schema.
// Transformations never modify a Dataset; they build a new one.
type Dataset struct {
	schema *schema
	rows   [][]Value
}

// NewDataset validates the schema and row widths once, up front. Columns
// must be non-empty and unique; every row must have exactly one value per
// column. Rows are copied.
func NewDataset(columns []string, rows [][]Value) (*Dataset, error) {
	s, err := newSchema(columns)
	if err != nil {
		return nil, err
	}

	copied := make([][]Value, len(rows))
	for i, row := range rows {
		if len(row) != len(s.columns) {
			return nil, errors.NewInvalidInputError("row width does not match schema").
				WithDetails(fmt.Sprintf("row %d has %d values, schema has %d columns", i, len(row), len(s.columns))).
				WithContext("row", i)
		}
		r := make([]Value, len(row))
		copy(r, row)
		copied[i] = r
	}

	return &Dataset{schema: s, rows: copied}, nil
}

// NewDatasetFromMaps builds a dataset from column-keyed rows. Keys missing
// from a row become null; keys not in columns are rejected.
func NewDatasetFromMaps(columns []string, rows []map[string]interface{}) (*Dataset, error) {
	s, err := newSchema(columns)
	if err != nil {
		return nil, err
	}

	values := make([][]Value, len(rows))
	for i, row := range rows {
		r := make([]Value, len(s.columns))
		for key, raw := range row {
			idx, ok := s.index[key]
			if !ok {
				return nil, errors.NewInvalidInputError("unknown column in row").
					WithDetails(fmt.Sprintf("row %d has column %q not in schema", i, key))
			}
			v, err := FromAny(raw)
			if err != nil {
				return nil, errors.NewInvalidInputError("malformed cell").
					WithDetails(fmt.Sprintf("row %d column %q: %v", i, key, err))
			}
			r[idx] = v
		}
		values[i] = r
	}

	return &Dataset{schema: s, rows: values}, nil
}

func newSchema(columns []string) (*schema, error) {
	if len(columns) == 0 {
		return nil, errors.NewInvalidInputError("dataset schema has no columns")
	}

	s := &schema{
		columns: make([]string, len(columns)),
		index:   make(map[string]int, len(columns)),
	}
	for i, c := range columns {
		if strings.TrimSpace(c) == "" {
			return nil, errors.NewInvalidInputError("dataset column name is empty").WithContext("position", i)
		}
		if _, dup := s.index[c]; dup {
			return nil, errors.NewInvalidInputError("duplicate dataset column").WithDetails(c)
		}
		s.columns[i] = c
		s.index[c] = i
	}
	return s, nil
}

// Len returns the number of records.
func (d *Dataset) Len() int { return len(d.rows) }

// Columns returns a copy of the schema's column names.
func (d *Dataset) Columns() []string {
	out := make([]string, len(d.schema.columns))
	copy(out, d.schema.columns)
	return out
}

// HasColumn reports whether column is part of the schema.
func (d *Dataset) HasColumn(column string) bool {
	_, ok := d.schema.index[column]
	return ok
}

// ColumnIndex returns the position of column in the schema.
func (d *Dataset) ColumnIndex(column string) (int, bool) {
	i, ok := d.schema.index[column]
	return i, ok
}

// RequireColumns fails with an InvalidInputError naming the first column
// absent from the schema.
func (d *Dataset) RequireColumns(columns ...string) error {
	for _, c := range columns {
		if !d.HasColumn(c) {
			return errors.NewInvalidInputError("column not found in dataset").
				WithDetails(fmt.Sprintf("column %q is not one of %v", c, d.schema.columns)).
				WithContext("column", c)
		}
	}
	return nil
}

// Record returns the i-th record.
func (d *Dataset) Record(i int) Record {
	return Record{schema: d.schema, values: d.rows[i]}
}

// Value returns the cell at row i, column index col.
func (d *Dataset) Value(i, col int) Value {
	return d.rows[i][col]
}

// Filter returns a new dataset holding the rows for which keep returns true.
func (d *Dataset) Filter(keep func(i int) bool) *Dataset {
	rows := make([][]Value, 0, len(d.rows))
	for i, row := range d.rows {
		if keep(i) {
			rows = append(rows, row)
		}
	}
	return &Dataset{schema: d.schema, rows: rows}
}

// WithColumnValues returns a new dataset in which, for every row index
// present in replace, the cell of column col is replaced. Other rows share
// nothing mutable with d.
func (d *Dataset) WithColumnValues(col int, replace map[int]Value) *Dataset {
	rows := make([][]Value, len(d.rows))
	for i, row := range d.rows {
		if v, ok := replace[i]; ok {
			r := make([]Value, len(row))
			copy(r, row)
			r[col] = v
			rows[i] = r
			continue
		}
		rows[i] = row
	}
	return &Dataset{schema: d.schema, rows: rows}
}

// Rows returns a deep copy of the cell matrix.
func (d *Dataset) Rows() [][]Value {
	out := make([][]Value, len(d.rows))
	for i, row := range d.rows {
		r := make([]Value, len(row))
		copy(r, row)
		out[i] = r
	}
	return out
}
