// Package rowset is the in-memory result of an aggregation: one row per
// geoid with one nullable integer per variable column.
package rowset

import (
	"sort"
	"strconv"

	"github.com/kyleking/d3-pipeline/internal/errors"
)

const (
	// GeoIDColumn is the identifier column that leads every output table
	GeoIDColumn = "geoid"
	// MOESuffix is appended to a column name for its margin-of-error column
	MOESuffix = "_moe"
)

// Value is one cell. Valid=false marks a suppressed (or placeholder) cell,
// which is distinct from a numeric zero.
type Value struct {
	Int   int64
	Valid bool
}

// Int wraps a count
func Int(n int64) Value {
	return Value{Int: n, Valid: true}
}

// Null is the suppressed marker
func Null() Value {
	return Value{}
}

// String renders the cell, using empty for null
func (v Value) String() string {
	if !v.Valid {
		return ""
	}

	return strconv.FormatInt(v.Int, 10)
}

// Row holds one geoid's values aligned with RowSet.Columns
type Row struct {
	GeoID  string
	Values []Value
}

// RowSet is an ordered set of rows sharing a column list. The geoid column
// is implicit and not part of Columns.
type RowSet struct {
	Columns []string
	Rows    []Row
}

// New creates an empty RowSet with the given variable columns
func New(columns []string) *RowSet {
	cols := make([]string, len(columns))
	copy(cols, columns)

	return &RowSet{Columns: cols}
}

// Append adds a row, checking it matches the column count
func (rs *RowSet) Append(geoid string, values []Value) error {
	if len(values) != len(rs.Columns) {
		return errors.Newf(errors.ErrTypeValidation,
			"row %s has %d values, expected %d", geoid, len(values), len(rs.Columns))
	}

	rs.Rows = append(rs.Rows, Row{GeoID: geoid, Values: values})

	return nil
}

// Len returns the number of rows
func (rs *RowSet) Len() int {
	return len(rs.Rows)
}

// Header returns the full column list including geoid
func (rs *RowSet) Header() []string {
	return append([]string{GeoIDColumn}, rs.Columns...)
}

// ColumnIndex returns the position of a variable column, or -1
func (rs *RowSet) ColumnIndex(name string) int {
	for i, c := range rs.Columns {
		if c == name {
			return i
		}
	}

	return -1
}

// Clone deep-copies the RowSet
func (rs *RowSet) Clone() *RowSet {
	out := New(rs.Columns)
	out.Rows = make([]Row, len(rs.Rows))

	for i, row := range rs.Rows {
		out.Rows[i] = row.Clone()
	}

	return out
}

// Clone deep-copies the row
func (r Row) Clone() Row {
	values := make([]Value, len(r.Values))
	copy(values, r.Values)

	return Row{GeoID: r.GeoID, Values: values}
}

// GeoIDs returns the identifiers in row order
func (rs *RowSet) GeoIDs() []string {
	ids := make([]string, len(rs.Rows))
	for i, row := range rs.Rows {
		ids[i] = row.GeoID
	}

	return ids
}

// WithMOE returns the placeholder margin-of-error companion: every column
// plus a null <column>_moe column, sorted alphabetically after geoid.
func (rs *RowSet) WithMOE() *RowSet {
	type source struct {
		index int
		moe   bool
	}

	sources := make(map[string]source, len(rs.Columns)*2)
	columns := make([]string, 0, len(rs.Columns)*2)

	for i, c := range rs.Columns {
		sources[c] = source{index: i}
		sources[c+MOESuffix] = source{index: i, moe: true}
		columns = append(columns, c, c+MOESuffix)
	}

	sort.Strings(columns)

	out := New(columns)
	out.Rows = make([]Row, len(rs.Rows))

	for r, row := range rs.Rows {
		values := make([]Value, len(columns))

		for i, c := range columns {
			src := sources[c]
			if !src.moe {
				values[i] = row.Values[src.index]
			}
		}

		out.Rows[r] = Row{GeoID: row.GeoID, Values: values}
	}

	return out
}
