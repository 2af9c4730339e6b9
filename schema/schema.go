// Package schema describes relational tables to the write engines: ordered
// columns, primary-key membership, and the row shape that flows through them.
package schema

import (
	"errors"
	"fmt"
)

// ErrConfig reports caller misuse detected before any store I/O: malformed
// descriptors, key lookups against keyless tables, rows missing key values.
var ErrConfig = errors.New("invalid configuration")

// Column is one column of a table descriptor.
type Column struct {
	Name       string
	PrimaryKey bool
}

// Col returns a plain column.
func Col(name string) Column {
	return Column{Name: name}
}

// PK returns a primary-key column.
func PK(name string) Column {
	return Column{Name: name, PrimaryKey: true}
}

// Table is an immutable table descriptor. Column order is declaration order
// and is preserved by every operation that enumerates columns.
type Table struct {
	Name    string
	Columns []Column

	keyCols []string
	colSet  map[string]bool
}

// NewTable builds a descriptor and validates it: the table name and every
// column name must be non-empty, and column names must be unique.
func NewTable(name string, cols ...Column) (*Table, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: table name is empty", ErrConfig)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: table %q has no columns", ErrConfig, name)
	}

	t := &Table{
		Name:    name,
		Columns: make([]Column, len(cols)),
		colSet:  make(map[string]bool, len(cols)),
	}
	copy(t.Columns, cols)

	for _, col := range t.Columns {
		if col.Name == "" {
			return nil, fmt.Errorf("%w: table %q has a column with an empty name", ErrConfig, name)
		}
		if t.colSet[col.Name] {
			return nil, fmt.Errorf("%w: table %q declares column %q twice", ErrConfig, name, col.Name)
		}
		t.colSet[col.Name] = true
		if col.PrimaryKey {
			t.keyCols = append(t.keyCols, col.Name)
		}
	}

	return t, nil
}

// MustNewTable is NewTable panicking on error, for package-level declarations.
func MustNewTable(name string, cols ...Column) *Table {
	t, err := NewTable(name, cols...)
	if err != nil {
		panic(err)
	}
	return t
}

// ColumnNames returns every column name in declaration order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		names[i] = col.Name
	}
	return names
}

// KeyColumns returns the primary-key column names in declaration order.
// The returned slice is shared; callers must not modify it.
func (t *Table) KeyColumns() []string {
	return t.keyCols
}

// HasColumn reports whether the table declares the named column.
func (t *Table) HasColumn(name string) bool {
	return t.colSet[name]
}

// IsKey reports whether the named column is part of the primary key.
func (t *Table) IsKey(name string) bool {
	for _, k := range t.keyCols {
		if k == name {
			return true
		}
	}
	return false
}

// KeyOf extracts the primary-key values of a row, one per key column in
// declaration order. A keyless table or a row missing a key value is a
// configuration error; no store is involved.
func (t *Table) KeyOf(r Row) ([]any, error) {
	if len(t.keyCols) == 0 {
		return nil, fmt.Errorf("%w: table %q has no primary-key columns", ErrConfig, t.Name)
	}
	if missing := t.MissingKey(r); len(missing) > 0 {
		return nil, fmt.Errorf("%w: row is missing key columns %v for table %q", ErrConfig, missing, t.Name)
	}
	key := make([]any, len(t.keyCols))
	for i, col := range t.keyCols {
		key[i] = r[col]
	}
	return key, nil
}

// MissingKey returns the key columns the row does not carry, in declaration
// order. A present column with a nil value counts as carried.
func (t *Table) MissingKey(r Row) []string {
	var missing []string
	for _, col := range t.keyCols {
		if _, ok := r[col]; !ok {
			missing = append(missing, col)
		}
	}
	return missing
}

// SingleKeyColumn returns the primary-key column of a single-key table.
// Tables with zero or multiple key columns fail eagerly.
func (t *Table) SingleKeyColumn() (string, error) {
	if len(t.keyCols) != 1 {
		return "", fmt.Errorf("%w: table %q has %d primary-key columns, single-key access needs exactly one",
			ErrConfig, t.Name, len(t.keyCols))
	}
	return t.keyCols[0], nil
}

// SingleKeyOf extracts the key value of a row against a single-key table.
func (t *Table) SingleKeyOf(r Row) (any, error) {
	col, err := t.SingleKeyColumn()
	if err != nil {
		return nil, err
	}
	v, ok := r[col]
	if !ok {
		return nil, fmt.Errorf("%w: row is missing key column %q for table %q", ErrConfig, col, t.Name)
	}
	return v, nil
}

// Row is one item of a batch: column name to value. A nil value means NULL;
// an absent column is simply not part of the item.
type Row map[string]any

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Merge copies values from other into a copy of r and returns it. With
// omitNils set, nil values in other are ignored so they cannot erase
// existing values.
func (r Row) Merge(other Row, omitNils bool) Row {
	out := r.Clone()
	for k, v := range other {
		if omitNils && v == nil {
			continue
		}
		out[k] = v
	}
	return out
}
