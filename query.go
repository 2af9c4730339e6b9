package smartbatch

import (
	"context"
	"fmt"

	"github.com/quartzdata/smartbatch/schema"
)

// Count returns the number of rows in the table.
func (w *Writer) Count(ctx context.Context, h Handle, table *schema.Table) (int64, error) {
	if table == nil {
		return 0, fmt.Errorf("%w: nil table descriptor", ErrConfiguration)
	}

	sess, owns, err := h.lease(ctx)
	if err != nil {
		return 0, err
	}
	defer w.release(ctx, sess, owns)

	n, err := sess.CountRows(ctx, table)
	if err != nil {
		return 0, fmt.Errorf("count rows in %q: %w", table.Name, err)
	}
	return n, nil
}

// FindByKey fetches the row with the given primary-key values, one per key
// column in declaration order. A key arity mismatch is a configuration
// error before any I/O; a miss returns ErrNotFound.
func (w *Writer) FindByKey(ctx context.Context, h Handle, table *schema.Table, key ...any) (schema.Row, error) {
	if table == nil {
		return nil, fmt.Errorf("%w: nil table descriptor", ErrConfiguration)
	}
	kc := table.KeyColumns()
	if len(kc) == 0 {
		return nil, fmt.Errorf("%w: table %q has no primary-key columns", ErrConfiguration, table.Name)
	}
	if len(key) != len(kc) {
		return nil, fmt.Errorf("%w: table %q needs %d key values, got %d",
			ErrConfiguration, table.Name, len(kc), len(key))
	}

	sess, owns, err := h.lease(ctx)
	if err != nil {
		return nil, err
	}
	defer w.release(ctx, sess, owns)

	row, err := sess.GetRowByKey(ctx, table, key)
	if err != nil {
		return nil, fmt.Errorf("find row in %q: %w", table.Name, err)
	}
	return row, nil
}

// DeleteAll removes every row of the table and returns how many went.
func (w *Writer) DeleteAll(ctx context.Context, h Handle, table *schema.Table) (int64, error) {
	if table == nil {
		return 0, fmt.Errorf("%w: nil table descriptor", ErrConfiguration)
	}

	sess, owns, err := h.lease(ctx)
	if err != nil {
		return 0, err
	}
	defer w.release(ctx, sess, owns)

	n, err := sess.DeleteRows(ctx, table)
	if err != nil {
		return 0, fmt.Errorf("delete rows in %q: %w", table.Name, err)
	}
	return n, nil
}

// LoadRecord fetches the stored row matching the record's current key
// values and writes it back through the record's pointers. The record's
// table must declare key columns and the record must have them populated.
// A miss returns ErrNotFound and leaves the record untouched.
func (w *Writer) LoadRecord(ctx context.Context, h Handle, rec Record) error {
	table := rec.Table()
	if table == nil {
		return fmt.Errorf("%w: record has a nil table descriptor", ErrConfiguration)
	}
	if len(table.KeyColumns()) == 0 {
		return fmt.Errorf("%w: table %q has no primary-key columns", ErrConfiguration, table.Name)
	}

	vals := rec.Values()
	if len(vals) != len(table.Columns) {
		return fmt.Errorf("%w: record carries %d values for the %d columns of %q",
			ErrConfiguration, len(vals), len(table.Columns), table.Name)
	}

	var key []any
	for i, col := range table.Columns {
		if col.PrimaryKey {
			key = append(key, vals[i])
		}
	}

	sess, owns, err := h.lease(ctx)
	if err != nil {
		return err
	}
	defer w.release(ctx, sess, owns)

	row, err := sess.GetRowByKey(ctx, table, key)
	if err != nil {
		return fmt.Errorf("find row in %q: %w", table.Name, err)
	}

	ptrs := rec.Pointers()
	if len(ptrs) != len(table.Columns) {
		return fmt.Errorf("%w: record exposes %d pointers for the %d columns of %q",
			ErrConfiguration, len(ptrs), len(table.Columns), table.Name)
	}
	for i, col := range table.Columns {
		if err := assignValue(ptrs[i], row[col.Name]); err != nil {
			return fmt.Errorf("load column %q of %q: %w", col.Name, table.Name, err)
		}
	}
	return nil
}
