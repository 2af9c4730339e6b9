package smartbatch

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/quartzdata/smartbatch/schema"
)

// Record is a mapped object: a struct (or anything else) bound to a table
// descriptor, exposing its column values positionally.
//
// Values returns one value per table column in declaration order, nil
// meaning NULL. Pointers returns one assignable pointer per column for
// write-back; implementations that never load may return nil from it.
// All records of one engine call must share the same *schema.Table.
type Record interface {
	Table() *schema.Table
	Values() []any
	Pointers() []any
}

// InsertRecords is the record form of Insert: identical algorithm,
// identical counts, identical session discipline. Records convert to rows
// carrying the full column list.
func (w *Writer) InsertRecords(ctx context.Context, h Handle, recs []Record, opts ...Option) (InsertResult, error) {
	var res InsertResult

	o, err := w.options(opts)
	if err != nil {
		return res, err
	}
	if len(recs) == 0 {
		return res, nil
	}

	table, rows, err := recordRows(recs, false)
	if err != nil {
		return res, err
	}

	sess, owns, err := h.lease(ctx)
	if err != nil {
		return res, err
	}
	defer w.release(ctx, sess, owns)

	return w.insertAdaptive(ctx, sess, table, rows, o.minimalSize)
}

// UpdateRecords is the record form of Update. With OmitNulls set (on the
// writer or per call) nil-valued non-key columns are left out of the SET
// list, so unset record fields cannot erase stored values.
func (w *Writer) UpdateRecords(ctx context.Context, h Handle, recs []Record, opts ...Option) (UpdateResult, error) {
	return w.updateRecords(ctx, h, recs, true, opts)
}

// UpsertRecords is the record form of Upsert.
func (w *Writer) UpsertRecords(ctx context.Context, h Handle, recs []Record, opts ...Option) (UpdateResult, error) {
	return w.updateRecords(ctx, h, recs, false, opts)
}

func (w *Writer) updateRecords(ctx context.Context, h Handle, recs []Record, discardPending bool, opts []Option) (UpdateResult, error) {
	var res UpdateResult

	o, err := w.options(opts)
	if err != nil {
		return res, err
	}
	if len(recs) == 0 {
		return res, nil
	}

	table, rows, err := recordRows(recs, o.omitNulls)
	if err != nil {
		return res, err
	}
	if err := validateKeyed(table, rows); err != nil {
		return res, err
	}

	sess, owns, err := h.lease(ctx)
	if err != nil {
		return res, err
	}
	defer w.release(ctx, sess, owns)

	return w.updateLeased(ctx, sess, table, rows, discardPending)
}

// recordRows converts records into rows over their shared descriptor. With
// omitNulls set, nil values on non-key columns are dropped; key columns are
// always carried so the eager key validation still sees them.
func recordRows(recs []Record, omitNulls bool) (*schema.Table, []schema.Row, error) {
	table := recs[0].Table()
	if table == nil {
		return nil, nil, fmt.Errorf("%w: record 0 has a nil table descriptor", ErrConfiguration)
	}

	rows := make([]schema.Row, len(recs))
	for i, rec := range recs {
		if rec.Table() != table {
			return nil, nil, fmt.Errorf("%w: record %d does not share the call's table descriptor %q",
				ErrConfiguration, i, table.Name)
		}
		vals := rec.Values()
		if len(vals) != len(table.Columns) {
			return nil, nil, fmt.Errorf("%w: record %d carries %d values for the %d columns of %q",
				ErrConfiguration, i, len(vals), len(table.Columns), table.Name)
		}

		row := make(schema.Row, len(vals))
		for j, col := range table.Columns {
			if omitNulls && vals[j] == nil && !col.PrimaryKey {
				continue
			}
			row[col.Name] = vals[j]
		}
		rows[i] = row
	}
	return table, rows, nil
}

// assignValue writes a stored value through a record pointer, coercing the
// common width and representation differences between what stores return
// and what records declare. nil stores as the zero value.
func assignValue(ptr any, v any) error {
	if ptr == nil {
		return fmt.Errorf("nil destination pointer")
	}

	if v == nil {
		rv := reflect.ValueOf(ptr)
		if rv.Kind() != reflect.Pointer || rv.IsNil() {
			return fmt.Errorf("destination %T is not a usable pointer", ptr)
		}
		rv.Elem().Set(reflect.Zero(rv.Elem().Type()))
		return nil
	}

	switch dst := ptr.(type) {
	case *any:
		*dst = v
		return nil
	case *string:
		switch s := v.(type) {
		case string:
			*dst = s
			return nil
		case []byte:
			*dst = string(s)
			return nil
		}
	case *[]byte:
		switch b := v.(type) {
		case []byte:
			*dst = b
			return nil
		case string:
			*dst = []byte(b)
			return nil
		}
	case *bool:
		if b, ok := v.(bool); ok {
			*dst = b
			return nil
		}
	case *time.Time:
		if t, ok := v.(time.Time); ok {
			*dst = t
			return nil
		}
	}

	// Numeric widths and named types: convert when reflect allows it.
	// Cross-kind conversions stay numeric-to-numeric; int-to-string would
	// otherwise "convert" to a code point.
	rv := reflect.ValueOf(ptr)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("destination %T is not a usable pointer", ptr)
	}
	sv := reflect.ValueOf(v)
	dt := rv.Elem().Type()
	if sv.Type().AssignableTo(dt) {
		rv.Elem().Set(sv)
		return nil
	}
	if sv.Type().ConvertibleTo(dt) && (sv.Kind() == dt.Kind() || numericKind(sv.Kind()) && numericKind(dt.Kind())) {
		rv.Elem().Set(sv.Convert(dt))
		return nil
	}
	return fmt.Errorf("cannot store %T into %T", v, ptr)
}

func numericKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
