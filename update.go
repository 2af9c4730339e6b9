package smartbatch

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/quartzdata/smartbatch/schema"
)

// Update applies each item as a conditional update: SET the columns the
// item carries, WHERE equality on every primary-key column. Items that
// match no stored row are counted out and otherwise ignored; the result's
// Inserted stays zero.
//
// The table must declare at least one primary-key column and every item
// must carry a value for each of them; violations fail the whole batch as
// a configuration error before any store I/O. Store failures propagate
// immediately with the counts accumulated so far.
func (w *Writer) Update(ctx context.Context, h Handle, table *schema.Table, rows []schema.Row, opts ...Option) (UpdateResult, error) {
	return w.updateAll(ctx, h, table, rows, true, opts)
}

// Upsert is Update followed by one plain bulk insert of the items whose
// update matched nothing. That insert is deliberately not adaptive: a
// collision there (typically duplicate keys inside the batch itself) is a
// store failure the caller sees.
func (w *Writer) Upsert(ctx context.Context, h Handle, table *schema.Table, rows []schema.Row, opts ...Option) (UpdateResult, error) {
	return w.updateAll(ctx, h, table, rows, false, opts)
}

func (w *Writer) updateAll(ctx context.Context, h Handle, table *schema.Table, rows []schema.Row, discardPending bool, opts []Option) (UpdateResult, error) {
	var res UpdateResult

	o, err := w.options(opts)
	if err != nil {
		return res, err
	}
	if table == nil {
		return res, fmt.Errorf("%w: nil table descriptor", ErrConfiguration)
	}
	if err := validateKeyed(table, rows); err != nil {
		return res, err
	}
	if len(rows) == 0 {
		return res, nil
	}
	if o.omitNulls {
		rows = stripNulls(table, rows)
	}

	sess, owns, err := h.lease(ctx)
	if err != nil {
		return res, err
	}
	defer w.release(ctx, sess, owns)

	return w.updateLeased(ctx, sess, table, rows, discardPending)
}

// stripNulls clones each row without its nil-valued non-key columns, so a
// partial item cannot overwrite stored values with NULL. Key columns are
// always carried. The input rows stay untouched.
func stripNulls(table *schema.Table, rows []schema.Row) []schema.Row {
	out := make([]schema.Row, len(rows))
	for i, row := range rows {
		clean := make(schema.Row, len(row))
		for col, v := range row {
			if v == nil && !table.IsKey(col) {
				continue
			}
			clean[col] = v
		}
		out[i] = clean
	}
	return out
}

// validateKeyed rejects update batches before any I/O: the table needs key
// columns and every item needs a value for each of them.
func validateKeyed(table *schema.Table, rows []schema.Row) error {
	if len(table.KeyColumns()) == 0 {
		return fmt.Errorf("%w: updates need primary-key columns on table %q", ErrConfiguration, table.Name)
	}
	for i, row := range rows {
		if missing := table.MissingKey(row); len(missing) > 0 {
			return fmt.Errorf("%w: item %d is missing key columns %v for table %q",
				ErrConfiguration, i, missing, table.Name)
		}
	}
	return nil
}

// updateLeased runs the per-item updates over an already-leased session,
// then inserts the unmatched remainder unless it is to be discarded.
func (w *Writer) updateLeased(ctx context.Context, sess Session, table *schema.Table, rows []schema.Row, discardPending bool) (UpdateResult, error) {
	var res UpdateResult

	log := w.log.With("run_id", uuid.New().String(), "table", table.Name)

	var pending []schema.Row
	for _, row := range rows {
		affected, err := sess.UpdateRowByKey(ctx, table, row)
		if err != nil {
			return res, fmt.Errorf("update row in %q: %w", table.Name, err)
		}
		if affected == 0 {
			pending = append(pending, row)
			continue
		}
		// One increment per item regardless of the affected count.
		res.Updated++
	}

	if !discardPending && len(pending) > 0 {
		if err := sess.InsertRows(ctx, table, pending); err != nil {
			return res, fmt.Errorf("insert %d unmatched rows into %q: %w", len(pending), table.Name, err)
		}
		res.Inserted += len(pending)
	}

	log.Debug("update finished",
		"rows", len(rows),
		"updated", res.Updated,
		"unmatched", len(pending),
		"inserted", res.Inserted,
	)
	return res, nil
}
