package smartbatch

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/quartzdata/smartbatch/schema"
)

// Insert writes a batch of rows, tolerating rows that already exist.
//
// The whole batch is attempted as one bulk statement. When the store
// rejects it with an integrity violation, the batch splits into chunks of
// floor(sqrt(n)) rows as long as n is at least minimalSize squared; smaller
// runs degrade to row-by-row inserts that silently skip colliding rows.
// Any other store failure stops the call immediately.
//
// The returned result is valid even alongside an error: rows persisted
// before the failure stay persisted, and the counts say how many. Calls are
// not atomic.
//
// The batch is never mutated and its order is preserved across splits. An
// empty batch returns a zero result without touching the handle.
func (w *Writer) Insert(ctx context.Context, h Handle, table *schema.Table, rows []schema.Row, opts ...Option) (InsertResult, error) {
	var res InsertResult

	o, err := w.options(opts)
	if err != nil {
		return res, err
	}
	if table == nil {
		return res, fmt.Errorf("%w: nil table descriptor", ErrConfiguration)
	}
	if len(rows) == 0 {
		return res, nil
	}

	sess, owns, err := h.lease(ctx)
	if err != nil {
		return res, err
	}
	defer w.release(ctx, sess, owns)

	return w.insertAdaptive(ctx, sess, table, rows, o.minimalSize)
}

// insertAdaptive runs the divide-and-conquer insert over an already-leased
// session. The recursion of the naive formulation is flattened into an
// explicit work list of pending runs.
func (w *Writer) insertAdaptive(ctx context.Context, sess Session, table *schema.Table, rows []schema.Row, minimalSize int) (InsertResult, error) {
	var res InsertResult

	log := w.log.With("run_id", uuid.New().String(), "table", table.Name)
	threshold := minimalSize * minimalSize

	// Pending runs, popped LIFO. A split pushes its chunks in reverse so
	// they pop in original batch order.
	pending := [][]schema.Row{rows}

	for len(pending) > 0 {
		run := pending[len(pending)-1]
		pending = pending[:len(pending)-1]

		err := sess.InsertRows(ctx, table, run)
		if err == nil {
			res.Operations++
			res.Inserted += len(run)
			continue
		}
		if !errors.Is(err, ErrIntegrityViolation) {
			return res, fmt.Errorf("bulk insert %d rows into %q: %w", len(run), table.Name, err)
		}

		if len(run) >= threshold {
			size := int(math.Sqrt(float64(len(run))))
			// len(run) >= minimalSize^2, so size >= minimalSize >= 1 and
			// Chunk cannot reject it.
			chunks, cerr := Chunk(run, size)
			if cerr != nil {
				return res, cerr
			}
			log.Debug("bulk insert collided, splitting",
				"rows", len(run),
				"chunk_size", size,
				"chunks", len(chunks),
			)
			for i := len(chunks) - 1; i >= 0; i-- {
				pending = append(pending, chunks[i])
			}
			continue
		}

		log.Debug("bulk insert collided, degrading to row-by-row", "rows", len(run))
		for _, row := range run {
			err := sess.InsertRows(ctx, table, []schema.Row{row})
			if err == nil {
				res.Operations++
				res.Inserted++
				continue
			}
			if errors.Is(err, ErrIntegrityViolation) {
				log.Debug("row skipped", "error", err)
				continue
			}
			return res, fmt.Errorf("insert row into %q: %w", table.Name, err)
		}
	}

	log.Debug("insert finished",
		"rows", len(rows),
		"operations", res.Operations,
		"inserted", res.Inserted,
	)
	return res, nil
}
