// Package pgxstore backs smartbatch sessions with PostgreSQL through pgx.
//
// Three session shapes cover the usual call sites: NewSession wraps any
// Exec/Query surface (pool, conn, or tx) in autocommit mode, NewTxSession
// wraps a transaction and shields it from failed inserts with savepoints,
// and Factory hands out pooled sessions for engines that manage their own
// lifecycle via smartbatch.WithFactory.
package pgxstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quartzdata/smartbatch"
	"github.com/quartzdata/smartbatch/schema"
)

// DBTX is the query surface the store needs.
// Satisfied by *pgxpool.Pool, *pgxpool.Conn, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Session implements smartbatch.Session over a pgx connection surface.
type Session struct {
	db    DBTX
	tx    pgx.Tx
	spSeq int
	close func(context.Context) error
}

// NewSession wraps db in autocommit mode: every statement commits or rolls
// back on its own, so a failed insert leaves the connection usable. Close
// is a no-op; the caller keeps ownership of db.
func NewSession(db DBTX) *Session {
	return &Session{db: db}
}

// NewTxSession wraps an open transaction. Each insert attempt runs inside
// a savepoint so that a uniqueness violation does not abort the enclosing
// transaction; PostgreSQL would otherwise refuse every later statement
// with a 25P02. Close is a no-op; committing stays with the caller.
func NewTxSession(tx pgx.Tx) *Session {
	return &Session{db: tx, tx: tx}
}

// InsertRows appends rows in a single multi-row INSERT. The column list
// comes from the first row; later rows fill missing columns with NULL.
func (s *Session) InsertRows(ctx context.Context, table *schema.Table, rows []schema.Row) error {
	sql, args, err := insertSQL(table, rows)
	if err != nil {
		return err
	}

	if s.tx == nil {
		_, err := s.db.Exec(ctx, sql, args...)
		return classify("insert into", table.Name, err)
	}

	s.spSeq++
	sp := fmt.Sprintf("sp_%d", s.spSeq)
	if _, err := s.tx.Exec(ctx, "SAVEPOINT "+sp); err != nil {
		return fmt.Errorf("create savepoint: %w", err)
	}
	if _, err := s.tx.Exec(ctx, sql, args...); err != nil {
		_, _ = s.tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+sp)
		return classify("insert into", table.Name, err)
	}
	_, _ = s.tx.Exec(ctx, "RELEASE SAVEPOINT "+sp)
	return nil
}

// UpdateRowByKey updates the row addressed by the item's key columns and
// reports how many rows matched. Every carried column lands in the SET
// list, key columns included, so the statement shape stays uniform across
// a batch.
func (s *Session) UpdateRowByKey(ctx context.Context, table *schema.Table, row schema.Row) (int64, error) {
	sql, args, err := updateSQL(table, row)
	if err != nil {
		return 0, err
	}

	tag, err := s.db.Exec(ctx, sql, args...)
	if err != nil {
		return 0, classify("update", table.Name, err)
	}
	return tag.RowsAffected(), nil
}

// GetRowByKey fetches one row by primary key, with every table column in
// the result. A miss reports smartbatch.ErrNotFound.
func (s *Session) GetRowByKey(ctx context.Context, table *schema.Table, key []any) (schema.Row, error) {
	sql := selectSQL(table)

	vals := make([]any, len(table.Columns))
	ptrs := make([]any, len(vals))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := s.db.QueryRow(ctx, sql, key...).Scan(ptrs...); err != nil {
		return nil, classify("select from", table.Name, err)
	}

	row := make(schema.Row, len(vals))
	for i, col := range table.Columns {
		row[col.Name] = vals[i]
	}
	return row, nil
}

// CountRows returns the table's row count.
func (s *Session) CountRows(ctx context.Context, table *schema.Table) (int64, error) {
	var n int64
	if err := s.db.QueryRow(ctx, countSQL(table)).Scan(&n); err != nil {
		return 0, classify("count", table.Name, err)
	}
	return n, nil
}

// DeleteRows removes every row of the table and returns the count.
func (s *Session) DeleteRows(ctx context.Context, table *schema.Table) (int64, error) {
	tag, err := s.db.Exec(ctx, deleteSQL(table))
	if err != nil {
		return 0, classify("delete from", table.Name, err)
	}
	return tag.RowsAffected(), nil
}

// Close releases whatever the session owns. Sessions built with NewSession
// or NewTxSession own nothing and return nil.
func (s *Session) Close(ctx context.Context) error {
	if s.close == nil {
		return nil
	}
	return s.close(ctx)
}

// Factory opens sessions on pooled connections. Each session pins one
// connection until Close releases it back to the pool, which keeps the
// adaptive insert retries of a single call on one backend.
type Factory struct {
	pool *pgxpool.Pool
}

func NewFactory(pool *pgxpool.Pool) *Factory {
	return &Factory{pool: pool}
}

func (f *Factory) OpenSession(ctx context.Context) (smartbatch.Session, error) {
	conn, err := f.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	return &Session{
		db: conn,
		close: func(context.Context) error {
			conn.Release()
			return nil
		},
	}, nil
}

// PoolHandle is the common wiring in one call: engines lease a pooled
// session per operation and release it when done.
func PoolHandle(pool *pgxpool.Pool) smartbatch.Handle {
	return smartbatch.WithFactory(NewFactory(pool))
}

// classify maps driver errors onto the smartbatch taxonomy. SQLSTATE class
// 23 covers every integrity constraint violation, which is exactly the
// recoverable set the adaptive insert splits on; both the sentinel and the
// original pgconn error stay reachable through errors.Is and errors.As.
func classify(op, table string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "23") {
		return fmt.Errorf("%s %q: %w: %w", op, table, smartbatch.ErrIntegrityViolation, err)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %q: %w", op, table, smartbatch.ErrNotFound)
	}
	return fmt.Errorf("%s %q: %w", op, table, err)
}
