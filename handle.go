package smartbatch

import (
	"context"
	"fmt"

	"github.com/quartzdata/smartbatch/schema"
)

// Session is a live execution context against one store: a pooled
// connection, an open transaction, or an in-memory table set. Engines issue
// every statement of one call through the same session.
//
// The error contract binds adapters, not callers: failures caused by
// integrity constraints must satisfy errors.Is(err, ErrIntegrityViolation),
// and key lookups that match nothing must satisfy errors.Is(err,
// ErrNotFound). Everything else propagates as a storage fault.
type Session interface {
	// InsertRows writes the given rows in one statement. The statement is
	// all-or-nothing: on error no row of this call is persisted. A
	// single-row insert is the same call with one row.
	InsertRows(ctx context.Context, table *schema.Table, rows []schema.Row) error

	// UpdateRowByKey updates the single row matching the item's primary key:
	// SET every column the row carries, WHERE equality on every key column.
	// Returns the affected-row count.
	UpdateRowByKey(ctx context.Context, table *schema.Table, row schema.Row) (int64, error)

	// GetRowByKey fetches the row with the given key values (one per key
	// column, declaration order). Returns ErrNotFound when absent.
	GetRowByKey(ctx context.Context, table *schema.Table, key []any) (schema.Row, error)

	// CountRows returns the number of rows in the table.
	CountRows(ctx context.Context, table *schema.Table) (int64, error)

	// DeleteRows removes every row of the table and returns how many went.
	DeleteRows(ctx context.Context, table *schema.Table) (int64, error)

	// Close releases whatever the session holds. Sessions wrapping a
	// resource the caller owns implement it as a no-op; the engines only
	// close sessions they opened themselves.
	Close(ctx context.Context) error
}

// Factory opens sessions on demand. An engine call given a factory opens
// exactly one session and closes it when the call ends.
type Factory interface {
	OpenSession(ctx context.Context) (Session, error)
}

// Handle tells an engine call where to run: an active session whose
// lifecycle the caller keeps, or a factory the engine opens a one-call
// session from. The zero Handle is invalid and fails as a configuration
// error on first use.
type Handle struct {
	session Session
	factory Factory
}

// WithSession wraps a caller-managed session. The engines never close it.
func WithSession(s Session) Handle {
	return Handle{session: s}
}

// WithFactory wraps a session factory. Each engine call opens one session
// and closes it on every exit path.
func WithFactory(f Factory) Handle {
	return Handle{factory: f}
}

// lease resolves the handle into a usable session. owns reports whether the
// caller of lease must close it.
func (h Handle) lease(ctx context.Context) (s Session, owns bool, err error) {
	switch {
	case h.session != nil:
		return h.session, false, nil
	case h.factory != nil:
		s, err = h.factory.OpenSession(ctx)
		if err != nil {
			return nil, false, fmt.Errorf("open session: %w", err)
		}
		return s, true, nil
	default:
		return nil, false, fmt.Errorf("%w: handle carries neither a session nor a factory", ErrConfiguration)
	}
}

// release closes an owned session. Deferred by every engine entry point so
// the close happens exactly once per call, on success, error, and panic
// paths alike.
func (w *Writer) release(ctx context.Context, s Session, owns bool) {
	if !owns {
		return
	}
	if err := s.Close(ctx); err != nil {
		w.log.Warn("session close failed", "error", err)
	}
}
