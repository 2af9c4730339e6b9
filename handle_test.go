package smartbatch_test

import (
	"context"
	"errors"
	"testing"

	"github.com/quartzdata/smartbatch"
	"github.com/quartzdata/smartbatch/memstore"
	"github.com/quartzdata/smartbatch/schema"
)

type factoryFunc func(ctx context.Context) (smartbatch.Session, error)

func (f factoryFunc) OpenSession(ctx context.Context) (smartbatch.Session, error) {
	return f(ctx)
}

// panicSession blows up on insert to prove the broker releases owned
// sessions on panic paths too.
type panicSession struct {
	smartbatch.Session
}

func (p panicSession) InsertRows(ctx context.Context, table *schema.Table, rows []schema.Row) error {
	panic("session wiring broken")
}

func TestZeroHandleRejected(t *testing.T) {
	ctx := context.Background()
	w := newTestWriter(t, smartbatch.Config{})

	_, err := w.Insert(ctx, smartbatch.Handle{}, usersTable, userRows(1, 1))
	if !errors.Is(err, smartbatch.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration for the zero handle, got %v", err)
	}
}

func TestCallerSessionNeverClosed(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	w := newTestWriter(t, smartbatch.Config{})
	sess := store.Session()

	for i := 0; i < 3; i++ {
		if _, err := w.Insert(ctx, smartbatch.WithSession(sess), usersTable, userRows(i*10+1, 5)); err != nil {
			t.Fatalf("insert %d failed: %v", i, err)
		}
	}

	if store.Closed() != 0 {
		t.Errorf("engine closed a caller-owned session %d times", store.Closed())
	}
}

func TestFactorySessionClosedExactlyOnce(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	w := newTestWriter(t, smartbatch.Config{})
	h := smartbatch.WithFactory(store)

	if _, err := w.Insert(ctx, h, usersTable, userRows(1, 4)); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if store.Opened() != 1 || store.Closed() != 1 {
		t.Fatalf("expected one open and one close, got opened=%d closed=%d", store.Opened(), store.Closed())
	}

	// A second call opens and closes its own session.
	if _, err := w.Count(ctx, h, usersTable); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if store.Opened() != 2 || store.Closed() != 2 {
		t.Errorf("expected two opens and two closes, got opened=%d closed=%d", store.Opened(), store.Closed())
	}
}

func TestFactoryOpenFailurePropagates(t *testing.T) {
	ctx := context.Background()
	w := newTestWriter(t, smartbatch.Config{})

	openErr := errors.New("pool exhausted")
	h := smartbatch.WithFactory(factoryFunc(func(ctx context.Context) (smartbatch.Session, error) {
		return nil, openErr
	}))

	_, err := w.Insert(ctx, h, usersTable, userRows(1, 2))
	if !errors.Is(err, openErr) {
		t.Fatalf("expected the open failure to propagate, got %v", err)
	}
}

func TestFactorySessionClosedOnPanic(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	w := newTestWriter(t, smartbatch.Config{})

	h := smartbatch.WithFactory(factoryFunc(func(ctx context.Context) (smartbatch.Session, error) {
		s, err := store.OpenSession(ctx)
		if err != nil {
			return nil, err
		}
		return panicSession{Session: s}, nil
	}))

	func() {
		defer func() {
			if recover() == nil {
				t.Fatalf("expected the session panic to reach the caller")
			}
		}()
		_, _ = w.Insert(ctx, h, usersTable, userRows(1, 2))
	}()

	if store.Opened() != 1 || store.Closed() != 1 {
		t.Errorf("expected the owned session closed on the panic path, opened=%d closed=%d",
			store.Opened(), store.Closed())
	}
}

func TestCanceledContextSurfacesAsFault(t *testing.T) {
	store := memstore.New()
	w := newTestWriter(t, smartbatch.Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := w.Insert(ctx, smartbatch.WithSession(store.Session()), usersTable, userRows(1, 2))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
