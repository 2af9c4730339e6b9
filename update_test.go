package smartbatch_test

import (
	"context"
	"errors"
	"testing"

	"github.com/quartzdata/smartbatch"
	"github.com/quartzdata/smartbatch/memstore"
	"github.com/quartzdata/smartbatch/schema"
)

func seedUsers(t *testing.T, store *memstore.Store, rows []schema.Row) {
	t.Helper()
	w := newTestWriter(t, smartbatch.Config{})
	if _, err := w.Insert(context.Background(), smartbatch.WithSession(store.Session()), usersTable, rows); err != nil {
		t.Fatalf("seed insert failed: %v", err)
	}
}

func TestUpdateExistingRows(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	w := newTestWriter(t, smartbatch.Config{})
	seedUsers(t, store, userRows(1, 3))

	res, err := w.Update(ctx, smartbatch.WithSession(store.Session()), usersTable, []schema.Row{
		{"id": 1, "name": "renamed-1"},
		{"id": 3, "name": "renamed-3"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Updated != 2 || res.Inserted != 0 {
		t.Errorf("expected {2 0}, got %+v", res)
	}

	rows := store.RowsSnapshot("users")
	if rows[0]["name"] != "renamed-1" || rows[2]["name"] != "renamed-3" {
		t.Errorf("updates did not land: %v", rows)
	}
	if rows[1]["name"] != "user-2" {
		t.Errorf("untouched row changed: %v", rows[1])
	}
}

func TestUpdateUnmatchedIsDiscarded(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	w := newTestWriter(t, smartbatch.Config{})
	seedUsers(t, store, userRows(1, 2))

	res, err := w.Update(ctx, smartbatch.WithSession(store.Session()), usersTable, []schema.Row{
		{"id": 1, "name": "renamed"},
		{"id": 99, "name": "ghost"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Updated != 1 || res.Inserted != 0 {
		t.Errorf("expected {1 0}, got %+v", res)
	}
	// Plain update never inserts the unmatched remainder.
	if got := store.Len("users"); got != 2 {
		t.Errorf("expected 2 stored rows, got %d", got)
	}
}

func TestUpsertMixedBatch(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	w := newTestWriter(t, smartbatch.Config{})
	seedUsers(t, store, []schema.Row{{"id": 1, "name": "a"}})

	res, err := w.Upsert(ctx, smartbatch.WithSession(store.Session()), usersTable, []schema.Row{
		{"id": 1, "name": "b"},
		{"id": 2, "name": "c"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Updated != 1 || res.Inserted != 1 {
		t.Errorf("expected {1 1}, got %+v", res)
	}

	row, err := w.FindByKey(ctx, smartbatch.WithSession(store.Session()), usersTable, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if row["name"] != "b" {
		t.Errorf("expected updated value b, got %v", row["name"])
	}
	row, err = w.FindByKey(ctx, smartbatch.WithSession(store.Session()), usersTable, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if row["name"] != "c" {
		t.Errorf("expected inserted value c, got %v", row["name"])
	}
}

func TestUpsertCollisionInPendingSurfaces(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	w := newTestWriter(t, smartbatch.Config{})

	// Both items miss the update and carry the same key, so the single
	// bulk insert of the remainder collides with itself. That failure is
	// the caller's to see, not a silent skip.
	res, err := w.Upsert(ctx, smartbatch.WithSession(store.Session()), usersTable, []schema.Row{
		{"id": 7, "name": "first"},
		{"id": 7, "name": "second"},
	})
	if err == nil {
		t.Fatalf("expected an error, got %+v", res)
	}
	if !errors.Is(err, smartbatch.ErrIntegrityViolation) {
		t.Errorf("expected the integrity violation to surface, got %v", err)
	}
	if res.Updated != 0 || res.Inserted != 0 {
		t.Errorf("expected zero counts, got %+v", res)
	}
	// The failed statement persisted nothing.
	if got := store.Len("users"); got != 0 {
		t.Errorf("expected empty table, got %d rows", got)
	}
}

func TestUpdateCompositeKey(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	w := newTestWriter(t, smartbatch.Config{})
	memberships := schema.MustNewTable("memberships",
		schema.PK("user_id"),
		schema.PK("group_id"),
		schema.Col("role"),
	)
	h := smartbatch.WithSession(store.Session())

	seed := []schema.Row{
		{"user_id": 1, "group_id": 1, "role": "member"},
		{"user_id": 1, "group_id": 2, "role": "member"},
	}
	if _, err := w.Insert(ctx, h, memberships, seed); err != nil {
		t.Fatalf("seed insert failed: %v", err)
	}

	// The key condition is a conjunction: both columns must match.
	res, err := w.Update(ctx, h, memberships, []schema.Row{
		{"user_id": 1, "group_id": 2, "role": "admin"},
		{"user_id": 2, "group_id": 1, "role": "admin"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Updated != 1 {
		t.Errorf("expected 1 updated, got %d", res.Updated)
	}

	row, err := w.FindByKey(ctx, h, memberships, 1, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if row["role"] != "member" {
		t.Errorf("half-matching key mutated a row: %v", row)
	}
	row, err = w.FindByKey(ctx, h, memberships, 1, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if row["role"] != "admin" {
		t.Errorf("expected role admin, got %v", row["role"])
	}
}

func TestUpdateOmitNullsOnRows(t *testing.T) {
	tests := []struct {
		name     string
		opts     []smartbatch.Option
		wantName any
	}{
		{name: "default null overwrites", opts: nil, wantName: nil},
		{
			name:     "omit nulls keeps stored value",
			opts:     []smartbatch.Option{smartbatch.WithOmitNulls(true)},
			wantName: "user-1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := memstore.New()
			w := newTestWriter(t, smartbatch.Config{})
			seedUsers(t, store, userRows(1, 1))

			batch := []schema.Row{{"id": 1, "name": nil}}
			res, err := w.Update(ctx, smartbatch.WithSession(store.Session()), usersTable, batch, tt.opts...)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Updated != 1 {
				t.Fatalf("expected 1 updated, got %d", res.Updated)
			}

			rows := store.RowsSnapshot("users")
			if rows[0]["name"] != tt.wantName {
				t.Errorf("expected name %v, got %v", tt.wantName, rows[0]["name"])
			}
			if _, carried := batch[0]["name"]; !carried {
				t.Errorf("input batch was mutated: %v", batch[0])
			}
		})
	}
}

// ----------------------------------------------------------------------------
// Eager validation
// ----------------------------------------------------------------------------

func TestUpdateKeylessTableRejected(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	w := newTestWriter(t, smartbatch.Config{})
	events := schema.MustNewTable("events", schema.Col("payload"))

	for _, rows := range [][]schema.Row{nil, {{"payload": "x"}}} {
		_, err := w.Update(ctx, smartbatch.WithFactory(store), events, rows)
		if !errors.Is(err, smartbatch.ErrConfiguration) {
			t.Fatalf("expected ErrConfiguration, got %v", err)
		}
	}
	if store.Opened() != 0 {
		t.Errorf("expected the store untouched, opened %d", store.Opened())
	}
}

func TestUpdateMissingKeyValueRejectsWholeBatch(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	w := newTestWriter(t, smartbatch.Config{})
	seedUsers(t, store, userRows(1, 2))

	// The first item is fine; the second lacks its key. Nothing may run.
	_, err := w.Upsert(ctx, smartbatch.WithFactory(store), usersTable, []schema.Row{
		{"id": 1, "name": "renamed"},
		{"name": "keyless"},
	})
	if !errors.Is(err, smartbatch.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}

	rows := store.RowsSnapshot("users")
	if rows[0]["name"] != "user-1" {
		t.Errorf("batch partially executed before validation: %v", rows[0])
	}
	if store.Opened() != 0 {
		t.Errorf("expected no session, opened %d", store.Opened())
	}
}

func TestUpdateStorageFaultKeepsPartialCounts(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	w := newTestWriter(t, smartbatch.Config{})
	seedUsers(t, store, userRows(1, 3))

	faultErr := errors.New("socket closed")
	updates := 0
	store.Hook = func(op, table string) error {
		if op != "update" {
			return nil
		}
		updates++
		if updates == 2 {
			return faultErr
		}
		return nil
	}

	res, err := w.Update(ctx, smartbatch.WithSession(store.Session()), usersTable, []schema.Row{
		{"id": 1, "name": "one"},
		{"id": 2, "name": "two"},
		{"id": 3, "name": "three"},
	})
	if !errors.Is(err, faultErr) {
		t.Fatalf("expected the fault to propagate, got %v", err)
	}
	if res.Updated != 1 {
		t.Errorf("expected 1 update before the fault, got %d", res.Updated)
	}
}

func TestUpdateEmptyBatch(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	w := newTestWriter(t, smartbatch.Config{})

	res, err := w.Update(ctx, smartbatch.WithFactory(store), usersTable, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Updated != 0 || res.Inserted != 0 {
		t.Errorf("expected zero result, got %+v", res)
	}
	if store.Opened() != 0 {
		t.Errorf("expected no session for an empty batch, opened %d", store.Opened())
	}
}
