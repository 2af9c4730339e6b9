package smartbatch_test

import (
	"context"
	"errors"
	"testing"

	"github.com/quartzdata/smartbatch"
	"github.com/quartzdata/smartbatch/memstore"
	"github.com/quartzdata/smartbatch/schema"
)

func TestCount(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	w := newTestWriter(t, smartbatch.Config{})
	h := smartbatch.WithSession(store.Session())

	n, err := w.Count(ctx, h, usersTable)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 on an untouched table, got %d", n)
	}

	seedUsers(t, store, userRows(1, 4))

	n, err = w.Count(ctx, h, usersTable)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 4 {
		t.Errorf("expected 4, got %d", n)
	}
}

func TestFindByKey(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	w := newTestWriter(t, smartbatch.Config{})
	h := smartbatch.WithSession(store.Session())
	seedUsers(t, store, userRows(1, 3))

	row, err := w.FindByKey(ctx, h, usersTable, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if row["name"] != "user-2" {
		t.Errorf("expected user-2, got %v", row["name"])
	}

	if _, err := w.FindByKey(ctx, h, usersTable, 99); !errors.Is(err, smartbatch.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFindByKeyArityChecked(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	w := newTestWriter(t, smartbatch.Config{})

	_, err := w.FindByKey(ctx, smartbatch.WithFactory(store), usersTable, 1, "extra")
	if !errors.Is(err, smartbatch.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	if store.Opened() != 0 {
		t.Errorf("expected no session for a bad key, opened %d", store.Opened())
	}

	keyless := schema.MustNewTable("events", schema.Col("payload"))
	_, err = w.FindByKey(ctx, smartbatch.WithFactory(store), keyless, 1)
	if !errors.Is(err, smartbatch.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration for a keyless table, got %v", err)
	}
}

func TestFindByCompositeKey(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	w := newTestWriter(t, smartbatch.Config{})
	h := smartbatch.WithSession(store.Session())

	table := schema.MustNewTable("memberships",
		schema.PK("org"),
		schema.PK("user"),
		schema.Col("role"),
	)
	if _, err := w.Insert(ctx, h, table, []schema.Row{
		{"org": "acme", "user": "ann", "role": "admin"},
		{"org": "acme", "user": "bob", "role": "viewer"},
	}); err != nil {
		t.Fatalf("seed insert failed: %v", err)
	}

	row, err := w.FindByKey(ctx, h, table, "acme", "bob")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if row["role"] != "viewer" {
		t.Errorf("expected viewer, got %v", row["role"])
	}
}

func TestDeleteAll(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	w := newTestWriter(t, smartbatch.Config{})
	h := smartbatch.WithSession(store.Session())
	seedUsers(t, store, userRows(1, 5))

	n, err := w.DeleteAll(ctx, h, usersTable)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 5 {
		t.Errorf("expected 5 deleted, got %d", n)
	}

	count, err := w.Count(ctx, h, usersTable)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 0 {
		t.Errorf("expected empty table, got %d rows", count)
	}

	// The uniqueness constraint resets with the rows.
	res, err := w.Insert(ctx, h, usersTable, userRows(1, 5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Inserted != 5 {
		t.Errorf("expected 5 inserted after reset, got %d", res.Inserted)
	}
}

func TestQueryNilTable(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	w := newTestWriter(t, smartbatch.Config{})
	h := smartbatch.WithFactory(store)

	if _, err := w.Count(ctx, h, nil); !errors.Is(err, smartbatch.ErrConfiguration) {
		t.Errorf("Count: expected ErrConfiguration, got %v", err)
	}
	if _, err := w.FindByKey(ctx, h, nil, 1); !errors.Is(err, smartbatch.ErrConfiguration) {
		t.Errorf("FindByKey: expected ErrConfiguration, got %v", err)
	}
	if _, err := w.DeleteAll(ctx, h, nil); !errors.Is(err, smartbatch.ErrConfiguration) {
		t.Errorf("DeleteAll: expected ErrConfiguration, got %v", err)
	}
	if store.Opened() != 0 {
		t.Errorf("expected no sessions, opened %d", store.Opened())
	}
}
