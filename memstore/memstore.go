// Package memstore is an in-memory store for exercising the write engines
// without a database: tables auto-create on first write, uniqueness is
// enforced on primary-key columns, and a hook lets tests inject faults.
package memstore

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/quartzdata/smartbatch"
	"github.com/quartzdata/smartbatch/schema"
)

// Store holds tables keyed by descriptor name. It is a smartbatch.Factory;
// Session returns a caller-managed session over the same tables. Safe for
// concurrent use, except that Hook must be set before operations start.
type Store struct {
	// Hook, when set, runs before every session operation and can fail it
	// by returning an error. Tests use it to inject storage faults at a
	// chosen point in a run.
	Hook func(op, table string) error

	mu     sync.Mutex
	tables map[string]*memTable
	opened int
	closed int
}

type memTable struct {
	rows  []schema.Row   // insertion order
	index map[string]int // key fingerprint -> position in rows
}

// New returns an empty store.
func New() *Store {
	return &Store{tables: make(map[string]*memTable)}
}

// OpenSession implements smartbatch.Factory. Opened sessions are counted so
// tests can assert the engines close exactly what they open.
func (s *Store) OpenSession(ctx context.Context) (smartbatch.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.opened++
	s.mu.Unlock()
	return &session{store: s}, nil
}

// Session returns a session whose lifecycle the caller owns, for use with
// smartbatch.WithSession.
func (s *Store) Session() smartbatch.Session {
	return &session{store: s}
}

// Opened returns how many sessions the factory has opened.
func (s *Store) Opened() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened
}

// Closed returns how many times Close has been called on any session of
// this store.
func (s *Store) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Len returns the number of rows stored under the table name.
func (s *Store) Len(table string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	mt, ok := s.tables[table]
	if !ok {
		return 0
	}
	return len(mt.rows)
}

// RowsSnapshot returns a cloned copy of the table's rows in insertion order.
func (s *Store) RowsSnapshot(table string) []schema.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	mt, ok := s.tables[table]
	if !ok {
		return nil
	}
	out := make([]schema.Row, len(mt.rows))
	for i, r := range mt.rows {
		out[i] = r.Clone()
	}
	return out
}

// table returns the named table, creating it on first use. Caller holds mu.
func (s *Store) table(name string) *memTable {
	mt, ok := s.tables[name]
	if !ok {
		mt = &memTable{index: make(map[string]int)}
		s.tables[name] = mt
	}
	return mt
}

func (s *Store) hook(op, table string) error {
	if s.Hook == nil {
		return nil
	}
	return s.Hook(op, table)
}

// keyFingerprint joins the row's key values into a composite identity.
// Tables without key columns have no uniqueness constraint.
func keyFingerprint(table *schema.Table, row schema.Row) (string, bool) {
	kc := table.KeyColumns()
	if len(kc) == 0 {
		return "", false
	}
	parts := make([]string, len(kc))
	for i, col := range kc {
		parts[i] = fmt.Sprintf("%v", row[col])
	}
	return strings.Join(parts, "|"), true
}

func fingerprintOf(table *schema.Table, key []any) string {
	parts := make([]string, len(key))
	for i, v := range key {
		parts[i] = fmt.Sprintf("%v", v)
	}
	return strings.Join(parts, "|")
}

type session struct {
	store *Store
}

func (se *session) InsertRows(ctx context.Context, table *schema.Table, rows []schema.Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := se.store.hook("insert", table.Name); err != nil {
		return err
	}

	se.store.mu.Lock()
	defer se.store.mu.Unlock()
	mt := se.store.table(table.Name)

	// Statement atomicity: the whole call is checked before anything lands,
	// against stored rows and against duplicates inside the call itself.
	seen := make(map[string]bool)
	for _, row := range rows {
		for col := range row {
			if !table.HasColumn(col) {
				return fmt.Errorf("unknown column %q in table %q", col, table.Name)
			}
		}
		fp, constrained := keyFingerprint(table, row)
		if !constrained {
			continue
		}
		if _, dup := mt.index[fp]; dup || seen[fp] {
			return fmt.Errorf("%w: duplicate key (%s) in table %q",
				smartbatch.ErrIntegrityViolation, fp, table.Name)
		}
		seen[fp] = true
	}

	for _, row := range rows {
		if fp, constrained := keyFingerprint(table, row); constrained {
			mt.index[fp] = len(mt.rows)
		}
		mt.rows = append(mt.rows, row.Clone())
	}
	return nil
}

func (se *session) UpdateRowByKey(ctx context.Context, table *schema.Table, row schema.Row) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := se.store.hook("update", table.Name); err != nil {
		return 0, err
	}
	if len(table.KeyColumns()) == 0 {
		return 0, fmt.Errorf("%w: table %q has no primary-key columns", smartbatch.ErrConfiguration, table.Name)
	}

	se.store.mu.Lock()
	defer se.store.mu.Unlock()
	mt := se.store.table(table.Name)

	for col := range row {
		if !table.HasColumn(col) {
			return 0, fmt.Errorf("unknown column %q in table %q", col, table.Name)
		}
	}

	fp, _ := keyFingerprint(table, row)
	idx, ok := mt.index[fp]
	if !ok {
		return 0, nil
	}
	stored := mt.rows[idx]
	for col, v := range row {
		stored[col] = v
	}
	return 1, nil
}

func (se *session) GetRowByKey(ctx context.Context, table *schema.Table, key []any) (schema.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := se.store.hook("get", table.Name); err != nil {
		return nil, err
	}

	se.store.mu.Lock()
	defer se.store.mu.Unlock()
	mt, ok := se.store.tables[table.Name]
	if !ok {
		return nil, fmt.Errorf("%w: table %q key %v", smartbatch.ErrNotFound, table.Name, key)
	}
	idx, ok := mt.index[fingerprintOf(table, key)]
	if !ok {
		return nil, fmt.Errorf("%w: table %q key %v", smartbatch.ErrNotFound, table.Name, key)
	}
	return mt.rows[idx].Clone(), nil
}

func (se *session) CountRows(ctx context.Context, table *schema.Table) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := se.store.hook("count", table.Name); err != nil {
		return 0, err
	}

	se.store.mu.Lock()
	defer se.store.mu.Unlock()
	mt, ok := se.store.tables[table.Name]
	if !ok {
		return 0, nil
	}
	return int64(len(mt.rows)), nil
}

func (se *session) DeleteRows(ctx context.Context, table *schema.Table) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := se.store.hook("delete", table.Name); err != nil {
		return 0, err
	}

	se.store.mu.Lock()
	defer se.store.mu.Unlock()
	mt, ok := se.store.tables[table.Name]
	if !ok {
		return 0, nil
	}
	n := int64(len(mt.rows))
	mt.rows = nil
	mt.index = make(map[string]int)
	return n, nil
}

func (se *session) Close(ctx context.Context) error {
	se.store.mu.Lock()
	se.store.closed++
	se.store.mu.Unlock()
	return nil
}
