package pgxstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/quartzdata/smartbatch"
	"github.com/quartzdata/smartbatch/schema"
)

// describeQuery lists a table's columns in declaration order and flags the
// ones under a PRIMARY KEY constraint.
const describeQuery = `
	SELECT c.column_name, EXISTS (
		SELECT 1
		 FROM information_schema.key_column_usage kcu
		 JOIN information_schema.table_constraints tc
		   ON tc.constraint_name = kcu.constraint_name
		  AND tc.table_name = kcu.table_name
		WHERE kcu.table_name = c.table_name
		  AND kcu.column_name = c.column_name
		  AND tc.constraint_type = 'PRIMARY KEY'
	) AS is_key
	FROM information_schema.columns c
	WHERE c.table_name = $1
	ORDER BY c.ordinal_position
`

// LoadTable builds a table descriptor from the database catalog. A table
// with no catalog entry reports smartbatch.ErrNotFound.
func LoadTable(ctx context.Context, db DBTX, name string) (*schema.Table, error) {
	rows, err := db.Query(ctx, describeQuery, name)
	if err != nil {
		return nil, fmt.Errorf("describe table %q: %w", name, err)
	}
	defer rows.Close()

	var cols []schema.Column
	for rows.Next() {
		var (
			colName string
			isKey   bool
		)
		if err := rows.Scan(&colName, &isKey); err != nil {
			return nil, fmt.Errorf("scan column of %q: %w", name, err)
		}
		cols = append(cols, schema.Column{Name: colName, PrimaryKey: isKey})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("describe table %q: %w", name, err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("describe table %q: %w", name, smartbatch.ErrNotFound)
	}

	return schema.NewTable(name, cols...)
}

type cacheEntry struct {
	table     *schema.Table
	expiresAt time.Time
}

// TableCache memoizes introspected descriptors with a TTL, so request
// paths do not hit information_schema on every call. Each cache is scoped
// to the surface it was built on; there is no process-wide registry.
type TableCache struct {
	db  DBTX
	ttl time.Duration

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

func NewTableCache(db DBTX, ttl time.Duration) *TableCache {
	return &TableCache{
		db:      db,
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

// Get returns the cached descriptor for name, introspecting on a miss or
// after expiry.
func (c *TableCache) Get(ctx context.Context, name string) (*schema.Table, error) {
	now := time.Now()

	c.mu.RLock()
	entry, ok := c.entries[name]
	c.mu.RUnlock()
	if ok && now.Before(entry.expiresAt) {
		return entry.table, nil
	}

	table, err := LoadTable(ctx, c.db, name)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[name] = cacheEntry{table: table, expiresAt: now.Add(c.ttl)}
	c.mu.Unlock()

	return table, nil
}

// Invalidate drops the cached descriptor for name, forcing the next Get
// to introspect again. Useful after DDL.
func (c *TableCache) Invalidate(name string) {
	c.mu.Lock()
	delete(c.entries, name)
	c.mu.Unlock()
}
