// Package smartbatch writes large batches into relational tables while
// tolerating rows that already exist.
//
// The primary entry point is [Writer]. Its insert engine attempts one bulk
// statement for the whole batch; when the store rejects it with an integrity
// violation the batch is split into chunks of roughly sqrt(n) rows, and
// chunks that still collide degrade to row-by-row inserts that skip the
// offending rows. The common case (no collisions, or a re-run where
// everything collides) costs close to one round trip per sqrt(n) rows
// instead of one per row.
//
// # Sessions and factories
//
// Every operation takes a [Handle], which carries either a live [Session]
// the caller manages, or a [Factory] the engine opens a session from:
//
//	h := smartbatch.WithFactory(pgxstore.NewFactory(pool))
//	res, err := w.Insert(ctx, h, users, rows)
//
// A factory-opened session lives for exactly one call and is always closed,
// on success, error, and panic paths alike. A caller-provided session is
// never closed. There is no implicit session cache keyed by store identity;
// whoever owns the store decides.
//
// # Batches and counts
//
// Batches are []schema.Row (or []Record for mapped objects). Engines never
// mutate the batch and preserve its order across splits. [InsertResult]
// counts statements issued and rows persisted; [UpdateResult] counts items
// updated and rows inserted by an upsert.
//
// # Error taxonomy
//
//   - [ErrIntegrityViolation]: constraint collisions. The only error class
//     the insert engine recovers from; adapters wrap driver errors so
//     errors.Is recognizes them.
//   - [ErrConfiguration]: caller misuse (bad minimal size, keyless update,
//     missing key values, empty handle). Raised before any store I/O.
//   - Anything else is a storage fault and propagates immediately, with
//     partial progress already persisted. Calls are not atomic.
//
// # Stores
//
// Package pgxstore adapts PostgreSQL through jackc/pgx/v5, including
// savepoint-guarded sessions for use inside transactions. Package memstore
// is an in-memory store for tests.
package smartbatch
