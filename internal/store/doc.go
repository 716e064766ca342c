// Package store provides SQLite-backed history of harness runs.
//
// Each run is one row in runs, keyed by its UUIDv7 run ID, with one row
// per executed step in steps. Rows are never updated; writing a run ID
// twice is a no-op.
//
// # Ordering
//
// Runs are ordered by seq, an autoincrement column assigned at insert
// time, never by timestamps. Steps are ordered by their index within the
// run. Queries always state their ORDER BY so history listings are stable.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// States and registers are stored as JSON text. Durations are stored in
// nanoseconds and start times in Unix nanoseconds (UTC).
package store
