// Package store provides SQLite-backed durable storage for simulator runs.
//
// The store is an append-only log with:
//   - Runs: one row per World execution (workload, size, outcome, diagnostics)
//   - Events: the run's coordination trace, one row per trace.Event
//
// # Critical Patterns
//
// Logical Identity and Time:
//   - Event ordering uses the logical seq stamped under the World lock, NEVER
//     timestamps
//   - Run IDs are UUIDv7, so ordering runs by ID follows creation order
//
// Deterministic Query Results:
//   - Event queries use ORDER BY seq ASC
//   - Run queries use ORDER BY id COLLATE BINARY ASC
//
// Canonical Encoding:
//   - Diagnostics are stored as canonical JSON (sorted keys, NFC strings) so
//     identical runs produce byte-identical rows
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
