// Package journal provides SQLite-backed storage for rewrite runs.
//
// The journal is an append-only log with:
//   - Runs: one row per engine run, holding the input and output graph text
//   - Rewrites: one row per applied rewrite, keyed by (run_id, seq)
//
// # Ordering
//
// Rewrites are ordered by seq, the engine's logical clock, never by wall
// time. Runs are listed in insertion order. All queries carry an explicit
// ORDER BY so the same journal always reads back the same way.
//
// # Idempotency
//
// Writing the same rewrite twice is a no-op (ON CONFLICT DO NOTHING), so a
// journal can be fed from a replayed run without duplicating rows.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - foreign_keys=ON
package journal
