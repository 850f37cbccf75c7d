// Package store provides the SQLite-backed provisioning journal.
//
// The journal holds three tables:
//   - runs: one header per provisioning run, updated when the run ends
//   - steps: the StepRecord of every executed plan step
//   - resolutions: the resolution table of each run, in deployment order
//
// Store implements engine.Journal. Rows are never rewritten once the
// ledger has confirmed them; duplicate writes are ignored, so a journal
// can be replayed into the same database.
//
// # Ordering
//
// Queries order by the logical clock (seq) or the plan index, never by
// wall time, so reads are identical across machines.
//
// # Database Configuration
//
//   - WAL mode: readers see a consistent snapshot while a run writes
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - foreign_keys=ON
package store
