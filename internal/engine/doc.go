// Package engine implements the provisioning orchestrator.
//
// The orchestrator walks a compiled plan (see compiler.BuildPlan) one step
// at a time against a ledger.Client:
//
//  1. Check every dependency of the step against the ResolutionTable
//  2. Resolve declared arguments into ABI values
//  3. Submit the transaction and block until it is confirmed or the
//     per-step timeout elapses
//  4. Record a deployed address in the table, stamp the step with the next
//     logical clock value, and emit it to the log and the journal
//
// The first failure halts the run. Nothing is retried and nothing already
// confirmed is undone; the returned RunError carries the failed step and
// the table accumulated so far so that an operator can resume by hand.
//
// Execution is single-threaded: no step starts before the previous one is
// confirmed, and at most one transaction is ever in flight.
package engine
