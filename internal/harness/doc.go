// Package harness runs provisioning scenarios against the in-memory ledger.
//
// A scenario builds a plan (the built-in topology unless it names one),
// executes it with a fresh memledger and an in-memory journal, optionally
// injects faults at chosen plan steps, and then checks the outcome.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: controller_rejected
//	description: "Controller deployment is rejected; earlier kinds stay resolved"
//	params: { tld: "mon" }
//	steps: { set-prices: true }
//	faults:
//	  - step: deploy:controller
//	    reason: rejected
//	    message: "insufficient funds for gas"
//	resume: false
//	expect:
//	  status: failed
//	  failed_key: deploy:controller
//	  reason: rejected
//	assertions:
//	  - type: resolved
//	    kinds: [registry, fallback-registry, registrar, reverse-registrar, base-registrar, price-oracle]
//	  - type: trace_contains
//	    key: policy:reverse-addr
//	    args: ["*", "*", "${reverse-registrar}"]
//	  - type: final_state
//	    table: runs
//	    expect: { status: "failed", failed_key: "deploy:controller" }
//	  - type: owner
//	    registry: fallback-registry
//	    name: mon
//	    is: base-registrar
//
// With resume set, a failed first run is resumed from its journaled
// resume point with every fault cleared, and the expectation applies to the
// resumed run.
//
// # Assertion Types
//
//   - resolved: the final resolution table holds exactly kinds, in order
//   - trace_contains: a record for key exists, optionally with status and args
//   - trace_order: keys appear in the trace in this order
//   - trace_count: exactly count records match status and step_type
//   - final_state: a journal row matching where has the expected columns
//   - owner, resolver: ledger state of a name in a deployed registry
//
// Expected args are matched position by position. "*" matches anything and
// ${kind} expands to the resolved address of kind.
//
// # Deterministic Testing
//
// Run IDs are fixed, the logical clock is testutil.DeterministicClock and
// step durations are measured against testutil.FrozenNow, so a scenario
// produces the same records on every run.
package harness
