// Package engine schedules and executes a compatibility run.
//
// ARCHITECTURE:
//
// A run expands the project table into ExecutionUnits and executes every
// unit as an independent parallel task. Units share exactly one input, the
// read-only overlay worktree; each gets its own environment directory, so
// there is no shared mutable state and no locking between units.
//
// Scheduling policy is non-fail-fast: a unit that fails or errors never
// cancels a sibling. A single incompatibility must be visible without
// masking the others.
//
// Per-unit lifecycle:
//
//	pending -> fetching -> overlay-installing -> overlay-verified
//	        -> testing -> {passed | failed | errored}
//
// Transitions are forward-only and each is stamped with a monotonic
// logical clock value and recorded in the store, giving every run a
// totally ordered trace. NEVER use wall-clock timestamps for ordering.
//
// Supersession: runs register a concurrency key with the Supervisor. A
// newer run with the same key cancels the in-flight older one; abandoned
// units are recorded as skipped. This is supersession, not cooperative
// shutdown - in-flight subprocesses are killed through their context.
//
// There are no retries anywhere in this package. Third-party signal must
// reach the aggregator un-smoothed.
package engine
