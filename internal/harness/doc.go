// Package harness provides a scenario-driven conformance harness for the
// compatibility engine.
//
// Scenarios are YAML files describing a project table, a trigger context,
// scripted step results, and expectations. The harness runs the REAL
// engine against a fresh in-memory store; only the subprocess layer is
// replaced by a scripted runner, so state transitions, supersession, and
// result recording are all exercised for real.
//
// Determinism comes from three substitutions:
//   - a scripted runner instead of subprocesses (no git, no network)
//   - a deterministic logical clock for transition sequence numbers
//   - fixed run tokens instead of UUIDv7
//
// The overlay verification step defaults to a listing that resolves the
// target library to the working tree. Scenarios script the interesting
// deviations: failing tests, broken installs, pinned listings.
//
// Golden files snapshot the per-unit lifecycle trace. Cross-unit
// interleaving depends on scheduling, so snapshots group transitions by
// unit and order units by key, which is stable at any parallelism.
package harness
