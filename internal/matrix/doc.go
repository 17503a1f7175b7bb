// Package matrix provides the core types for the downstream compatibility
// harness: project specs, execution units, unit states, and run results.
//
// This package contains type definitions and pure expansion logic only. All
// other internal packages import matrix; matrix imports nothing internal.
// This keeps it the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - One ExecutionUnit per (project, language version) pair; expansion is
//     per-project, never across projects.
//   - Unit states move forward only (no transition back); each unit executes
//     exactly once per run.
//   - RunResult is always per-unit; it is never collapsed to a single boolean.
package matrix
