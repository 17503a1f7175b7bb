// Package testutil provides deterministic helpers shared by engine and
// harness tests: a resettable logical clock and a scripted subprocess
// runner that executes nothing.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/downstream/internal/runner"
)

// ScriptedStep describes the scripted result for one step name.
type ScriptedStep struct {
	ExitCode int
	Output   string
	// Err, when non-nil, is returned instead of a result (step never ran).
	Err error
}

// ScriptedRunner returns pre-configured results keyed by "<unit>/<step>"
// or by bare step name. No subprocess is ever spawned.
//
// Keys are matched most-specific first: a "sqlmodel@3.12/test" entry wins
// over a bare "test" entry. Steps with no entry succeed with empty output,
// so scenarios only script the interesting steps.
type ScriptedRunner struct {
	mu    sync.Mutex
	steps map[string]ScriptedStep
	// Unit scopes lookups; the engine sets it per unit via WithUnit.
	unit string
	// Calls records every step name executed, in order.
	calls []string
}

// NewScriptedRunner creates a runner with the given scripted steps.
func NewScriptedRunner(steps map[string]ScriptedStep) *ScriptedRunner {
	if steps == nil {
		steps = map[string]ScriptedStep{}
	}
	return &ScriptedRunner{steps: steps}
}

// WithUnit returns a view of the runner scoped to a unit key. The views
// share the script table and call log.
func (r *ScriptedRunner) WithUnit(unitKey string) *ScriptedRunner {
	return &ScriptedRunner{steps: r.steps, unit: unitKey}
}

// Run returns the scripted result for the step.
func (r *ScriptedRunner) Run(ctx context.Context, step runner.Step) (runner.Result, error) {
	if err := ctx.Err(); err != nil {
		return runner.Result{}, fmt.Errorf("step %s: %w", step.Name, err)
	}

	r.mu.Lock()
	r.calls = append(r.calls, step.Name)
	scripted, ok := r.steps[r.unit+"/"+step.Name]
	if !ok {
		scripted, ok = r.steps[step.Name]
	}
	r.mu.Unlock()

	if !ok {
		return runner.Result{ExitCode: 0}, nil
	}
	if scripted.Err != nil {
		return runner.Result{}, scripted.Err
	}
	return runner.Result{ExitCode: scripted.ExitCode, Output: scripted.Output}, nil
}

// Calls returns the step names executed so far on this view.
func (r *ScriptedRunner) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	copy(out, r.calls)
	return out
}
