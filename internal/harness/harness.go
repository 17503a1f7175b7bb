package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"

	"github.com/roach88/downstream/internal/engine"
	"github.com/roach88/downstream/internal/matrix"
	"github.com/roach88/downstream/internal/overlay"
	"github.com/roach88/downstream/internal/runner"
	"github.com/roach88/downstream/internal/store"
	"github.com/roach88/downstream/internal/testutil"
)

// errScripted is returned by steps scripted with fail: true.
var errScripted = errors.New("scripted step failure")

// Result is the outcome of one scenario execution.
type Result struct {
	// Pass indicates overall success: every expectation and assertion held.
	Pass bool `json:"pass"`

	// RunToken is the recorded run's token, always "run-1".
	RunToken string `json:"run_token"`

	// Outcomes maps unit keys to their terminal outcome.
	Outcomes map[string]matrix.Outcome `json:"outcomes"`

	// Transitions is the recorded lifecycle trace, in sequence order.
	Transitions []store.Transition `json:"transitions"`

	// Errors lists every expectation or assertion that failed.
	Errors []string `json:"errors,omitempty"`
}

// AddError records a failed check and marks the result as failed.
func (r *Result) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Pass = false
}

// Run executes a scenario against the real engine and evaluates its
// expectations. Each scenario runs in a fresh in-memory database.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("create in-memory store: %w", err)
	}
	defer st.Close()

	envRoot, err := os.MkdirTemp("", "downstream-harness-")
	if err != nil {
		return nil, fmt.Errorf("create environment root: %w", err)
	}
	defer os.RemoveAll(envRoot)

	ov := overlay.Overlay{
		Package:  scenario.Overlay.Package,
		Worktree: scenario.Overlay.Worktree,
	}
	scripted := testutil.NewScriptedRunner(scriptSteps(scenario, ov))

	eng := engine.New(st, ov, envRoot,
		engine.WithRunnerFactory(func(u matrix.ExecutionUnit) runner.Runner {
			return scripted.WithUnit(u.Key)
		}),
		engine.WithClock(testutil.NewDeterministicClock()),
		engine.WithTokenGenerator(engine.NewFixedGenerator("run-1")),
		engine.WithParallelism(1),
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	ctx := context.Background()
	runResult, err := eng.Run(ctx, scenario.Projects, scenario.RunContext(), "harness/"+scenario.Name)
	if err != nil {
		return nil, fmt.Errorf("engine run: %w", err)
	}

	transitions, err := st.ReadTransitions(ctx, runResult.RunToken)
	if err != nil {
		return nil, fmt.Errorf("read transitions: %w", err)
	}

	result := &Result{
		Pass:        true,
		RunToken:    runResult.RunToken,
		Outcomes:    make(map[string]matrix.Outcome, len(runResult.Units)),
		Transitions: transitions,
	}
	for _, u := range runResult.Units {
		result.Outcomes[u.Unit.Key] = u.Outcome
	}

	evaluateExpect(scenario, result)
	EvaluateAssertions(scenario.Assertions, result)

	return result, nil
}

// scriptSteps builds the runner's script table. Every scenario gets a
// default verified listing; scenario entries override it, with the
// listing shorthand expanded to the matching synthetic output.
func scriptSteps(scenario *Scenario, ov overlay.Overlay) map[string]testutil.ScriptedStep {
	steps := map[string]testutil.ScriptedStep{
		"verify": {Output: testutil.VerifiedListing(ov.Package, ov.Worktree)},
	}
	for key, s := range scenario.Steps {
		scripted := testutil.ScriptedStep{ExitCode: s.Exit, Output: s.Output}
		switch s.Listing {
		case "editable":
			scripted.Output = testutil.VerifiedListing(ov.Package, ov.Worktree)
		case "pinned":
			scripted.Output = testutil.PinnedListing(ov.Package, "1.0.0")
		}
		if s.Fail {
			scripted.Err = errScripted
		}
		steps[key] = scripted
	}
	return steps
}

// evaluateExpect checks the scenario's unit outcome expectations.
func evaluateExpect(scenario *Scenario, result *Result) {
	keys := make([]string, 0, len(scenario.Expect))
	for key := range scenario.Expect {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		want := matrix.Outcome(scenario.Expect[key])
		got, ok := result.Outcomes[key]
		if !ok {
			result.AddError(fmt.Sprintf("expect[%s]: unit not in run", key))
			continue
		}
		if got != want {
			result.AddError(fmt.Sprintf("expect[%s]: outcome is %s, want %s", key, got, want))
		}
	}
}
