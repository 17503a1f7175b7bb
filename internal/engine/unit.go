package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/downstream/internal/matrix"
	"github.com/roach88/downstream/internal/overlay"
	"github.com/roach88/downstream/internal/runner"
	"github.com/roach88/downstream/internal/typecheck"
)

// executeUnit drives one ExecutionUnit through its lifecycle and returns
// its terminal result. Never returns an error: every failure mode maps to
// a terminal outcome, because a unit's trouble must not escape into the
// scheduler and affect siblings.
func (e *Engine) executeUnit(ctx context.Context, token string, u matrix.ExecutionUnit) matrix.UnitResult {
	rec := &unitRecorder{engine: e, token: token, unit: u, state: matrix.StatePending}
	r := e.runnerFor(u)

	if ctx.Err() != nil {
		return rec.skipped()
	}

	envDir := filepath.Join(e.envRoot, token, sanitizeKey(u.Key))
	projectDir := filepath.Join(envDir, "project")
	if err := os.MkdirAll(envDir, 0o755); err != nil {
		return rec.errored(&UnitError{
			Code: ErrCodeFetchFailed, UnitKey: u.Key, Step: "env",
			Message: "create environment", Err: err,
		})
	}

	// fetch
	rec.advance(matrix.StateFetching)
	res, err := r.Run(ctx, overlay.FetchStep(u.Project, projectDir))
	if err != nil {
		return rec.abandonOrError(ctx, &UnitError{
			Code: ErrCodeFetchFailed, UnitKey: u.Key, Step: "fetch",
			Message: "fetch project source", Output: res.Output, Err: err,
		})
	}
	if res.ExitCode != 0 {
		return rec.errored(&UnitError{
			Code: ErrCodeFetchFailed, UnitKey: u.Key, Step: "fetch",
			Message: fmt.Sprintf("fetch exited %d", res.ExitCode), Output: res.Output,
		})
	}

	// overlay install: project deps, then force-replace the pinned
	// release with the editable working tree
	rec.advance(matrix.StateOverlayInstall)
	for _, step := range overlay.InstallSteps(u.Project, projectDir) {
		res, err = r.Run(ctx, step)
		if err != nil {
			return rec.abandonOrError(ctx, &UnitError{
				Code: ErrCodeOverlayInstall, UnitKey: u.Key, Step: step.Name,
				Message: "dependency install", Output: res.Output, Err: err,
			})
		}
		if res.ExitCode != 0 {
			return rec.errored(&UnitError{
				Code: ErrCodeOverlayInstall, UnitKey: u.Key, Step: step.Name,
				Message: fmt.Sprintf("install exited %d", res.ExitCode), Output: res.Output,
			})
		}
	}

	// The pinned release may legitimately be absent (the project floats
	// the dependency), so a non-zero uninstall is logged, not fatal.
	res, err = r.Run(ctx, e.overlay.RemoveStep(projectDir))
	if err != nil {
		return rec.abandonOrError(ctx, &UnitError{
			Code: ErrCodeOverlayInstall, UnitKey: u.Key, Step: "overlay-remove",
			Message: "remove pinned release", Output: res.Output, Err: err,
		})
	}
	if res.ExitCode != 0 {
		e.logger.Debug("pinned release not removed", "unit", u.Key, "exit", res.ExitCode)
	}

	res, err = r.Run(ctx, e.overlay.InstallStep(projectDir))
	if err != nil {
		return rec.abandonOrError(ctx, &UnitError{
			Code: ErrCodeOverlayInstall, UnitKey: u.Key, Step: "overlay-install",
			Message: "editable install", Output: res.Output, Err: err,
		})
	}
	if res.ExitCode != 0 {
		return rec.errored(&UnitError{
			Code: ErrCodeOverlayInstall, UnitKey: u.Key, Step: "overlay-install",
			Message: fmt.Sprintf("editable install exited %d", res.ExitCode), Output: res.Output,
		})
	}

	// verify: the listing must resolve the target library to the
	// working tree, or this unit would test the wrong version
	res, err = r.Run(ctx, e.overlay.VerifyStep(projectDir))
	if err != nil {
		return rec.abandonOrError(ctx, &UnitError{
			Code: ErrCodeOverlayNotVerified, UnitKey: u.Key, Step: "verify",
			Message: "package listing", Output: res.Output, Err: err,
		})
	}
	ok, err := e.overlay.Verified(res.Output)
	if err != nil {
		return rec.errored(&UnitError{
			Code: ErrCodeOverlayNotVerified, UnitKey: u.Key, Step: "verify",
			Message: "unreadable package listing", Output: res.Output, Err: err,
		})
	}
	if !ok {
		return rec.errored(&UnitError{
			Code: ErrCodeOverlayNotVerified, UnitKey: u.Key, Step: "verify",
			Message: "target library did not resolve to the working tree", Output: res.Output,
		})
	}
	rec.advance(matrix.StateOverlayVerified)

	// The checker fragment rides along in the environment for projects
	// whose suites run the type checker with the library's plugin.
	if e.checkerPlugin != "" {
		if err := typecheck.Strict(e.checkerPlugin).WriteTo(envDir); err != nil {
			e.logger.Warn("checker fragment not written", "unit", u.Key, "error", err)
		}
	}

	// services
	if err := e.waiter.WaitAll(ctx, u.Project.Services); err != nil {
		return rec.abandonOrError(ctx, &UnitError{
			Code: ErrCodeServiceUnready, UnitKey: u.Key, Step: "services",
			Message: "auxiliary services", Err: err,
		})
	}

	// test: the project's own invocation; its exit status is the
	// unit's outcome. No retry - a failing third-party test is signal.
	rec.advance(matrix.StateTesting)
	res, err = r.Run(ctx, overlay.TestStep(u.Project, projectDir))
	if err != nil {
		return rec.abandonOrError(ctx, &UnitError{
			Code: ErrCodeTestNotRun, UnitKey: u.Key, Step: "test",
			Message: "test command did not run", Output: res.Output, Err: err,
		})
	}
	if res.ExitCode != 0 {
		rec.advance(matrix.StateFailed)
		return matrix.UnitResult{
			Unit:       u,
			Outcome:    matrix.OutcomeFailed,
			Detail:     fmt.Sprintf("test exited %d", res.ExitCode),
			OutputTail: runner.Tail(res.Output, e.tailLines),
		}
	}

	rec.advance(matrix.StatePassed)
	return matrix.UnitResult{Unit: u, Outcome: matrix.OutcomePassed}
}

// unitRecorder tracks a unit's lifecycle state and records transitions.
type unitRecorder struct {
	engine *Engine
	token  string
	unit   matrix.ExecutionUnit
	state  matrix.UnitState
}

// advance moves to the next state and records the transition. An illegal
// transition is a programming error in the pipeline, not a runtime
// condition, so it panics.
func (rec *unitRecorder) advance(to matrix.UnitState) {
	if !matrix.CanTransition(rec.state, to) {
		panic(fmt.Sprintf("illegal transition %s -> %s for %s", rec.state, to, rec.unit.Key))
	}
	seq := rec.engine.clock.Next()
	// Recording uses a background-scoped call path: transition history
	// must be written even while the run context is being cancelled.
	if err := rec.engine.store.WriteTransition(context.Background(), rec.token, rec.unit.Key, seq, rec.state, to); err != nil {
		rec.engine.logger.Error("record transition failed",
			"unit", rec.unit.Key, "to", string(to), "error", err)
	}
	rec.state = to
}

// errored finishes the unit with an errored outcome.
func (rec *unitRecorder) errored(ue *UnitError) matrix.UnitResult {
	rec.engine.logger.Warn("unit errored", "unit", rec.unit.Key, "code", string(ue.Code), "step", ue.Step)
	rec.advance(matrix.StateErrored)
	return matrix.UnitResult{
		Unit:       rec.unit,
		Outcome:    matrix.OutcomeErrored,
		Detail:     string(ue.Code) + ": " + ue.Message,
		OutputTail: runner.Tail(ue.Output, rec.engine.tailLines),
	}
}

// skipped finishes a unit abandoned by supersession before or during
// execution.
func (rec *unitRecorder) skipped() matrix.UnitResult {
	rec.advance(matrix.StateSkipped)
	return matrix.UnitResult{
		Unit:    rec.unit,
		Outcome: matrix.OutcomeSkipped,
		Detail:  "SUPERSEDED",
	}
}

// abandonOrError distinguishes supersession from a real step failure: a
// step torn down by run cancellation records the unit as skipped, any
// other execution error records it as errored.
func (rec *unitRecorder) abandonOrError(ctx context.Context, ue *UnitError) matrix.UnitResult {
	if ctx.Err() != nil {
		return rec.skipped()
	}
	return rec.errored(ue)
}

// sanitizeKey makes a unit key safe as a directory name.
func sanitizeKey(key string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':':
			return '-'
		}
		return r
	}, key)
}
