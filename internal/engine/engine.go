package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/downstream/internal/gate"
	"github.com/roach88/downstream/internal/matrix"
	"github.com/roach88/downstream/internal/overlay"
	"github.com/roach88/downstream/internal/runner"
	"github.com/roach88/downstream/internal/store"
)

// DefaultParallelism caps concurrently executing units. Matrix cells are
// independent, but each spawns real subprocesses and service waits.
const DefaultParallelism = 4

// RunnerFactory returns the Runner for one unit. The production factory
// returns a shared ExecRunner; the harness returns per-unit scripted
// runners.
type RunnerFactory func(u matrix.ExecutionUnit) runner.Runner

// ServiceWaiter waits for a unit's auxiliary services.
// Implemented by services.Waiter.
type ServiceWaiter interface {
	WaitAll(ctx context.Context, svcs []matrix.Service) error
}

// noServices is the default waiter for configurations without services.
type noServices struct{}

func (noServices) WaitAll(ctx context.Context, svcs []matrix.Service) error {
	if len(svcs) > 0 {
		return fmt.Errorf("no service waiter configured for %v", svcs)
	}
	return nil
}

// Engine executes compatibility runs.
type Engine struct {
	store   *store.Store
	overlay overlay.Overlay
	envRoot string

	runnerFor   RunnerFactory
	waiter      ServiceWaiter
	clock       Sequencer
	tokens      TokenGenerator
	super         *Supervisor
	parallelism   int
	tailLines     int
	checkerPlugin string
	logger        *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithRunnerFactory overrides subprocess execution (harness, tests).
func WithRunnerFactory(f RunnerFactory) Option {
	return func(e *Engine) { e.runnerFor = f }
}

// WithServiceWaiter sets the auxiliary-service waiter.
func WithServiceWaiter(w ServiceWaiter) Option {
	return func(e *Engine) { e.waiter = w }
}

// WithClock overrides the transition clock (deterministic tests).
func WithClock(c Sequencer) Option {
	return func(e *Engine) { e.clock = c }
}

// WithTokenGenerator overrides run token generation (deterministic tests).
func WithTokenGenerator(g TokenGenerator) Option {
	return func(e *Engine) { e.tokens = g }
}

// WithParallelism caps concurrently executing units.
func WithParallelism(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.parallelism = n
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithCheckerPlugin materializes the plugin-enabled strict type-checker
// fragment into each unit environment.
func WithCheckerPlugin(plugin string) Option {
	return func(e *Engine) { e.checkerPlugin = plugin }
}

// New creates an Engine. envRoot is the directory under which per-unit
// environments are created; each run uses envRoot/<token>/<unit>.
func New(st *store.Store, ov overlay.Overlay, envRoot string, opts ...Option) *Engine {
	sharedExec := &runner.ExecRunner{}
	e := &Engine{
		store:       st,
		overlay:     ov,
		envRoot:     envRoot,
		runnerFor:   func(matrix.ExecutionUnit) runner.Runner { return sharedExec },
		waiter:      noServices{},
		clock:       NewClock(),
		tokens:      UUIDv7Generator{},
		super:       NewSupervisor(),
		parallelism: DefaultParallelism,
		tailLines:   40,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Supervisor exposes the engine's supersession registry. Shared when
// several entry points must contend on the same concurrency keys.
func (e *Engine) Supervisor() *Supervisor {
	return e.super
}

// Run executes one full compatibility run: expand the table, execute
// every unit in parallel, record outcomes, return the per-unit result.
//
// A unit failing is NOT an error from Run - it is part of the RunResult.
// Run returns an error only when the run itself could not be recorded or
// started.
//
// concurrencyKey groups runs for supersession: a newer Run call with the
// same key cancels this one, and this run's unfinished units are recorded
// as skipped.
func (e *Engine) Run(ctx context.Context, specs []matrix.ProjectSpec, rc gate.RunContext, concurrencyKey string) (matrix.RunResult, error) {
	token := e.tokens.Generate()
	units := matrix.Expand(specs)

	runCtx, supersededToken, done := e.super.Begin(ctx, concurrencyKey, token)
	defer done()

	if supersededToken != "" {
		e.logger.Info("superseding in-flight run",
			"key", concurrencyKey, "old_token", supersededToken, "new_token", token)
		if err := e.store.MarkSuperseded(ctx, supersededToken); err != nil {
			e.logger.Error("mark superseded failed", "token", supersededToken, "error", err)
		}
	}

	meta := store.RunMeta{
		Token:          token,
		ConcurrencyKey: concurrencyKey,
		SpecHash:       matrix.SpecHash(specs),
		Context:        rc,
	}
	if err := e.store.BeginRun(ctx, meta, units); err != nil {
		return matrix.RunResult{}, fmt.Errorf("begin run: %w", err)
	}

	e.logger.Info("run started", "token", token, "units", len(units), "event", string(rc.Event))

	// Non-fail-fast parallel execution: every unit runs to its own
	// terminal state regardless of siblings. The semaphore only bounds
	// resource usage, it carries no ordering semantics.
	results := make([]matrix.UnitResult, len(units))
	sem := make(chan struct{}, e.parallelism)
	var wg sync.WaitGroup
	for i, u := range units {
		wg.Add(1)
		go func(i int, u matrix.ExecutionUnit) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = e.executeUnit(runCtx, token, u)
		}(i, u)
	}
	wg.Wait()

	// The result write uses the parent context: a superseded run still
	// records its skipped units before yielding.
	for _, res := range results {
		if err := e.store.WriteUnitResult(ctx, token, res); err != nil {
			e.logger.Error("record unit result failed", "unit", res.Unit.Key, "error", err)
		}
	}

	result := matrix.RunResult{RunToken: token, Units: results}
	e.logger.Info("run finished", "token", token,
		"failed", len(result.Failed()), "total", len(result.Units))
	return result, nil
}
