package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/downstream/internal/config"
	"github.com/roach88/downstream/internal/engine"
	"github.com/roach88/downstream/internal/gate"
	"github.com/roach88/downstream/internal/overlay"
	"github.com/roach88/downstream/internal/report"
	"github.com/roach88/downstream/internal/services"
	"github.com/roach88/downstream/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Config string
	Force  bool
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <projects-dir>",
		Short: "Run the project table against the overlay",
		Long: `Run every project's own test suite against the in-development overlay.

The gate decides first: scheduled and dispatched runs execute only on the
canonical repository, pull-request runs only when the opt-in label is
present. When the gate is closed the command exits zero without running
anything, so skipping is never mistaken for failure.

Each (project, language version) unit fetches the project, installs its
dependencies, swaps in the overlay in editable mode, verifies the swap
took, and runs the project's native tests. Units never fail fast against
each other.

Example:
  downstream run --config downstream.toml ./projects
  downstream run --config ci.toml ./projects --force`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHarness(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "downstream.toml", "path to harness configuration")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "run even when the gate is closed (local use)")

	return cmd
}

func runHarness(opts *RunOptions, projectsDir string, cmd *cobra.Command) error {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	})
	logger := slog.New(handler)
	slog.SetDefault(logger)

	cfg, err := config.LoadFrom(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load configuration", err)
	}

	rc := cfg.ContextFromEnv()

	// Gate first. A closed gate is a clean no-op, never a failure.
	if !opts.Force && !gate.GatedJobsEnabled(rc, cfg.Label) {
		logger.Info("gate closed, not running",
			"event", rc.Event, "repository", rc.Repository, "label", cfg.Label)
		fmt.Fprintln(cmd.OutOrStdout(), "gate closed: nothing to run")
		return nil
	}

	logger.Info("loading project table", "dir", projectsDir)
	loadResult, loadErrors := LoadProjects(projectsDir, LoadModeFailFast)
	if len(loadErrors) > 0 {
		var loadErr *LoadError
		if errors.As(loadErrors[0], &loadErr) {
			return WrapExitError(ExitCommandError, "failed to load project table", loadErr)
		}
		return WrapExitError(ExitCommandError, "failed to load project table", loadErrors[0])
	}
	logger.Info("project table loaded", "projects", len(loadResult.Projects))

	logger.Info("opening database", "path", cfg.Database)
	st, err := store.Open(cfg.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	ov := overlay.Overlay{
		Package:  cfg.Overlay.Package,
		Worktree: cfg.Overlay.Worktree,
	}
	eng := engine.New(st, ov, cfg.EnvRoot,
		engine.WithServiceWaiter(services.NewWaiter(cfg.ServiceConfig())),
		engine.WithParallelism(cfg.Parallelism),
		engine.WithCheckerPlugin(cfg.Overlay.Plugin),
		engine.WithLogger(logger),
	)

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	result, err := eng.Run(ctx, loadResult.Projects, rc, config.ConcurrencyKey(rc))
	if err != nil {
		return WrapExitError(ExitCommandError, "run failed", err)
	}

	summary := report.Summarize(result)
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	if formatter.Format == "json" {
		if err := formatter.Success(summary); err != nil {
			return err
		}
	} else {
		fmt.Fprint(formatter.Writer, summary.Text())
	}

	failures := result.Failed()
	if gate.ShouldFileIssue(rc, cfg.Issues.Enabled, len(failures)) {
		filer := &report.GitHubFiler{
			BaseURL:    cfg.Issues.BaseURL,
			Repository: cfg.Issues.Repository,
			Token:      cfg.Issues.Token,
			Logger:     logger,
		}
		issue := report.BuildIssue(rc, result, time.Now())
		if fileErr := filer.File(ctx, issue); fileErr != nil {
			// Filing trouble must not mask the run's own result.
			logger.Error("issue filing failed", "error", fileErr)
		}
	}

	if len(failures) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d unit(s) failed", len(failures)))
	}
	return nil
}
