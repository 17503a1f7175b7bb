package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/downstream/internal/config"
	"github.com/roach88/downstream/internal/gate"
)

// GateOptions holds flags for the gate command.
type GateOptions struct {
	*RootOptions
	Config string
}

// GateDecision is the JSON payload of the gate command.
type GateDecision struct {
	Enabled    bool   `json:"enabled"`
	Event      string `json:"event"`
	Repository string `json:"repository"`
	Canonical  string `json:"canonical"`
	Label      string `json:"label"`
}

// NewGateCommand creates the gate command.
func NewGateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "gate",
		Short: "Decide whether gated jobs run for the current trigger",
		Long: `Decide whether gated jobs run for the current trigger.

Reads the trigger context from the environment: scheduled and dispatched
runs pass only on the canonical repository, pull-request runs only when
the opt-in label is present. Exits 0 when the gate is open and 1 when it
is closed, so schedulers can condition later steps on it directly.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGate(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "downstream.toml", "path to harness configuration")

	return cmd
}

func runGate(opts *GateOptions, cmd *cobra.Command) error {
	cfg, err := config.LoadFrom(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load configuration", err)
	}

	rc := cfg.ContextFromEnv()
	decision := GateDecision{
		Enabled:    gate.GatedJobsEnabled(rc, cfg.Label),
		Event:      string(rc.Event),
		Repository: rc.Repository,
		Canonical:  rc.Canonical,
		Label:      cfg.Label,
	}

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if formatter.Format == "json" {
		if err := formatter.Success(decision); err != nil {
			return err
		}
	} else if decision.Enabled {
		fmt.Fprintln(formatter.Writer, "gate open")
	} else {
		fmt.Fprintln(formatter.Writer, "gate closed")
	}

	if !decision.Enabled {
		return NewExitError(ExitFailure, "gate closed")
	}
	return nil
}
