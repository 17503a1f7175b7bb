package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/downstream/internal/report"
	"github.com/roach88/downstream/internal/store"
)

// ReportOptions holds flags for the report command.
type ReportOptions struct {
	*RootOptions
	Database string
	Token    string
	Trace    bool
}

// NewReportCommand creates the report command.
func NewReportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show the per-unit results of a recorded run",
		Long: `Show the per-unit results of a recorded run.

Reads the run history database and prints one line per execution unit.
Defaults to the most recent run; pass --token for an earlier one.

Example:
  downstream report --db ./downstream.db
  downstream report --db ./downstream.db --token 0190a8b2-... --trace`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to run history database (required)")
	cmd.Flags().StringVar(&opts.Token, "token", "", "run token (defaults to latest run)")
	cmd.Flags().BoolVar(&opts.Trace, "trace", false, "include per-unit lifecycle transitions")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

// ReportData is the JSON payload of the report command.
type ReportData struct {
	Run         store.RunRecord    `json:"run"`
	Summary     report.Summary     `json:"summary"`
	Transitions []store.Transition `json:"transitions,omitempty"`
}

func runReport(opts *ReportOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if _, err := os.Stat(opts.Database); os.IsNotExist(err) {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("database not found: %s", opts.Database), nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", opts.Database))
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	ctx := cmd.Context()

	token := opts.Token
	if token == "" {
		token, err = st.LatestRunToken(ctx)
		if errors.Is(err, store.ErrRunNotFound) {
			_ = formatter.Error(ErrCodeNotFound, "no runs recorded", nil)
			return NewExitError(ExitCommandError, "no runs recorded")
		}
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to find latest run", err)
		}
	}

	run, err := st.ReadRun(ctx, token)
	if errors.Is(err, store.ErrRunNotFound) {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("run %s not found", token), nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("run %s not found", token))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}

	result, err := st.ReadResult(ctx, token)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read results", err)
	}

	data := ReportData{
		Run:     run,
		Summary: report.Summarize(result),
	}
	if opts.Trace {
		data.Transitions, err = st.ReadTransitions(ctx, token)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read transitions", err)
		}
	}

	if formatter.Format == "json" {
		return formatter.Success(data)
	}

	if run.Superseded {
		fmt.Fprintln(formatter.Writer, "(superseded by a later run)")
	}
	fmt.Fprint(formatter.Writer, data.Summary.Text())

	if opts.Trace {
		fmt.Fprintln(formatter.Writer)
		for _, tr := range data.Transitions {
			fmt.Fprintf(formatter.Writer, "%4d  %-40s %s -> %s\n", tr.Seq, tr.UnitKey, tr.From, tr.To)
		}
	}

	return nil
}
