package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/downstream/internal/matrix"
)

// PlanResult is the expanded execution plan for a project table.
type PlanResult struct {
	SpecHash string             `json:"spec_hash"`
	Projects int                `json:"projects"`
	Units    []PlanUnit         `json:"units"`
}

// PlanUnit is one cell of the plan.
type PlanUnit struct {
	Key      string           `json:"key"`
	Project  string           `json:"project"`
	Version  string           `json:"version"`
	Services []matrix.Service `json:"services,omitempty"`
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan <projects-dir>",
		Short: "Show the execution units a run would schedule",
		Long: `Expand the project table into its execution units without running them.

Each project crossed with each of its language versions yields one unit.
The listing order is the order the engine schedules in.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runPlan(opts *RootOptions, projectsDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	loadResult, loadErrors := LoadProjects(projectsDir, LoadModeFailFast)
	if len(loadErrors) > 0 {
		var loadErr *LoadError
		if errors.As(loadErrors[0], &loadErr) {
			_ = formatter.Error(loadErr.Code, loadErr.Message, nil)
			return NewExitError(ExitCommandError, loadErr.Error())
		}
		_ = formatter.Error(ErrCodeGeneric, loadErrors[0].Error(), nil)
		return NewExitError(ExitCommandError, loadErrors[0].Error())
	}

	units := matrix.Expand(loadResult.Projects)
	result := PlanResult{
		SpecHash: matrix.SpecHash(loadResult.Projects),
		Projects: len(loadResult.Projects),
	}
	for _, u := range units {
		result.Units = append(result.Units, PlanUnit{
			Key:      u.Key,
			Project:  u.Project.Name,
			Version:  u.Version,
			Services: u.Project.Services,
		})
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "%d project(s), %d unit(s), spec %s\n\n",
		result.Projects, len(result.Units), shortHash(result.SpecHash))

	w := tabwriter.NewWriter(formatter.Writer, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "UNIT\tPROJECT\tVERSION\tSERVICES")
	for _, u := range result.Units {
		svcs := "-"
		if len(u.Services) > 0 {
			svcs = ""
			for i, s := range u.Services {
				if i > 0 {
					svcs += ","
				}
				svcs += string(s)
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", u.Key, u.Project, u.Version, svcs)
	}
	return w.Flush()
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
