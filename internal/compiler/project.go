package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/downstream/internal/matrix"
)

// CompileProject parses a CUE value into a ProjectSpec.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the project struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`project: requests: { ... }`)
//	spec, err := CompileProject(v.LookupPath(cue.ParsePath("project.requests")))
func CompileProject(v cue.Value) (*matrix.ProjectSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &matrix.ProjectSpec{}

	// Project name comes from the struct label (the path selector)
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		spec.Name = labels[len(labels)-1].Unquoted()
	}

	// Repo (required)
	repoVal := v.LookupPath(cue.ParsePath("repo"))
	if !repoVal.Exists() {
		return nil, &CompileError{
			Field:   "repo",
			Message: "repo is required",
			Pos:     v.Pos(),
		}
	}
	repo, err := repoVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	spec.Repo = repo

	// Ref (optional)
	if refVal := v.LookupPath(cue.ParsePath("ref")); refVal.Exists() {
		if spec.Ref, err = refVal.String(); err != nil {
			return nil, formatCUEError(err)
		}
	}

	// Versions (required, at least one)
	spec.Versions, err = parseStringList(v, "versions")
	if err != nil {
		return nil, err
	}
	if len(spec.Versions) == 0 {
		return nil, &CompileError{
			Field:   "versions",
			Message: "at least one language version is required",
			Pos:     v.Pos(),
		}
	}

	// Install recipe (required, at least one step)
	spec.Install, err = parseStringList(v, "install")
	if err != nil {
		return nil, err
	}
	if len(spec.Install) == 0 {
		return nil, &CompileError{
			Field:   "install",
			Message: "at least one install step is required",
			Pos:     v.Pos(),
		}
	}

	// Test command (required)
	spec.Test, err = parseTestCommand(v)
	if err != nil {
		return nil, err
	}

	// Services (optional)
	spec.Services, err = parseServices(v)
	if err != nil {
		return nil, err
	}

	// Exclude (optional)
	spec.Exclude, err = parseStringList(v, "exclude")
	if err != nil {
		return nil, err
	}

	// Env (optional)
	spec.Env, err = parseEnv(v)
	if err != nil {
		return nil, err
	}

	return spec, nil
}

func parseTestCommand(v cue.Value) (matrix.TestCommand, error) {
	testVal := v.LookupPath(cue.ParsePath("test"))
	if !testVal.Exists() {
		return matrix.TestCommand{}, &CompileError{
			Field:   "test",
			Message: "test is required",
			Pos:     v.Pos(),
		}
	}

	cmd := matrix.TestCommand{}

	kindVal := testVal.LookupPath(cue.ParsePath("kind"))
	if !kindVal.Exists() {
		return cmd, &CompileError{
			Field:   "test.kind",
			Message: "test.kind is required",
			Pos:     testVal.Pos(),
		}
	}
	kind, err := kindVal.String()
	if err != nil {
		return cmd, formatCUEError(err)
	}
	cmd.Kind = matrix.TestCommandKind(kind)
	if !matrix.ValidTestKinds[cmd.Kind] {
		return cmd, &CompileError{
			Field:   "test.kind",
			Message: fmt.Sprintf("unknown test kind %q", kind),
			Pos:     kindVal.Pos(),
		}
	}

	if targetVal := testVal.LookupPath(cue.ParsePath("target")); targetVal.Exists() {
		if cmd.Target, err = targetVal.String(); err != nil {
			return cmd, formatCUEError(err)
		}
	}
	// Make, task, and script invocations need something to invoke.
	if cmd.Kind != matrix.TestKindRunner && cmd.Target == "" {
		return cmd, &CompileError{
			Field:   "test.target",
			Message: fmt.Sprintf("test.target is required for kind %q", cmd.Kind),
			Pos:     testVal.Pos(),
		}
	}

	cmd.Args, err = parseStringList(testVal, "args")
	if err != nil {
		return cmd, err
	}

	return cmd, nil
}

func parseServices(v cue.Value) ([]matrix.Service, error) {
	names, err := parseStringList(v, "services")
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, nil
	}

	services := make([]matrix.Service, 0, len(names))
	for _, name := range names {
		svc := matrix.Service(name)
		if !matrix.ValidServices[svc] {
			return nil, &CompileError{
				Field:   "services",
				Message: fmt.Sprintf("unknown service %q", name),
				Pos:     v.LookupPath(cue.ParsePath("services")).Pos(),
			}
		}
		services = append(services, svc)
	}
	return services, nil
}

func parseEnv(v cue.Value) (map[string]string, error) {
	envVal := v.LookupPath(cue.ParsePath("env"))
	if !envVal.Exists() {
		return nil, nil
	}

	iter, err := envVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	env := map[string]string{}
	for iter.Next() {
		val, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		env[iter.Selector().Unquoted()] = val
	}
	return env, nil
}

func parseStringList(v cue.Value, field string) ([]string, error) {
	listVal := v.LookupPath(cue.ParsePath(field))
	if !listVal.Exists() {
		return nil, nil
	}

	iter, err := listVal.List()
	if err != nil {
		return nil, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("%s must be a list of strings", field),
			Pos:     listVal.Pos(),
		}
	}

	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
