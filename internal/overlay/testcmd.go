package overlay

import (
	"strings"

	"github.com/roach88/downstream/internal/matrix"
	"github.com/roach88/downstream/internal/runner"
)

// TestStep builds the project's native test invocation. Each project
// supplies its own variant because the ecosystem of runners is
// heterogeneous; the variant is fixed in the ProjectSpec, never guessed
// here.
//
// Known exclusions are appended as runner deselect flags for the runner
// kind; for make/task/script variants the project's own wrapper is
// expected to honor them via the environment.
func TestStep(p matrix.ProjectSpec, dir string) runner.Step {
	var argv []string
	env := envList(p.Env)

	switch p.Test.Kind {
	case matrix.TestKindMake:
		target := p.Test.Target
		if target == "" {
			target = "test"
		}
		argv = append([]string{"make", target}, p.Test.Args...)
	case matrix.TestKindTask:
		argv = append([]string{"task", p.Test.Target}, p.Test.Args...)
	case matrix.TestKindScript:
		argv = append([]string{p.Test.Target}, p.Test.Args...)
	default: // TestKindRunner
		argv = []string{"python", "-m", "pytest"}
		if p.Test.Target != "" {
			argv = append(argv, strings.Fields(p.Test.Target)...)
		}
		argv = append(argv, p.Test.Args...)
		for _, name := range p.Exclude {
			argv = append(argv, "--deselect", name)
		}
	}

	if len(p.Exclude) > 0 && p.Test.Kind != matrix.TestKindRunner {
		env = append(env, "DOWNSTREAM_DESELECT="+strings.Join(p.Exclude, " "))
	}

	return runner.Step{Name: "test", Argv: argv, Dir: dir, Env: env}
}
