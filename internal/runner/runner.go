// Package runner abstracts subprocess execution for the harness.
//
// Every external step (git fetch, dependency install, overlay install,
// package listing, test invocation) goes through the Runner interface so
// the engine and harness can substitute a scripted fake. The production
// implementation is ExecRunner on os/exec.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Step is one subprocess invocation.
type Step struct {
	// Name labels the step for logs and transition records
	// (e.g. "fetch", "install", "overlay", "verify", "test").
	Name string

	// Argv is the command and its arguments. Never passed through a
	// shell; projects supply argv-shaped recipes.
	Argv []string

	// Dir is the working directory. Empty means the process default.
	Dir string

	// Env holds extra KEY=VALUE entries appended to the parent
	// environment.
	Env []string
}

// Result captures a completed step.
type Result struct {
	// ExitCode is the process exit status. Zero on success.
	ExitCode int

	// Output is the combined stdout+stderr.
	Output string
}

// Runner executes steps. Implementations must honor ctx cancellation:
// a superseded run abandons in-flight steps through its context.
type Runner interface {
	Run(ctx context.Context, step Step) (Result, error)
}

// ExecRunner runs steps as real subprocesses.
type ExecRunner struct {
	// BaseEnv, when non-nil, replaces the parent environment. Used to
	// isolate unit environments from the harness's own environment.
	BaseEnv []string
}

// Run executes the step and returns its result. A non-zero exit status is
// reported in Result.ExitCode with a nil error: callers decide whether a
// non-zero exit is a failure outcome or a fatal error. Errors are reserved
// for the step not running at all (missing binary, cancelled context).
func (r *ExecRunner) Run(ctx context.Context, step Step) (Result, error) {
	if len(step.Argv) == 0 {
		return Result{}, errors.New("empty argv")
	}

	cmd := exec.CommandContext(ctx, step.Argv[0], step.Argv[1:]...)
	cmd.Dir = step.Dir
	env := r.BaseEnv
	if env == nil {
		env = os.Environ()
	}
	cmd.Env = append(append([]string{}, env...), step.Env...)

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	err := cmd.Run()
	out := buf.String()

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// Context cancellation also surfaces as a killed process;
			// report it as an error, not a test failure.
			if ctx.Err() != nil {
				return Result{ExitCode: exitErr.ExitCode(), Output: out}, fmt.Errorf("step %s: %w", step.Name, ctx.Err())
			}
			return Result{ExitCode: exitErr.ExitCode(), Output: out}, nil
		}
		return Result{ExitCode: -1, Output: out}, fmt.Errorf("step %s: %w", step.Name, err)
	}

	return Result{ExitCode: 0, Output: out}, nil
}

// Tail returns the last n lines of output, for storing alongside a failed
// unit without keeping full logs.
func Tail(output string, n int) string {
	output = strings.TrimRight(output, "\n")
	if output == "" {
		return ""
	}
	lines := strings.Split(output, "\n")
	if len(lines) <= n {
		return output
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}
