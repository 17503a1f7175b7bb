// Package overlay builds the steps that fetch an external project and
// force-install the target library's working tree over the project's
// declared dependency.
//
// The overlay contract is hard: after installation, a package listing must
// show the target library resolved to the working-tree path. If that check
// were skipped, a stale published release could silently be tested instead
// and every result downstream of it would be meaningless.
package overlay

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/roach88/downstream/internal/matrix"
	"github.com/roach88/downstream/internal/runner"
)

// Overlay identifies the target library under test.
type Overlay struct {
	// Package is the library's distribution name as it appears in a
	// package listing.
	Package string

	// Worktree is the absolute path of the library's working-copy
	// snapshot. Checked out once per run and shared read-only across
	// units; every unit installs from this one path.
	Worktree string
}

// FetchStep clones the project at its configured ref into dest. An empty
// ref clones the repository's default branch, the normal mode for catching
// forward-compatibility breaks. Clones are shallow: unit environments are
// discarded after the run, history is dead weight.
func FetchStep(p matrix.ProjectSpec, dest string) runner.Step {
	argv := []string{"git", "clone", "--depth", "1"}
	if p.Ref != "" {
		argv = append(argv, "--branch", p.Ref)
	}
	argv = append(argv, p.Repo, dest)
	return runner.Step{Name: "fetch", Argv: argv}
}

// InstallSteps converts the project's dependency-install recipe into
// steps run in the project checkout. Recipe entries are whitespace-split
// into argv; recipes needing shell quoting belong in a project script
// invoked as a single entry.
func InstallSteps(p matrix.ProjectSpec, dir string) []runner.Step {
	steps := make([]runner.Step, 0, len(p.Install))
	for i, line := range p.Install {
		argv := strings.Fields(line)
		if len(argv) == 0 {
			continue
		}
		steps = append(steps, runner.Step{
			Name: fmt.Sprintf("install[%d]", i),
			Argv: argv,
			Dir:  dir,
			Env:  envList(p.Env),
		})
	}
	return steps
}

// RemoveStep uninstalls any pinned release of the target library from the
// unit environment, so the editable install below cannot be shadowed by a
// resolver-pinned copy.
func (o Overlay) RemoveStep(dir string) runner.Step {
	return runner.Step{
		Name: "overlay-remove",
		Argv: []string{"python", "-m", "pip", "uninstall", "--yes", o.Package},
		Dir:  dir,
	}
}

// InstallStep installs the working tree in editable/linked mode. Source
// edits in the worktree are visible to the unit without a build/publish
// step.
func (o Overlay) InstallStep(dir string) runner.Step {
	return runner.Step{
		Name: "overlay-install",
		Argv: []string{"python", "-m", "pip", "install", "--editable", o.Worktree},
		Dir:  dir,
	}
}

// VerifyStep lists installed packages in JSON for Verified to inspect.
func (o Overlay) VerifyStep(dir string) runner.Step {
	return runner.Step{
		Name: "verify",
		Argv: []string{"python", "-m", "pip", "list", "--format", "json"},
		Dir:  dir,
	}
}

// listingEntry is one package in a `pip list --format json` listing.
// Editable installs carry the project location.
type listingEntry struct {
	Name     string `json:"name"`
	Version  string `json:"version"`
	Editable string `json:"editable_project_location"`
}

// Verified checks a package listing against the overlay contract: the
// target library must appear as an editable install located at the
// working tree. A published release (no editable location, or a different
// path) fails verification.
func (o Overlay) Verified(listing string) (bool, error) {
	var entries []listingEntry
	if err := json.Unmarshal([]byte(listing), &entries); err != nil {
		return false, fmt.Errorf("parse package listing: %w", err)
	}

	want := filepath.Clean(o.Worktree)
	for _, e := range entries {
		if !strings.EqualFold(normalizeDist(e.Name), normalizeDist(o.Package)) {
			continue
		}
		if e.Editable == "" {
			return false, nil // pinned published release survived
		}
		return filepath.Clean(e.Editable) == want, nil
	}
	return false, nil // not installed at all
}

// normalizeDist folds the separators that package indexes treat as
// equivalent in distribution names.
func normalizeDist(name string) string {
	return strings.NewReplacer("-", "_", ".", "_").Replace(name)
}

func envList(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
