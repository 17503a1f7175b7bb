package overlay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/downstream/internal/matrix"
)

// TestFetchStep_DefaultBranch omits --branch when no ref is configured.
func TestFetchStep_DefaultBranch(t *testing.T) {
	p := matrix.ProjectSpec{Name: "alpha", Repo: "https://example.com/alpha.git"}
	step := FetchStep(p, "/envs/alpha")
	assert.Equal(t, []string{"git", "clone", "--depth", "1", "https://example.com/alpha.git", "/envs/alpha"}, step.Argv)
}

// TestFetchStep_PinnedRef passes the configured branch.
func TestFetchStep_PinnedRef(t *testing.T) {
	p := matrix.ProjectSpec{Name: "alpha", Repo: "https://example.com/alpha.git", Ref: "v2-maintenance"}
	step := FetchStep(p, "/envs/alpha")
	assert.Contains(t, step.Argv, "--branch")
	assert.Contains(t, step.Argv, "v2-maintenance")
}

// TestInstallSteps splits recipe lines into argv and skips blanks.
func TestInstallSteps(t *testing.T) {
	p := matrix.ProjectSpec{
		Install: []string{"pip install -r requirements.txt", "", "pip install -e ."},
		Env:     map[string]string{"UV_SYSTEM_PYTHON": "1"},
	}
	steps := InstallSteps(p, "/envs/alpha")
	require.Len(t, steps, 2)
	assert.Equal(t, []string{"pip", "install", "-r", "requirements.txt"}, steps[0].Argv)
	assert.Equal(t, "/envs/alpha", steps[0].Dir)
	assert.Contains(t, steps[0].Env, "UV_SYSTEM_PYTHON=1")
}

// TestOverlaySteps covers remove, editable install, and listing.
func TestOverlaySteps(t *testing.T) {
	o := Overlay{Package: "acme-widgets", Worktree: "/work/widgets"}

	rm := o.RemoveStep("/envs/alpha")
	assert.Equal(t, []string{"python", "-m", "pip", "uninstall", "--yes", "acme-widgets"}, rm.Argv)

	in := o.InstallStep("/envs/alpha")
	assert.Equal(t, []string{"python", "-m", "pip", "install", "--editable", "/work/widgets"}, in.Argv)

	ver := o.VerifyStep("/envs/alpha")
	assert.Equal(t, "verify", ver.Name)
	assert.Contains(t, ver.Argv, "list")
}

// TestVerified_EditableWorktree accepts the overlay resolved to the
// working tree.
func TestVerified_EditableWorktree(t *testing.T) {
	o := Overlay{Package: "acme-widgets", Worktree: "/work/widgets"}
	listing := `[
		{"name": "pytest", "version": "8.0.0"},
		{"name": "acme-widgets", "version": "3.0.0a1", "editable_project_location": "/work/widgets"}
	]`
	ok, err := o.Verified(listing)
	require.NoError(t, err)
	assert.True(t, ok)
}

// TestVerified_PublishedRelease rejects a pinned published version: this
// is the hard contract, a stale release must never be silently tested.
func TestVerified_PublishedRelease(t *testing.T) {
	o := Overlay{Package: "acme-widgets", Worktree: "/work/widgets"}
	listing := `[{"name": "acme-widgets", "version": "2.9.1"}]`
	ok, err := o.Verified(listing)
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestVerified_WrongPath rejects an editable install of some other tree.
func TestVerified_WrongPath(t *testing.T) {
	o := Overlay{Package: "acme-widgets", Worktree: "/work/widgets"}
	listing := `[{"name": "acme-widgets", "version": "3.0.0a1", "editable_project_location": "/somewhere/else"}]`
	ok, err := o.Verified(listing)
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestVerified_Missing rejects a listing without the target library.
func TestVerified_Missing(t *testing.T) {
	o := Overlay{Package: "acme-widgets", Worktree: "/work/widgets"}
	ok, err := o.Verified(`[{"name": "pytest", "version": "8.0.0"}]`)
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestVerified_NameNormalization treats dash and underscore forms of the
// distribution name as the same package.
func TestVerified_NameNormalization(t *testing.T) {
	o := Overlay{Package: "acme-widgets", Worktree: "/work/widgets"}
	listing := `[{"name": "acme_widgets", "version": "3.0.0a1", "editable_project_location": "/work/widgets"}]`
	ok, err := o.Verified(listing)
	require.NoError(t, err)
	assert.True(t, ok)
}

// TestVerified_BadListing surfaces a parse error.
func TestVerified_BadListing(t *testing.T) {
	o := Overlay{Package: "acme-widgets", Worktree: "/work/widgets"}
	_, err := o.Verified("not json")
	require.Error(t, err)
}

// TestTestStep_Runner builds a direct runner invocation with deselects.
func TestTestStep_Runner(t *testing.T) {
	p := matrix.ProjectSpec{
		Test:    matrix.TestCommand{Kind: matrix.TestKindRunner, Target: "tests/", Args: []string{"-q"}},
		Exclude: []string{"tests/test_flaky.py::test_reload"},
	}
	step := TestStep(p, "/envs/alpha")
	assert.Equal(t, []string{
		"python", "-m", "pytest", "tests/", "-q",
		"--deselect", "tests/test_flaky.py::test_reload",
	}, step.Argv)
}

// TestTestStep_Make defaults to the test target and exports exclusions.
func TestTestStep_Make(t *testing.T) {
	p := matrix.ProjectSpec{
		Test:    matrix.TestCommand{Kind: matrix.TestKindMake},
		Exclude: []string{"test_one", "test_two"},
	}
	step := TestStep(p, "/envs/alpha")
	assert.Equal(t, []string{"make", "test"}, step.Argv)
	assert.Contains(t, step.Env, "DOWNSTREAM_DESELECT=test_one test_two")
}

// TestTestStep_TaskAndScript cover the remaining variants.
func TestTestStep_TaskAndScript(t *testing.T) {
	task := matrix.ProjectSpec{Test: matrix.TestCommand{Kind: matrix.TestKindTask, Target: "test"}}
	assert.Equal(t, []string{"task", "test"}, TestStep(task, "/d").Argv)

	script := matrix.ProjectSpec{Test: matrix.TestCommand{Kind: matrix.TestKindScript, Target: "./scripts/test.sh", Args: []string{"--fast"}}}
	assert.Equal(t, []string{"./scripts/test.sh", "--fast"}, TestStep(script, "/d").Argv)
}
