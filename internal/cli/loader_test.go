package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeProjectTable writes a small valid project table and returns its dir.
func writeProjectTable(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	table := `package projects

project: sqlmodel: {
	repo: "https://github.com/acme/sqlmodel.git"
	versions: ["3.12", "3.13"]
	install: ["uv sync --all-extras"]
	test: kind: "runner"
	services: ["postgres"]
}

project: beanie: {
	repo: "https://github.com/acme/beanie.git"
	versions: ["3.12"]
	install: ["uv sync"]
	test: { kind: "make", target: "test" }
	services: ["docstore"]
}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "projects.cue"), []byte(table), 0o644))
	return dir
}

func TestLoadProjects(t *testing.T) {
	dir := writeProjectTable(t)

	result, errs := LoadProjects(dir, LoadModeFailFast)
	require.Empty(t, errs)
	require.NotNil(t, result)

	assert.Equal(t, 1, result.FileCount)
	require.Len(t, result.Projects, 2)

	names := []string{result.Projects[0].Name, result.Projects[1].Name}
	assert.Contains(t, names, "sqlmodel")
	assert.Contains(t, names, "beanie")
}

func TestLoadProjectsMissingDir(t *testing.T) {
	result, errs := LoadProjects("/nonexistent/projects", LoadModeFailFast)
	assert.Nil(t, result)
	require.Len(t, errs, 1)

	loadErr, ok := errs[0].(*LoadError)
	require.True(t, ok)
	assert.Equal(t, ErrCodeNotFound, loadErr.Code)
}

func TestLoadProjectsEmptyDir(t *testing.T) {
	result, errs := LoadProjects(t.TempDir(), LoadModeFailFast)
	assert.Nil(t, result)
	require.Len(t, errs, 1)

	loadErr, ok := errs[0].(*LoadError)
	require.True(t, ok)
	assert.Equal(t, ErrCodeNoFiles, loadErr.Code)
}

func TestLoadProjectsCollectAll(t *testing.T) {
	dir := t.TempDir()
	table := `package projects

project: one: {
	versions: ["3.12"]
	install: ["uv sync"]
	test: kind: "runner"
}

project: two: {
	repo: "https://github.com/acme/two.git"
	versions: []
	install: ["uv sync"]
	test: kind: "runner"
}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "projects.cue"), []byte(table), 0o644))

	result, errs := LoadProjects(dir, LoadModeCollectAll)
	require.NotNil(t, result)
	require.Len(t, errs, 2)

	codes := map[string]bool{}
	for _, err := range errs {
		loadErr, ok := err.(*LoadError)
		require.True(t, ok)
		codes[loadErr.Code] = true
	}
	assert.True(t, codes[ErrCodeProjectRepo])
	assert.True(t, codes[ErrCodeProjectVersions])
}

func TestLoadProjectsQuotedName(t *testing.T) {
	dir := t.TempDir()
	table := `package projects

project: "pydantic-extra-types": {
	repo: "https://github.com/acme/pet.git"
	versions: ["3.12"]
	install: ["uv sync"]
	test: kind: "runner"
}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "projects.cue"), []byte(table), 0o644))

	result, errs := LoadProjects(dir, LoadModeFailFast)
	require.Empty(t, errs)
	require.Len(t, result.Projects, 1)
	assert.Equal(t, "pydantic-extra-types", result.Projects[0].Name)
}

func TestLoadProjectsNormalizationCollision(t *testing.T) {
	dir := t.TempDir()
	// Composed and decomposed spellings are distinct CUE labels but
	// identical unit keys after normalization.
	table := `package projects

project: "café": {
	repo: "https://github.com/acme/cafe.git"
	versions: ["3.12"]
	install: ["uv sync"]
	test: kind: "runner"
}

project: "café": {
	repo: "https://github.com/acme/cafe-fork.git"
	versions: ["3.12"]
	install: ["uv sync"]
	test: kind: "runner"
}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "projects.cue"), []byte(table), 0o644))

	_, errs := LoadProjects(dir, LoadModeCollectAll)
	require.Len(t, errs, 1)

	loadErr, ok := errs[0].(*LoadError)
	require.True(t, ok)
	assert.Equal(t, ErrCodeDuplicate, loadErr.Code)
}

func TestFindCUEFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.cue"), []byte("package projects\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("not cue"), 0o644))
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "c.cue"), []byte("package projects\n"), 0o644))

	files, err := FindCUEFiles(dir)
	require.NoError(t, err)
	assert.Len(t, files, 2)
}
