package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfig writes a minimal harness config and returns its path.
func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "downstream.toml")
	body := `canonical = "acme/pydantic"
env_root = "` + filepath.Join(dir, "envs") + `"
database = "` + filepath.Join(dir, "downstream.db") + `"

[overlay]
package = "pydantic"
worktree = "` + dir + `"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestGateOpenOnDispatch(t *testing.T) {
	cfgPath := writeConfig(t)
	t.Setenv("DOWNSTREAM_EVENT", "dispatch")
	t.Setenv("DOWNSTREAM_REPOSITORY", "fork/pydantic")

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewGateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--config", cfgPath})

	err := cmd.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "gate open")
}

func TestGateClosedOnScheduledFork(t *testing.T) {
	cfgPath := writeConfig(t)
	t.Setenv("DOWNSTREAM_EVENT", "schedule")
	t.Setenv("DOWNSTREAM_REPOSITORY", "fork/pydantic")

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewGateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--config", cfgPath})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "gate closed")
}

func TestGateOpenOnScheduledCanonical(t *testing.T) {
	cfgPath := writeConfig(t)
	t.Setenv("DOWNSTREAM_EVENT", "schedule")
	t.Setenv("DOWNSTREAM_REPOSITORY", "acme/pydantic")

	cmd := NewGateCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", cfgPath})

	require.NoError(t, cmd.Execute())
}

func TestGatePullRequestLabel(t *testing.T) {
	cfgPath := writeConfig(t)
	t.Setenv("DOWNSTREAM_EVENT", "pull-request")
	t.Setenv("DOWNSTREAM_REPOSITORY", "acme/pydantic")

	t.Run("without label", func(t *testing.T) {
		cmd := NewGateCommand(&RootOptions{Format: "text"})
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetArgs([]string{"--config", cfgPath})

		err := cmd.Execute()
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
	})

	t.Run("with label", func(t *testing.T) {
		t.Setenv("DOWNSTREAM_PR_LABELS", "needs-review, downstream-tests")

		cmd := NewGateCommand(&RootOptions{Format: "text"})
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetArgs([]string{"--config", cfgPath})

		require.NoError(t, cmd.Execute())
	})
}

func TestGateJSON(t *testing.T) {
	cfgPath := writeConfig(t)
	t.Setenv("DOWNSTREAM_EVENT", "dispatch")
	t.Setenv("DOWNSTREAM_REPOSITORY", "acme/pydantic")

	buf := &bytes.Buffer{}
	cmd := NewGateCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--config", cfgPath})

	require.NoError(t, cmd.Execute())

	var resp struct {
		Status string       `json:"status"`
		Data   GateDecision `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Enabled)
	assert.Equal(t, "dispatch", resp.Data.Event)
	assert.Equal(t, "acme/pydantic", resp.Data.Canonical)
}

func TestGateMissingConfig(t *testing.T) {
	cmd := NewGateCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", "/nonexistent/downstream.toml"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
