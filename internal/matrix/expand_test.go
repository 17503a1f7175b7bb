package matrix

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestExpand_TwoVersions verifies that a project with versions [A, B]
// expands to exactly two independent units.
func TestExpand_TwoVersions(t *testing.T) {
	specs := []ProjectSpec{
		{Name: "sqlmodel", Repo: "https://example.com/sqlmodel.git", Versions: []string{"3.11", "3.12"}},
	}

	units := Expand(specs)
	require.Len(t, units, 2)

	assert.Equal(t, "sqlmodel@3.11", units[0].Key)
	assert.Equal(t, "sqlmodel@3.12", units[1].Key)
	assert.Equal(t, "3.11", units[0].Version)
	assert.Equal(t, "3.12", units[1].Version)
}

// TestExpand_PerProjectOnly verifies the product is taken within each
// project, never across projects.
func TestExpand_PerProjectOnly(t *testing.T) {
	specs := []ProjectSpec{
		{Name: "alpha", Repo: "r1", Versions: []string{"3.11", "3.12"}},
		{Name: "beta", Repo: "r2", Versions: []string{"3.12"}},
	}

	units := Expand(specs)
	require.Len(t, units, 3)

	keys := make([]string, len(units))
	for i, u := range units {
		keys[i] = u.Key
	}
	assert.Equal(t, []string{"alpha@3.11", "alpha@3.12", "beta@3.12"}, keys)
}

// TestExpand_DeterministicOrder verifies table order then version order.
func TestExpand_DeterministicOrder(t *testing.T) {
	specs := []ProjectSpec{
		{Name: "b-project", Repo: "r", Versions: []string{"3.13", "3.11"}},
		{Name: "a-project", Repo: "r", Versions: []string{"3.12"}},
	}

	units := Expand(specs)
	require.Len(t, units, 3)
	// Declaration order wins, not alphabetical.
	assert.Equal(t, "b-project@3.13", units[0].Key)
	assert.Equal(t, "b-project@3.11", units[1].Key)
	assert.Equal(t, "a-project@3.12", units[2].Key)
}

// TestExpand_CopiesSpec verifies a unit does not alias the source table.
func TestExpand_CopiesSpec(t *testing.T) {
	specs := []ProjectSpec{
		{Name: "alpha", Repo: "r1", Versions: []string{"3.12"}},
	}

	units := Expand(specs)
	require.Len(t, units, 1)

	specs[0].Repo = "mutated"
	assert.Equal(t, "r1", units[0].Project.Repo)
}

// TestExpand_Empty returns no units for an empty table.
func TestExpand_Empty(t *testing.T) {
	assert.Empty(t, Expand(nil))
	assert.Empty(t, Expand([]ProjectSpec{}))
}
