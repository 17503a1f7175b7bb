package matrix

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestUnitKey_Format verifies the project@version shape.
func TestUnitKey_Format(t *testing.T) {
	assert.Equal(t, "beanie@3.12", UnitKey("beanie", "3.12"))
}

// TestUnitKey_TrimsWhitespace verifies stray whitespace does not change
// identity.
func TestUnitKey_TrimsWhitespace(t *testing.T) {
	assert.Equal(t, UnitKey("beanie", "3.12"), UnitKey(" beanie ", "3.12 "))
}

// TestUnitKey_NFCNormalization verifies composed and decomposed forms of
// the same name produce the same key.
func TestUnitKey_NFCNormalization(t *testing.T) {
	composed := "café"          // é as single code point
	decomposed := "café"       // e + combining acute
	assert.Equal(t, UnitKey(composed, "3.12"), UnitKey(decomposed, "3.12"))
}

// TestSpecHash_Stable verifies identical tables hash identically and any
// covered field changes the hash.
func TestSpecHash_Stable(t *testing.T) {
	table := []ProjectSpec{
		{Name: "alpha", Repo: "r1", Versions: []string{"3.11", "3.12"}},
		{Name: "beta", Repo: "r2", Ref: "stable", Versions: []string{"3.12"}},
	}

	assert.Equal(t, SpecHash(table), SpecHash(table))

	changed := make([]ProjectSpec, len(table))
	copy(changed, table)
	changed[1].Ref = "main"
	assert.NotEqual(t, SpecHash(table), SpecHash(changed))

	reordered := []ProjectSpec{table[1], table[0]}
	assert.NotEqual(t, SpecHash(table), SpecHash(reordered))
}
