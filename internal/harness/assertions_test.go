package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/downstream/internal/matrix"
	"github.com/roach88/downstream/internal/store"
)

func passedResult() *Result {
	return &Result{
		Pass:     true,
		RunToken: "run-1",
		Outcomes: map[string]matrix.Outcome{
			"sqlmodel@3.12": matrix.OutcomePassed,
			"beanie@3.12":   matrix.OutcomeErrored,
		},
		Transitions: []store.Transition{
			{UnitKey: "sqlmodel@3.12", Seq: 1, From: matrix.StatePending, To: matrix.StateFetching},
			{UnitKey: "sqlmodel@3.12", Seq: 2, From: matrix.StateFetching, To: matrix.StateOverlayInstall},
			{UnitKey: "sqlmodel@3.12", Seq: 3, From: matrix.StateOverlayInstall, To: matrix.StateOverlayVerified},
			{UnitKey: "sqlmodel@3.12", Seq: 4, From: matrix.StateOverlayVerified, To: matrix.StateTesting},
			{UnitKey: "sqlmodel@3.12", Seq: 5, From: matrix.StateTesting, To: matrix.StatePassed},
			{UnitKey: "beanie@3.12", Seq: 6, From: matrix.StatePending, To: matrix.StateFetching},
			{UnitKey: "beanie@3.12", Seq: 7, From: matrix.StateFetching, To: matrix.StateErrored},
		},
	}
}

func TestAssertOutcomeIs(t *testing.T) {
	result := passedResult()
	EvaluateAssertions([]Assertion{
		{Type: AssertOutcomeIs, Unit: "sqlmodel@3.12", Outcome: "passed"},
		{Type: AssertOutcomeIs, Unit: "beanie@3.12", Outcome: "errored"},
	}, result)
	assert.True(t, result.Pass)
	assert.Empty(t, result.Errors)
}

func TestAssertOutcomeIsMismatch(t *testing.T) {
	result := passedResult()
	EvaluateAssertions([]Assertion{
		{Type: AssertOutcomeIs, Unit: "sqlmodel@3.12", Outcome: "failed"},
	}, result)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "is passed, want failed")
}

func TestAssertTraceContains(t *testing.T) {
	result := passedResult()
	EvaluateAssertions([]Assertion{
		{Type: AssertTraceContains, Unit: "sqlmodel@3.12", To: "testing"},
	}, result)
	assert.True(t, result.Pass)
}

func TestAssertTraceContainsMissing(t *testing.T) {
	result := passedResult()
	EvaluateAssertions([]Assertion{
		{Type: AssertTraceContains, Unit: "beanie@3.12", To: "testing"},
	}, result)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "never entered testing")
	// The failure message carries the unit's recorded trace.
	assert.Contains(t, result.Errors[0], "fetching -> errored")
}

func TestAssertTraceOrder(t *testing.T) {
	result := passedResult()
	EvaluateAssertions([]Assertion{
		{Type: AssertTraceOrder, Unit: "beanie@3.12", States: []string{"fetching", "errored"}},
	}, result)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestAssertTraceOrderMismatch(t *testing.T) {
	result := passedResult()
	EvaluateAssertions([]Assertion{
		{Type: AssertTraceOrder, Unit: "beanie@3.12", States: []string{"fetching", "testing", "errored"}},
	}, result)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "expected: fetching -> testing -> errored")
	assert.Contains(t, result.Errors[0], "actual:   fetching -> errored")
}

func TestAssertUnitCount(t *testing.T) {
	result := passedResult()
	EvaluateAssertions([]Assertion{{Type: AssertUnitCount, Count: 2}}, result)
	assert.True(t, result.Pass)

	EvaluateAssertions([]Assertion{{Type: AssertUnitCount, Count: 5}}, result)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], "has 2 units, want 5")
}

func TestAssertionsAllEvaluated(t *testing.T) {
	result := passedResult()
	EvaluateAssertions([]Assertion{
		{Type: AssertOutcomeIs, Unit: "sqlmodel@3.12", Outcome: "failed"},
		{Type: AssertUnitCount, Count: 9},
	}, result)
	// The first failure does not short-circuit the second check.
	assert.Len(t, result.Errors, 2)
}
