package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/downstream/internal/matrix"
	"github.com/roach88/downstream/internal/store"
)

// EvaluateAssertions checks every assertion against the result, recording
// a failure message per assertion that does not hold. All assertions are
// evaluated; the first failure does not stop the rest.
func EvaluateAssertions(assertions []Assertion, result *Result) {
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertOutcomeIs:
			err = assertOutcomeIs(result, a)
		case AssertTraceContains:
			err = assertTraceContains(result.Transitions, a)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Transitions, a)
		case AssertUnitCount:
			err = assertUnitCount(result, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			result.AddError(fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
}

func assertOutcomeIs(result *Result, a Assertion) error {
	got, ok := result.Outcomes[a.Unit]
	if !ok {
		return fmt.Errorf("outcome_is: unit %s not in run", a.Unit)
	}
	if got != matrix.Outcome(a.Outcome) {
		return fmt.Errorf("outcome_is: unit %s is %s, want %s", a.Unit, got, a.Outcome)
	}
	return nil
}

// assertTraceContains checks that the unit entered the given state.
func assertTraceContains(transitions []store.Transition, a Assertion) error {
	for _, tr := range transitions {
		if tr.UnitKey == a.Unit && tr.To == matrix.UnitState(a.To) {
			return nil
		}
	}
	return fmt.Errorf("trace_contains: unit %s never entered %s\n%s",
		a.Unit, a.To, renderUnitTrace(transitions, a.Unit))
}

// assertTraceOrder checks that the unit's recorded states, in order,
// exactly match the expected sequence. The implicit starting state
// (pending) is not listed.
func assertTraceOrder(transitions []store.Transition, a Assertion) error {
	var got []string
	for _, tr := range transitions {
		if tr.UnitKey == a.Unit {
			got = append(got, string(tr.To))
		}
	}
	if len(got) == 0 {
		return fmt.Errorf("trace_order: unit %s has no recorded transitions", a.Unit)
	}

	if len(got) != len(a.States) {
		return orderMismatch(a, got)
	}
	for i := range got {
		if got[i] != a.States[i] {
			return orderMismatch(a, got)
		}
	}
	return nil
}

func orderMismatch(a Assertion, got []string) error {
	return fmt.Errorf("trace_order: unit %s\n  expected: %s\n  actual:   %s",
		a.Unit, strings.Join(a.States, " -> "), strings.Join(got, " -> "))
}

func assertUnitCount(result *Result, a Assertion) error {
	if len(result.Outcomes) != a.Count {
		return fmt.Errorf("unit_count: run has %d units, want %d", len(result.Outcomes), a.Count)
	}
	return nil
}

// renderUnitTrace formats one unit's transitions for failure messages.
func renderUnitTrace(transitions []store.Transition, unit string) string {
	var b strings.Builder
	b.WriteString("recorded trace:")
	found := false
	for _, tr := range transitions {
		if tr.UnitKey == unit {
			fmt.Fprintf(&b, "\n  %s -> %s", tr.From, tr.To)
			found = true
		}
	}
	if !found {
		b.WriteString(" (none)")
	}
	return b.String()
}
