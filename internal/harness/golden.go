package harness

import (
	"bytes"
	"fmt"
	"sort"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// RunWithGolden executes a scenario and compares its trace snapshot
// against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns an error if the scenario itself could not run; trace mismatch
// is reported through t by goldie.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, renderSnapshot(scenario.Name, result))

	return result, nil
}

// renderSnapshot formats the trace snapshot. Transitions are grouped by
// unit and units ordered by key, so the rendering is stable regardless of
// how units interleaved during the run.
func renderSnapshot(name string, result *Result) []byte {
	keys := make([]string, 0, len(result.Outcomes))
	for key := range result.Outcomes {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b bytes.Buffer
	fmt.Fprintf(&b, "scenario: %s\n", name)
	fmt.Fprintf(&b, "run: %s\n", result.RunToken)
	for _, key := range keys {
		fmt.Fprintf(&b, "%s: %s\n", key, result.Outcomes[key])
		for _, tr := range result.Transitions {
			if tr.UnitKey == key {
				fmt.Fprintf(&b, "  %s -> %s\n", tr.From, tr.To)
			}
		}
	}
	return b.Bytes()
}
