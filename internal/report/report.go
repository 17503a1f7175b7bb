// Package report aggregates run results and optionally files a tracking
// issue for scheduled failures.
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/downstream/internal/matrix"
)

// Summary is the aggregate view of one run, suitable for text or JSON
// output. Outcomes stay per-unit; the counts are conveniences, not a
// collapse.
type Summary struct {
	RunToken string             `json:"run_token"`
	Total    int                `json:"total"`
	Passed   int                `json:"passed"`
	Failed   int                `json:"failed"`
	Errored  int                `json:"errored"`
	Skipped  int                `json:"skipped"`
	Units    []matrix.UnitResult `json:"units"`
}

// Summarize builds a Summary from a RunResult with units in key order.
func Summarize(result matrix.RunResult) Summary {
	units := make([]matrix.UnitResult, len(result.Units))
	copy(units, result.Units)
	sort.Slice(units, func(i, j int) bool { return units[i].Unit.Key < units[j].Unit.Key })

	s := Summary{RunToken: result.RunToken, Total: len(units), Units: units}
	for _, u := range units {
		switch u.Outcome {
		case matrix.OutcomePassed:
			s.Passed++
		case matrix.OutcomeFailed:
			s.Failed++
		case matrix.OutcomeErrored:
			s.Errored++
		case matrix.OutcomeSkipped:
			s.Skipped++
		}
	}
	return s
}

// Text renders the summary as the aligned per-unit listing the CLI prints.
func (s Summary) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s: %d units, %d passed, %d failed, %d errored, %d skipped\n",
		s.RunToken, s.Total, s.Passed, s.Failed, s.Errored, s.Skipped)

	width := 0
	for _, u := range s.Units {
		if len(u.Unit.Key) > width {
			width = len(u.Unit.Key)
		}
	}
	for _, u := range s.Units {
		outcome := string(u.Outcome)
		if outcome == "" {
			outcome = "pending"
		}
		fmt.Fprintf(&b, "  %-*s  %s", width, u.Unit.Key, outcome)
		if u.Detail != "" {
			fmt.Fprintf(&b, "  (%s)", u.Detail)
		}
		b.WriteString("\n")
	}
	return b.String()
}
