package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/downstream/internal/gate"
	"github.com/roach88/downstream/internal/matrix"
)

// Scenario defines one conformance scenario: a project table, a trigger
// context, scripted step results, and expectations on the outcome.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden
	// file when the scenario is snapshot-tested.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Overlay names the target library and its working tree. The
	// default verified listing is derived from these.
	Overlay OverlaySpec `yaml:"overlay"`

	// Projects is the table under test.
	Projects []matrix.ProjectSpec `yaml:"projects"`

	// Event, Repository, Canonical, and Labels form the trigger
	// context. Event defaults to "schedule".
	Event      string   `yaml:"event,omitempty"`
	Repository string   `yaml:"repository,omitempty"`
	Canonical  string   `yaml:"canonical,omitempty"`
	Labels     []string `yaml:"labels,omitempty"`

	// Steps scripts step results, keyed "<unit>/<step>" or by bare step
	// name. Unscripted steps succeed with empty output.
	Steps map[string]StepScript `yaml:"steps,omitempty"`

	// Expect maps unit keys to their expected terminal outcome.
	Expect map[string]string `yaml:"expect,omitempty"`

	// Assertions validate the recorded lifecycle trace.
	// Supported types: outcome_is, trace_contains, trace_order, unit_count.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// OverlaySpec identifies the library under test within a scenario.
type OverlaySpec struct {
	Package  string `yaml:"package"`
	Worktree string `yaml:"worktree"`
}

// StepScript is the scripted result for one step.
type StepScript struct {
	// Exit is the step's exit code.
	Exit int `yaml:"exit,omitempty"`

	// Output is the step's combined output.
	Output string `yaml:"output,omitempty"`

	// Listing, when set, replaces Output with a synthetic package
	// listing: "editable" resolves the target library to the working
	// tree, "pinned" to a published release.
	Listing string `yaml:"listing,omitempty"`

	// Fail makes the step fail to run at all (runner error), as opposed
	// to running and exiting non-zero.
	Fail bool `yaml:"fail,omitempty"`
}

// Assertion validates the recorded trace or outcomes.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Unit is the unit key the assertion applies to.
	Unit string `yaml:"unit,omitempty"`

	// Outcome is the expected outcome (outcome_is).
	Outcome string `yaml:"outcome,omitempty"`

	// To is a state the unit must have entered (trace_contains).
	To string `yaml:"to,omitempty"`

	// States is the exact state sequence after pending (trace_order).
	States []string `yaml:"states,omitempty"`

	// Count is the expected number of units (unit_count).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertOutcomeIs     = "outcome_is"
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertUnitCount     = "unit_count"
)

// validListings defines the allowed synthetic listing kinds.
var validListings = map[string]bool{"editable": true, "pinned": true}

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected so typos surface as load errors, not as silently ignored
// expectations.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML bytes.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// RunContext assembles the trigger context the scenario describes.
func (s *Scenario) RunContext() gate.RunContext {
	event := gate.EventKind(s.Event)
	if s.Event == "" {
		event = gate.EventSchedule
	}
	return gate.RunContext{
		Event:      event,
		Repository: s.Repository,
		Canonical:  s.Canonical,
		Labels:     s.Labels,
	}
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Overlay.Package == "" || s.Overlay.Worktree == "" {
		return fmt.Errorf("overlay.package and overlay.worktree are required")
	}
	if len(s.Projects) == 0 {
		return fmt.Errorf("projects list is required and must be non-empty")
	}
	if len(s.Expect) == 0 && len(s.Assertions) == 0 {
		return fmt.Errorf("at least one expect entry or assertion is required")
	}

	for i, p := range s.Projects {
		if p.Name == "" {
			return fmt.Errorf("projects[%d]: name is required", i)
		}
		if p.Repo == "" {
			return fmt.Errorf("projects[%d]: repo is required", i)
		}
		if len(p.Versions) == 0 {
			return fmt.Errorf("projects[%d]: versions is required", i)
		}
		if !matrix.ValidTestKinds[p.Test.Kind] {
			return fmt.Errorf("projects[%d]: unknown test kind %q", i, p.Test.Kind)
		}
	}

	for key, step := range s.Steps {
		if step.Listing != "" && !validListings[step.Listing] {
			return fmt.Errorf("steps[%s]: unknown listing %q", key, step.Listing)
		}
		if step.Listing != "" && step.Output != "" {
			return fmt.Errorf("steps[%s]: listing and output are mutually exclusive", key)
		}
	}

	for key, outcome := range s.Expect {
		if !matrix.Outcome(outcome).Terminal() {
			return fmt.Errorf("expect[%s]: unknown outcome %q", key, outcome)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}

	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case AssertOutcomeIs:
		if a.Unit == "" || a.Outcome == "" {
			return fmt.Errorf("assertions[%d]: unit and outcome are required for outcome_is", index)
		}
		if !matrix.Outcome(a.Outcome).Terminal() {
			return fmt.Errorf("assertions[%d]: unknown outcome %q", index, a.Outcome)
		}
	case AssertTraceContains:
		if a.Unit == "" || a.To == "" {
			return fmt.Errorf("assertions[%d]: unit and to are required for trace_contains", index)
		}
	case AssertTraceOrder:
		if a.Unit == "" || len(a.States) == 0 {
			return fmt.Errorf("assertions[%d]: unit and states are required for trace_order", index)
		}
	case AssertUnitCount:
		if a.Count <= 0 {
			return fmt.Errorf("assertions[%d]: count must be positive for unit_count", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
