package matrix

// ProjectSpec describes one external project tested against the overlay.
//
// Specs are static configuration authored in CUE by the harness maintainer
// and compiled by internal/compiler. They are immutable for the duration of
// a run.
type ProjectSpec struct {
	// Name uniquely identifies the project within the table.
	Name string `json:"name"`

	// Repo is the git URL the project is fetched from.
	Repo string `json:"repo"`

	// Ref is an optional branch or tag. Empty means the repository's
	// default branch, which is the normal mode: tracking the project's
	// own main catches forward-compatibility breaks early.
	Ref string `json:"ref,omitempty"`

	// Versions lists the language versions the project is tested under.
	// Each entry yields one ExecutionUnit.
	Versions []string `json:"versions"`

	// Install is the project's own dependency installation recipe, run
	// before the overlay is applied. Each entry is one shell step.
	Install []string `json:"install"`

	// Test is the project's native test invocation.
	Test TestCommand `json:"test"`

	// Services lists auxiliary services that must be ready before the
	// test command runs.
	Services []Service `json:"services,omitempty"`

	// Exclude names known-incompatible or flaky test cases deselected
	// from the project's suite. Passed through to the test invocation.
	Exclude []string `json:"exclude,omitempty"`

	// Env holds extra environment variables for install and test steps.
	Env map[string]string `json:"env,omitempty"`
}

// TestCommandKind selects how a project's tests are invoked. The ecosystem
// of runners is heterogeneous, so the variant is chosen at configuration
// time, never inferred at run time.
type TestCommandKind string

const (
	// TestKindRunner invokes the test runner CLI directly.
	TestKindRunner TestCommandKind = "runner"
	// TestKindMake invokes a Makefile target.
	TestKindMake TestCommandKind = "make"
	// TestKindTask invokes a task-runner shortcut.
	TestKindTask TestCommandKind = "task"
	// TestKindScript invokes a shell script checked into the project.
	TestKindScript TestCommandKind = "script"
)

// ValidTestKinds defines the allowed test command kinds.
var ValidTestKinds = map[TestCommandKind]bool{
	TestKindRunner: true,
	TestKindMake:   true,
	TestKindTask:   true,
	TestKindScript: true,
}

// TestCommand is the tagged variant for a project's test invocation.
type TestCommand struct {
	Kind TestCommandKind `json:"kind"`
	// Target is the make target, task name, script path, or runner
	// argument string, depending on Kind.
	Target string `json:"target,omitempty"`
	// Args are extra arguments appended to the invocation.
	Args []string `json:"args,omitempty"`
}

// Service names an auxiliary service a project needs before its tests run.
type Service string

const (
	// ServicePostgres is a relational database.
	ServicePostgres Service = "postgres"
	// ServiceObjectStore is an S3-compatible object store emulator.
	ServiceObjectStore Service = "objectstore"
	// ServiceDocStore is a document store replica set.
	ServiceDocStore Service = "docstore"
)

// ValidServices defines the recognized service names.
var ValidServices = map[Service]bool{
	ServicePostgres:    true,
	ServiceObjectStore: true,
	ServiceDocStore:    true,
}

// ExecutionUnit is the unit of scheduling: one (project, language version)
// pair. Units are independent; no unit may block or cancel a sibling.
type ExecutionUnit struct {
	// Key is the canonical unit identifier, computed by UnitKey.
	Key string `json:"key"`

	// Project is the project this unit tests. Copied by value so a unit
	// cannot observe mutation of the source table.
	Project ProjectSpec `json:"project"`

	// Version is the language version for this cell.
	Version string `json:"version"`
}

// Outcome is the terminal result of an ExecutionUnit.
type Outcome string

const (
	// OutcomePassed means the project's test suite exited zero.
	OutcomePassed Outcome = "passed"
	// OutcomeFailed means the test suite exited non-zero. This is
	// recorded as-is: a failing third-party test is signal, not noise.
	OutcomeFailed Outcome = "failed"
	// OutcomeErrored means the unit never reached a meaningful test
	// result (fetch, overlay install, verification, or service failure).
	OutcomeErrored Outcome = "errored"
	// OutcomeSkipped means the unit was never executed (superseded run).
	OutcomeSkipped Outcome = "skipped"
)

// Terminal reports whether o is a terminal outcome.
func (o Outcome) Terminal() bool {
	switch o {
	case OutcomePassed, OutcomeFailed, OutcomeErrored, OutcomeSkipped:
		return true
	}
	return false
}

// UnitState is a phase in the per-unit lifecycle.
type UnitState string

const (
	StatePending          UnitState = "pending"
	StateFetching         UnitState = "fetching"
	StateOverlayInstall   UnitState = "overlay-installing"
	StateOverlayVerified  UnitState = "overlay-verified"
	StateTesting          UnitState = "testing"
	StatePassed           UnitState = "passed"
	StateFailed           UnitState = "failed"
	StateErrored          UnitState = "errored"
	StateSkipped          UnitState = "skipped"
)

// stateRank orders lifecycle phases. Terminal states share the top rank
// since exactly one of them is ever reached.
var stateRank = map[UnitState]int{
	StatePending:         0,
	StateFetching:        1,
	StateOverlayInstall:  2,
	StateOverlayVerified: 3,
	StateTesting:         4,
	StatePassed:          5,
	StateFailed:          5,
	StateErrored:         5,
	StateSkipped:         5,
}

// CanTransition reports whether moving from -> to is a legal forward step.
// Transitions never go backward and terminal states admit no successor.
// Errored and skipped may be entered from any non-terminal state; the
// remaining states advance strictly one phase at a time.
func CanTransition(from, to UnitState) bool {
	fr, ok := stateRank[from]
	if !ok {
		return false
	}
	tr, ok := stateRank[to]
	if !ok {
		return false
	}
	if fr >= stateRank[StatePassed] {
		return false // terminal states are final
	}
	if to == StateErrored || to == StateSkipped {
		return true
	}
	if to == StatePassed || to == StateFailed {
		return from == StateTesting
	}
	return tr == fr+1
}

// Terminal reports whether s is a terminal state.
func (s UnitState) Terminal() bool {
	return s == StatePassed || s == StateFailed || s == StateErrored || s == StateSkipped
}

// Outcome maps a terminal state to its Outcome. Returns "" for
// non-terminal states.
func (s UnitState) Outcome() Outcome {
	switch s {
	case StatePassed:
		return OutcomePassed
	case StateFailed:
		return OutcomeFailed
	case StateErrored:
		return OutcomeErrored
	case StateSkipped:
		return OutcomeSkipped
	}
	return ""
}

// UnitResult is the recorded result of one ExecutionUnit.
type UnitResult struct {
	Unit    ExecutionUnit `json:"unit"`
	Outcome Outcome       `json:"outcome"`
	// Detail carries the error code or a short failure description.
	Detail string `json:"detail,omitempty"`
	// OutputTail is the trailing output of the failing step, if any.
	OutputTail string `json:"output_tail,omitempty"`
}

// RunResult maps every ExecutionUnit of a run to its outcome. The mapping
// is per-unit by construction: a run with units X/A failed and X/B passed
// reports both, never a single collapsed boolean.
type RunResult struct {
	RunToken string       `json:"run_token"`
	Units    []UnitResult `json:"units"`
}

// Failed returns the units whose outcome is failed or errored.
func (r RunResult) Failed() []UnitResult {
	var out []UnitResult
	for _, u := range r.Units {
		if u.Outcome == OutcomeFailed || u.Outcome == OutcomeErrored {
			out = append(out, u)
		}
	}
	return out
}

// AllPassed reports whether every unit passed or was skipped.
func (r RunResult) AllPassed() bool {
	for _, u := range r.Units {
		if u.Outcome == OutcomeFailed || u.Outcome == OutcomeErrored {
			return false
		}
	}
	return true
}
