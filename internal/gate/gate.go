// Package gate evaluates trigger gating for the compatibility harness.
//
// All predicates are pure functions over a small RunContext record so they
// can be unit-tested without any scheduler in the loop. The scheduler only
// supplies the record (see config.ContextFromEnv).
package gate

import "strings"

// EventKind is the trigger that started a run.
type EventKind string

const (
	// EventSchedule is the daily scheduled trigger.
	EventSchedule EventKind = "schedule"
	// EventPullRequest is a pull-request trigger, gated by a label.
	EventPullRequest EventKind = "pull-request"
	// EventDispatch is a manual dispatch.
	EventDispatch EventKind = "dispatch"
)

// RunContext is the scheduler-provided identity for one run. It carries
// only what gating and issue-body text need.
type RunContext struct {
	Event      EventKind
	Repository string // "owner/name" of the repository the run executes in
	Canonical  string // "owner/name" of the authoritative origin repository
	Labels     []string
	RunID      string
	RunURL     string
}

// OnCanonical reports whether the run executes in the canonical repository
// rather than a fork. Comparison is case-insensitive since repository
// slugs are.
func (c RunContext) OnCanonical() bool {
	return c.Repository != "" && strings.EqualFold(c.Repository, c.Canonical)
}

// HasLabel reports whether the pull request carries the given label.
func (c RunContext) HasLabel(label string) bool {
	for _, l := range c.Labels {
		if strings.EqualFold(l, label) {
			return true
		}
	}
	return false
}

// GatedJobsEnabled decides whether the matrix jobs run at all.
//
// Scheduled runs execute only in the canonical repository, so forks with
// the schedule still enabled do not burn their own quota or spam anyone.
// Pull-request runs require an explicit opt-in label. Manual dispatch is
// always allowed: whoever dispatched it asked for it.
func GatedJobsEnabled(c RunContext, label string) bool {
	switch c.Event {
	case EventSchedule:
		return c.OnCanonical()
	case EventPullRequest:
		return c.HasLabel(label)
	case EventDispatch:
		return true
	}
	return false
}

// ShouldFileIssue decides whether a tracking issue is filed for a run.
//
// Requirements stack: the issue path must be enabled (it is off by
// default), the trigger must be the schedule (not a PR, not a dispatch),
// the run must be in the canonical repository, and at least one unit must
// have failed.
func ShouldFileIssue(c RunContext, enabled bool, failures int) bool {
	if !enabled {
		return false
	}
	if c.Event != EventSchedule {
		return false
	}
	if !c.OnCanonical() {
		return false
	}
	return failures > 0
}
