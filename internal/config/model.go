package config

import (
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2"
)

// Event identifies what kind of invocation triggered a run.
type Event string

const (
	EventPush        Event = "push"
	EventPullRequest Event = "pull_request"
	EventSchedule    Event = "schedule"
)

// ParseEvent validates and converts an event name supplied on the boundary
// (CLI flag, pipeline `on` list).
func ParseEvent(s string) (Event, error) {
	switch Event(s) {
	case EventPush, EventPullRequest, EventSchedule:
		return Event(s), nil
	}
	return "", fmt.Errorf("unknown trigger event %q (expected push, pull_request or schedule)", s)
}

// TriggerContext is the externally supplied description of one invocation.
// Metadata (commit hash, ref, ...) is exposed to cache key templates only;
// it never influences control flow beyond trigger matching on Event.
type TriggerContext struct {
	Event    Event
	Metadata map[string]string
}

// Model is the unified, format-agnostic representation of a loaded pipeline
// definition. It is immutable once loaded; the scheduler owns it read-only
// for the duration of a run.
type Model struct {
	Pipeline *Pipeline
}

// Pipeline is a named set of jobs.
type Pipeline struct {
	Name string
	Jobs []*Job
}

// Job is a named, ordered sequence of steps expanded over a matrix of
// configuration axes, guarded by a trigger predicate.
type Job struct {
	Name string
	// On lists the events this job runs for. Empty means every event.
	On     []Event
	Matrix *Matrix
	Steps  []*Step
}

// Matches implements the job's trigger predicate: evaluated once per run,
// not per cell.
func (j *Job) Matches(e Event) bool {
	if len(j.On) == 0 {
		return true
	}
	for _, on := range j.On {
		if on == e {
			return true
		}
	}
	return false
}

// Matrix holds the configuration axes of a job in declaration order. A nil
// or empty Matrix yields exactly one default cell.
type Matrix struct {
	Axes []Axis
}

// Axis is one named dimension of configuration variation, with its values
// in declaration order.
type Axis struct {
	Name   string
	Values []string
}

// Step is a named opaque command with an optional cache binding. Steps
// execute strictly in declaration order within a cell.
type Step struct {
	Name    string
	Command string
	// Env is appended to the cell's environment for this step only.
	Env map[string]string
	// Timeout overrides the run-wide default step timeout. Zero means
	// use the default.
	Timeout time.Duration
	Cache   *CacheBinding
}

// CacheBinding ties a step to a cache entry: a key template evaluated per
// cell and the workdir-relative paths restored from and saved to the store.
//
// Key is held as an HCL expression regardless of the source format: the HCL
// loader stores the decoded attribute directly, the YAML loader parses the
// string through hclsyntax. That keeps the model format-agnostic while
// deferring evaluation until the cell's variables exist.
type CacheBinding struct {
	Key   hcl.Expression
	Paths []string
}
