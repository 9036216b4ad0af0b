// Package result defines the outcome types produced by a pipeline run:
// per-step results, per-cell results, and the aggregated run result that
// drives the process exit code and the webhook report payload.
package result

import "time"

// Status is the outcome of a step, a cell, or a whole run.
type Status string

const (
	// StatusPass means the unit completed with no failure.
	StatusPass Status = "pass"
	// StatusFail means a command exited non-zero or could not be started.
	StatusFail Status = "fail"
	// StatusTimeout means a command was killed after exceeding its deadline.
	// Distinct from StatusFail so a report can tell a slow step from a
	// broken one.
	StatusTimeout Status = "timeout"
	// StatusCancelled means the run was cancelled externally before or
	// while the unit executed. Never reported as a failure of the code
	// under test.
	StatusCancelled Status = "cancelled"
)

// Passed reports whether the status is a success.
func (s Status) Passed() bool { return s == StatusPass }

// StepResult records the outcome of one executed step.
type StepResult struct {
	Name     string        `json:"name"`
	Status   Status        `json:"status"`
	ExitCode int           `json:"exit_code"`
	Stdout   string        `json:"stdout,omitempty"`
	Stderr   string        `json:"stderr,omitempty"`
	Duration time.Duration `json:"duration_ns"`
	CacheHit bool          `json:"cache_hit,omitempty"`
}

// CellResult records the outcome of one matrix cell: the ordered step
// results plus the cell's overall status.
type CellResult struct {
	Job    string       `json:"job"`
	Cell   string       `json:"cell"`
	Index  int          `json:"index"`
	Status Status       `json:"status"`
	Steps  []StepResult `json:"steps"`
}

// RunResult is the aggregated outcome of a whole pipeline run. Cell results
// are kept in matrix expansion order under each job name.
type RunResult struct {
	Pipeline string                  `json:"pipeline"`
	Event    string                  `json:"event"`
	Status   Status                  `json:"status"`
	Jobs     map[string][]CellResult `json:"jobs"`
}

// CellStatus derives a cell's overall status from its step results: any
// cancelled step marks the cell cancelled, otherwise any failure or timeout
// marks it failed, otherwise the cell passed (every step passed).
func CellStatus(steps []StepResult) Status {
	status := StatusPass
	for _, s := range steps {
		switch s.Status {
		case StatusCancelled:
			return StatusCancelled
		case StatusFail, StatusTimeout:
			status = StatusFail
		}
	}
	return status
}

// Finalize computes the run's overall status from its cells: cancelled if
// any cell was cancelled, failed if any cell failed, passed only when every
// cell of every job passed.
func (r *RunResult) Finalize() {
	r.Status = StatusPass
	for _, cells := range r.Jobs {
		for _, c := range cells {
			switch c.Status {
			case StatusCancelled:
				r.Status = StatusCancelled
				return
			case StatusPass:
			default:
				r.Status = StatusFail
			}
		}
	}
}

// ExitCode maps the run status to the process exit code convention:
// zero iff the run passed.
func (r *RunResult) ExitCode() int {
	if r.Status.Passed() {
		return 0
	}
	return 1
}

// CellCount returns the total number of cells across all jobs.
func (r *RunResult) CellCount() int {
	n := 0
	for _, cells := range r.Jobs {
		n += len(cells)
	}
	return n
}
