// Package stepexec runs one opaque shell command to completion and reports
// what happened. The orchestrator never interprets a command; toolchains,
// checkouts and build invocations are all external collaborators behind
// this boundary.
package stepexec

import (
	"context"
	"time"

	"github.com/vk/gridci/internal/result"
)

// Command describes one step invocation: the script, where to run it, what
// to add to its environment, and how long it may take.
type Command struct {
	Name   string
	Script string
	// Dir is the cell's exclusive working directory. The command may
	// mutate it freely; the job runner owns its lifecycle.
	Dir string
	// Env entries ("KEY=value") are appended to the parent environment.
	Env []string
	// Timeout of zero means the command may run until the context ends.
	Timeout time.Duration
}

// Executor runs exactly one command per call, with no implicit retries.
// Implementations must report a timeout distinctly from a non-zero exit
// and from external cancellation.
type Executor interface {
	Run(ctx context.Context, cmd Command) result.StepResult
}
