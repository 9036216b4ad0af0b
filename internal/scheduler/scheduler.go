// Package scheduler turns a loaded pipeline definition into a finished run:
// it selects the jobs whose trigger predicate matches the invocation,
// expands every selected job's matrix, fans the resulting cells out over a
// bounded pool of workers, and joins every cell result into the RunResult.
//
// Cells are independent units of work: a failing cell never stops its
// siblings or other jobs, so one run yields full diagnostic information.
// Jobs carry no inter-job dependencies; all selected cells are dispatched
// together and the run finalizes only after every one has reported.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/vk/gridci/internal/config"
	"github.com/vk/gridci/internal/ctxlog"
	"github.com/vk/gridci/internal/matrix"
	"github.com/vk/gridci/internal/result"
)

// CellRunner executes one matrix cell to completion. Satisfied by
// *runner.Runner; tests substitute scripted implementations.
type CellRunner interface {
	RunCell(ctx context.Context, job *config.Job, cell matrix.Cell, trig config.TriggerContext) result.CellResult
}

// Scheduler owns one run's fan-out. It holds no mutable state between runs.
type Scheduler struct {
	runner      CellRunner
	maxParallel int64
}

// New builds a Scheduler dispatching at most maxParallel cells at once.
func New(r CellRunner, maxParallel int) *Scheduler {
	if maxParallel < 1 {
		maxParallel = 1
	}
	return &Scheduler{runner: r, maxParallel: int64(maxParallel)}
}

// unit is one dispatched (job, cell) pair.
type unit struct {
	job  *config.Job
	cell matrix.Cell
}

// Run executes the pipeline for the given trigger and returns the
// aggregated result. The only error it returns is a configuration error
// surfaced during matrix expansion — detected before any cell executes.
// Execution failures live inside the RunResult, never in the error.
func (s *Scheduler) Run(ctx context.Context, m *config.Model, trig config.TriggerContext) (*result.RunResult, error) {
	logger := ctxlog.FromContext(ctx)

	run := &result.RunResult{
		Pipeline: m.Pipeline.Name,
		Event:    string(trig.Event),
		Jobs:     make(map[string][]result.CellResult),
	}

	// Expand every selected job up front: an invalid matrix must abort
	// the run before a single step executes anywhere.
	var units []unit
	for _, job := range m.Pipeline.Jobs {
		if !job.Matches(trig.Event) {
			logger.Debug("Job not selected for this trigger.", "job", job.Name, "event", trig.Event)
			continue
		}
		cells, err := matrix.Expand(job.Matrix)
		if err != nil {
			return nil, &config.Error{Message: fmt.Sprintf("job %q: %v", job.Name, err)}
		}
		run.Jobs[job.Name] = make([]result.CellResult, len(cells))
		for _, cell := range cells {
			units = append(units, unit{job: job, cell: cell})
		}
	}

	if len(units) == 0 {
		logger.Warn("No jobs matched the trigger, nothing to run.", "event", trig.Event)
		run.Finalize()
		return run, nil
	}

	logger.Info("🚀 Dispatching cells.", "jobs", len(run.Jobs), "cells", len(units), "max_parallel", s.maxParallel)

	// Fan-out/fan-in: every cell reports through the results channel and
	// the run finalizes only after all of them have. The semaphore bounds
	// concurrency; cancellation drains through it so undispatched cells
	// surface as cancelled instead of hanging.
	sem := semaphore.NewWeighted(s.maxParallel)
	results := make(chan result.CellResult, len(units))
	var wg sync.WaitGroup
	for _, u := range units {
		wg.Add(1)
		go func(u unit) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				results <- result.CellResult{
					Job:    u.job.Name,
					Cell:   u.cell.String(),
					Index:  u.cell.Index,
					Status: result.StatusCancelled,
				}
				return
			}
			defer sem.Release(1)
			results <- s.runner.RunCell(ctx, u.job, u.cell, trig)
		}(u)
	}
	wg.Wait()
	close(results)

	for cr := range results {
		run.Jobs[cr.Job][cr.Index] = cr
	}
	run.Finalize()

	logger.Info("🏁 Run complete.", "status", run.Status, "cells", run.CellCount())
	return run, nil
}
