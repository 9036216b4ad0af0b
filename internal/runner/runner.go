// Package runner executes one matrix cell: the job's steps strictly in
// declaration order, inside an exclusive working directory, pulling and
// pushing cached artifacts around cache-bound steps, and stopping the cell
// at its first failure.
package runner

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/vk/gridci/internal/cachestore"
	"github.com/vk/gridci/internal/config"
	"github.com/vk/gridci/internal/ctxlog"
	"github.com/vk/gridci/internal/keytmpl"
	"github.com/vk/gridci/internal/matrix"
	"github.com/vk/gridci/internal/result"
	"github.com/vk/gridci/internal/stepexec"
)

// Runner runs cells against a step executor and a cache store. It carries
// no per-cell state and is safe for concurrent use; the cache store is the
// only resource cells share.
type Runner struct {
	Exec  stepexec.Executor
	Cache cachestore.Store
	Keys  *keytmpl.Renderer

	// WorkRoot is the parent directory for per-cell workdirs. Empty means
	// the system temp directory.
	WorkRoot string

	// DefaultTimeout applies to steps that declare none. Zero disables
	// the default.
	DefaultTimeout time.Duration
}

// RunCell executes every step of the job for one cell. The first step that
// fails or times out aborts the rest of the cell; only executed steps appear
// in the result. Cache store trouble never fails the
// cell — it degrades to a miss.
func (r *Runner) RunCell(ctx context.Context, job *config.Job, cell matrix.Cell, trig config.TriggerContext) result.CellResult {
	logger := ctxlog.FromContext(ctx).With("job", job.Name, "cell", cell.String())
	cr := result.CellResult{Job: job.Name, Cell: cell.String(), Index: cell.Index}

	workdir, err := os.MkdirTemp(r.WorkRoot, "gridci-cell-")
	if err != nil {
		// Without an exclusive workdir the cell cannot run isolated at
		// all; report every step as failed-to-start.
		logger.Error("Could not create cell workdir.", "error", err)
		for _, step := range job.Steps {
			cr.Steps = append(cr.Steps, result.StepResult{
				Name:     step.Name,
				Status:   result.StatusFail,
				ExitCode: -1,
				Stderr:   fmt.Sprintf("creating cell workdir: %v", err),
			})
		}
		cr.Status = result.StatusFail
		return cr
	}
	defer os.RemoveAll(workdir)

	logger.Info("▶️ Starting cell", "steps", len(job.Steps), "workdir", workdir)
	baseEnv := cellEnv(job, cell, trig)

loop:
	for _, step := range job.Steps {
		// Re-check between steps so a cancellation observed mid-cell
		// stops further execution promptly.
		if ctx.Err() != nil {
			logger.Warn("Run cancelled, remaining steps will not execute.", "next_step", step.Name)
			cr.Status = result.StatusCancelled
			break
		}

		key, hit := r.restoreCache(ctx, step, cell, trig, workdir)

		sr := r.Exec.Run(ctx, stepexec.Command{
			Name:    step.Name,
			Script:  step.Command,
			Dir:     workdir,
			Env:     append(baseEnv, stepEnv(step)...),
			Timeout: r.stepTimeout(step),
		})
		sr.CacheHit = hit
		cr.Steps = append(cr.Steps, sr)

		switch sr.Status {
		case result.StatusPass:
			logger.Info("✅ Step passed", "step", step.Name, "duration", sr.Duration)
			if key != "" && !hit {
				r.saveCache(ctx, step, key, workdir)
			}
		default:
			// Fail-fast is scoped to this cell: completed step results
			// are preserved, later steps never execute.
			logger.Warn("❌ Step did not pass, aborting remaining steps in cell.",
				"step", step.Name, "status", sr.Status, "exit_code", sr.ExitCode)
			break loop
		}
	}

	if cr.Status == "" {
		cr.Status = result.CellStatus(cr.Steps)
	}
	logger.Info("🏁 Cell finished", "status", cr.Status)
	return cr
}

// restoreCache renders the step's cache key and, on a hit, unpacks the
// artifact into the workdir. Every failure path degrades to a miss: a cold
// cache costs time, not correctness.
func (r *Runner) restoreCache(ctx context.Context, step *config.Step, cell matrix.Cell, trig config.TriggerContext, workdir string) (key string, hit bool) {
	if step.Cache == nil {
		return "", false
	}
	logger := ctxlog.FromContext(ctx).With("step", step.Name)

	key, err := r.Keys.Render(step.Cache.Key, cell, trig)
	if err != nil {
		logger.Warn("Cache key could not be rendered, treating as a miss.", "error", err)
		return "", false
	}

	data, ok, err := r.Cache.Get(ctx, key)
	if err != nil {
		logger.Warn("Cache store error on get, treating as a miss.", "key", key, "error", err)
		return key, false
	}
	if !ok {
		logger.Debug("Cache miss.", "key", key)
		return key, false
	}
	if err := cachestore.Unpack(workdir, data); err != nil {
		logger.Warn("Cached artifact could not be restored, treating as a miss.", "key", key, "error", err)
		return key, false
	}
	logger.Info("Cache hit, artifact restored.", "key", key, "bytes", len(data))
	return key, true
}

// saveCache archives the step's bound paths and writes them to the store.
// Runs only after the step passed on a cold key.
func (r *Runner) saveCache(ctx context.Context, step *config.Step, key, workdir string) {
	logger := ctxlog.FromContext(ctx).With("step", step.Name)

	data, err := cachestore.Pack(workdir, step.Cache.Paths)
	if err != nil {
		logger.Warn("Cache paths could not be archived, entry not saved.", "key", key, "error", err)
		return
	}
	if err := r.Cache.Put(ctx, key, data); err != nil {
		logger.Warn("Cache store error on put, entry not saved.", "key", key, "error", err)
		return
	}
	logger.Info("Artifact saved to cache.", "key", key, "bytes", len(data))
}

func (r *Runner) stepTimeout(step *config.Step) time.Duration {
	if step.Timeout > 0 {
		return step.Timeout
	}
	return r.DefaultTimeout
}

// cellEnv exposes the cell's identity to the command: the trigger event,
// the job name, and one MATRIX_<AXIS> variable per binding.
func cellEnv(job *config.Job, cell matrix.Cell, trig config.TriggerContext) []string {
	env := []string{
		"GRIDCI_EVENT=" + string(trig.Event),
		"GRIDCI_JOB=" + job.Name,
	}
	for _, b := range cell.Bindings {
		env = append(env, "MATRIX_"+envName(b.Axis)+"="+b.Value)
	}
	return env
}

// stepEnv renders a step's env map in sorted order so repeated runs see an
// identical environment.
func stepEnv(step *config.Step) []string {
	if len(step.Env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(step.Env))
	for k := range step.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+step.Env[k])
	}
	return env
}

func envName(axis string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - ('a' - 'A')
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, axis)
	return mapped
}
