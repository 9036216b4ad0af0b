package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Error is a configuration error: the pipeline definition itself is
// invalid. It is fatal — the run aborts before any cell executes — and maps
// to the usage exit code at the CLI boundary.
type Error struct {
	Message string
}

func (e *Error) Error() string { return e.Message }

func errf(format string, args ...any) *Error {
	return &Error{Message: fmt.Sprintf(format, args...)}
}

// Validate checks the loaded model against the structural rules every run
// relies on. It runs once, after loading and before any cell is dispatched.
func Validate(m *Model) error {
	if m == nil || m.Pipeline == nil {
		return errf("empty pipeline definition")
	}
	p := m.Pipeline
	if p.Name == "" {
		return errf("pipeline has no name")
	}
	if len(p.Jobs) == 0 {
		return errf("pipeline %q defines no jobs", p.Name)
	}

	jobNames := make(map[string]bool, len(p.Jobs))
	for _, job := range p.Jobs {
		if job.Name == "" {
			return errf("pipeline %q contains a job with no name", p.Name)
		}
		if jobNames[job.Name] {
			return errf("duplicate job name %q", job.Name)
		}
		jobNames[job.Name] = true

		if err := validateJob(job); err != nil {
			return err
		}
	}
	return nil
}

func validateJob(job *Job) error {
	for _, on := range job.On {
		if _, err := ParseEvent(string(on)); err != nil {
			return errf("job %q: %v", job.Name, err)
		}
	}

	if job.Matrix != nil {
		axisNames := make(map[string]bool, len(job.Matrix.Axes))
		for _, axis := range job.Matrix.Axes {
			if axis.Name == "" {
				return errf("job %q: matrix axis with no name", job.Name)
			}
			if axisNames[axis.Name] {
				return errf("job %q: duplicate matrix axis %q", job.Name, axis.Name)
			}
			axisNames[axis.Name] = true
			if len(axis.Values) == 0 {
				return errf("job %q: matrix axis %q has no values", job.Name, axis.Name)
			}
		}
	}

	if len(job.Steps) == 0 {
		return errf("job %q defines no steps", job.Name)
	}
	stepNames := make(map[string]bool, len(job.Steps))
	for _, step := range job.Steps {
		if step.Name == "" {
			return errf("job %q contains a step with no name", job.Name)
		}
		if stepNames[step.Name] {
			return errf("job %q: duplicate step name %q", job.Name, step.Name)
		}
		stepNames[step.Name] = true

		if strings.TrimSpace(step.Command) == "" {
			return errf("job %q step %q has an empty command", job.Name, step.Name)
		}
		if err := validateCache(job, step); err != nil {
			return err
		}
	}
	return nil
}

func validateCache(job *Job, step *Step) error {
	c := step.Cache
	if c == nil {
		return nil
	}
	if c.Key == nil {
		return errf("job %q step %q: cache binding has no key", job.Name, step.Name)
	}
	if len(c.Paths) == 0 {
		return errf("job %q step %q: cache binding has no paths", job.Name, step.Name)
	}
	for _, p := range c.Paths {
		// Paths are interpreted inside the cell's exclusive workdir;
		// anything escaping it would break per-cell isolation.
		if filepath.IsAbs(p) || strings.HasPrefix(filepath.Clean(p), "..") {
			return errf("job %q step %q: cache path %q escapes the working directory", job.Name, step.Name, p)
		}
	}
	return nil
}
