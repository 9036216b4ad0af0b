package stepexec

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/vk/gridci/internal/ctxlog"
	"github.com/vk/gridci/internal/result"
)

// errDeadline marks a context cancelled by this package's own timeout, so
// the result can distinguish "step too slow" from "run cancelled".
var errDeadline = errors.New("step deadline exceeded")

// Local executes commands through a shell on the local machine.
type Local struct {
	// Shell is the interpreter invoked as `shell -c script`.
	Shell string
}

// NewLocal returns a Local executor using /bin/sh.
func NewLocal() *Local {
	return &Local{Shell: "/bin/sh"}
}

// Run implements Executor. Stdout and stderr are captured separately; each
// stream's own ordering is preserved, interleaving between them is not.
func (l *Local) Run(ctx context.Context, c Command) result.StepResult {
	logger := ctxlog.FromContext(ctx).With("step", c.Name)
	res := result.StepResult{Name: c.Name, ExitCode: -1}

	runCtx := ctx
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeoutCause(ctx, c.Timeout, errDeadline)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, l.Shell, "-c", c.Script)
	cmd.Dir = c.Dir
	cmd.Env = append(os.Environ(), c.Env...)
	// The script runs in its own process group, and a timeout or
	// cancellation kills the whole group. Killing only the shell would
	// leave its children running, still writing into a workdir the runner
	// is about to delete, and holding the output pipes open.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	// Backstop for a group member that somehow escapes the kill and keeps
	// a pipe open.
	cmd.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Debug("Executing step command.", "dir", c.Dir, "timeout", c.Timeout)
	start := time.Now()
	err := cmd.Run()
	res.Duration = time.Since(start)
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()

	switch {
	case err == nil:
		res.Status = result.StatusPass
		res.ExitCode = 0
	case errors.Is(context.Cause(runCtx), errDeadline):
		res.Status = result.StatusTimeout
		logger.Warn("Step killed on timeout.", "timeout", c.Timeout)
	case runCtx.Err() != nil:
		res.Status = result.StatusCancelled
		logger.Warn("Step terminated by run cancellation.")
	default:
		res.Status = result.StatusFail
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		} else if res.Stderr == "" {
			// The command never started (bad shell, unusable workdir);
			// surface the spawn error where output would have been.
			res.Stderr = err.Error()
		}
		logger.Debug("Step command failed.", "exit_code", res.ExitCode)
	}

	return res
}
