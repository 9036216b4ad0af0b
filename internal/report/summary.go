// Package report renders a finished run for humans and delivers it to
// machines. The text summary goes to the CLI's output stream; the webhook
// notifier posts the same result as JSON to an external endpoint.
package report

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/vk/gridci/internal/result"
)

// durationGrain keeps step timings readable in the summary.
const durationGrain = time.Millisecond

func statusMark(s result.Status) string {
	if s == result.StatusPass {
		return "✅"
	}
	return "❌"
}

// WriteSummary writes a human-readable summary of the run to w. Jobs are
// listed in name order so the output is stable across runs.
func WriteSummary(w io.Writer, run *result.RunResult) error {
	jobs := make([]string, 0, len(run.Jobs))
	for name := range run.Jobs {
		jobs = append(jobs, name)
	}
	sort.Strings(jobs)

	if _, err := fmt.Fprintf(w, "%s Pipeline %q (%s): %s\n",
		statusMark(run.Status), run.Pipeline, run.Event, run.Status); err != nil {
		return err
	}

	for _, name := range jobs {
		for _, cell := range run.Jobs[name] {
			line := fmt.Sprintf("  %s %s [%s]", statusMark(cell.Status), name, cell.Cell)
			// A cell can end without any step line explaining it (cancelled
			// before dispatch), so a non-pass cell names its status here.
			if cell.Status != result.StatusPass {
				line += " " + string(cell.Status)
			}
			if _, err := fmt.Fprintln(w, line); err != nil {
				return err
			}
			for _, step := range cell.Steps {
				line := fmt.Sprintf("      %s %s (%s)", statusMark(step.Status), step.Name, step.Duration.Round(durationGrain))
				if step.CacheHit {
					line += " [cache hit]"
				}
				if step.Status != result.StatusPass {
					line += fmt.Sprintf(" status=%s exit=%d", step.Status, step.ExitCode)
				}
				if _, err := fmt.Fprintln(w, line); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
