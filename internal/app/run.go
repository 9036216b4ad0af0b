package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/vk/gridci/internal/cachestore"
	"github.com/vk/gridci/internal/ctxlog"
	"github.com/vk/gridci/internal/keytmpl"
	"github.com/vk/gridci/internal/report"
	"github.com/vk/gridci/internal/runner"
	"github.com/vk/gridci/internal/scheduler"
	"github.com/vk/gridci/internal/stepexec"
)

// ErrRunFailed reports that the pipeline executed to completion but did not
// pass. The details are in the printed summary, not in this error.
var ErrRunFailed = errors.New("pipeline run did not pass")

// Run executes the loaded pipeline for the configured trigger, prints the
// run summary, and delivers the webhook report if one is configured.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	store, err := a.newStore()
	if err != nil {
		return err
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolving working directory: %w", err)
	}

	cells := &runner.Runner{
		Exec:           stepexec.NewLocal(),
		Cache:          store,
		Keys:           keytmpl.New(cwd),
		DefaultTimeout: a.cfg.StepTimeout,
	}

	run, err := scheduler.New(cells, a.cfg.MaxParallel).Run(ctx, a.model, a.trigger)
	if err != nil {
		return err
	}

	if err := report.WriteSummary(a.outW, run); err != nil {
		return fmt.Errorf("writing run summary: %w", err)
	}

	// Report delivery is best effort: a webhook outage must not change the
	// outcome of a finished run.
	if a.cfg.WebhookURL != "" {
		notifier := report.NewNotifier(a.cfg.WebhookURL)
		if err := notifier.Notify(ctx, run); err != nil {
			a.logger.Warn("Run report could not be delivered.", "url", a.cfg.WebhookURL, "error", err)
		} else {
			a.logger.Info("Run report delivered.", "url", a.cfg.WebhookURL)
		}
		if err := notifier.Close(); err != nil {
			a.logger.Debug("Closing webhook client.", "error", err)
		}
	}

	a.logger.Debug("App.Run method finished.", "status", run.Status)
	if !run.Status.Passed() {
		return ErrRunFailed
	}
	return nil
}

// newStore picks the artifact cache backing for this run: a disk store when
// a cache directory is configured, otherwise an in-memory store that only
// lives for the run.
func (a *App) newStore() (cachestore.Store, error) {
	if a.cfg.CacheDir == "" {
		a.logger.Debug("No cache directory configured, using an in-memory store.")
		return cachestore.NewMemStore(), nil
	}

	tag, err := cachestore.ParseCompressionTag(a.cfg.Compression)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("Opening disk cache store.", "dir", a.cfg.CacheDir, "compression", tag)
	return cachestore.NewDiskStore(a.cfg.CacheDir, tag)
}
