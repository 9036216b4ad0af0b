package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/vk/gridci/internal/app"
	"github.com/vk/gridci/internal/cli"
	"github.com/vk/gridci/internal/config"
)

// main is the entrypoint for the gridci application.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if err := run(os.Stdout, os.Args[1:]); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		var cfgErr *config.Error
		if errors.As(err, &cfgErr) {
			fmt.Fprintln(os.Stderr, cfgErr.Message)
			os.Exit(2)
		}
		if !errors.Is(err, app.ErrRunFailed) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

// run encapsulates the main application logic for easier testing and error
// handling. A run that executed but did not pass comes back as
// app.ErrRunFailed; the summary has already been printed by then.
func run(outW io.Writer, args []string) error {
	appConfig, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	gridciApp, err := app.NewApp(outW, appConfig)
	if err != nil {
		return err
	}

	// An interrupt cancels the run; in-flight cells report as cancelled
	// rather than failed.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return gridciApp.Run(ctx)
}
