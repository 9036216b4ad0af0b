package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/vk/gridci/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// metaFlag collects repeatable -meta key=value pairs.
type metaFlag map[string]string

func (m metaFlag) String() string {
	pairs := make([]string, 0, len(m))
	for k, v := range m {
		pairs = append(pairs, k+"="+v)
	}
	return strings.Join(pairs, ",")
}

func (m metaFlag) Set(value string) error {
	key, val, ok := strings.Cut(value, "=")
	if !ok || key == "" {
		return fmt.Errorf("expected key=value, got %q", value)
	}
	m[key] = val
	return nil
}

// Parse processes command-line arguments. It returns a populated app.Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	flagSet := flag.NewFlagSet("gridci", flag.ContinueOnError)
	flagSet.SetOutput(output)

	// Custom usage/help text function
	flagSet.Usage = func() {
		fmt.Fprint(output, `
GridCI - A single-run CI pipeline orchestrator.

Usage:
  gridci [options] [PIPELINE_PATH]

Arguments:
  PIPELINE_PATH
    Path to a pipeline definition file (.hcl, .yaml, .yml) or a directory
    containing definition files.

Options:
`)
		flagSet.PrintDefaults()
	}

	meta := metaFlag{}
	pipelineFlag := flagSet.String("pipeline", "", "Path to the pipeline definition file or directory.")
	pFlag := flagSet.String("p", "", "Path to the pipeline definition file or directory (shorthand).")
	eventFlag := flagSet.String("event", "push", "Trigger event. Options: 'push', 'pull_request', 'schedule'.")
	flagSet.Var(meta, "meta", "Trigger metadata as key=value. Repeatable.")
	cacheDirFlag := flagSet.String("cache-dir", "", "Directory for the artifact cache. Empty keeps the cache in memory.")
	compressionFlag := flagSet.String("compression", "zstd", "Compression for new cache entries. Options: 'none', 'lz4', 'zstd'.")
	webhookFlag := flagSet.String("webhook", "", "URL to POST the run report to. Empty disables delivery.")
	maxParallelFlag := flagSet.Int("max-parallel", 4, "Maximum number of matrix cells executing at once.")
	stepTimeoutFlag := flagSet.Duration("step-timeout", 0, "Default timeout for steps that declare none. 0 is disabled.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	path := ""
	if *pipelineFlag != "" {
		path = *pipelineFlag
	} else if *pFlag != "" {
		path = *pFlag
	} else if flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	}

	if path == "" {
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	if *stepTimeoutFlag < 0 {
		return nil, false, &ExitError{Code: 2, Message: "invalid step-timeout: cannot be negative"}
	}

	config, err := app.NewConfig(app.Config{
		PipelinePath: path,
		Event:        strings.ToLower(*eventFlag),
		Meta:         meta,
		CacheDir:     *cacheDirFlag,
		Compression:  strings.ToLower(*compressionFlag),
		WebhookURL:   *webhookFlag,
		LogFormat:    logFormat,
		LogLevel:     logLevel,
		MaxParallel:  *maxParallelFlag,
		StepTimeout:  *stepTimeoutFlag,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	return config, false, nil
}
