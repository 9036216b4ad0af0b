// Package testutil provides the shared harness for integration tests: it
// materializes pipeline definition files into a temporary directory, runs
// the real application against them, and captures the combined log and
// summary output for assertions.
package testutil

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vk/gridci/internal/app"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// HarnessResult holds the outcomes of an integration test run. Output is the
// combined log and summary stream the CLI user would see.
type HarnessResult struct {
	Output string
	Err    error
	App    *app.App
}

// Options tweaks the harness's default app configuration.
type Options struct {
	Event       string
	Meta        map[string]string
	CacheDir    string
	WebhookURL  string
	MaxParallel int
}

// RunPipelineTest writes the given definition files into a temporary
// directory and executes the full application against it with a background
// context.
func RunPipelineTest(t *testing.T, files map[string]string, opts Options) *HarnessResult {
	t.Helper()
	return RunPipelineTestWithContext(context.Background(), t, files, opts)
}

// RunPipelineTestWithContext is RunPipelineTest with a caller-provided
// context, for cancellation scenarios.
func RunPipelineTestWithContext(ctx context.Context, t *testing.T, files map[string]string, opts Options) *HarnessResult {
	t.Helper()

	tmpDir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(tmpDir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	event := opts.Event
	if event == "" {
		event = "push"
	}
	maxParallel := opts.MaxParallel
	if maxParallel == 0 {
		maxParallel = 4
	}

	cfg, err := app.NewConfig(app.Config{
		PipelinePath: tmpDir,
		Event:        event,
		Meta:         opts.Meta,
		CacheDir:     opts.CacheDir,
		WebhookURL:   opts.WebhookURL,
		LogFormat:    "text",
		LogLevel:     "debug",
		MaxParallel:  maxParallel,
	})
	require.NoError(t, err)

	output := &SafeBuffer{}
	t.Cleanup(func() {
		if os.Getenv("GRIDCI_TEST_LOGS") == "true" {
			t.Logf("--- Full Output for %s ---\n%s", t.Name(), output.String())
		}
	})

	testApp, err := app.NewApp(output, cfg)
	if err != nil {
		return &HarnessResult{Output: output.String(), Err: err}
	}

	runErr := testApp.Run(ctx)
	return &HarnessResult{
		Output: output.String(),
		Err:    runErr,
		App:    testApp,
	}
}
