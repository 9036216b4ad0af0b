package cli

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/vk/gridci/internal/config"
)

func TestParse_FullFlagSet(t *testing.T) {
	cfg, exit, err := Parse([]string{
		"--pipeline", "ci.hcl",
		"--event", "schedule",
		"--meta", "branch=main",
		"--meta", "sha=abc123",
		"--cache-dir", "/tmp/cache",
		"--compression", "lz4",
		"--webhook", "http://localhost:9000/report",
		"--max-parallel", "8",
		"--step-timeout", "5m",
		"--log-format", "json",
		"--log-level", "debug",
	}, io.Discard)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if exit {
		t.Fatal("Parse asked for a clean exit")
	}

	if cfg.PipelinePath != "ci.hcl" {
		t.Errorf("PipelinePath = %q", cfg.PipelinePath)
	}
	if cfg.Event != string(config.EventSchedule) {
		t.Errorf("Event = %q", cfg.Event)
	}
	if cfg.Meta["branch"] != "main" || cfg.Meta["sha"] != "abc123" {
		t.Errorf("Meta = %v", cfg.Meta)
	}
	if cfg.Compression != "lz4" || cfg.CacheDir != "/tmp/cache" {
		t.Errorf("cache settings = %q %q", cfg.CacheDir, cfg.Compression)
	}
	if cfg.MaxParallel != 8 || cfg.StepTimeout != 5*time.Minute {
		t.Errorf("execution settings = %d %v", cfg.MaxParallel, cfg.StepTimeout)
	}
}

func TestParse_PositionalPipelinePath(t *testing.T) {
	cfg, exit, err := Parse([]string{"pipelines/"}, io.Discard)
	if err != nil || exit {
		t.Fatalf("Parse: exit=%v err=%v", exit, err)
	}
	if cfg.PipelinePath != "pipelines/" {
		t.Errorf("PipelinePath = %q", cfg.PipelinePath)
	}
	if cfg.Event != "push" {
		t.Errorf("default event = %q, want push", cfg.Event)
	}
}

func TestParse_NoPathPrintsUsage(t *testing.T) {
	var sb strings.Builder
	cfg, exit, err := Parse(nil, &sb)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !exit || cfg != nil {
		t.Errorf("exit=%v cfg=%v, want clean usage exit", exit, cfg)
	}
	if !strings.Contains(sb.String(), "Usage:") {
		t.Errorf("usage text not printed:\n%s", sb.String())
	}
}

func TestParse_Rejections(t *testing.T) {
	cases := []struct {
		name string
		args []string
	}{
		{"unknown event", []string{"--event", "deploy", "ci.hcl"}},
		{"bad meta pair", []string{"--meta", "nokey", "ci.hcl"}},
		{"unknown compression", []string{"--compression", "brotli", "ci.hcl"}},
		{"bad log format", []string{"--log-format", "xml", "ci.hcl"}},
		{"bad log level", []string{"--log-level", "loud", "ci.hcl"}},
		{"negative step timeout", []string{"--step-timeout", "-1s", "ci.hcl"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := Parse(tc.args, io.Discard)
			exitErr, ok := err.(*ExitError)
			if !ok {
				t.Fatalf("err = %v, want *ExitError", err)
			}
			if exitErr.Code != 2 {
				t.Errorf("exit code = %d, want 2", exitErr.Code)
			}
		})
	}
}
