package app_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vk/gridci/internal/app"
	"github.com/vk/gridci/internal/config"
	"github.com/vk/gridci/internal/result"
	"github.com/vk/gridci/internal/testutil"
)

const mixedOutcomePipeline = `
pipeline "ci" {
  job "check" {
    on = ["push", "pull_request"]

    matrix {
      features = ["default", "alloc"]
    }

    step "build" {
      command = "test \"$MATRIX_FEATURES\" != alloc"
    }
  }

  job "fmt" {
    on = ["push"]
    step "fmt" {
      command = "true"
    }
  }
}
`

func TestRun_FailingCellFailsTheRunButNotItsSiblings(t *testing.T) {
	res := testutil.RunPipelineTest(t, map[string]string{"ci.hcl": mixedOutcomePipeline}, testutil.Options{})

	require.ErrorIs(t, res.Err, app.ErrRunFailed)

	require.Contains(t, res.Output, `❌ Pipeline "ci" (push): fail`)
	require.Contains(t, res.Output, "❌ check [features=alloc]")
	require.Contains(t, res.Output, "✅ check [features=default]")
	require.Contains(t, res.Output, "✅ fmt [default]")
}

func TestRun_AllCellsPassing(t *testing.T) {
	files := map[string]string{"ci.yaml": `
pipeline: ci
jobs:
  lint:
    steps:
      - name: vet
        command: "true"
      - name: fmt
        command: "true"
`}
	res := testutil.RunPipelineTest(t, files, testutil.Options{})

	require.NoError(t, res.Err)
	require.Contains(t, res.Output, `✅ Pipeline "ci" (push): pass`)
}

func TestRun_TriggerSelectsJobs(t *testing.T) {
	files := map[string]string{"ci.hcl": `
pipeline "ci" {
  job "nightly" {
    on = ["schedule"]
    step "audit" {
      command = "true"
    }
  }
}
`}
	res := testutil.RunPipelineTest(t, files, testutil.Options{Event: "push"})

	// Nothing matched: the run is empty and passes.
	require.NoError(t, res.Err)
	require.NotContains(t, res.Output, "nightly [")

	res = testutil.RunPipelineTest(t, files, testutil.Options{Event: "schedule"})
	require.NoError(t, res.Err)
	require.Contains(t, res.Output, "✅ nightly [default]")
}

func TestRun_DiskCacheIsWarmOnTheSecondRun(t *testing.T) {
	files := map[string]string{"ci.hcl": `
pipeline "ci" {
  job "deps" {
    step "fetch" {
      command = "mkdir -p vendor && touch vendor/marker"
      cache {
        key   = "deps-${trigger.event}"
        paths = ["vendor"]
      }
    }
  }
}
`}
	cacheDir := t.TempDir()

	cold := testutil.RunPipelineTest(t, files, testutil.Options{CacheDir: cacheDir})
	require.NoError(t, cold.Err)
	require.Contains(t, cold.Output, "Artifact saved to cache.")
	require.NotContains(t, cold.Output, "Cache hit")

	warm := testutil.RunPipelineTest(t, files, testutil.Options{CacheDir: cacheDir})
	require.NoError(t, warm.Err)
	require.Contains(t, warm.Output, "Cache hit, artifact restored.")
}

func TestRun_WebhookReceivesTheRunReport(t *testing.T) {
	var got result.RunResult
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	res := testutil.RunPipelineTest(t,
		map[string]string{"ci.hcl": mixedOutcomePipeline},
		testutil.Options{WebhookURL: srv.URL})

	require.ErrorIs(t, res.Err, app.ErrRunFailed)
	require.Contains(t, res.Output, "Run report delivered.")

	require.Equal(t, "ci", got.Pipeline)
	require.Equal(t, result.StatusFail, got.Status)
	require.Len(t, got.Jobs["check"], 2)
	require.Len(t, got.Jobs["fmt"], 1)
}

func TestNewApp_BrokenDefinitionIsAConfigError(t *testing.T) {
	res := testutil.RunPipelineTest(t,
		map[string]string{"ci.hcl": "pipeline \"ci\" {\n  job \"check\" {\n  }\n}\n"},
		testutil.Options{})

	require.Error(t, res.Err)
	var cfgErr *config.Error
	require.True(t, errors.As(res.Err, &cfgErr), "err = %v, want *config.Error", res.Err)
	require.True(t, strings.Contains(res.Err.Error(), "defines no steps"))
}
