package runner

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/vk/gridci/internal/cachestore"
	"github.com/vk/gridci/internal/config"
	"github.com/vk/gridci/internal/ctxlog"
	"github.com/vk/gridci/internal/keytmpl"
	"github.com/vk/gridci/internal/matrix"
	"github.com/vk/gridci/internal/result"
	"github.com/vk/gridci/internal/stepexec"
)

// scriptedExec fails the steps whose names appear in failing and records
// the order every command ran in.
type scriptedExec struct {
	mu      sync.Mutex
	failing map[string]result.Status
	ran     []string
	seenEnv map[string][]string
}

func newScriptedExec() *scriptedExec {
	return &scriptedExec{failing: map[string]result.Status{}, seenEnv: map[string][]string{}}
}

func (e *scriptedExec) Run(_ context.Context, c stepexec.Command) result.StepResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ran = append(e.ran, c.Name)
	e.seenEnv[c.Name] = c.Env

	if status, ok := e.failing[c.Name]; ok {
		return result.StepResult{Name: c.Name, Status: status, ExitCode: 1}
	}
	return result.StepResult{Name: c.Name, Status: result.StatusPass}
}

func testCtx() context.Context {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return ctxlog.WithLogger(context.Background(), logger)
}

func newTestRunner(t *testing.T, exec stepexec.Executor) (*Runner, *cachestore.MemStore) {
	t.Helper()
	store := cachestore.NewMemStore()
	return &Runner{
		Exec:     exec,
		Cache:    store,
		Keys:     keytmpl.New(t.TempDir()),
		WorkRoot: t.TempDir(),
	}, store
}

func job(steps ...*config.Step) *config.Job {
	return &config.Job{Name: "check", Steps: steps}
}

func step(name, command string) *config.Step {
	return &config.Step{Name: name, Command: command}
}

func cachedStep(t *testing.T, name, keySrc string, paths ...string) *config.Step {
	t.Helper()
	expr, err := keytmpl.Parse(keySrc)
	if err != nil {
		t.Fatalf("parsing key template: %v", err)
	}
	s := step(name, "true")
	s.Cache = &config.CacheBinding{Key: expr, Paths: paths}
	return s
}

func TestRunCell_FailFastPreservesCompletedSteps(t *testing.T) {
	exec := newScriptedExec()
	exec.failing["b"] = result.StatusFail
	r, _ := newTestRunner(t, exec)

	cr := r.RunCell(testCtx(), job(step("a", "true"), step("b", "false"), step("c", "true")),
		matrix.Cell{}, config.TriggerContext{Event: config.EventPush})

	if cr.Status != result.StatusFail {
		t.Errorf("cell status = %s, want fail", cr.Status)
	}
	if len(cr.Steps) != 2 {
		t.Fatalf("cell recorded %d steps, want 2 (a and b only)", len(cr.Steps))
	}
	if cr.Steps[0].Name != "a" || cr.Steps[0].Status != result.StatusPass {
		t.Errorf("step a result = %+v", cr.Steps[0])
	}
	if cr.Steps[1].Name != "b" || cr.Steps[1].Status != result.StatusFail {
		t.Errorf("step b result = %+v", cr.Steps[1])
	}
	if len(exec.ran) != 2 {
		t.Errorf("executor ran %v, step c must never execute", exec.ran)
	}
}

func TestRunCell_TimeoutFailsTheCell(t *testing.T) {
	exec := newScriptedExec()
	exec.failing["slow"] = result.StatusTimeout
	r, _ := newTestRunner(t, exec)

	cr := r.RunCell(testCtx(), job(step("slow", "sleep 999"), step("after", "true")),
		matrix.Cell{}, config.TriggerContext{Event: config.EventPush})

	if cr.Status != result.StatusFail {
		t.Errorf("cell status = %s, want fail (timeout fails the cell)", cr.Status)
	}
	if len(cr.Steps) != 1 || cr.Steps[0].Status != result.StatusTimeout {
		t.Errorf("timeout step result missing or wrong: %+v", cr.Steps)
	}
}

func TestRunCell_AllStepsPass(t *testing.T) {
	exec := newScriptedExec()
	r, _ := newTestRunner(t, exec)

	cr := r.RunCell(testCtx(), job(step("a", "true"), step("b", "true")),
		matrix.Cell{}, config.TriggerContext{Event: config.EventPush})

	if cr.Status != result.StatusPass {
		t.Errorf("cell status = %s, want pass", cr.Status)
	}
	if len(cr.Steps) != 2 {
		t.Errorf("recorded %d steps, want 2", len(cr.Steps))
	}
}

func TestRunCell_CancelledContextMarksCellCancelled(t *testing.T) {
	exec := newScriptedExec()
	r, _ := newTestRunner(t, exec)

	ctx, cancel := context.WithCancel(testCtx())
	cancel()

	cr := r.RunCell(ctx, job(step("a", "true")), matrix.Cell{}, config.TriggerContext{Event: config.EventPush})

	if cr.Status != result.StatusCancelled {
		t.Errorf("cell status = %s, want cancelled", cr.Status)
	}
	if len(exec.ran) != 0 {
		t.Errorf("no step may execute after cancellation, ran %v", exec.ran)
	}
}

func TestRunCell_MatrixBindingsReachTheEnvironment(t *testing.T) {
	exec := newScriptedExec()
	r, _ := newTestRunner(t, exec)

	cell := matrix.Cell{Bindings: []matrix.Binding{{Axis: "features", Value: "alloc"}}}
	r.RunCell(testCtx(), job(step("build", "cargo build")), cell, config.TriggerContext{Event: config.EventPullRequest})

	env := exec.seenEnv["build"]
	want := map[string]bool{
		"MATRIX_FEATURES=alloc":     false,
		"GRIDCI_EVENT=pull_request": false,
		"GRIDCI_JOB=check":          false,
	}
	for _, e := range env {
		if _, ok := want[e]; ok {
			want[e] = true
		}
	}
	for e, seen := range want {
		if !seen {
			t.Errorf("environment is missing %q (got %v)", e, env)
		}
	}
}

func TestRunCell_CacheMissThenPutThenHit(t *testing.T) {
	local := stepexec.NewLocal()
	r, store := newTestRunner(t, local)
	trig := config.TriggerContext{Event: config.EventPush}

	produce := cachedStep(t, "fetch", "deps-v1", "vendor")
	produce.Command = "mkdir -p vendor && echo crate > vendor/lib.rs"

	// Cold run: miss, then the passing step's artifact is saved.
	cr := r.RunCell(testCtx(), job(produce), matrix.Cell{}, trig)
	if cr.Status != result.StatusPass {
		t.Fatalf("cold run failed: %+v", cr)
	}
	if cr.Steps[0].CacheHit {
		t.Error("cold run reported a cache hit")
	}
	if store.Len() != 1 {
		t.Fatalf("store holds %d entries after cold run, want 1", store.Len())
	}

	// Warm run in a fresh workdir: the artifact is restored before the
	// step runs, and the step observes it.
	verify := cachedStep(t, "fetch", "deps-v1", "vendor")
	verify.Command = "test -f vendor/lib.rs"
	cr = r.RunCell(testCtx(), job(verify), matrix.Cell{}, trig)
	if cr.Status != result.StatusPass {
		t.Fatalf("warm run failed: %+v", cr.Steps)
	}
	if !cr.Steps[0].CacheHit {
		t.Error("warm run did not report a cache hit")
	}
}

// failingStore errors on every operation, modelling an unreachable cache.
type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, context.DeadlineExceeded
}
func (failingStore) Put(context.Context, string, []byte) error {
	return context.DeadlineExceeded
}

func TestRunCell_CacheStoreErrorIsNotACellFailure(t *testing.T) {
	local := stepexec.NewLocal()
	r, _ := newTestRunner(t, local)
	r.Cache = failingStore{}

	s := cachedStep(t, "fetch", "deps-v1", "vendor")
	s.Command = "mkdir -p vendor && echo ok > vendor/ok"

	cr := r.RunCell(testCtx(), job(s), matrix.Cell{}, config.TriggerContext{Event: config.EventPush})
	if cr.Status != result.StatusPass {
		t.Fatalf("cache store trouble failed the cell: %+v", cr.Steps)
	}
	if cr.Steps[0].CacheHit {
		t.Error("reported a hit from a broken store")
	}
}

func TestRunCell_RenderErrorDegradesToUncachedStep(t *testing.T) {
	local := stepexec.NewLocal()
	r, store := newTestRunner(t, local)

	// trigger.missing is not part of the template scope.
	s := cachedStep(t, "fetch", "deps-${trigger.missing}", "vendor")
	s.Command = "mkdir -p vendor"

	cr := r.RunCell(testCtx(), job(s), matrix.Cell{}, config.TriggerContext{Event: config.EventPush})
	if cr.Status != result.StatusPass {
		t.Fatalf("unrenderable key failed the cell: %+v", cr.Steps)
	}
	if store.Len() != 0 {
		t.Error("an entry was saved under an unrenderable key")
	}
}
