package keytmpl

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/vk/gridci/internal/config"
	"github.com/vk/gridci/internal/matrix"
)

func renderString(t *testing.T, r *Renderer, src string, cell matrix.Cell, trig config.TriggerContext) string {
	t.Helper()
	expr, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse(%q): %v", src, err)
	}
	key, err := r.Render(expr, cell, trig)
	if err != nil {
		t.Fatalf("Render(%q): %v", src, err)
	}
	return key
}

func TestRender_MatrixAndTriggerVariables(t *testing.T) {
	r := New(t.TempDir())
	cell := matrix.Cell{Bindings: []matrix.Binding{{Axis: "features", Value: "alloc"}}}
	trig := config.TriggerContext{
		Event:    config.EventPush,
		Metadata: map[string]string{"commit": "deadbeef"},
	}

	got := renderString(t, r, "deps-${trigger.event}-${matrix.features}-${trigger.commit}", cell, trig)
	want := "deps-push-alloc-deadbeef"
	if got != want {
		t.Errorf("rendered key = %q, want %q", got, want)
	}
}

func TestRender_LiteralKeyNeedsNoVariables(t *testing.T) {
	r := New(t.TempDir())

	got := renderString(t, r, "toolchain-v1", matrix.Cell{}, config.TriggerContext{Event: config.EventSchedule})
	if got != "toolchain-v1" {
		t.Errorf("rendered key = %q, want %q", got, "toolchain-v1")
	}
}

func TestRender_FilesDigestTracksContent(t *testing.T) {
	dir := t.TempDir()
	manifest := filepath.Join(dir, "Cargo.toml")
	if err := os.WriteFile(manifest, []byte("[package]\nname = \"demo\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := New(dir)
	cell := matrix.Cell{}
	trig := config.TriggerContext{Event: config.EventPush}

	first := renderString(t, r, `deps-${files("Cargo.toml")}`, cell, trig)
	second := renderString(t, r, `deps-${files("Cargo.toml")}`, cell, trig)
	if first != second {
		t.Errorf("digest not stable: %q vs %q", first, second)
	}

	if err := os.WriteFile(manifest, []byte("[package]\nname = \"changed\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	changed := renderString(t, r, `deps-${files("Cargo.toml")}`, cell, trig)
	if changed == first {
		t.Error("digest did not change after the input file changed")
	}
}

func TestRender_MissingInputFileFails(t *testing.T) {
	r := New(t.TempDir())
	expr, err := Parse(`deps-${files("does-not-exist.toml")}`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if _, err := r.Render(expr, matrix.Cell{}, config.TriggerContext{Event: config.EventPush}); err == nil {
		t.Fatal("expected an error for a missing input file, got nil")
	}
}

func TestRender_UnknownVariableFails(t *testing.T) {
	r := New(t.TempDir())
	expr, err := Parse("key-${matrix.nope}")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	cell := matrix.Cell{Bindings: []matrix.Binding{{Axis: "features", Value: "default"}}}
	if _, err := r.Render(expr, cell, config.TriggerContext{Event: config.EventPush}); err == nil {
		t.Fatal("expected an error for an unknown matrix axis, got nil")
	}
}
