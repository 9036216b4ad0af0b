package cachestore

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestPackUnpack_RestoresFilesIntoAnotherWorkdir(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "target/deps/libfoo.rlib"), "object code")
	writeFile(t, filepath.Join(src, "target/deps/libbar.rlib"), "more object code")
	writeFile(t, filepath.Join(src, "Cargo.lock"), "lockfile")

	data, err := Pack(src, []string{"target/deps", "Cargo.lock"})
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}

	dst := t.TempDir()
	if err := Unpack(dst, data); err != nil {
		t.Fatalf("Unpack: %v", err)
	}

	for path, want := range map[string]string{
		"target/deps/libfoo.rlib": "object code",
		"target/deps/libbar.rlib": "more object code",
		"Cargo.lock":              "lockfile",
	} {
		got, err := os.ReadFile(filepath.Join(dst, path))
		if err != nil {
			t.Errorf("restored file %s: %v", path, err)
			continue
		}
		if string(got) != want {
			t.Errorf("restored %s = %q, want %q", path, got, want)
		}
	}
}

func TestPack_MissingPathFails(t *testing.T) {
	if _, err := Pack(t.TempDir(), []string{"never/created"}); err == nil {
		t.Fatal("expected an error for a missing path, got nil")
	}
}

func TestUnpack_RejectsEscapingEntries(t *testing.T) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	if err := tw.WriteHeader(&tar.Header{
		Name:     "../outside.txt",
		Typeflag: tar.TypeReg,
		Mode:     0o644,
		Size:     4,
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := tw.Write([]byte("oops")); err != nil {
		t.Fatal(err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}

	dst := t.TempDir()
	if err := Unpack(dst, buf.Bytes()); err == nil {
		t.Fatal("expected an error for an entry escaping the workdir, got nil")
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(dst), "outside.txt")); err == nil {
		t.Fatal("escaping entry was written outside the workdir")
	}
}
