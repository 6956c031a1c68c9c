package cleanup

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRegistry_CloseRemovesRegisteredPaths(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "artifact.txt")
	if err := os.WriteFile(file, []byte("transient secret material"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	r := NewRegistry()
	r.Register(file)
	r.Close()

	if _, err := os.Stat(file); !os.IsNotExist(err) {
		t.Fatalf("artifact still exists after Close (err=%v)", err)
	}
}

func TestRegistry_CloseExpandsGlobs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{".patchpilot-prompt", ".patchpilot-response", "keep.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("setup: %v", err)
		}
	}

	r := NewRegistry(filepath.Join(dir, ".patchpilot-*"))
	r.Close()

	for _, name := range []string{".patchpilot-prompt", ".patchpilot-response"} {
		if _, err := os.Stat(filepath.Join(dir, name)); !os.IsNotExist(err) {
			t.Errorf("%s survived Close", name)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "keep.txt")); err != nil {
		t.Errorf("keep.txt should survive Close: %v", err)
	}
}

func TestRegistry_CloseRunsOnce(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	r := NewRegistry()
	r.Register(file)
	r.Close()

	// Second close must be a no-op even after new registrations.
	second := filepath.Join(dir, "b")
	if err := os.WriteFile(second, []byte("y"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	r.Register(second)
	r.Close()

	if _, err := os.Stat(second); err != nil {
		t.Fatal("artifact registered after first Close should not be removed by second Close")
	}
}

func TestRegistry_CloseToleratesMissingPaths(t *testing.T) {
	r := NewRegistry("/nonexistent-dir-xyz/*.tmp")
	r.Register("/nonexistent-dir-xyz/ghost.txt")
	// Must not panic.
	r.Close()
}

func TestRegistry_RemovesDirectories(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "workdir")
	if err := os.MkdirAll(filepath.Join(sub, "nested"), 0o755); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := os.WriteFile(filepath.Join(sub, "nested", "f"), []byte("x"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	r := NewRegistry()
	r.Register(sub)
	r.Close()

	if _, err := os.Stat(sub); !os.IsNotExist(err) {
		t.Fatalf("directory survived Close (err=%v)", err)
	}
}
