package session

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestStore_PutGetRoundtrip(t *testing.T) {
	store := NewStore(NewMemoryBackend())

	if err := store.Put("k", []byte("payload"), time.Minute); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, ok := store.Get("k")
	if !ok {
		t.Fatal("Get returned miss for fresh entry")
	}
	if string(got) != "payload" {
		t.Fatalf("payload = %q, want %q", got, "payload")
	}

	if _, ok := store.Get("absent"); ok {
		t.Fatal("Get returned hit for absent key")
	}
}

func TestStore_TTLExpiry(t *testing.T) {
	store := NewStore(NewMemoryBackend())
	current := time.Now()
	store.now = func() time.Time { return current }

	if err := store.Put("k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	current = current.Add(2 * time.Minute)
	if _, ok := store.Get("k"); ok {
		t.Fatal("Get returned hit past TTL")
	}
}

func TestStore_MtimeInvalidation(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "source.md")
	if err := os.WriteFile(source, []byte("v1"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	store := NewStore(NewMemoryBackend())
	if err := store.PutDerived("k", []byte("digest"), time.Hour, source); err != nil {
		t.Fatalf("PutDerived failed: %v", err)
	}

	if _, ok := store.Get("k"); !ok {
		t.Fatal("Get should hit while source unchanged")
	}

	// Advance the source mtime past the recorded one.
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(source, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	if _, ok := store.Get("k"); ok {
		t.Fatal("Get returned hit after source mtime advanced, want miss")
	}
}

func TestStore_SweepByAgeAndSize(t *testing.T) {
	store := NewStore(NewMemoryBackend()).WithLimits(time.Hour, 10)
	current := time.Now()
	store.now = func() time.Time { return current }

	// Entry past the age threshold.
	if err := store.Put("old", []byte("x"), 0); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	current = current.Add(2 * time.Hour)

	// Two fresh entries that together exceed the 10-byte cap.
	if err := store.Put("big-a", []byte("aaaaaaaa"), 0); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	current = current.Add(time.Minute)
	if err := store.Put("big-b", []byte("bbbbbbbb"), 0); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	removed, err := store.Sweep()
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed = %d, want 2 (aged + oldest over cap)", removed)
	}

	if _, ok := store.Get("old"); ok {
		t.Fatal("aged entry survived sweep")
	}
	if _, ok := store.Get("big-a"); ok {
		t.Fatal("oldest over-cap entry survived sweep")
	}
	if _, ok := store.Get("big-b"); !ok {
		t.Fatal("newest entry should survive sweep")
	}
}

func TestDiskBackend_PersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()

	first, err := NewDiskBackend(dir)
	if err != nil {
		t.Fatalf("NewDiskBackend: %v", err)
	}
	store := NewStore(first)
	if err := store.Put("k", []byte("persisted"), 0); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	second, err := NewDiskBackend(dir)
	if err != nil {
		t.Fatalf("NewDiskBackend: %v", err)
	}
	got, ok := NewStore(second).Get("k")
	if !ok || string(got) != "persisted" {
		t.Fatalf("Get = %q, %v; want %q, true", got, ok, "persisted")
	}

	// Writes must not leave temp files behind.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, de := range entries {
		if strings.HasPrefix(de.Name(), ".patchpilot-entry-") {
			t.Fatalf("temp entry left behind: %s", de.Name())
		}
	}
}

func TestSession_KeysAreNamespaced(t *testing.T) {
	sess := New()
	if sess.ID == "" {
		t.Fatal("session id should not be empty")
	}
	if got := sess.Key("task/1"); !strings.HasPrefix(got, "s/"+sess.ID+"/") {
		t.Fatalf("Key = %q, want session prefix", got)
	}
	if got := SharedKey("probe/openrouter"); got != "shared/probe/openrouter" {
		t.Fatalf("SharedKey = %q", got)
	}

	sess.Close(false)
	if sess.Status != StatusCompleted {
		t.Fatalf("Status = %q, want %q", sess.Status, StatusCompleted)
	}
}
