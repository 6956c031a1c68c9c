package digest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/patchpilot/patchpilot/internal/session"
)

func writeDoc(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

const sampleDoc = `# Guide

Intro paragraph about the project.

## Installation

Run the installer and follow the steps. Nothing about networking here.

## Authentication

Set the token in your environment. Authentication uses an API token
passed as a header. Token rotation is recommended.

## Deployment

Ship the binary to the target host.
`

func TestDigest_StructuredSelectsRelevantSections(t *testing.T) {
	dir := t.TempDir()
	// Pad the doc so it exceeds maxBytes and takes the structured path.
	doc := sampleDoc + strings.Repeat("Filler line for padding.\n", 40)
	path := writeDoc(t, dir, "guide.md", doc)

	b := NewBuilder(nil)
	out, err := b.Digest(path, "how does authentication token work", 600)
	if err != nil {
		t.Fatalf("Digest failed: %v", err)
	}

	if !strings.Contains(out, "## Authentication") {
		t.Errorf("digest should contain the authentication heading:\n%s", out)
	}
	if !strings.Contains(out, "Outline of guide.md") {
		t.Errorf("digest should contain the outline header:\n%s", out)
	}
	if strings.Contains(out, "Ship the binary") {
		t.Errorf("irrelevant deployment body should not be selected:\n%s", out)
	}
	if len(out) > 600 {
		t.Errorf("digest length %d exceeds maxBytes 600", len(out))
	}
}

func TestDigest_SmallFileIsVerbatim(t *testing.T) {
	dir := t.TempDir()
	path := writeDoc(t, dir, "small.md", "# Tiny\n\njust this\n")

	out, err := NewBuilder(nil).Digest(path, "anything", 4096)
	if err != nil {
		t.Fatalf("Digest failed: %v", err)
	}
	if out != "# Tiny\n\njust this\n" {
		t.Fatalf("small file digest = %q, want verbatim content", out)
	}
}

func TestDigest_NonMarkdownPreviewTruncates(t *testing.T) {
	dir := t.TempDir()
	path := writeDoc(t, dir, "data.txt", strings.Repeat("abcdefghij", 100))

	out, err := NewBuilder(nil).Digest(path, "", 120)
	if err != nil {
		t.Fatalf("Digest failed: %v", err)
	}
	if len(out) != 120 {
		t.Fatalf("digest length = %d, want exactly 120", len(out))
	}
	if !strings.HasSuffix(out, TruncationMarker) {
		t.Fatalf("digest missing truncation marker: %q", out[len(out)-30:])
	}
}

func TestDigest_CacheHitAndMtimeInvalidation(t *testing.T) {
	dir := t.TempDir()
	path := writeDoc(t, dir, "doc.txt", "version one")

	store := session.NewStore(session.NewMemoryBackend())
	b := NewBuilder(store)

	first, err := b.Digest(path, "q", 4096)
	if err != nil {
		t.Fatalf("Digest failed: %v", err)
	}
	if first != "version one" {
		t.Fatalf("first digest = %q", first)
	}

	// Rewrite the source with a future mtime; the cache must miss.
	if err := os.WriteFile(path, []byte("version two"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	second, err := b.Digest(path, "q", 4096)
	if err != nil {
		t.Fatalf("Digest failed: %v", err)
	}
	if second != "version two" {
		t.Fatalf("second digest = %q, want recomputed content", second)
	}
}

func TestDigest_MissingFile(t *testing.T) {
	if _, err := NewBuilder(nil).Digest("/no/such/file.md", "q", 100); err == nil {
		t.Fatal("Digest of missing file succeeded, want error")
	}
}

func TestQueryTerms(t *testing.T) {
	terms := queryTerms("Fix the AUTH token, fix it now!")
	want := map[string]bool{"fix": true, "the": true, "auth": true, "token": true, "now": true}
	if len(terms) != len(want) {
		t.Fatalf("terms = %v, want %d unique terms", terms, len(want))
	}
	for _, term := range terms {
		if !want[term] {
			t.Errorf("unexpected term %q", term)
		}
	}
}
