// Package apply mutates workspace files from parsed code blocks: whole-file
// writes and single first-occurrence edits. Each operation is independent;
// a failing block never aborts its siblings.
package apply

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// MaxEditFileSize bounds the file size an edit will load into memory.
const MaxEditFileSize = 10 << 20

// Kind classifies an operation failure.
type Kind string

const (
	// NotFound: target file missing, or search text absent from it.
	NotFound Kind = "not_found"
	// TooLarge: target exceeds MaxEditFileSize.
	TooLarge Kind = "too_large"
	// IO: the filesystem itself errored.
	IO Kind = "io"
)

// OpError reports a failed file operation with its classification.
type OpError struct {
	Path string
	Kind Kind
	Err  error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s: %s (%v)", e.Path, e.Kind, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// ErrorKind extracts the classification from an error chain, or "" when the
// error is not an OpError.
func ErrorKind(err error) Kind {
	var opErr *OpError
	if errors.As(err, &opErr) {
		return opErr.Kind
	}
	return ""
}

// Write creates or overwrites rel (relative to root) with content, creating
// parent directories as needed. Content is normalized to end in exactly one
// newline. Returns whether the file content actually changed.
func Write(root, rel, content string) (bool, error) {
	path := filepath.Join(root, rel)
	normalized := normalizeTrailingNewline(content)

	if prior, err := os.ReadFile(path); err == nil && bytes.Equal(prior, []byte(normalized)) {
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, &OpError{Path: rel, Kind: IO, Err: err}
	}
	if err := os.WriteFile(path, []byte(normalized), 0o644); err != nil {
		return false, &OpError{Path: rel, Kind: IO, Err: err}
	}

	log.Printf("[Apply] Wrote %s (%d bytes)", rel, len(normalized))
	return true, nil
}

// Edit replaces the first occurrence of search in rel with replace. Fails
// with NotFound when the file is missing or the search text does not occur
// verbatim, and with TooLarge past the size ceiling.
func Edit(root, rel, search, replace string) (bool, error) {
	path := filepath.Join(root, rel)

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, &OpError{Path: rel, Kind: NotFound, Err: err}
		}
		return false, &OpError{Path: rel, Kind: IO, Err: err}
	}
	if info.Size() > MaxEditFileSize {
		return false, &OpError{Path: rel, Kind: TooLarge,
			Err: fmt.Errorf("file is %d bytes, ceiling is %d", info.Size(), MaxEditFileSize)}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return false, &OpError{Path: rel, Kind: IO, Err: err}
	}

	text := string(data)
	if !strings.Contains(text, search) {
		return false, &OpError{Path: rel, Kind: NotFound,
			Err: fmt.Errorf("search text not found")}
	}

	// First occurrence only, never all.
	updated := strings.Replace(text, search, replace, 1)
	if updated == text {
		return false, nil
	}

	if err := os.WriteFile(path, []byte(updated), info.Mode().Perm()); err != nil {
		return false, &OpError{Path: rel, Kind: IO, Err: err}
	}

	log.Printf("[Apply] Edited %s (first occurrence, %d -> %d bytes)", rel, len(text), len(updated))
	return true, nil
}

// normalizeTrailingNewline ensures non-empty content ends with exactly one
// newline.
func normalizeTrailingNewline(content string) string {
	if content == "" {
		return content
	}
	return strings.TrimRight(content, "\n") + "\n"
}
