// Package pathcheck decides whether a model-proposed file path is safe to
// touch. Response content is untrusted, so every path is vetted before the
// executor sees it.
package pathcheck

import (
	"fmt"
	"path/filepath"
	"strings"
)

// executableExtensions are never created from scratch by a write block.
// Edits to an existing script are allowed; silently materializing a new
// executable artifact is not.
var executableExtensions = map[string]struct{}{
	".sh":   {},
	".bash": {},
	".zsh":  {},
	".exe":  {},
	".bat":  {},
	".cmd":  {},
	".com":  {},
	".scr":  {},
	".ps1":  {},
	".msi":  {},
	".bin":  {},
	".run":  {},
}

// ViolationError describes why a path was rejected.
type ViolationError struct {
	Path   string
	Reason string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("unsafe path %q: %s", e.Path, e.Reason)
}

// Validate reports whether path may be written inside root. It is a pure
// predicate: no filesystem access. isEdit relaxes only the executable
// extension rule.
func Validate(root, path string, isEdit bool) error {
	if strings.TrimSpace(path) == "" {
		return &ViolationError{Path: path, Reason: "empty path"}
	}

	if filepath.IsAbs(path) || strings.HasPrefix(filepath.ToSlash(path), "/") {
		return &ViolationError{Path: path, Reason: "absolute path"}
	}

	// Reject parent-directory segments before canonicalization so that
	// "a/../../b" never even reaches the containment check.
	for _, seg := range strings.Split(filepath.ToSlash(path), "/") {
		if seg == ".." {
			return &ViolationError{Path: path, Reason: "parent directory segment"}
		}
	}

	base := filepath.Base(path)
	if strings.HasPrefix(base, ".patchpilot-") || strings.HasSuffix(base, ".tmp") {
		return &ViolationError{Path: path, Reason: "temporary file name"}
	}

	if !isEdit {
		ext := strings.ToLower(filepath.Ext(base))
		if _, bad := executableExtensions[ext]; bad {
			return &ViolationError{Path: path, Reason: "executable file type " + ext}
		}
	}

	if root != "" && !withinRoot(root, path) {
		return &ViolationError{Path: path, Reason: "escapes workspace root"}
	}

	return nil
}

// withinRoot checks containment after canonicalization.
func withinRoot(root, path string) bool {
	resolved := filepath.Clean(filepath.Join(root, path))
	rel, err := filepath.Rel(root, resolved)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
