// Package provider abstracts the remote text-generation backend. Each
// implementation takes a prompt and returns raw response text; parsing that
// text into file operations happens downstream. The types live in the
// shared subpackage and are aliased here for call sites.
package provider

import "github.com/patchpilot/patchpilot/internal/provider/shared"

// Request carries one generation call.
type Request = shared.Request

// Provider is the interface that all generation backends implement.
type Provider = shared.Provider

// TruncationMarker terminates a response that exceeded the size ceiling.
const TruncationMarker = shared.TruncationMarker

// Truncate caps text at maxBytes, appending the truncation marker when cut.
// A non-positive maxBytes disables the cap.
func Truncate(text string, maxBytes int) string {
	return shared.Truncate(text, maxBytes)
}
