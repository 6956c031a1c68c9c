// Package shared holds the request type, backend interface, and response
// truncation helper used by every provider backend. Backends import this
// package rather than the parent provider package so the factory in the
// parent can import the backends without an import cycle.
package shared

import "context"

// Request carries one generation call.
type Request struct {
	Model     string
	Prompt    string
	MaxTokens int
}

// Provider is the interface that all generation backends implement.
type Provider interface {
	// Name returns the provider name for logging.
	Name() string

	// Generate performs a single bounded generation call and returns the
	// response text, truncated to the configured response ceiling.
	Generate(ctx context.Context, req *Request) (string, error)
}

// TruncationMarker terminates a response that exceeded the size ceiling.
const TruncationMarker = "\n[response truncated]"

// Truncate caps text at maxBytes, appending the truncation marker when cut.
// A non-positive maxBytes disables the cap.
func Truncate(text string, maxBytes int) string {
	if maxBytes <= 0 || len(text) <= maxBytes {
		return text
	}
	cut := maxBytes - len(TruncationMarker)
	if cut < 0 {
		cut = 0
	}
	return text[:cut] + TruncationMarker
}
