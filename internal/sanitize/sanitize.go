// Package sanitize redacts credential-shaped substrings from text before it
// is logged or written to a transient file. Rules run in a fixed order and
// the whole pass is idempotent: sanitized text never matches a rule again.
package sanitize

import "regexp"

// Marker replaces every redacted match.
const Marker = "[REDACTED]"

// Rule is a single ordered redaction: matches of Pattern are rewritten to
// Replacement (which may reference capture groups).
type Rule struct {
	Name        string
	Pattern     *regexp.Regexp
	Replacement string
}

// Rules is the ordered redaction set. Specific token formats run before the
// generic assignment and base64 rules so log output names the cheapest match.
var Rules = []Rule{
	{
		Name:        "github-token",
		Pattern:     regexp.MustCompile(`\b(?:ghp|gho|ghs|ghr)_[A-Za-z0-9]{36}\b`),
		Replacement: Marker,
	},
	{
		Name:        "github-fine-grained",
		Pattern:     regexp.MustCompile(`\bgithub_pat_[A-Za-z0-9_]{11,221}\b`),
		Replacement: Marker,
	},
	{
		Name:        "sk-prefixed-key",
		Pattern:     regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{16,}\b`),
		Replacement: Marker,
	},
	{
		// The full "Bearer <value>" run is replaced, not just the value:
		// leaving "Bearer" in place would make the marker itself match on a
		// second pass.
		Name:        "bearer-header",
		Pattern:     regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9._~+/=-]{8,}`),
		Replacement: Marker,
	},
	{
		Name:        "secret-assignment",
		Pattern:     regexp.MustCompile(`(?i)\b([A-Z0-9_]*(?:TOKEN|SECRET|PASSWORD|API_?KEY)[A-Z0-9_]*)(\s*[=:]\s*)\S+`),
		Replacement: "${1}${2}" + Marker,
	},
	{
		Name:        "base64-run",
		Pattern:     regexp.MustCompile(`\b[A-Za-z0-9+/]{48,}={0,2}`),
		Replacement: Marker,
	},
}

// Sanitize applies every rule in order and returns the redacted text.
func Sanitize(text string) string {
	if text == "" {
		return text
	}
	for _, rule := range Rules {
		text = rule.Pattern.ReplaceAllString(text, rule.Replacement)
	}
	return text
}
