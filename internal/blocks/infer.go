package blocks

import (
	"regexp"
	"strings"
)

// defaultFileNames maps languages that carry a path-bearing convention to a
// fallback file name used when the fence line omits the path.
var defaultFileNames = map[string]string{
	"python":     "main.py",
	"go":         "main.go",
	"javascript": "index.js",
	"typescript": "index.ts",
	"html":       "index.html",
	"css":        "styles.css",
}

var functionPatterns = map[string]*regexp.Regexp{
	"python":     regexp.MustCompile(`(?m)^\s*def\s+([A-Za-z_][A-Za-z0-9_]*)\s*\(`),
	"go":         regexp.MustCompile(`(?m)^func\s+([A-Za-z_][A-Za-z0-9_]*)\s*\(`),
	"javascript": regexp.MustCompile(`(?m)\bfunction\s+([A-Za-z_$][A-Za-z0-9_$]*)\s*\(`),
	"typescript": regexp.MustCompile(`(?m)\bfunction\s+([A-Za-z_$][A-Za-z0-9_$]*)\s*\(`),
}

// inferFilePath derives a file name for a pathless block. Languages outside
// the known set return "", which drops the block. When the content declares
// a named function, its identifier replaces the default basename.
func inferFilePath(language, content string) string {
	name, ok := defaultFileNames[language]
	if !ok {
		return ""
	}

	pattern, ok := functionPatterns[language]
	if !ok {
		return name
	}
	match := pattern.FindStringSubmatch(content)
	if match == nil {
		return name
	}

	ext := name[strings.LastIndex(name, "."):]
	return match[1] + ext
}
