// Package digest produces size-bounded textual digests of context files for
// prompt construction. Structured (markdown) files become a heading outline
// plus the sections most relevant to a query; everything else falls back to
// a byte-bounded preview. Raw file contents never reach the prompt.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/patchpilot/patchpilot/internal/session"
)

// TruncationMarker terminates any digest that was cut to fit.
const TruncationMarker = "\n[truncated]"

// cacheTTL bounds how long a digest may be reused even with an unchanged
// source; mtime invalidation usually fires first.
const cacheTTL = 24 * time.Hour

const (
	headerTermWeight = 3
	bodyTermWeight   = 1
	maxSections      = 2
)

// Builder computes digests, caching them in a session store when one is
// provided.
type Builder struct {
	store *session.Store
}

// NewBuilder creates a Builder. store may be nil to disable caching.
func NewBuilder(store *session.Store) *Builder {
	return &Builder{store: store}
}

// Digest returns a text digest of path sized for inclusion in a prompt,
// ranked against query. Results are cached keyed by path and query and
// recomputed when the source file changes.
func (b *Builder) Digest(path, query string, maxBytes int) (string, error) {
	key := cacheKey(path, query, maxBytes)
	if b.store != nil {
		if cached, ok := b.store.Get(key); ok {
			return string(cached), nil
		}
	}

	source, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}

	var out string
	if isStructured(path, source, maxBytes) {
		out = structuredDigest(path, source, query)
	} else {
		out = string(source)
	}
	out = truncate(out, maxBytes)

	if b.store != nil {
		if err := b.store.PutDerived(key, []byte(out), cacheTTL, path); err != nil {
			log.Printf("[Digest] Warning: cache write for %s failed: %v", path, err)
		}
	}
	return out, nil
}

func cacheKey(path, query string, maxBytes int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s\x00%s\x00%d", path, query, maxBytes)))
	return session.SharedKey("digest/" + hex.EncodeToString(sum[:]))
}

// isStructured decides whether the outline+sections treatment applies:
// markdown files large enough to need summarizing, with real headings.
func isStructured(path string, source []byte, maxBytes int) bool {
	if len(source) <= maxBytes {
		return false
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".mdx", ".markdown":
	default:
		return false
	}
	return len(parseSections(source)) >= 2
}

// section is one heading-delimited slice of a markdown document.
type section struct {
	level int
	title string
	body  string
	order int
}

// parseSections walks the goldmark AST and slices the source at each
// heading line.
func parseSections(source []byte) []section {
	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(source))

	type headingInfo struct {
		level int
		title string
		start int
	}
	var headings []headingInfo

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		heading, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}

		lines := heading.Lines()
		if lines.Len() == 0 {
			return ast.WalkContinue, nil
		}
		seg := lines.At(0)

		var title []byte
		for i := 0; i < lines.Len(); i++ {
			line := lines.At(i)
			title = append(title, line.Value(source)...)
		}

		// Back up over the "#… " prefix to the start of the heading line.
		start := seg.Start - heading.Level - 1
		if start < 0 {
			start = 0
		}

		headings = append(headings, headingInfo{
			level: heading.Level,
			title: strings.TrimSpace(string(title)),
			start: start,
		})
		return ast.WalkContinue, nil
	})

	sections := make([]section, 0, len(headings))
	for i, h := range headings {
		end := len(source)
		if i+1 < len(headings) {
			end = headings[i+1].start
		}
		sections = append(sections, section{
			level: h.level,
			title: h.title,
			body:  string(source[h.start:end]),
			order: i,
		})
	}
	return sections
}

// structuredDigest renders the outline plus the highest-scoring sections.
func structuredDigest(path string, source []byte, query string) string {
	sections := parseSections(source)
	terms := queryTerms(query)

	scored := make([]section, len(sections))
	copy(scored, sections)
	scores := make(map[int]int, len(sections))
	for _, s := range sections {
		scores[s.order] = scoreSection(s, terms)
	}
	sort.SliceStable(scored, func(i, j int) bool {
		si, sj := scores[scored[i].order], scores[scored[j].order]
		if si != sj {
			return si > sj
		}
		return scored[i].order < scored[j].order
	})
	if len(scored) > maxSections {
		scored = scored[:maxSections]
	}
	// Present chosen sections in document order.
	sort.Slice(scored, func(i, j int) bool { return scored[i].order < scored[j].order })

	var sb strings.Builder
	fmt.Fprintf(&sb, "Outline of %s:\n", filepath.Base(path))
	for _, s := range sections {
		sb.WriteString(strings.Repeat("#", s.level))
		sb.WriteString(" ")
		sb.WriteString(s.title)
		sb.WriteString("\n")
	}
	sb.WriteString("\nMost relevant sections:\n\n")
	for _, s := range scored {
		sb.WriteString(strings.TrimRight(s.body, "\n"))
		sb.WriteString("\n\n")
	}
	return strings.TrimRight(sb.String(), "\n") + "\n"
}

// scoreSection is a plain term-frequency count: header hits weigh more than
// body hits.
func scoreSection(s section, terms []string) int {
	titleLower := strings.ToLower(s.title)
	bodyLower := strings.ToLower(s.body)

	score := 0
	for _, term := range terms {
		score += headerTermWeight * strings.Count(titleLower, term)
		score += bodyTermWeight * strings.Count(bodyLower, term)
	}
	return score
}

var termPattern = regexp.MustCompile(`[a-z0-9]{3,}`)

// queryTerms lowercases and deduplicates the query's words, keeping only
// terms long enough to be discriminating.
func queryTerms(query string) []string {
	seen := make(map[string]struct{})
	var terms []string
	for _, term := range termPattern.FindAllString(strings.ToLower(query), -1) {
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}
		terms = append(terms, term)
	}
	return terms
}

// truncate cuts s to maxBytes, appending the truncation marker when cut.
func truncate(s string, maxBytes int) string {
	if maxBytes <= 0 || len(s) <= maxBytes {
		return s
	}
	cut := maxBytes - len(TruncationMarker)
	if cut < 0 {
		cut = 0
	}
	return s[:cut] + TruncationMarker
}
