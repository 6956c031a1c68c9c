package blocks

import (
	"fmt"
	"regexp"
	"strings"
)

// EditOperation is a single first-occurrence search/replace parsed from an
// edit block's body.
type EditOperation struct {
	SearchText  string
	ReplaceText string
}

var (
	searchMarker  = regexp.MustCompile(`(?i)search:[ \t]*\r?\n?`)
	replaceMarker = regexp.MustCompile(`(?i)replace:[ \t]*\r?\n?`)
)

// ParseEdit splits an edit block body on its SEARCH:/REPLACE: markers.
// Only the first pair is honored; anything after a second SEARCH: marker is
// ignored. An empty search text is invalid.
func ParseEdit(content string) (*EditOperation, error) {
	loc := searchMarker.FindStringIndex(content)
	if loc == nil {
		return nil, fmt.Errorf("edit block missing SEARCH: marker")
	}
	rest := content[loc[1]:]

	rloc := replaceMarker.FindStringIndex(rest)
	if rloc == nil {
		return nil, fmt.Errorf("edit block missing REPLACE: marker")
	}

	search := strings.TrimSuffix(rest[:rloc[0]], "\n")
	replace := rest[rloc[1]:]

	// Ignore any further SEARCH/REPLACE pairs in the same block.
	if extra := searchMarker.FindStringIndex(replace); extra != nil {
		replace = replace[:extra[0]]
	}
	replace = strings.TrimSuffix(replace, "\n")

	if strings.TrimSpace(search) == "" {
		return nil, fmt.Errorf("edit block has empty search text")
	}

	return &EditOperation{SearchText: search, ReplaceText: replace}, nil
}
