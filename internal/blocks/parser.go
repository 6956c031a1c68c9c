// Package blocks tokenizes a model response into typed code blocks. The
// response is free-form text authored by the model, so the parser is a
// forgiving line state machine: malformed blocks are dropped with a logged
// reason, never fatal.
package blocks

import (
	"log"
	"strings"
)

// Kind distinguishes whole-file writes from targeted edits.
type Kind int

const (
	KindWrite Kind = iota
	KindEdit
)

func (k Kind) String() string {
	if k == KindEdit {
		return "edit"
	}
	return "write"
}

// CodeBlock is one parsed unit of model output.
type CodeBlock struct {
	Index    int
	Language string
	FilePath string
	Kind     Kind
	Content  string
}

// editLanguage marks a block whose body is a SEARCH/REPLACE pair rather
// than file content.
const editLanguage = "edit"

const fence = "```"

type parseState int

const (
	stateOutside parseState = iota
	stateInside
)

// Parse extracts code blocks from a raw response. Blocks appear in source
// order. A block without a usable file path (explicit or inferred) is
// dropped and logged.
func Parse(response string) []CodeBlock {
	var (
		blocks   []CodeBlock
		state    = stateOutside
		language string
		filePath string
		content  []string
	)

	emit := func() {
		kind := KindWrite
		if language == editLanguage {
			kind = KindEdit
		}

		if filePath == "" && kind == KindWrite {
			filePath = inferFilePath(language, strings.Join(content, "\n"))
			if filePath != "" {
				log.Printf("[Parse] Inferred file path %q for %s block", filePath, language)
			}
		}
		if filePath == "" {
			log.Printf("[Parse] Dropping %s block %d: no file path and none inferable (language %q)",
				kind, len(blocks), language)
			return
		}

		blocks = append(blocks, CodeBlock{
			Index:    len(blocks),
			Language: language,
			FilePath: filePath,
			Kind:     kind,
			Content:  strings.Join(content, "\n"),
		})
	}

	for _, line := range strings.Split(response, "\n") {
		switch state {
		case stateOutside:
			if strings.HasPrefix(line, fence) {
				language, filePath = parseFenceOpen(line)
				content = content[:0]
				state = stateInside
			}
		case stateInside:
			if strings.TrimRight(line, " \t\r") == fence {
				emit()
				language, filePath = "", ""
				state = stateOutside
				continue
			}
			content = append(content, strings.TrimRight(line, "\r"))
		}
	}

	if state == stateInside {
		log.Printf("[Parse] Dropping unterminated block (language %q)", language)
	}

	return blocks
}

// parseFenceOpen splits "```language path" into its tokens. Quoting and
// backticks around the path are trimmed.
func parseFenceOpen(line string) (language, filePath string) {
	rest := strings.TrimPrefix(strings.TrimRight(line, " \t\r"), fence)
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return "", ""
	}
	language = normalizeLanguage(fields[0])
	if len(fields) > 1 {
		filePath = strings.Trim(fields[1], "`'\"")
	}
	return language, filePath
}

func normalizeLanguage(lang string) string {
	switch strings.ToLower(lang) {
	case "py":
		return "python"
	case "js":
		return "javascript"
	case "ts":
		return "typescript"
	case "golang":
		return "go"
	default:
		return strings.ToLower(lang)
	}
}
