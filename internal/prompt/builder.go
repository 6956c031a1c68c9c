// Package prompt composes the task prompt sent to the generation
// backend. The prompt is size-bounded: context digests are dropped from
// the tail until the rendered prompt fits the ceiling.
package prompt

import (
	"bytes"
	"fmt"
	"log"
	"strings"
	"text/template"

	"github.com/patchpilot/patchpilot/internal/tracker"
)

// NoChangesMarker is what the model states when the task requires no
// file changes. The pipeline treats a response containing it as a clean
// no-op rather than an extraction failure.
const NoChangesMarker = "NO_CHANGES_SPECIFIED"

// DefaultMaxPromptBytes caps the rendered prompt when no explicit
// ceiling is configured.
const DefaultMaxPromptBytes = 48 << 10

// ContextFile is one digested source file included in the prompt.
type ContextFile struct {
	Path   string
	Digest string
}

var taskTemplate = template.Must(template.New("task").Parse(`You are implementing a change in an existing code repository.

## Task #{{.Number}}: {{.Title}}

{{.Body}}
{{- if .Labels}}

Labels: {{.Labels}}
{{- end}}
{{- if .Context}}

## Repository context
{{range .Context}}
### {{.Path}}
{{.Digest}}
{{end}}
{{- end}}

## Output format

Respond ONLY with fenced code blocks. To create or overwrite a file:

` + "```" + `<language> <relative/file/path>
<complete file content>
` + "```" + `

To edit an existing file, use the edit language with SEARCH/REPLACE sections:

` + "```" + `edit <relative/file/path>
SEARCH:
<exact text to find>
REPLACE:
<replacement text>
` + "```" + `

Only the first occurrence of the search text is replaced. If the task
requires no file changes, state {{.NoChanges}} and nothing else.
`))

var reformatTemplate = template.Must(template.New("reformat").Parse(`The following response could not be parsed into file operations.
Reformat it into fenced code blocks using this exact format, or state
{{.NoChanges}} if no file changes were specified:

` + "```" + `<language> <relative/file/path>
<complete file content>
` + "```" + `

or for edits:

` + "```" + `edit <relative/file/path>
SEARCH:
<text to find>
REPLACE:
<replacement>
` + "```" + `

Original response:

{{.Response}}
`))

// Builder renders prompts under a byte ceiling.
type Builder struct {
	maxBytes int
}

// NewBuilder creates a builder. A non-positive maxBytes selects the
// default ceiling.
func NewBuilder(maxBytes int) *Builder {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxPromptBytes
	}
	return &Builder{maxBytes: maxBytes}
}

type taskData struct {
	Number    int
	Title     string
	Body      string
	Labels    string
	Context   []ContextFile
	NoChanges string
}

// Build renders the task prompt. Context files are assumed to be in
// descending relevance order; when the rendered prompt exceeds the
// ceiling, files are dropped from the tail first, then the body itself
// is truncated as a last resort.
func (b *Builder) Build(issue *tracker.IssueRecord, context []ContextFile) (string, error) {
	data := taskData{
		Number:    issue.Number,
		Title:     issue.Title,
		Body:      issue.Body,
		Labels:    strings.Join(issue.Labels, ", "),
		Context:   context,
		NoChanges: NoChangesMarker,
	}

	for {
		rendered, err := render(taskTemplate, data)
		if err != nil {
			return "", err
		}
		if len(rendered) <= b.maxBytes {
			return rendered, nil
		}

		if len(data.Context) > 0 {
			dropped := data.Context[len(data.Context)-1]
			data.Context = data.Context[:len(data.Context)-1]
			log.Printf("[Prompt] Dropping context %s: prompt %d bytes exceeds %d",
				dropped.Path, len(rendered), b.maxBytes)
			continue
		}

		overflow := len(rendered) - b.maxBytes
		if overflow >= len(data.Body) {
			return "", fmt.Errorf("prompt exceeds %d bytes even without task body", b.maxBytes)
		}
		log.Printf("[Prompt] Truncating task body by %d bytes to fit %d-byte ceiling",
			overflow, b.maxBytes)
		data.Body = data.Body[:len(data.Body)-overflow]
	}
}

// BuildReformat renders the single compensating re-submission prompt
// used when the first response yielded no usable blocks.
func (b *Builder) BuildReformat(response string) (string, error) {
	data := struct {
		Response  string
		NoChanges string
	}{Response: response, NoChanges: NoChangesMarker}

	rendered, err := render(reformatTemplate, data)
	if err != nil {
		return "", err
	}
	if len(rendered) > b.maxBytes {
		overflow := len(rendered) - b.maxBytes
		if overflow >= len(data.Response) {
			return "", fmt.Errorf("reformat prompt exceeds %d bytes", b.maxBytes)
		}
		data.Response = data.Response[:len(data.Response)-overflow]
		return render(reformatTemplate, data)
	}
	return rendered, nil
}

func render(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return buf.String(), nil
}
