// Package pipeline orchestrates one task end to end: fetch the issue,
// assemble a bounded prompt from context digests, call the generation
// backend, parse the response into typed blocks, and apply each block
// after path validation. Per-block failures are recorded and skipped;
// only backend failures abort the run.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/patchpilot/patchpilot/internal/apply"
	"github.com/patchpilot/patchpilot/internal/blocks"
	"github.com/patchpilot/patchpilot/internal/cleanup"
	"github.com/patchpilot/patchpilot/internal/digest"
	"github.com/patchpilot/patchpilot/internal/pathcheck"
	"github.com/patchpilot/patchpilot/internal/prompt"
	"github.com/patchpilot/patchpilot/internal/provider"
	"github.com/patchpilot/patchpilot/internal/sanitize"
	"github.com/patchpilot/patchpilot/internal/session"
	"github.com/patchpilot/patchpilot/internal/tracker"
)

// digestMaxBytes bounds one context file's digest inside the prompt.
const digestMaxBytes = 8 << 10

// RetryPolicy bounds the compensating re-submission used when a
// response yields no usable blocks. The bound is explicit so it is
// visible and adjustable rather than hard-coded control flow.
type RetryPolicy struct {
	MaxAttempts int
}

// DefaultRetryPolicy allows exactly one reformat re-submission.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 1}

// IssueFetcher retrieves task descriptions. *tracker.Client implements it.
type IssueFetcher interface {
	FetchIssue(ctx context.Context, number int) (*tracker.IssueRecord, error)
}

// SkippedBlock records a block that could not be applied and why.
type SkippedBlock struct {
	Index  int
	Path   string
	Reason string
}

// Result is the outcome of one pipeline run.
type Result struct {
	Changed      bool
	FilesChanged int
	Failed       bool
	Skipped      []SkippedBlock
}

// Summary renders a human-readable account of the run.
func (r *Result) Summary() string {
	var b strings.Builder
	if r.Failed {
		b.WriteString("task failed: no usable file operations extracted\n")
	}
	fmt.Fprintf(&b, "files changed: %d\n", r.FilesChanged)
	for _, s := range r.Skipped {
		fmt.Fprintf(&b, "skipped block %d (%s): %s\n", s.Index, s.Path, s.Reason)
	}
	return b.String()
}

// Pipeline wires the components for one run.
type Pipeline struct {
	Provider provider.Provider
	Model    string
	Issues   IssueFetcher
	Prompts  *prompt.Builder
	Digests  *digest.Builder
	Store    *session.Store
	Session  *session.Session
	Registry *cleanup.Registry

	WorkspaceRoot string
	CacheDir      string
	ContextFiles  []string
	OutputPath    string

	Retry RetryPolicy
}

// Run executes the pipeline for one issue. The returned error is only
// non-nil for run-aborting failures (issue fetch, backend call); block
// level problems land in Result.Skipped instead.
func (p *Pipeline) Run(ctx context.Context, issueNumber int) (*Result, error) {
	issue, err := p.Issues.FetchIssue(ctx, issueNumber)
	if err != nil {
		return nil, err
	}

	task := newTaskContext(issue, p.Session.ID)
	p.Session.RecordTask(task.ID)
	if err := task.save(p.Store, p.Session); err != nil {
		log.Printf("[Pipeline] Failed to persist task context: %v", err)
	}

	result, runErr := p.runTask(ctx, issue)
	if runErr != nil || result.Failed {
		task.Status = StatusFailed
	} else {
		task.Status = StatusCompleted
	}
	if err := task.save(p.Store, p.Session); err != nil {
		log.Printf("[Pipeline] Failed to persist task context: %v", err)
	}
	if runErr != nil {
		// The invoking environment still gets a definitive signal when
		// the backend call itself failed.
		log.Printf("[Pipeline] AI request failed: %v", runErr)
		if err := p.writeOutput(&Result{}); err != nil {
			log.Printf("[Pipeline] Failed to write output signal: %v", err)
		}
		return nil, runErr
	}

	if err := p.writeOutput(result); err != nil {
		log.Printf("[Pipeline] Failed to write output signal: %v", err)
	}
	return result, nil
}

func (p *Pipeline) runTask(ctx context.Context, issue *tracker.IssueRecord) (*Result, error) {
	taskPrompt, err := p.Prompts.Build(issue, p.collectContext(issue.Query()))
	if err != nil {
		return nil, err
	}

	response, err := p.generate(ctx, taskPrompt, "response")
	if err != nil {
		return nil, err
	}

	parsed := blocks.Parse(response)
	attempts := 0
	for len(parsed) == 0 && attempts < p.Retry.MaxAttempts {
		if strings.Contains(response, prompt.NoChangesMarker) {
			log.Printf("[Pipeline] Model stated no changes for task #%d", issue.Number)
			return &Result{}, nil
		}

		attempts++
		log.Printf("[Pipeline] No blocks extracted, re-submitting for reformat (attempt %d/%d)",
			attempts, p.Retry.MaxAttempts)
		reformatPrompt, err := p.Prompts.BuildReformat(response)
		if err != nil {
			return nil, err
		}
		response, err = p.generate(ctx, reformatPrompt, fmt.Sprintf("reformat-%d", attempts))
		if err != nil {
			return nil, err
		}
		parsed = blocks.Parse(response)
	}

	if len(parsed) == 0 {
		if strings.Contains(response, prompt.NoChangesMarker) {
			return &Result{}, nil
		}
		return &Result{Failed: true}, nil
	}

	return p.applyBlocks(parsed), nil
}

// collectContext digests each configured context file. Files that
// cannot be digested are skipped with a logged reason.
func (p *Pipeline) collectContext(query string) []prompt.ContextFile {
	var out []prompt.ContextFile
	for _, path := range p.ContextFiles {
		full := path
		if !filepath.IsAbs(full) {
			full = filepath.Join(p.WorkspaceRoot, path)
		}
		text, err := p.Digests.Digest(full, query, digestMaxBytes)
		if err != nil {
			log.Printf("[Pipeline] Skipping context %s: %v", path, err)
			continue
		}
		out = append(out, prompt.ContextFile{Path: path, Digest: text})
	}
	return out
}

// generate calls the backend and persists a sanitized transient copy of
// the response for post-mortem inspection. The copy is registered for
// secure deletion at exit.
func (p *Pipeline) generate(ctx context.Context, text, label string) (string, error) {
	response, err := p.Provider.Generate(ctx, &provider.Request{
		Model:  p.Model,
		Prompt: text,
	})
	if err != nil {
		return "", fmt.Errorf("generation backend: %w", err)
	}

	p.persistTransient(label, response)
	return response, nil
}

func (p *Pipeline) persistTransient(label, text string) {
	if p.CacheDir == "" || p.Registry == nil {
		return
	}
	path := filepath.Join(p.CacheDir,
		fmt.Sprintf(".patchpilot-%s-%s.txt", label, p.Session.ID))
	if err := os.WriteFile(path, []byte(sanitize.Sanitize(text)), 0o600); err != nil {
		log.Printf("[Pipeline] Failed to persist %s artifact: %v", label, err)
		return
	}
	p.Registry.Register(path)
}

// applyBlocks validates and applies each block independently. A failing
// block is recorded and skipped; siblings still apply.
func (p *Pipeline) applyBlocks(parsed []blocks.CodeBlock) *Result {
	result := &Result{}
	for _, block := range parsed {
		changed, err := p.applyBlock(block)
		if err != nil {
			log.Printf("[Pipeline] Skipping block %d (%s): %v", block.Index, block.FilePath, err)
			result.Skipped = append(result.Skipped, SkippedBlock{
				Index:  block.Index,
				Path:   block.FilePath,
				Reason: err.Error(),
			})
			continue
		}
		if changed {
			result.FilesChanged++
		}
	}
	result.Changed = result.FilesChanged > 0
	return result
}

func (p *Pipeline) applyBlock(block blocks.CodeBlock) (bool, error) {
	isEdit := block.Kind == blocks.KindEdit
	if err := pathcheck.Validate(p.WorkspaceRoot, block.FilePath, isEdit); err != nil {
		return false, err
	}

	if !isEdit {
		return apply.Write(p.WorkspaceRoot, block.FilePath, block.Content)
	}

	op, err := blocks.ParseEdit(block.Content)
	if err != nil {
		return false, err
	}
	return apply.Edit(p.WorkspaceRoot, block.FilePath, op.SearchText, op.ReplaceText)
}

// writeOutput emits the changes signal as key=value lines, appended to
// the configured output file (the GITHUB_OUTPUT convention) or printed
// to stdout when no file is configured.
func (p *Pipeline) writeOutput(result *Result) error {
	signal := fmt.Sprintf("changes=%t\nfiles_changed=%d\n", result.Changed, result.FilesChanged)

	if p.OutputPath == "" {
		fmt.Print(signal)
		return nil
	}

	f, err := os.OpenFile(p.OutputPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(signal)
	return err
}
