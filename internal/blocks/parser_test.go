package blocks

import (
	"strings"
	"testing"
)

func TestParse_WriteBlockWithPath(t *testing.T) {
	response := "Here is the change:\n" +
		"```python greet.py\n" +
		"def hello(): pass\n" +
		"```\n" +
		"Done."

	got := Parse(response)
	if len(got) != 1 {
		t.Fatalf("Parse returned %d blocks, want 1", len(got))
	}
	b := got[0]
	if b.Kind != KindWrite {
		t.Errorf("Kind = %v, want write", b.Kind)
	}
	if b.FilePath != "greet.py" {
		t.Errorf("FilePath = %q, want greet.py", b.FilePath)
	}
	if b.Content != "def hello(): pass" {
		t.Errorf("Content = %q", b.Content)
	}
}

func TestParse_NoFencesYieldsNothing(t *testing.T) {
	got := Parse("I would suggest renaming the function and adding tests.")
	if len(got) != 0 {
		t.Fatalf("Parse returned %d blocks, want 0", len(got))
	}
}

func TestParse_MultipleBlocksInOrder(t *testing.T) {
	response := strings.Join([]string{
		"```go cmd/main.go",
		"package main",
		"```",
		"and then",
		"```edit internal/app.go",
		"SEARCH:",
		"old",
		"REPLACE:",
		"new",
		"```",
	}, "\n")

	got := Parse(response)
	if len(got) != 2 {
		t.Fatalf("Parse returned %d blocks, want 2", len(got))
	}
	if got[0].FilePath != "cmd/main.go" || got[0].Kind != KindWrite {
		t.Errorf("block 0 = %+v", got[0])
	}
	if got[1].FilePath != "internal/app.go" || got[1].Kind != KindEdit {
		t.Errorf("block 1 = %+v", got[1])
	}
	if got[0].Index != 0 || got[1].Index != 1 {
		t.Errorf("indices = %d, %d; want 0, 1", got[0].Index, got[1].Index)
	}
}

func TestParse_InfersPathFromLanguageAndIdentifier(t *testing.T) {
	response := "```python\ndef reticulate(x):\n    return x\n```"

	got := Parse(response)
	if len(got) != 1 {
		t.Fatalf("Parse returned %d blocks, want 1", len(got))
	}
	if got[0].FilePath != "reticulate.py" {
		t.Fatalf("FilePath = %q, want reticulate.py", got[0].FilePath)
	}
}

func TestParse_InfersDefaultWhenNoIdentifier(t *testing.T) {
	response := "```go\npackage main\n```"
	got := Parse(response)
	if len(got) != 1 || got[0].FilePath != "main.go" {
		t.Fatalf("got %+v, want one block with main.go", got)
	}
}

func TestParse_DropsPathlessUnknownLanguage(t *testing.T) {
	response := "```text\nsome notes\n```"
	if got := Parse(response); len(got) != 0 {
		t.Fatalf("Parse returned %d blocks, want 0", len(got))
	}
}

func TestParse_DropsUnterminatedBlock(t *testing.T) {
	response := "```python greet.py\ndef hello(): pass"
	if got := Parse(response); len(got) != 0 {
		t.Fatalf("Parse returned %d blocks, want 0", len(got))
	}
}

func TestParse_PreservesEmbeddedWhitespace(t *testing.T) {
	response := "```python indent.py\ndef f():\n    if True:\n        return 1\n\n```"
	got := Parse(response)
	if len(got) != 1 {
		t.Fatalf("Parse returned %d blocks, want 1", len(got))
	}
	want := "def f():\n    if True:\n        return 1\n"
	if got[0].Content != want {
		t.Fatalf("Content = %q, want %q", got[0].Content, want)
	}
}

func TestParse_QuotedPathIsTrimmed(t *testing.T) {
	got := Parse("```go `pkg/util.go`\npackage util\n```")
	if len(got) != 1 || got[0].FilePath != "pkg/util.go" {
		t.Fatalf("got %+v, want pkg/util.go", got)
	}
}

func TestParse_FenceInsideBlockIsContent(t *testing.T) {
	// An indented or suffixed fence line does not close the block.
	response := "```markdown notes.md\nuse ```go for code\n```"
	got := Parse(response)
	if len(got) != 1 {
		t.Fatalf("Parse returned %d blocks, want 1", len(got))
	}
	if !strings.Contains(got[0].Content, "use ```go for code") {
		t.Fatalf("Content = %q", got[0].Content)
	}
}

func TestParseEdit_BasicPair(t *testing.T) {
	op, err := ParseEdit("SEARCH:\nold line\nREPLACE:\nnew line")
	if err != nil {
		t.Fatalf("ParseEdit failed: %v", err)
	}
	if op.SearchText != "old line" {
		t.Errorf("SearchText = %q", op.SearchText)
	}
	if op.ReplaceText != "new line" {
		t.Errorf("ReplaceText = %q", op.ReplaceText)
	}
}

func TestParseEdit_CaseInsensitiveMarkers(t *testing.T) {
	op, err := ParseEdit("search:\nfoo\nReplace:\nbar")
	if err != nil {
		t.Fatalf("ParseEdit failed: %v", err)
	}
	if op.SearchText != "foo" || op.ReplaceText != "bar" {
		t.Fatalf("op = %+v", op)
	}
}

func TestParseEdit_IgnoresSecondPair(t *testing.T) {
	op, err := ParseEdit("SEARCH:\na\nREPLACE:\nb\nSEARCH:\nc\nREPLACE:\nd")
	if err != nil {
		t.Fatalf("ParseEdit failed: %v", err)
	}
	if op.SearchText != "a" || op.ReplaceText != "b" {
		t.Fatalf("op = %+v, want first pair only", op)
	}
}

func TestParseEdit_Invalid(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"no markers", "just some text"},
		{"missing replace", "SEARCH:\nfoo"},
		{"empty search", "SEARCH:\n\nREPLACE:\nbar"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseEdit(tc.content); err == nil {
				t.Fatalf("ParseEdit(%q) = nil error, want failure", tc.content)
			}
		})
	}
}

func TestParse_MarkdownPathlessIsDropped(t *testing.T) {
	// markdown has no default file name, so a pathless block is dropped.
	if got := Parse("```markdown\n# notes\n```"); len(got) != 0 {
		t.Fatalf("got %d blocks, want 0", len(got))
	}
}
