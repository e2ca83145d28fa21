package convert

import (
	"strings"
	"testing"
)

func TestSplitFiles(t *testing.T) {
	output := `Some narration from the model before any file.

---FILE: master_plan.md---
# Plan

## Phases
---END FILE---
---FILE: phase-1.md---
# Phase 1
---END FILE---

Closing narration, also ignored.
`

	files, duplicates, warnings := SplitFiles(output)
	if len(warnings) != 0 || len(duplicates) != 0 {
		t.Errorf("warnings = %v, duplicates = %v, want none", warnings, duplicates)
	}
	if len(files) != 2 {
		t.Fatalf("len(files) = %d, want 2", len(files))
	}
	if files[0].Name != "master_plan.md" {
		t.Errorf("files[0].Name = %q", files[0].Name)
	}
	if !strings.Contains(files[0].Body, "## Phases") {
		t.Errorf("files[0].Body = %q", files[0].Body)
	}
	if files[1].Name != "phase-1.md" || !strings.Contains(files[1].Body, "# Phase 1") {
		t.Errorf("files[1] = %+v", files[1])
	}
}

func TestSplitFilesDuplicateKeepsLast(t *testing.T) {
	output := `---FILE: plan.md---
old content
---END FILE---
---FILE: plan.md---
new content
---END FILE---
`
	files, duplicates, warnings := SplitFiles(output)
	if len(files) != 1 {
		t.Fatalf("len(files) = %d, want 1", len(files))
	}
	if !strings.Contains(files[0].Body, "new content") {
		t.Errorf("duplicate should keep the last body: %q", files[0].Body)
	}
	if len(duplicates) != 1 || duplicates[0] != "plan.md" {
		t.Errorf("duplicates = %v, want the repeated name", duplicates)
	}
	if len(warnings) != 0 {
		t.Errorf("warnings = %v, want none", warnings)
	}
}

func TestSplitFilesEmptyBodyPreserved(t *testing.T) {
	output := "---FILE: notes/empty.md---\n---END FILE---\n"
	files, _, _ := SplitFiles(output)
	if len(files) != 1 {
		t.Fatalf("len(files) = %d, want 1", len(files))
	}
	if files[0].Body != "" {
		t.Errorf("Body = %q, want empty", files[0].Body)
	}
}

func TestSplitFilesUnterminatedBlock(t *testing.T) {
	output := "---FILE: tail.md---\ncontent to the end"
	files, _, warnings := SplitFiles(output)
	if len(files) != 1 || !strings.Contains(files[0].Body, "content to the end") {
		t.Fatalf("files = %+v", files)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "not terminated") {
		t.Errorf("warnings = %v", warnings)
	}
}

func TestSplitFilesMarkerStartsNewBlock(t *testing.T) {
	output := `---FILE: a.md---
a body
---FILE: b.md---
b body
---END FILE---
`
	files, _, warnings := SplitFiles(output)
	if len(files) != 2 {
		t.Fatalf("len(files) = %d, want 2: %+v", len(files), files)
	}
	if files[0].Name != "a.md" || files[1].Name != "b.md" {
		t.Errorf("names = %q, %q", files[0].Name, files[1].Name)
	}
	if len(warnings) != 1 {
		t.Errorf("warnings = %v, want one unterminated warning", warnings)
	}
}

func TestSplitFilesNoFiles(t *testing.T) {
	files, duplicates, warnings := SplitFiles("pure narration, no markers at all")
	if len(files) != 0 || len(duplicates) != 0 || len(warnings) != 0 {
		t.Errorf("files = %+v, duplicates = %v, warnings = %v, want none", files, duplicates, warnings)
	}
}
