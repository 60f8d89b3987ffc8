package prompt

import (
	"strings"
	"testing"

	"github.com/aristath/autopilot/internal/tracker"
)

// TestBuild_DefaultTemplate verifies the built-in prompt carries the task
// identity and the completion-token instruction.
func TestBuild_DefaultTemplate(t *testing.T) {
	b, err := NewBuilder("", "AUTOPILOT_DONE")
	if err != nil {
		t.Fatalf("building: %v", err)
	}

	out, err := b.Build(tracker.Task{
		ID:          "t1",
		Title:       "Wire up the config loader",
		Description: "Merge global and project config files.",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	for _, want := range []string{"t1", "Wire up the config loader", "Merge global and project config files.", "AUTOPILOT_DONE"} {
		if !strings.Contains(out, want) {
			t.Errorf("prompt missing %q:\n%s", want, out)
		}
	}
}

// TestBuild_OmitsEmptyDescription verifies the description block disappears
// rather than rendering an empty section.
func TestBuild_OmitsEmptyDescription(t *testing.T) {
	b, err := NewBuilder("", "DONE")
	if err != nil {
		t.Fatal(err)
	}

	out, err := b.Build(tracker.Task{ID: "t1", Title: "title only"})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "Description:") {
		t.Errorf("empty description rendered a header:\n%s", out)
	}
}

// TestBuild_CustomTemplate verifies a user-supplied template replaces the
// built-in one.
func TestBuild_CustomTemplate(t *testing.T) {
	b, err := NewBuilder("do {{.Task.Title}} then say {{.CompletionToken}}", "OK")
	if err != nil {
		t.Fatal(err)
	}

	out, err := b.Build(tracker.Task{ID: "t1", Title: "the thing"})
	if err != nil {
		t.Fatal(err)
	}
	if out != "do the thing then say OK" {
		t.Errorf("unexpected render: %q", out)
	}
}

// TestNewBuilder_BadTemplate verifies parse errors surface at construction,
// not at first use.
func TestNewBuilder_BadTemplate(t *testing.T) {
	if _, err := NewBuilder("{{.Task.Title", "OK"); err == nil {
		t.Error("expected parse error")
	}
}
