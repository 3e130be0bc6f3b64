package task

import (
	"errors"
	"strings"
	"testing"
	"time"

	"taskfold/internal/errs"
)

const canonicalTask = `---
id: 6f1c2d3e-0000-4000-8000-000000000001
version: 1
status: backlog
due: 2026-03-05T00:00:00Z
created: 2026-03-01T09:00:00Z
updated: 2026-03-02T10:30:00.25Z
parent_id: 6f1c2d3e-0000-4000-8000-000000000000
---

Call the vendor.

- ask about invoices
`

func TestDecodeCanonical(t *testing.T) {
	got, err := Decode([]byte(canonicalTask), "Work/Call vendor.md")
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if got.Title != "Call vendor" {
		t.Errorf("Title = %q, want %q", got.Title, "Call vendor")
	}
	if got.ID != "6f1c2d3e-0000-4000-8000-000000000001" {
		t.Errorf("ID = %q", got.ID)
	}
	if got.Status != Backlog {
		t.Errorf("Status = %q, want %q", got.Status, Backlog)
	}
	wantDue := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	if got.DueDate == nil || !got.DueDate.Equal(wantDue) {
		t.Errorf("DueDate = %v, want %v", got.DueDate, wantDue)
	}
	wantUpdated := time.Date(2026, 3, 2, 10, 30, 0, 250_000_000, time.UTC)
	if !got.UpdatedAt.Equal(wantUpdated) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, wantUpdated)
	}
	if got.ParentID != "6f1c2d3e-0000-4000-8000-000000000000" {
		t.Errorf("ParentID = %q", got.ParentID)
	}
	if want := "Call the vendor.\n\n- ask about invoices"; got.Notes != want {
		t.Errorf("Notes = %q, want %q", got.Notes, want)
	}
	if got.Version != SchemaVersion {
		t.Errorf("Version = %d, want %d", got.Version, SchemaVersion)
	}
}

func TestRoundTripIsByteExact(t *testing.T) {
	inputs := map[string]string{
		"canonical": canonicalTask,
		"unknown keys": `---
id: abc
version: 1
status: completed
created: 2026-03-01T09:00:00Z
updated: 2026-03-01T09:00:00Z
priority: high
estimate: 3
---

Body
`,
		"empty notes": `---
id: abc
version: 1
status: backlog
created: 2026-03-01T09:00:00Z
updated: 2026-03-01T09:00:00Z
---


`,
	}

	for name, in := range inputs {
		t.Run(name, func(t *testing.T) {
			tk, err := Decode([]byte(in), "Task.md")
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			out, err := Encode(tk)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			if string(out) != in {
				t.Errorf("round trip mismatch\n got: %q\nwant: %q", out, in)
			}
		})
	}
}

func TestUnknownKeysSurviveReencode(t *testing.T) {
	in := `---
status: backlog
x-color: teal
id: abc
tags:
  - home
  - errands
created: 2026-03-01T09:00:00Z
updated: 2026-03-01T09:00:00Z
---
Body`

	tk, err := Decode([]byte(in), "Task.md")
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(tk.Extra) != 2 || tk.Extra[0].Key != "x-color" || tk.Extra[1].Key != "tags" {
		t.Fatalf("Extra = %+v, want x-color then tags", tk.Extra)
	}

	out, err := Encode(tk)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if !strings.HasPrefix(string(out), "---\nid: abc\nversion: 1\nstatus: backlog\n") {
		t.Errorf("known keys not in canonical order:\n%s", out)
	}
	if !strings.Contains(string(out), "x-color: teal\n") {
		t.Errorf("x-color lost:\n%s", out)
	}

	again, err := Decode(out, "Task.md")
	if err != nil {
		t.Fatalf("Decode of re-encoded file failed: %v", err)
	}
	if len(again.Extra) != 2 || len(again.Extra[1].Value.Content) != 2 {
		t.Fatalf("tags not preserved: %+v", again.Extra)
	}
	if again.Extra[1].Value.Content[1].Value != "errands" {
		t.Errorf("tags[1] = %q, want errands", again.Extra[1].Value.Content[1].Value)
	}

	out2, err := Encode(again)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if string(out2) != string(out) {
		t.Errorf("encoding is not stable\nfirst:  %q\nsecond: %q", out, out2)
	}
}

func TestDecodeCompatibility(t *testing.T) {
	tests := []struct {
		name  string
		input string
		check func(t *testing.T, tk *Task)
	}{
		{
			name:  "legacy parent key",
			input: "---\nid: a\nstatus: backlog\ncreated: 2026-01-01T00:00:00Z\nupdated: 2026-01-01T00:00:00Z\nparent: p1\n---\n",
			check: func(t *testing.T, tk *Task) {
				if tk.ParentID != "p1" {
					t.Errorf("ParentID = %q, want p1", tk.ParentID)
				}
			},
		},
		{
			name:  "windows line endings",
			input: "---\r\nid: a\r\nstatus: completed\r\ncreated: 2026-01-01T00:00:00Z\r\nupdated: 2026-01-01T00:00:00Z\r\n---\r\n\r\nline one\r\nline two\r\n",
			check: func(t *testing.T, tk *Task) {
				if tk.Notes != "line one\nline two" {
					t.Errorf("Notes = %q", tk.Notes)
				}
				if !tk.IsCompleted() {
					t.Error("expected completed status")
				}
			},
		},
		{
			name:  "date only and null due",
			input: "---\nid: a\nstatus: backlog\ndue: null\ncreated: 2026-01-01\nupdated: 2026-01-02 08:00:00\n---\n",
			check: func(t *testing.T, tk *Task) {
				if tk.DueDate != nil {
					t.Errorf("DueDate = %v, want nil", tk.DueDate)
				}
				want := time.Date(2026, 1, 2, 8, 0, 0, 0, time.UTC)
				if !tk.UpdatedAt.Equal(want) {
					t.Errorf("UpdatedAt = %v, want %v", tk.UpdatedAt, want)
				}
			},
		},
		{
			name:  "newer schema version kept",
			input: "---\nid: a\nversion: 3\nstatus: backlog\ncreated: 2026-01-01T00:00:00Z\nupdated: 2026-01-01T00:00:00Z\n---\n",
			check: func(t *testing.T, tk *Task) {
				if tk.Version != 3 {
					t.Errorf("Version = %d, want 3", tk.Version)
				}
				out, err := Encode(tk)
				if err != nil {
					t.Fatal(err)
				}
				if !strings.Contains(string(out), "version: 3\n") {
					t.Errorf("version downgraded:\n%s", out)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tk, err := Decode([]byte(tt.input), "T.md")
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			tt.check(t, tk)
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	valid := "id: a\nstatus: backlog\ncreated: 2026-01-01T00:00:00Z\nupdated: 2026-01-01T00:00:00Z\n"

	tests := []struct {
		name     string
		filename string
		input    string
	}{
		{"no frontmatter", "T.md", "just a note\n"},
		{"unterminated", "T.md", "---\n" + valid + "body\n"},
		{"malformed yaml", "T.md", "---\nid: [unclosed\n---\n"},
		{"empty frontmatter", "T.md", "---\n---\n\nbody\n"},
		{"not a mapping", "T.md", "---\n- a\n- b\n---\n"},
		{"unknown status", "T.md", "---\nid: a\nstatus: doing\ncreated: 2026-01-01T00:00:00Z\nupdated: 2026-01-01T00:00:00Z\n---\n"},
		{"bad timestamp", "T.md", "---\nid: a\nstatus: backlog\ncreated: yesterday\nupdated: 2026-01-01T00:00:00Z\n---\n"},
		{"bad due", "T.md", "---\nid: a\nstatus: backlog\ndue: 03/05/2026\ncreated: 2026-01-01T00:00:00Z\nupdated: 2026-01-01T00:00:00Z\n---\n"},
		{"missing id", "T.md", "---\nstatus: backlog\ncreated: 2026-01-01T00:00:00Z\nupdated: 2026-01-01T00:00:00Z\n---\n"},
		{"duplicate key", "T.md", "---\n" + valid + "id: b\n---\n"},
		{"reserved name", ".listdata.md", "---\n" + valid + "---\n"},
		{"wrong extension", "T.txt", "---\n" + valid + "---\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.input), tt.filename)
			if err == nil {
				t.Fatal("expected error")
			}
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("error %T is not a *ParseError", err)
			}
			if !errors.Is(err, ErrParse) {
				t.Error("errors.Is(err, ErrParse) = false")
			}
			if errs.KindOf(err) != errs.Validation {
				t.Errorf("KindOf = %v, want validation", errs.KindOf(err))
			}
		})
	}
}

func TestEncodeRejectsInvalidTask(t *testing.T) {
	if _, err := Encode(&Task{Status: Backlog}); err == nil {
		t.Error("expected error for missing id")
	}
	if _, err := Encode(&Task{ID: "a", Status: "doing"}); err == nil {
		t.Error("expected error for unknown status")
	}
}

func TestNewTaskRoundTrip(t *testing.T) {
	now := time.Date(2026, 4, 1, 12, 0, 0, 123456789, time.FixedZone("X", 3600))
	tk := New("Write report", now)
	due := now.Add(48 * time.Hour)
	tk.DueDate = &due
	tk.Notes = "first line\nsecond line"

	data, err := Encode(&tk)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	got, err := Decode(data, FileName(tk.Title))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got.ID != tk.ID || got.Title != tk.Title || got.Notes != tk.Notes {
		t.Errorf("got %+v, want %+v", got, tk)
	}
	if !got.CreatedAt.Equal(tk.CreatedAt) || !got.DueDate.Equal(due) {
		t.Errorf("timestamps changed: created %v due %v", got.CreatedAt, got.DueDate)
	}
}

func TestTouchNeverMovesBackwards(t *testing.T) {
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	tk := New("A", base)

	tk.Touch(base.Add(time.Hour))
	if !tk.UpdatedAt.Equal(base.Add(time.Hour)) {
		t.Errorf("UpdatedAt = %v, want %v", tk.UpdatedAt, base.Add(time.Hour))
	}

	before := tk.UpdatedAt
	tk.Touch(base) // clock behind the stored value
	if !tk.UpdatedAt.After(before) {
		t.Errorf("UpdatedAt = %v, want after %v", tk.UpdatedAt, before)
	}
}

func TestValidateTitle(t *testing.T) {
	tests := []struct {
		title string
		ok    bool
	}{
		{"Buy milk", true},
		{"Fix bug: 'undefined' in @main", true},
		{"Emoji 🚀", true},
		{"", false},
		{"   ", false},
		{" padded", false},
		{".hidden", false},
		{"a/b", false},
		{`a\b`, false},
		{"tab\there", false},
		{strings.Repeat("a", maxTitleLen+1), false},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			err := ValidateTitle(tt.title)
			if (err == nil) != tt.ok {
				t.Errorf("ValidateTitle(%q) error = %v, want ok=%v", tt.title, err, tt.ok)
			}
		})
	}
}

func TestParseStatus(t *testing.T) {
	if s, err := ParseStatus(" Completed "); err != nil || s != Completed {
		t.Errorf("ParseStatus = (%q, %v)", s, err)
	}
	if _, err := ParseStatus("doing"); err == nil {
		t.Error("expected error for unknown status")
	}
}
