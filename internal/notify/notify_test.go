package notify

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"taskfold/internal/errs"
)

type recorder struct {
	sent []Alert
}

func (r *recorder) Notify(_ context.Context, a Alert) error {
	r.sent = append(r.sent, a)
	return nil
}

func TestNew(t *testing.T) {
	if New() == nil {
		t.Fatal("New() returned nil")
	}
}

func TestDefaultConfig(t *testing.T) {
	if cfg := DefaultConfig(); cfg.Enabled || cfg.Sound {
		t.Errorf("DefaultConfig() = %+v, want alerts off", cfg)
	}
}

func TestHelperFor(t *testing.T) {
	tests := []struct {
		goos string
		want string
	}{
		{"linux", "notify-send"},
		{"freebsd", "notify-send"},
		{"darwin", "osascript"},
		{"windows", ""},
		{"plan9", ""},
	}
	for _, tt := range tests {
		h, ok := helperFor(tt.goos)
		if ok != (tt.want != "") || h.name != tt.want {
			t.Errorf("helperFor(%q) = %q, %v, want %q", tt.goos, h.name, ok, tt.want)
		}
	}
}

func TestHelperArgs(t *testing.T) {
	quiet := Alert{Workspace: "home", Summary: "1 conflict to resolve"}
	urgent := Alert{Workspace: `my "work"`, Summary: `2 changes failed to sync`, Urgent: true}

	tests := []struct {
		name string
		args func(Alert) []string
		in   Alert
		want []string
	}{
		{"notify-send", notifySendArgs, quiet, []string{"--app-name=taskfold", "taskfold: home", "1 conflict to resolve"}},
		{"notify-send urgent", notifySendArgs, urgent, []string{
			"--app-name=taskfold", "--urgency=critical", "--hint=string:sound-name:message-new-instant",
			`taskfold: my "work"`, "2 changes failed to sync",
		}},
		{"osascript", osascriptArgs, quiet, []string{"-e", `display notification "1 conflict to resolve" with title "taskfold: home"`}},
		{"osascript urgent", osascriptArgs, urgent, []string{"-e",
			`display notification "2 changes failed to sync" with title "taskfold: my \"work\"" sound name "default"`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.args(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("args = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEscapeAppleScript(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Hello", "Hello"},
		{`Hello "World"`, `Hello \"World\"`},
		{`Path\to\file`, `Path\\to\\file`},
		{`Mix "quote" and \slash`, `Mix \"quote\" and \\slash`},
	}
	for _, tt := range tests {
		if got := escapeAppleScript(tt.in); got != tt.want {
			t.Errorf("escapeAppleScript(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDesktopNotify(t *testing.T) {
	var gotName string
	var gotArgs []string
	d := &Desktop{
		h: helper{name: "notify-send", args: notifySendArgs},
		run: func(_ context.Context, name string, args ...string) error {
			gotName, gotArgs = name, args
			return nil
		},
	}
	a := Alert{Workspace: "home", Summary: "1 conflict to resolve"}
	if err := d.Notify(context.Background(), a); err != nil {
		t.Fatal(err)
	}
	if gotName != "notify-send" || !reflect.DeepEqual(gotArgs, notifySendArgs(a)) {
		t.Errorf("ran %s %q", gotName, gotArgs)
	}

	d.run = func(context.Context, string, ...string) error { return errors.New("exit status 1") }
	if err := d.Notify(context.Background(), a); !errs.Is(err, errs.IO) {
		t.Errorf("Notify() error = %v, want io error", err)
	}
}

func TestAlerterSyncResult(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	a := NewAlerter(rec, Config{Enabled: true, Sound: true})

	steps := []struct {
		conflicts, dead int
		want            string
	}{
		{0, 0, ""},
		{1, 0, "1 conflict to resolve"},
		{1, 0, ""}, // unchanged
		{0, 0, ""}, // resolved
		{2, 3, "2 conflicts to resolve, 3 changes failed to sync"},
		{2, 1, ""},
		{2, 2, "2 changes failed to sync"},
	}
	for i, st := range steps {
		before := len(rec.sent)
		if err := a.SyncResult(ctx, "home", st.conflicts, st.dead); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		switch {
		case st.want == "" && len(rec.sent) != before:
			t.Errorf("step %d: unexpected alert %+v", i, rec.sent[len(rec.sent)-1])
		case st.want != "" && len(rec.sent) != before+1:
			t.Errorf("step %d: got %d alerts, want 1", i, len(rec.sent)-before)
		case st.want != "":
			got := rec.sent[len(rec.sent)-1]
			if got.Summary != st.want || got.Title() != "taskfold: home" || !got.Urgent {
				t.Errorf("step %d: sent %+v, want summary %q", i, got, st.want)
			}
		}
	}
}

func TestAlerterTracksWorkspacesSeparately(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	a := NewAlerter(rec, Config{Enabled: true})

	_ = a.SyncResult(ctx, "home", 1, 0)
	_ = a.SyncResult(ctx, "work", 1, 0)
	if len(rec.sent) != 2 {
		t.Fatalf("sent %d alerts, want 2", len(rec.sent))
	}
	if rec.sent[1].Workspace != "work" || rec.sent[1].Urgent {
		t.Errorf("second alert = %+v, want a quiet alert for work", rec.sent[1])
	}
}

func TestAlerterDisabled(t *testing.T) {
	rec := &recorder{}
	a := NewAlerter(rec, DefaultConfig())
	if err := a.SyncResult(context.Background(), "home", 5, 5); err != nil {
		t.Fatal(err)
	}
	if len(rec.sent) != 0 {
		t.Errorf("disabled alerter sent %+v", rec.sent)
	}
}
