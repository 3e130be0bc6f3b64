package notify

import (
	"context"
	"os/exec"
	"runtime"
	"strings"

	"taskfold/internal/errs"
)

// helper describes the command-line tool that shows notifications on one
// platform.
type helper struct {
	name string
	args func(Alert) []string
}

// helperFor returns the helper for goos, or false if the platform has none.
func helperFor(goos string) (helper, bool) {
	switch goos {
	case "linux", "freebsd", "openbsd":
		return helper{name: "notify-send", args: notifySendArgs}, true
	case "darwin":
		return helper{name: "osascript", args: osascriptArgs}, true
	}
	return helper{}, false
}

// Desktop shows alerts through the platform helper.
type Desktop struct {
	h   helper
	run func(ctx context.Context, name string, args ...string) error
}

// New returns a Desktop notifier for this platform, or Discard when the
// platform helper is not installed.
func New() Notifier {
	h, ok := helperFor(runtime.GOOS)
	if !ok {
		return Discard
	}
	if _, err := exec.LookPath(h.name); err != nil {
		return Discard
	}
	return &Desktop{h: h, run: runCommand}
}

func (d *Desktop) Notify(ctx context.Context, a Alert) error {
	if err := d.run(ctx, d.h.name, d.h.args(a)...); err != nil {
		return errs.Wrap(errs.IO, "run "+d.h.name, err)
	}
	return nil
}

func runCommand(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

func notifySendArgs(a Alert) []string {
	args := []string{"--app-name=" + AppName}
	if a.Urgent {
		args = append(args, "--urgency=critical", "--hint=string:sound-name:message-new-instant")
	}
	return append(args, a.Title(), a.Summary)
}

func osascriptArgs(a Alert) []string {
	script := `display notification "` + escapeAppleScript(a.Summary) + `" with title "` + escapeAppleScript(a.Title()) + `"`
	if a.Urgent {
		script += ` sound name "default"`
	}
	return []string{"-e", script}
}

var appleScriptEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func escapeAppleScript(s string) string {
	return appleScriptEscaper.Replace(s)
}
