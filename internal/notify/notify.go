// Package notify raises desktop alerts when a background sync leaves work
// for the user.
package notify

import "context"

// AppName is shown as the sender of every alert.
const AppName = "taskfold"

// Alert is one desktop notification about a workspace.
type Alert struct {
	Workspace string
	// Summary is the headline, e.g. "2 conflicts to resolve".
	Summary string
	// Urgent alerts play a sound where the desktop supports it.
	Urgent bool
}

// Title is the notification title for a.
func (a Alert) Title() string {
	return AppName + ": " + a.Workspace
}

// Notifier delivers alerts.
type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

// Discard drops every alert.
var Discard Notifier = discard{}

type discard struct{}

func (discard) Notify(context.Context, Alert) error { return nil }

// Config holds alert settings.
type Config struct {
	// Enabled turns on alerts from background sync
	Enabled bool `yaml:"enabled"`

	// Sound makes alerts urgent
	Sound bool `yaml:"sound"`
}

// DefaultConfig returns alerts switched off.
func DefaultConfig() Config {
	return Config{}
}
