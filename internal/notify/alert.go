package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Alerter raises a desktop notification when a background sync leaves
// something that needs the user: unresolved conflicts or operations that
// were given up on. It only speaks up when a count grows, so a watch loop
// that keeps seeing the same conflict stays quiet.
type Alerter struct {
	n     Notifier
	sound bool

	mu   sync.Mutex
	last map[string][2]int // workspace -> conflicts, dead letters
}

// NewAlerter returns an alerter sending through n. A disabled config yields
// an alerter that never sends.
func NewAlerter(n Notifier, cfg Config) *Alerter {
	if !cfg.Enabled || n == nil {
		n = Discard
	}
	return &Alerter{n: n, sound: cfg.Sound, last: map[string][2]int{}}
}

// SyncResult reports the outcome of one sync run of workspace.
func (a *Alerter) SyncResult(ctx context.Context, workspace string, conflicts, deadLetters int) error {
	a.mu.Lock()
	prev := a.last[workspace]
	a.last[workspace] = [2]int{conflicts, deadLetters}
	a.mu.Unlock()

	var parts []string
	if conflicts > prev[0] {
		parts = append(parts, plural(conflicts, "conflict")+" to resolve")
	}
	if deadLetters > prev[1] {
		parts = append(parts, plural(deadLetters, "change")+" failed to sync")
	}
	if len(parts) == 0 {
		return nil
	}
	return a.n.Notify(ctx, Alert{
		Workspace: workspace,
		Summary:   strings.Join(parts, ", "),
		Urgent:    a.sound,
	})
}

func plural(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return fmt.Sprintf("%d %ss", n, word)
}
