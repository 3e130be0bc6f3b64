// Package workspace manages the registry of named workspaces stored in the
// application config, and the Workspace value that tells the repository and
// sync engine which workspace they operate on.
package workspace

import (
	"context"
	"time"

	"taskfold/internal/config"
)

// Workspace is a resolved registry entry. It is passed explicitly to the
// repository and the sync engine; nothing reads the current workspace from
// process-wide state.
type Workspace struct {
	Name     string
	Root     string
	Remote   *config.RemoteConfig
	LastSync *time.Time
}

// HasRemote reports whether sync is configured.
func (w Workspace) HasRemote() bool {
	return w.Remote != nil && w.Remote.URL != ""
}

type workspaceKey struct{}

// WithWorkspace returns a context carrying ws.
func WithWorkspace(ctx context.Context, ws Workspace) context.Context {
	return context.WithValue(ctx, workspaceKey{}, ws)
}

// FromContext extracts the workspace stored by WithWorkspace.
func FromContext(ctx context.Context) (Workspace, bool) {
	ws, ok := ctx.Value(workspaceKey{}).(Workspace)
	return ws, ok
}
