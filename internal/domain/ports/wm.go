package ports

import (
	"context"

	"i3pm/internal/i3"
)

// WM is the window-manager surface the daemon depends on. The production
// implementation is the i3 IPC client; tests use a scripted fake.
type WM interface {
	// GetTree returns the full container tree.
	GetTree(ctx context.Context) (*i3.Node, error)

	// GetWorkspaces returns the current workspaces.
	GetWorkspaces(ctx context.Context) ([]i3.Workspace, error)

	// RunCommand executes an i3 command string and returns per-command results.
	RunCommand(ctx context.Context, cmd string) ([]i3.CommandResult, error)
}
