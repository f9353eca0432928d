package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"i3pm/internal/rpc/handler/methods"
	"i3pm/internal/rpc/message"
)

// DaemonClient provides typed wrappers over the daemon's RPC methods.
type DaemonClient struct {
	client *Client
}

// DialDaemon connects a typed client to the daemon socket.
func DialDaemon(socketPath string) (*DaemonClient, error) {
	c, err := Dial(socketPath)
	if err != nil {
		return nil, err
	}
	return &DaemonClient{client: c}, nil
}

// Raw returns the underlying JSON-RPC client.
func (dc *DaemonClient) Raw() *Client {
	return dc.client
}

// call performs a request and decodes the result into out (skipped when
// out is nil). RPC errors come back with their code name attached.
func (dc *DaemonClient) call(ctx context.Context, method string, params, out interface{}) error {
	resp, err := dc.client.Call(ctx, method, params)
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return fmt.Errorf("%s: %s", message.ErrorCodeName(resp.Error.Code), resp.Error.Message)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", method, err)
	}
	return nil
}

// Switch makes the named project active with filtering.
func (dc *DaemonClient) Switch(ctx context.Context, name string) (*methods.SwitchProjectResult, error) {
	var result methods.SwitchProjectResult
	if err := dc.call(ctx, "project.switch", methods.SwitchParams{Name: name}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SwitchWithFiltering composes an explicit hide + restore.
func (dc *DaemonClient) SwitchWithFiltering(ctx context.Context, from, to string) (*methods.SwitchProjectResult, error) {
	params := methods.SwitchWithFilteringParams{FromProject: from, ToProject: to}
	var result methods.SwitchProjectResult
	if err := dc.call(ctx, "project.switchWithFiltering", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// HideWindows hides a project's windows.
func (dc *DaemonClient) HideWindows(ctx context.Context, name string) (*methods.HideWindowsResult, error) {
	var result methods.HideWindowsResult
	if err := dc.call(ctx, "project.hideWindows", methods.ProjectNameParams{ProjectName: name}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RestoreWindows restores a project's windows.
func (dc *DaemonClient) RestoreWindows(ctx context.Context, name string) (*methods.RestoreWindowsResult, error) {
	var result methods.RestoreWindowsResult
	if err := dc.call(ctx, "project.restoreWindows", methods.ProjectNameParams{ProjectName: name}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListProjects returns all projects and the active pointer.
func (dc *DaemonClient) ListProjects(ctx context.Context) (*methods.ListResult, error) {
	var result methods.ListResult
	if err := dc.call(ctx, "project.list", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateProject adds a new project.
func (dc *DaemonClient) CreateProject(ctx context.Context, params methods.CreateParams) error {
	return dc.call(ctx, "project.create", params, nil)
}

// DeleteProject removes a project.
func (dc *DaemonClient) DeleteProject(ctx context.Context, name string) error {
	return dc.call(ctx, "project.delete", methods.SwitchParams{Name: name}, nil)
}

// GetHidden returns hidden windows grouped by project.
func (dc *DaemonClient) GetHidden(ctx context.Context) (*methods.GetHiddenResult, error) {
	var result methods.GetHiddenResult
	if err := dc.call(ctx, "windows.getHidden", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetWindowState returns the tracked state of one window.
func (dc *DaemonClient) GetWindowState(ctx context.Context, windowID int64) (*methods.GetStateResult, error) {
	var result methods.GetStateResult
	if err := dc.call(ctx, "windows.getState", methods.GetStateParams{WindowID: windowID}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListWindows returns every tracked window.
func (dc *DaemonClient) ListWindows(ctx context.Context) (*methods.WindowListResult, error) {
	var result methods.WindowListResult
	if err := dc.call(ctx, "windows.list", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RegisterLaunch records a pending launch and returns its app ID.
func (dc *DaemonClient) RegisterLaunch(ctx context.Context, params methods.RegisterParams) (string, error) {
	var result methods.RegisterResult
	if err := dc.call(ctx, "launch.register", params, &result); err != nil {
		return "", err
	}
	return result.AppID, nil
}

// Status returns the daemon's status.
func (dc *DaemonClient) Status(ctx context.Context) (*methods.StatusResult, error) {
	var result methods.StatusResult
	if err := dc.call(ctx, "daemon.status", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Close closes the underlying connection.
func (dc *DaemonClient) Close() error {
	return dc.client.Close()
}

// WithTimeout is a helper to create a context with timeout.
func WithTimeout(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}
