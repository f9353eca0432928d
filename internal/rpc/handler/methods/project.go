// Package methods implements the daemon's JSON-RPC method services.
package methods

import (
	"context"
	"encoding/json"

	"i3pm/internal/filter"
	"i3pm/internal/project"
	"i3pm/internal/rpc/handler"
	"i3pm/internal/rpc/message"
)

// Switcher runs filtering operations on the daemon's mutation queue.
type Switcher interface {
	// SwitchProject hides the active project's windows, restores the named
	// project's, and moves the active pointer.
	SwitchProject(ctx context.Context, name string) (*filter.SwitchResult, error)

	// SwitchWithFiltering composes an explicit hide(from) + restore(to)
	// without touching the active pointer.
	SwitchWithFiltering(ctx context.Context, from, to string) (*filter.SwitchResult, error)

	// HideWindows hides the named project's windows.
	HideWindows(ctx context.Context, name string) (*filter.HideResult, error)

	// RestoreWindows restores the named project's windows.
	RestoreWindows(ctx context.Context, name string) (*filter.RestoreResult, error)
}

// ProjectService provides project-related RPC methods.
type ProjectService struct {
	switcher Switcher
	registry *project.Registry
}

// NewProjectService creates a new project service.
func NewProjectService(switcher Switcher, registry *project.Registry) *ProjectService {
	return &ProjectService{switcher: switcher, registry: registry}
}

// RegisterMethods registers all project methods with the registry.
func (s *ProjectService) RegisterMethods(r *handler.Registry) {
	r.Register("project.switch", s.Switch)
	r.Register("project.switchWithFiltering", s.SwitchWithFiltering)
	r.Register("project.hideWindows", s.HideWindows)
	r.Register("project.restoreWindows", s.RestoreWindows)
	r.Register("project.list", s.List)
	r.Register("project.create", s.Create)
	r.Register("project.delete", s.Delete)
	r.Register("project.active", s.Active)
}

// --- Wire shapes ---

// HideWindowsResult is the wire shape of a hide operation.
type HideWindowsResult struct {
	WindowsHidden int                  `json:"windows_hidden"`
	WindowIDs     []int64              `json:"window_ids"`
	Errors        []filter.WindowError `json:"errors"`
	DurationMs    int64                `json:"duration_ms"`
}

// RestoreWindowsResult is the wire shape of a restore operation.
type RestoreWindowsResult struct {
	WindowsRestored int                     `json:"windows_restored"`
	Restorations    []filter.RestoredWindow `json:"restorations"`
	Errors          []filter.WindowError    `json:"errors"`
	DurationMs      int64                   `json:"duration_ms"`
}

// SwitchProjectResult nests the hide and restore halves of a switch.
type SwitchProjectResult struct {
	From       string                `json:"from,omitempty"`
	To         string                `json:"to"`
	Hide       *HideWindowsResult    `json:"hide,omitempty"`
	Restore    *RestoreWindowsResult `json:"restore,omitempty"`
	DurationMs int64                 `json:"duration_ms"`
}

func hideWire(r *filter.HideResult) *HideWindowsResult {
	if r == nil {
		return nil
	}
	out := &HideWindowsResult{
		WindowsHidden: len(r.Hidden),
		WindowIDs:     r.Hidden,
		Errors:        r.Errors,
		DurationMs:    r.DurationMs,
	}
	if out.WindowIDs == nil {
		out.WindowIDs = []int64{}
	}
	if out.Errors == nil {
		out.Errors = []filter.WindowError{}
	}
	return out
}

func restoreWire(r *filter.RestoreResult) *RestoreWindowsResult {
	if r == nil {
		return nil
	}
	out := &RestoreWindowsResult{
		WindowsRestored: len(r.Restored),
		Restorations:    r.Restored,
		Errors:          r.Errors,
		DurationMs:      r.DurationMs,
	}
	if out.Restorations == nil {
		out.Restorations = []filter.RestoredWindow{}
	}
	if out.Errors == nil {
		out.Errors = []filter.WindowError{}
	}
	return out
}

func switchWire(r *filter.SwitchResult) *SwitchProjectResult {
	if r == nil {
		return nil
	}
	return &SwitchProjectResult{
		From:       r.From,
		To:         r.To,
		Hide:       hideWire(r.Hide),
		Restore:    restoreWire(r.Restore),
		DurationMs: r.DurationMs,
	}
}

// --- Methods ---

// SwitchParams for project.switch.
type SwitchParams struct {
	Name string `json:"name"`
}

// Switch makes the named project active, hiding the previous project's
// windows and restoring the new one's.
func (s *ProjectService) Switch(ctx context.Context, params json.RawMessage) (interface{}, *message.Error) {
	var p SwitchParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, message.ErrInvalidParams(err.Error())
	}
	if p.Name == "" {
		return nil, message.ErrInvalidParams("name is required")
	}
	if _, ok := s.registry.Get(p.Name); !ok {
		return nil, message.ErrProjectNotFound(p.Name)
	}

	result, err := s.switcher.SwitchProject(ctx, p.Name)
	if err != nil {
		return nil, message.FromError(err)
	}
	return switchWire(result), nil
}

// SwitchWithFilteringParams for project.switchWithFiltering.
type SwitchWithFilteringParams struct {
	FromProject string `json:"from_project,omitempty"`
	ToProject   string `json:"to_project"`
}

// SwitchWithFiltering composes hide(from) + restore(to) explicitly.
func (s *ProjectService) SwitchWithFiltering(ctx context.Context, params json.RawMessage) (interface{}, *message.Error) {
	var p SwitchWithFilteringParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, message.ErrInvalidParams(err.Error())
	}
	if p.ToProject == "" {
		return nil, message.ErrInvalidParams("to_project is required")
	}

	result, err := s.switcher.SwitchWithFiltering(ctx, p.FromProject, p.ToProject)
	if err != nil {
		return nil, message.FromError(err)
	}
	return switchWire(result), nil
}

// ProjectNameParams is the common single-name parameter shape.
type ProjectNameParams struct {
	ProjectName string `json:"project_name"`
}

// HideWindows hides the named project's windows. An unknown project hides
// zero windows and succeeds.
func (s *ProjectService) HideWindows(ctx context.Context, params json.RawMessage) (interface{}, *message.Error) {
	var p ProjectNameParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, message.ErrInvalidParams(err.Error())
	}
	if p.ProjectName == "" {
		return nil, message.ErrInvalidParams("project_name is required")
	}

	result, err := s.switcher.HideWindows(ctx, p.ProjectName)
	if err != nil {
		return nil, message.FromError(err)
	}
	return hideWire(result), nil
}

// RestoreWindows restores the named project's windows.
func (s *ProjectService) RestoreWindows(ctx context.Context, params json.RawMessage) (interface{}, *message.Error) {
	var p ProjectNameParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, message.ErrInvalidParams(err.Error())
	}
	if p.ProjectName == "" {
		return nil, message.ErrInvalidParams("project_name is required")
	}

	result, err := s.switcher.RestoreWindows(ctx, p.ProjectName)
	if err != nil {
		return nil, message.FromError(err)
	}
	return restoreWire(result), nil
}

// ListResult for project.list.
type ListResult struct {
	Projects []project.Project `json:"projects"`
	Active   string            `json:"active,omitempty"`
}

// List returns all projects and the active pointer.
func (s *ProjectService) List(ctx context.Context, params json.RawMessage) (interface{}, *message.Error) {
	projects := s.registry.List()
	if projects == nil {
		projects = []project.Project{}
	}
	return ListResult{
		Projects: projects,
		Active:   s.registry.Active().Name,
	}, nil
}

// CreateParams for project.create.
type CreateParams struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name,omitempty"`
	Icon        string `json:"icon,omitempty"`
	Directory   string `json:"directory,omitempty"`
}

// Create adds a new project definition.
func (s *ProjectService) Create(ctx context.Context, params json.RawMessage) (interface{}, *message.Error) {
	var p CreateParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, message.ErrInvalidParams(err.Error())
	}

	proj := project.Project{
		Name:        p.Name,
		DisplayName: p.DisplayName,
		Icon:        p.Icon,
		Directory:   p.Directory,
	}
	if err := s.registry.Create(proj); err != nil {
		return nil, message.FromError(err)
	}

	created, _ := s.registry.Get(p.Name)
	return created, nil
}

// Delete removes a project definition. Windows tagged with the name keep
// their tags; orphaned ownership is inert.
func (s *ProjectService) Delete(ctx context.Context, params json.RawMessage) (interface{}, *message.Error) {
	var p SwitchParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, message.ErrInvalidParams(err.Error())
	}
	if err := s.registry.Delete(p.Name); err != nil {
		return nil, message.FromError(err)
	}
	return map[string]string{"deleted": p.Name}, nil
}

// Active returns the active-project pointer.
func (s *ProjectService) Active(ctx context.Context, params json.RawMessage) (interface{}, *message.Error) {
	return s.registry.Active(), nil
}
