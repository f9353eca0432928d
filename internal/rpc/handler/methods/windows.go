package methods

import (
	"context"
	"encoding/json"
	"sort"

	"i3pm/internal/rpc/handler"
	"i3pm/internal/rpc/message"
	"i3pm/internal/state"
)

// WindowsService provides window-state query methods. Queries read store
// snapshots and never touch the mutation queue.
type WindowsService struct {
	store *state.Store
}

// NewWindowsService creates a new windows service.
func NewWindowsService(store *state.Store) *WindowsService {
	return &WindowsService{store: store}
}

// RegisterMethods registers all windows methods with the registry.
func (s *WindowsService) RegisterMethods(r *handler.Registry) {
	r.Register("windows.getHidden", s.GetHidden)
	r.Register("windows.getState", s.GetState)
	r.Register("windows.list", s.List)
}

// HiddenProject groups one project's hidden windows.
type HiddenProject struct {
	ProjectName string                `json:"project_name"`
	Windows     []state.TrackedWindow `json:"windows"`
}

// GetHiddenResult for windows.getHidden.
type GetHiddenResult struct {
	Projects    []HiddenProject `json:"projects"`
	TotalHidden int             `json:"total_hidden"`
}

// GetHidden returns the scratchpad-resident windows grouped by project.
func (s *WindowsService) GetHidden(ctx context.Context, params json.RawMessage) (interface{}, *message.Error) {
	byProject := make(map[string][]state.TrackedWindow)
	total := 0
	for _, w := range s.store.Snapshot() {
		if !w.Hidden {
			continue
		}
		byProject[w.Project] = append(byProject[w.Project], w)
		total++
	}

	result := GetHiddenResult{Projects: []HiddenProject{}, TotalHidden: total}
	for name, windows := range byProject {
		sort.Slice(windows, func(i, j int) bool { return windows[i].WindowID < windows[j].WindowID })
		result.Projects = append(result.Projects, HiddenProject{ProjectName: name, Windows: windows})
	}
	sort.Slice(result.Projects, func(i, j int) bool {
		return result.Projects[i].ProjectName < result.Projects[j].ProjectName
	})
	return result, nil
}

// GetStateParams for windows.getState.
type GetStateParams struct {
	WindowID int64 `json:"window_id"`
}

// GetStateResult is the full tracked state of one window.
type GetStateResult struct {
	state.TrackedWindow
	Visible bool `json:"visible"`
}

// GetState returns everything tracked about one window.
func (s *WindowsService) GetState(ctx context.Context, params json.RawMessage) (interface{}, *message.Error) {
	var p GetStateParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, message.ErrInvalidParams(err.Error())
	}
	if p.WindowID == 0 {
		return nil, message.ErrInvalidParams("window_id is required")
	}

	w, ok := s.store.Get(p.WindowID)
	if !ok {
		return nil, message.ErrWindowNotFound(p.WindowID)
	}
	return GetStateResult{TrackedWindow: w, Visible: !w.Hidden}, nil
}

// WindowListResult for windows.list.
type WindowListResult struct {
	Windows []state.TrackedWindow `json:"windows"`
	Total   int                   `json:"total"`
}

// List returns every tracked window, sorted by ID.
func (s *WindowsService) List(ctx context.Context, params json.RawMessage) (interface{}, *message.Error) {
	snapshot := s.store.Snapshot()
	windows := make([]state.TrackedWindow, 0, len(snapshot))
	for _, w := range snapshot {
		windows = append(windows, w)
	}
	sort.Slice(windows, func(i, j int) bool { return windows[i].WindowID < windows[j].WindowID })
	return WindowListResult{Windows: windows, Total: len(windows)}, nil
}
