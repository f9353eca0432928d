package methods

import (
	"context"
	"encoding/json"

	"i3pm/internal/launch"
	"i3pm/internal/procenv"
	"i3pm/internal/rpc/handler"
	"i3pm/internal/rpc/message"
)

// LaunchService lets the launch wrapper pre-register its intent so the
// dispatcher can attribute the resulting window.
type LaunchService struct {
	registry *launch.Registry
}

// NewLaunchService creates a new launch service.
func NewLaunchService(registry *launch.Registry) *LaunchService {
	return &LaunchService{registry: registry}
}

// RegisterMethods registers all launch methods with the registry.
func (s *LaunchService) RegisterMethods(r *handler.Registry) {
	r.Register("launch.register", s.Register)
}

// RegisterParams for launch.register.
type RegisterParams struct {
	AppID     string `json:"app_id,omitempty"`
	Class     string `json:"class"`
	Project   string `json:"project"`
	App       string `json:"app,omitempty"`
	Scope     string `json:"scope,omitempty"`
	Workspace int    `json:"workspace,omitempty"`
}

// RegisterResult for launch.register.
type RegisterResult struct {
	AppID string `json:"app_id"`
}

// Register records a pending launch.
func (s *LaunchService) Register(ctx context.Context, params json.RawMessage) (interface{}, *message.Error) {
	var p RegisterParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, message.ErrInvalidParams(err.Error())
	}
	if p.Class == "" {
		return nil, message.ErrInvalidParams("class is required")
	}
	if p.Project == "" {
		return nil, message.ErrInvalidParams("project is required")
	}

	scope := procenv.ScopeScoped
	if p.Scope == string(procenv.ScopeGlobal) {
		scope = procenv.ScopeGlobal
	}

	id := s.registry.Register(launch.Pending{
		AppID:     p.AppID,
		Class:     p.Class,
		Project:   p.Project,
		App:       p.App,
		Scope:     scope,
		Workspace: p.Workspace,
	})
	return RegisterResult{AppID: id}, nil
}
