package methods

import (
	"context"
	"encoding/json"
	"fmt"

	"i3pm/internal/domain/events"
	"i3pm/internal/rpc/handler"
	"i3pm/internal/rpc/message"
)

// StatusProvider provides daemon status information.
type StatusProvider interface {
	// State returns the daemon lifecycle state.
	State() string

	// ActiveProject returns the active project name, empty when none.
	ActiveProject() string

	// TrackedWindows returns the number of tracked windows.
	TrackedWindows() int

	// HiddenWindows returns the number of scratchpad-resident windows.
	HiddenWindows() int

	// PendingLaunches returns the number of unmatched launch registrations.
	PendingLaunches() int

	// ConnectedClients returns the number of connected control clients.
	ConnectedClients() int

	// UptimeSeconds returns the daemon uptime in seconds.
	UptimeSeconds() int64

	// Version returns the daemon version.
	Version() string

	// SocketPath returns the control socket path.
	SocketPath() string
}

// NotificationFilter narrows which notifications a connected client
// receives. Implemented by the RPC server.
type NotificationFilter interface {
	SetClientEvents(clientID string, types []events.EventType) error
}

// DaemonService provides daemon status and subscription RPC methods.
type DaemonService struct {
	provider StatusProvider
	filter   NotificationFilter
}

// NewDaemonService creates a new daemon service.
func NewDaemonService(provider StatusProvider, filter NotificationFilter) *DaemonService {
	return &DaemonService{provider: provider, filter: filter}
}

// RegisterMethods registers all daemon methods with the registry.
func (s *DaemonService) RegisterMethods(r *handler.Registry) {
	r.Register("daemon.status", s.Status)
	r.Register("daemon.subscribe", s.Subscribe)
}

// StatusResult for daemon.status.
type StatusResult struct {
	State           string `json:"state"`
	ActiveProject   string `json:"active_project,omitempty"`
	TrackedWindows  int    `json:"tracked_windows"`
	HiddenWindows   int    `json:"hidden_windows"`
	PendingLaunches int    `json:"pending_launches"`
	Clients         int    `json:"clients"`
	UptimeSeconds   int64  `json:"uptime_seconds"`
	Version         string `json:"version"`
	SocketPath      string `json:"socket_path"`
}

// Status returns the daemon's current state and counters.
func (s *DaemonService) Status(ctx context.Context, params json.RawMessage) (interface{}, *message.Error) {
	if s.provider == nil {
		return nil, message.ErrInternalError("status provider not available")
	}

	return StatusResult{
		State:           s.provider.State(),
		ActiveProject:   s.provider.ActiveProject(),
		TrackedWindows:  s.provider.TrackedWindows(),
		HiddenWindows:   s.provider.HiddenWindows(),
		PendingLaunches: s.provider.PendingLaunches(),
		Clients:         s.provider.ConnectedClients(),
		UptimeSeconds:   s.provider.UptimeSeconds(),
		Version:         s.provider.Version(),
		SocketPath:      s.provider.SocketPath(),
	}, nil
}

// notificationTypes maps wire notification names to hub event types.
var notificationTypes = map[string]events.EventType{
	"window.tracked":   events.EventTypeWindowTracked,
	"window.untracked": events.EventTypeWindowUntracked,
	"window.hidden":    events.EventTypeWindowHidden,
	"window.restored":  events.EventTypeWindowRestored,
	"project.switched": events.EventTypeProjectSwitched,
	"daemon.state":     events.EventTypeDaemonState,
}

// SubscribeParams for daemon.subscribe.
type SubscribeParams struct {
	// Events lists the notification names to receive; empty means all.
	Events []string `json:"events"`
}

// SubscribeResult for daemon.subscribe.
type SubscribeResult struct {
	Events []string `json:"events"`
}

// Subscribe narrows the calling client's notification stream to the named
// types. Calling with an empty list restores the full stream.
func (s *DaemonService) Subscribe(ctx context.Context, params json.RawMessage) (interface{}, *message.Error) {
	if s.filter == nil {
		return nil, message.ErrInternalError("notification filter not available")
	}
	clientID, _ := ctx.Value(handler.ClientIDKey).(string)
	if clientID == "" {
		return nil, message.ErrInternalError("no client associated with request")
	}

	var p SubscribeParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, message.ErrInvalidParams(err.Error())
		}
	}

	types := make([]events.EventType, 0, len(p.Events))
	for _, name := range p.Events {
		t, ok := notificationTypes[name]
		if !ok {
			return nil, message.ErrInvalidParams(fmt.Sprintf("unknown notification %q", name))
		}
		types = append(types, t)
	}

	if err := s.filter.SetClientEvents(clientID, types); err != nil {
		return nil, message.ErrInternalError(err.Error())
	}
	if p.Events == nil {
		p.Events = []string{}
	}
	return SubscribeResult{Events: p.Events}, nil
}
