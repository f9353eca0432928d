// Package events defines all event types published on the daemon's hub.
package events

import (
	"encoding/json"
	"time"
)

// EventType represents the type of event.
type EventType string

const (
	// Window lifecycle events
	EventTypeWindowTracked   EventType = "window_tracked"
	EventTypeWindowUntracked EventType = "window_untracked"
	EventTypeWindowHidden    EventType = "window_hidden"
	EventTypeWindowRestored  EventType = "window_restored"

	// Project events
	EventTypeProjectSwitched EventType = "project_switched"
	EventTypeProjectCreated  EventType = "project_created"
	EventTypeProjectDeleted  EventType = "project_deleted"

	// Daemon lifecycle events
	EventTypeDaemonState EventType = "daemon_state"
)

// Event is the base interface for all events.
type Event interface {
	// Type returns the event type.
	Type() EventType

	// Timestamp returns when the event occurred.
	Timestamp() time.Time

	// ToJSON serializes the event to JSON.
	ToJSON() ([]byte, error)
}

// BaseEvent contains common fields for all events.
type BaseEvent struct {
	EventType EventType   `json:"event"`
	EventTime time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// Type returns the event type.
func (e *BaseEvent) Type() EventType {
	return e.EventType
}

// Timestamp returns when the event occurred.
func (e *BaseEvent) Timestamp() time.Time {
	return e.EventTime
}

// ToJSON serializes the event to JSON.
func (e *BaseEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// NewEvent creates a new base event with the given type and payload.
func NewEvent(eventType EventType, payload interface{}) *BaseEvent {
	return &BaseEvent{
		EventType: eventType,
		EventTime: time.Now().UTC(),
		Payload:   payload,
	}
}

// --- Window event payloads ---

// WindowHiddenPayload is the payload for window_hidden events.
type WindowHiddenPayload struct {
	Project   string  `json:"project"`
	WindowIDs []int64 `json:"window_ids"`
	Count     int     `json:"count"`
}

// NewWindowHiddenEvent creates a window_hidden event.
func NewWindowHiddenEvent(project string, windowIDs []int64) *BaseEvent {
	return NewEvent(EventTypeWindowHidden, WindowHiddenPayload{
		Project:   project,
		WindowIDs: windowIDs,
		Count:     len(windowIDs),
	})
}

// WindowRestoredPayload is the payload for window_restored events.
type WindowRestoredPayload struct {
	Project   string  `json:"project"`
	WindowIDs []int64 `json:"window_ids"`
	Count     int     `json:"count"`
	Fallbacks int     `json:"fallbacks,omitempty"`
}

// NewWindowRestoredEvent creates a window_restored event.
func NewWindowRestoredEvent(project string, windowIDs []int64, fallbacks int) *BaseEvent {
	return NewEvent(EventTypeWindowRestored, WindowRestoredPayload{
		Project:   project,
		WindowIDs: windowIDs,
		Count:     len(windowIDs),
		Fallbacks: fallbacks,
	})
}

// WindowTrackedPayload is the payload for window_tracked events.
type WindowTrackedPayload struct {
	WindowID int64  `json:"window_id"`
	Project  string `json:"project"`
	App      string `json:"app,omitempty"`
	Source   string `json:"source"` // "launch", "environ", "mark"
}

// NewWindowTrackedEvent creates a window_tracked event.
func NewWindowTrackedEvent(windowID int64, project, app, source string) *BaseEvent {
	return NewEvent(EventTypeWindowTracked, WindowTrackedPayload{
		WindowID: windowID,
		Project:  project,
		App:      app,
		Source:   source,
	})
}

// --- Project event payloads ---

// ProjectSwitchedPayload is the payload for project_switched events.
type ProjectSwitchedPayload struct {
	From string `json:"from,omitempty"`
	To   string `json:"to"`
}

// NewProjectSwitchedEvent creates a project_switched event.
func NewProjectSwitchedEvent(from, to string) *BaseEvent {
	return NewEvent(EventTypeProjectSwitched, ProjectSwitchedPayload{From: from, To: to})
}

// --- Daemon event payloads ---

// DaemonStatePayload is the payload for daemon_state events.
type DaemonStatePayload struct {
	State string `json:"state"`
}

// NewDaemonStateEvent creates a daemon_state event.
func NewDaemonStateEvent(state string) *BaseEvent {
	return NewEvent(EventTypeDaemonState, DaemonStatePayload{State: state})
}
