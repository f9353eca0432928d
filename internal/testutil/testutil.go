// Package testutil provides shared test utilities and mocks for i3pm tests.
package testutil

import (
	"context"
	"sync"
	"testing"

	"i3pm/internal/domain/events"
	"i3pm/internal/domain/ports"
	"i3pm/internal/i3"
)

// MockSubscriber implements ports.Subscriber for testing.
type MockSubscriber struct {
	id       string
	events   []events.Event
	mu       sync.Mutex
	closed   bool
	sendErr  error
	sendFunc func(events.Event) error
	done     chan struct{}
}

// NewMockSubscriber creates a new mock subscriber.
func NewMockSubscriber(id string) *MockSubscriber {
	return &MockSubscriber{
		id:     id,
		events: make([]events.Event, 0),
		done:   make(chan struct{}),
	}
}

// ID returns the subscriber ID.
func (m *MockSubscriber) ID() string {
	return m.id
}

// Send records the event and returns any configured error.
func (m *MockSubscriber) Send(e events.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sendFunc != nil {
		return m.sendFunc(e)
	}

	if m.sendErr != nil {
		return m.sendErr
	}

	m.events = append(m.events, e)
	return nil
}

// Close marks the subscriber as closed.
func (m *MockSubscriber) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
	return nil
}

// Done returns a channel that's closed when the subscriber is done.
func (m *MockSubscriber) Done() <-chan struct{} {
	return m.done
}

// Events returns all received events.
func (m *MockSubscriber) Events() []events.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]events.Event, len(m.events))
	copy(result, m.events)
	return result
}

// EventCount returns the number of received events.
func (m *MockSubscriber) EventCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

// IsClosed returns whether the subscriber was closed.
func (m *MockSubscriber) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// SetSendError configures an error to return on Send.
func (m *MockSubscriber) SetSendError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
}

// SetSendFunc sets a custom function for Send behavior.
func (m *MockSubscriber) SetSendFunc(fn func(events.Event) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendFunc = fn
}

// ClearEvents removes all recorded events.
func (m *MockSubscriber) ClearEvents() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = m.events[:0]
}

// Ensure MockSubscriber implements ports.Subscriber.
var _ ports.Subscriber = (*MockSubscriber)(nil)

// MockEventHub implements ports.EventHub for testing.
type MockEventHub struct {
	events      []events.Event
	subscribers []ports.Subscriber
	mu          sync.Mutex
	started     bool
	stopped     bool
}

// NewMockEventHub creates a new mock event hub.
func NewMockEventHub() *MockEventHub {
	return &MockEventHub{
		events:      make([]events.Event, 0),
		subscribers: make([]ports.Subscriber, 0),
	}
}

// Start marks the hub as started.
func (m *MockEventHub) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = true
	return nil
}

// Stop marks the hub as stopped.
func (m *MockEventHub) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	return nil
}

// Publish records the event.
func (m *MockEventHub) Publish(e events.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
}

// Subscribe records the subscriber.
func (m *MockEventHub) Subscribe(sub ports.Subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, sub)
}

// Unsubscribe removes a subscriber by ID.
func (m *MockEventHub) Unsubscribe(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, sub := range m.subscribers {
		if sub.ID() == id {
			m.subscribers = append(m.subscribers[:i], m.subscribers[i+1:]...)
			return
		}
	}
}

// SubscriberCount returns the number of subscribers.
func (m *MockEventHub) SubscriberCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subscribers)
}

// IsRunning returns true if the hub was started and not stopped.
func (m *MockEventHub) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started && !m.stopped
}

// PublishedEvents returns all published events.
func (m *MockEventHub) PublishedEvents() []events.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]events.Event, len(m.events))
	copy(result, m.events)
	return result
}

// EventsOfType returns the published events with the given type.
func (m *MockEventHub) EventsOfType(t events.EventType) []events.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []events.Event
	for _, e := range m.events {
		if e.Type() == t {
			result = append(result, e)
		}
	}
	return result
}

// Ensure MockEventHub implements ports.EventHub.
var _ ports.EventHub = (*MockEventHub)(nil)

// FakeWM implements ports.WM with a scripted tree and recorded commands.
// Commands succeed unless FailCommands or a per-substring failure is set.
type FakeWM struct {
	mu         sync.Mutex
	tree       *i3.Node
	workspaces []i3.Workspace
	commands   []string

	TreeErr      error
	WorkspaceErr error
	CommandErr   error

	// FailFor marks command substrings whose per-command result should
	// report failure rather than success.
	FailFor []string
}

// NewFakeWM creates a fake with the given tree and workspaces.
func NewFakeWM(tree *i3.Node, workspaces []i3.Workspace) *FakeWM {
	return &FakeWM{tree: tree, workspaces: workspaces}
}

// GetTree returns the scripted tree.
func (f *FakeWM) GetTree(ctx context.Context) (*i3.Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.TreeErr != nil {
		return nil, f.TreeErr
	}
	return f.tree, nil
}

// GetWorkspaces returns the scripted workspaces.
func (f *FakeWM) GetWorkspaces(ctx context.Context) ([]i3.Workspace, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WorkspaceErr != nil {
		return nil, f.WorkspaceErr
	}
	return f.workspaces, nil
}

// RunCommand records the command and returns one result per ';'-separated
// part, failing the parts whose text contains a FailFor substring.
func (f *FakeWM) RunCommand(ctx context.Context, cmd string) ([]i3.CommandResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CommandErr != nil {
		return nil, f.CommandErr
	}
	f.commands = append(f.commands, cmd)

	parts := splitCommands(cmd)
	results := make([]i3.CommandResult, len(parts))
	for i, part := range parts {
		results[i] = i3.CommandResult{Success: true}
		for _, needle := range f.FailFor {
			if needle != "" && contains(part, needle) {
				results[i] = i3.CommandResult{Success: false, Error: "scripted failure"}
				break
			}
		}
	}
	return results, nil
}

// SetTree replaces the scripted tree.
func (f *FakeWM) SetTree(tree *i3.Node) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tree = tree
}

// Commands returns all commands run so far.
func (f *FakeWM) Commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.commands))
	copy(out, f.commands)
	return out
}

// Ensure FakeWM implements ports.WM.
var _ ports.WM = (*FakeWM)(nil)

func splitCommands(cmd string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(cmd); i++ {
		if cmd[i] == ';' {
			parts = append(parts, cmd[start:i])
			start = i + 1
		}
	}
	parts = append(parts, cmd[start:])
	return parts
}

func contains(s, substr string) bool {
	if len(substr) == 0 {
		return true
	}
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

// EnvReader is a map-backed procenv reader for tests. A nil entry for a
// pid means the process is unreadable.
type EnvReader struct {
	Envs map[int]map[string]string
	Err  error
}

// Read returns the scripted environment for pid.
func (r *EnvReader) Read(pid int) (map[string]string, error) {
	if env, ok := r.Envs[pid]; ok && env != nil {
		return env, nil
	}
	if r.Err != nil {
		return nil, r.Err
	}
	return nil, errEnvMissing{pid}
}

type errEnvMissing struct{ pid int }

func (e errEnvMissing) Error() string { return "no environment scripted for pid" }

// AssertEqual is a simple equality assertion helper.
func AssertEqual(t *testing.T, expected, actual interface{}, msg string) {
	t.Helper()
	if expected != actual {
		t.Errorf("%s: expected %v, got %v", msg, expected, actual)
	}
}

// AssertTrue asserts that a condition is true.
func AssertTrue(t *testing.T, condition bool, msg string) {
	t.Helper()
	if !condition {
		t.Errorf("%s: expected true, got false", msg)
	}
}

// AssertFalse asserts that a condition is false.
func AssertFalse(t *testing.T, condition bool, msg string) {
	t.Helper()
	if condition {
		t.Errorf("%s: expected false, got true", msg)
	}
}

// AssertNoError asserts that an error is nil.
func AssertNoError(t *testing.T, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Errorf("%s: unexpected error: %v", msg, err)
	}
}

// AssertError asserts that an error is not nil.
func AssertError(t *testing.T, err error, msg string) {
	t.Helper()
	if err == nil {
		t.Errorf("%s: expected error, got nil", msg)
	}
}
