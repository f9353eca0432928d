package hub

import (
	"sync"

	"i3pm/internal/domain/events"
	"i3pm/internal/domain/ports"
)

// FilteredSubscriber wraps a subscriber and filters events by type. If no
// types are subscribed, all events are forwarded (backward compatible).
type FilteredSubscriber struct {
	inner ports.Subscriber
	types map[events.EventType]bool
	mu    sync.RWMutex
}

// NewFilteredSubscriber creates a new filtered subscriber wrapping the given subscriber.
func NewFilteredSubscriber(inner ports.Subscriber) *FilteredSubscriber {
	return &FilteredSubscriber{
		inner: inner,
		types: make(map[events.EventType]bool),
	}
}

// ID returns the subscriber's unique identifier.
func (f *FilteredSubscriber) ID() string {
	return f.inner.ID()
}

// Send sends an event to the subscriber if it passes the filter.
func (f *FilteredSubscriber) Send(event events.Event) error {
	if !f.shouldForward(event) {
		return nil // Silently skip events that don't match filter
	}
	return f.inner.Send(event)
}

// Close closes the subscriber.
func (f *FilteredSubscriber) Close() error {
	return f.inner.Close()
}

// Done returns a channel that's closed when the subscriber is done.
func (f *FilteredSubscriber) Done() <-chan struct{} {
	return f.inner.Done()
}

// SubscribeType adds an event type to the filter.
func (f *FilteredSubscriber) SubscribeType(t events.EventType) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.types[t] = true
}

// UnsubscribeType removes an event type from the filter.
func (f *FilteredSubscriber) UnsubscribeType(t events.EventType) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.types, t)
}

// SubscribeAll clears the filter, forwarding all events (default behavior).
func (f *FilteredSubscriber) SubscribeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.types = make(map[events.EventType]bool)
}

// SubscribedTypes returns the list of subscribed event types.
func (f *FilteredSubscriber) SubscribedTypes() []events.EventType {
	f.mu.RLock()
	defer f.mu.RUnlock()

	result := make([]events.EventType, 0, len(f.types))
	for t := range f.types {
		result = append(result, t)
	}
	return result
}

// IsFiltering returns true if the subscriber is filtering by type.
func (f *FilteredSubscriber) IsFiltering() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.types) > 0
}

// shouldForward determines if an event should be forwarded to the subscriber.
func (f *FilteredSubscriber) shouldForward(event events.Event) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	// If no filter set, forward all events (backward compatible)
	if len(f.types) == 0 {
		return true
	}
	return f.types[event.Type()]
}
