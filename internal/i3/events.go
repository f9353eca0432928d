package i3

import (
	"context"
	"encoding/json"
	"fmt"
	"net"

	"github.com/rs/zerolog/log"

	"i3pm/internal/domain"
)

// Event reply types carry the high bit; the low bits identify the event
// class the subscription was made for.
const (
	eventFlag          = 0x80000000
	eventTypeWorkspace = 0
	eventTypeOutput    = 1
	eventTypeWindow    = 3
)

// EventKind classifies a decoded event.
type EventKind string

const (
	EventWindow    EventKind = "window"
	EventWorkspace EventKind = "workspace"
	EventOutput    EventKind = "output"
)

// Event is one decoded entry from the subscription stream.
type Event struct {
	Kind      EventKind
	Change    string // discriminator: new, close, move, floating, focus, ...
	Container *Node  // window events: the affected container
	Current   *Node  // workspace events: the newly focused workspace
}

type windowEvent struct {
	Change    string `json:"change"`
	Container *Node  `json:"container"`
}

type workspaceEvent struct {
	Change  string `json:"change"`
	Current *Node  `json:"current"`
}

type outputEvent struct {
	Change string `json:"change"`
}

// EventStream is a live subscription to WM events. The stream is not
// restartable: when the underlying connection fails, Events is closed and
// the caller must subscribe again.
type EventStream struct {
	conn   net.Conn
	events chan Event
	done   chan struct{}
	desync chan struct{}
}

// Subscribe opens a dedicated event connection and subscribes to the given
// event classes (e.g. "window", "workspace", "output").
func Subscribe(ctx context.Context, socketPath string, types ...string) (*EventStream, error) {
	if socketPath == "" {
		p, err := SocketPath()
		if err != nil {
			return nil, domain.NewWMError("subscribe", err)
		}
		socketPath = p
	}

	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, domain.NewWMError("subscribe", fmt.Errorf("%w: %v", domain.ErrWMUnavailable, err))
	}

	payload, err := json.Marshal(types)
	if err != nil {
		conn.Close()
		return nil, domain.NewWMError("subscribe", err)
	}
	if err := writeMessage(conn, msgSubscribe, payload); err != nil {
		conn.Close()
		return nil, domain.NewWMError("subscribe", fmt.Errorf("%w: %v", domain.ErrWMUnavailable, err))
	}

	// The subscribe reply arrives on the same connection before any events.
	_, resp, err := readMessage(conn)
	if err != nil {
		conn.Close()
		return nil, domain.NewWMError("subscribe", fmt.Errorf("%w: %v", domain.ErrWMUnavailable, err))
	}
	var ack struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal(resp, &ack); err != nil || !ack.Success {
		conn.Close()
		return nil, domain.NewWMError("subscribe", fmt.Errorf("subscription rejected: %s", resp))
	}

	s := &EventStream{
		conn:   conn,
		events: make(chan Event, 128),
		done:   make(chan struct{}),
		desync: make(chan struct{}, 1),
	}

	go s.readLoop()
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()

	return s, nil
}

// Events returns the event channel. It is closed when the stream ends.
func (s *EventStream) Events() <-chan Event {
	return s.events
}

// Desync signals that at least one event was dropped because the buffer
// was full. The tracked state can no longer be trusted; the consumer
// should reconcile against a fresh tree.
func (s *EventStream) Desync() <-chan struct{} {
	return s.desync
}

// Close tears down the subscription connection.
func (s *EventStream) Close() error {
	select {
	case <-s.done:
		return nil
	default:
	}
	return s.conn.Close()
}

func (s *EventStream) readLoop() {
	defer close(s.events)
	defer close(s.done)
	defer s.conn.Close()

	for {
		msgType, payload, err := readMessage(s.conn)
		if err != nil {
			log.Debug().Err(err).Msg("event stream ended")
			return
		}
		if msgType&eventFlag == 0 {
			// Stray reply on the event connection; nothing should request here.
			continue
		}

		ev, ok := decodeEvent(msgType&^eventFlag, payload)
		if !ok {
			continue
		}

		select {
		case s.events <- ev:
		default:
			log.Warn().
				Str("kind", string(ev.Kind)).
				Str("change", ev.Change).
				Msg("event dropped: stream buffer full")
			select {
			case s.desync <- struct{}{}:
			default:
			}
		}
	}
}

func decodeEvent(evType uint32, payload []byte) (Event, bool) {
	switch evType {
	case eventTypeWindow:
		var we windowEvent
		if err := json.Unmarshal(payload, &we); err != nil {
			log.Warn().Err(err).Msg("failed to decode window event")
			return Event{}, false
		}
		return Event{Kind: EventWindow, Change: we.Change, Container: we.Container}, true

	case eventTypeWorkspace:
		var we workspaceEvent
		if err := json.Unmarshal(payload, &we); err != nil {
			log.Warn().Err(err).Msg("failed to decode workspace event")
			return Event{}, false
		}
		return Event{Kind: EventWorkspace, Change: we.Change, Current: we.Current}, true

	case eventTypeOutput:
		var oe outputEvent
		if err := json.Unmarshal(payload, &oe); err != nil {
			log.Warn().Err(err).Msg("failed to decode output event")
			return Event{}, false
		}
		return Event{Kind: EventOutput, Change: oe.Change}, true

	default:
		return Event{}, false
	}
}
