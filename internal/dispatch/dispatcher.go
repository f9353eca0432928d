// Package dispatch consumes the WM event stream and keeps the tracking
// store aligned with it. Every mutation runs on one serialized queue so
// event handling and RPC operations never interleave.
package dispatch

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"i3pm/internal/domain/events"
	"i3pm/internal/domain/ports"
	"i3pm/internal/filter"
	"i3pm/internal/i3"
	"i3pm/internal/launch"
	"i3pm/internal/procenv"
	"i3pm/internal/state"
)

// Dispatcher translates WM events into store mutations. New windows are
// attributed to a project by launch correlation first and a process
// environment read second; attributed windows get a WM mark so ownership
// survives daemon restarts.
type Dispatcher struct {
	wm       ports.WM
	store    *state.Store
	launches *launch.Registry
	env      procenv.Reader
	hub      ports.EventHub
	queue    *Queue
}

// New creates a dispatcher.
func New(wm ports.WM, store *state.Store, launches *launch.Registry, env procenv.Reader, hub ports.EventHub, queue *Queue) *Dispatcher {
	return &Dispatcher{
		wm:       wm,
		store:    store,
		launches: launches,
		env:      env,
		hub:      hub,
		queue:    queue,
	}
}

// Run consumes the event channel until it closes or ctx is cancelled.
// Handler errors are logged, never fatal: one bad event must not stop the
// stream.
func (d *Dispatcher) Run(ctx context.Context, stream <-chan i3.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-stream:
			if !ok {
				return
			}
			name := fmt.Sprintf("event %s::%s", ev.Kind, ev.Change)
			if err := d.queue.Submit(ctx, name, func(opCtx context.Context) error {
				return d.handle(opCtx, ev)
			}); err != nil {
				log.Warn().
					Str("kind", string(ev.Kind)).
					Str("change", ev.Change).
					Err(err).
					Msg("event handling failed")
			}
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, ev i3.Event) error {
	switch ev.Kind {
	case i3.EventWindow:
		return d.handleWindow(ctx, ev)
	case i3.EventWorkspace, i3.EventOutput:
		// Informational only; workspace layout is re-read on demand.
		log.Trace().Str("kind", string(ev.Kind)).Str("change", ev.Change).Msg("event ignored")
		return nil
	default:
		return nil
	}
}

func (d *Dispatcher) handleWindow(ctx context.Context, ev i3.Event) error {
	if ev.Container == nil {
		return nil
	}
	switch ev.Change {
	case "new":
		return d.handleNew(ctx, ev.Container)
	case "close":
		d.store.Remove(ev.Container.ID)
		log.Debug().Int64("window_id", ev.Container.ID).Msg("window untracked")
		if d.hub != nil {
			d.hub.Publish(events.NewEvent(events.EventTypeWindowUntracked, map[string]int64{
				"window_id": ev.Container.ID,
			}))
		}
		return nil
	case "move", "floating":
		return d.handlePosition(ctx, ev.Container)
	default:
		return nil
	}
}

// handleNew attributes a newly created window. Correlation against pending
// launches wins over the environment read: the wrapper's registration is
// more precise about workspace intent, and the environment may already be
// gone for short-lived parents.
func (d *Dispatcher) handleNew(ctx context.Context, con *i3.Node) error {
	info, err := d.locate(ctx, con.ID)
	if err != nil {
		return err
	}

	var (
		project, app string
		scope        procenv.Scope
		source       string
	)

	if m, ok := d.launches.Correlate(info.Node.Class(), info.Workspace); ok {
		project, app, scope = m.Pending.Project, m.Pending.App, m.Pending.Scope
		source = "launch"
	} else if own, ok := procenv.OwnershipForPID(d.env, info.Node.PID); ok {
		project, app, scope = own.Project, own.App, own.Scope
		source = "environ"
	} else if p, ok := filter.ProjectFromMarks(info.Node.Marks); ok {
		project, scope = p, procenv.ScopeScoped
		source = "mark"
	}

	var geo *i3.Rect
	if info.Floating {
		r := info.Node.Rect
		geo = &r
	}
	d.store.Upsert(state.TrackedWindow{
		WindowID:  info.Node.ID,
		Project:   project,
		App:       app,
		Scope:     scope,
		Workspace: info.Workspace,
		Floating:  info.Floating,
		Geometry:  geo,
		Hidden:    info.Scratchpad,
	})

	if project == "" {
		log.Debug().Int64("window_id", info.Node.ID).Str("class", info.Node.Class()).Msg("window tracked without owner")
		return nil
	}

	// The mark makes ownership recoverable from the WM tree alone.
	if source != "mark" {
		cmd := fmt.Sprintf("[con_id=%d] mark --add %s", info.Node.ID, filter.Mark(project))
		if _, err := d.wm.RunCommand(ctx, cmd); err != nil {
			log.Warn().Int64("window_id", info.Node.ID).Err(err).Msg("failed to mark window")
		}
	}

	log.Info().
		Int64("window_id", info.Node.ID).
		Str("project", project).
		Str("app", app).
		Str("source", source).
		Msg("window tracked")

	if d.hub != nil {
		d.hub.Publish(events.NewWindowTrackedEvent(info.Node.ID, project, app, source))
	}
	return nil
}

// handlePosition refreshes workspace and floating state after a move or a
// floating toggle. Hidden windows are left alone: the scratchpad mechanics
// emit spurious events that must not overwrite the captured truth.
func (d *Dispatcher) handlePosition(ctx context.Context, con *i3.Node) error {
	if w, ok := d.store.Get(con.ID); ok && w.Hidden {
		return nil
	}

	info, err := d.locate(ctx, con.ID)
	if err != nil {
		return err
	}
	if info.Scratchpad {
		return nil
	}

	var geo *i3.Rect
	if info.Floating {
		r := info.Node.Rect
		geo = &r
	}
	d.store.UpdateVisible(info.Node.ID, info.Workspace, info.Floating, geo)
	return nil
}

// locate finds a window in a fresh tree snapshot. Event payloads carry the
// container without its workspace context, so position changes need one
// tree read.
func (d *Dispatcher) locate(ctx context.Context, windowID int64) (*i3.WindowInfo, error) {
	tree, err := d.wm.GetTree(ctx)
	if err != nil {
		return nil, fmt.Errorf("locate window %d: %w", windowID, err)
	}
	info := tree.FindWindow(windowID)
	if info == nil {
		// Raced with a close; nothing to do.
		return nil, fmt.Errorf("window %d vanished before handling", windowID)
	}
	return info, nil
}
