// Package filter implements the window filter engine: hiding a project's
// windows into the scratchpad and restoring them to their captured
// workspaces.
package filter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"i3pm/internal/domain/events"
	"i3pm/internal/domain/ports"
	"i3pm/internal/i3"
	"i3pm/internal/procenv"
	"i3pm/internal/state"
)

// MarkPrefix is the WM mark used to tag owned windows. Marks survive
// daemon restarts inside the WM, so ownership recovers even when the
// state file is lost.
const MarkPrefix = "project:"

// Mark returns the ownership mark for a project.
func Mark(project string) string {
	return MarkPrefix + project
}

// ProjectFromMarks extracts the owning project from a window's marks.
func ProjectFromMarks(marks []string) (string, bool) {
	for _, m := range marks {
		if strings.HasPrefix(m, MarkPrefix) {
			return strings.TrimPrefix(m, MarkPrefix), true
		}
	}
	return "", false
}

// WindowError is one window's failure inside a batch.
type WindowError struct {
	WindowID int64  `json:"window_id"`
	Error    string `json:"error"`
}

// HideResult reports what a hide did.
type HideResult struct {
	Project    string        `json:"project"`
	Hidden     []int64       `json:"hidden"`
	Errors     []WindowError `json:"errors,omitempty"`
	DurationMs int64         `json:"duration_ms"`
}

// RestoredWindow is one window's restoration record.
type RestoredWindow struct {
	WindowID  int64 `json:"window_id"`
	Workspace int   `json:"workspace"`
	// Fallback is true when the captured workspace was unavailable and
	// the window went to the focused workspace instead.
	Fallback bool `json:"fallback,omitempty"`
}

// RestoreResult reports what a restore did.
type RestoreResult struct {
	Project    string           `json:"project"`
	Restored   []RestoredWindow `json:"restored"`
	Errors     []WindowError    `json:"errors,omitempty"`
	DurationMs int64            `json:"duration_ms"`
}

// SwitchResult composes the hide and restore halves of a project switch.
type SwitchResult struct {
	From       string         `json:"from,omitempty"`
	To         string         `json:"to"`
	Hide       *HideResult    `json:"hide,omitempty"`
	Restore    *RestoreResult `json:"restore,omitempty"`
	DurationMs int64          `json:"duration_ms"`
}

// Engine hides and restores project windows. All methods run on the
// daemon's serialized mutation path; the engine itself holds no locks.
type Engine struct {
	wm    ports.WM
	store *state.Store
	env   procenv.Reader
	hub   ports.EventHub
}

// NewEngine creates a filter engine.
func NewEngine(wm ports.WM, store *state.Store, env procenv.Reader, hub ports.EventHub) *Engine {
	return &Engine{wm: wm, store: store, env: env, hub: hub}
}

// ownership resolves who owns a window: the tracking store first, the WM
// mark second, the process environment last. The store wins because it
// carries scope and app refinements the mark cannot encode.
func (e *Engine) ownership(info i3.WindowInfo) (project, app string, scope procenv.Scope, ok bool) {
	if w, found := e.store.Get(info.Node.ID); found && w.Project != "" {
		return w.Project, w.App, w.Scope, true
	}
	if p, found := ProjectFromMarks(info.Node.Marks); found {
		return p, "", procenv.ScopeScoped, true
	}
	if own, found := procenv.OwnershipForPID(e.env, info.Node.PID); found {
		return own.Project, own.App, own.Scope, true
	}
	return "", "", "", false
}

// Hide moves every visible scoped window of the project to the scratchpad.
// Pre-hide workspace, floating state, and geometry are captured first, once
// per hide cycle; the single batched command keeps the WM round trip count
// independent of window count. Per-window failures are recorded, not fatal.
// An unknown project hides nothing and succeeds.
func (e *Engine) Hide(ctx context.Context, project string) (*HideResult, error) {
	start := time.Now()
	result := &HideResult{Project: project, Hidden: []int64{}}

	tree, err := e.wm.GetTree(ctx)
	if err != nil {
		return nil, fmt.Errorf("hide %q: %w", project, err)
	}

	var targets []i3.WindowInfo
	for _, info := range tree.Windows() {
		if info.Scratchpad {
			continue
		}
		owner, app, scope, ok := e.ownership(info)
		if !ok || owner != project || scope == procenv.ScopeGlobal {
			continue
		}
		var geo *i3.Rect
		if info.Floating {
			r := info.Node.Rect
			geo = &r
		}
		e.store.Capture(info.Node.ID, owner, app, scope, info.Workspace, info.Floating, geo)
		targets = append(targets, info)
	}

	if len(targets) == 0 {
		result.DurationMs = time.Since(start).Milliseconds()
		return result, nil
	}

	cmds := make([]string, len(targets))
	for i, info := range targets {
		cmds[i] = fmt.Sprintf("[con_id=%d] move scratchpad", info.Node.ID)
	}

	replies, err := e.wm.RunCommand(ctx, i3.JoinCommands(cmds))
	if err != nil {
		return nil, fmt.Errorf("hide %q: %w", project, err)
	}

	for i, info := range targets {
		if i < len(replies) && !replies[i].Success {
			result.Errors = append(result.Errors, WindowError{
				WindowID: info.Node.ID,
				Error:    replies[i].Error,
			})
			log.Warn().
				Int64("window_id", info.Node.ID).
				Str("project", project).
				Str("error", replies[i].Error).
				Msg("hide failed for window")
			continue
		}
		e.store.MarkHidden(info.Node.ID)
		result.Hidden = append(result.Hidden, info.Node.ID)
	}

	result.DurationMs = time.Since(start).Milliseconds()

	if len(result.Hidden) > 0 && e.hub != nil {
		e.hub.Publish(events.NewWindowHiddenEvent(project, result.Hidden))
	}

	log.Info().
		Str("project", project).
		Int("hidden", len(result.Hidden)).
		Int("errors", len(result.Errors)).
		Int64("duration_ms", result.DurationMs).
		Msg("project windows hidden")
	return result, nil
}

// restoreTarget picks the workspace a window goes back to. The captured
// workspace wins while it still exists; otherwise the window falls back to
// the focused workspace rather than being dropped.
func restoreTarget(captured int, workspaces []i3.Workspace) (workspace int, fallback bool) {
	if captured > 0 {
		for _, ws := range workspaces {
			if ws.Num == captured {
				return captured, false
			}
		}
	}
	for _, ws := range workspaces {
		if ws.Focused {
			return ws.Num, true
		}
	}
	// No focused workspace in the reply; keep the capture as best effort.
	return captured, false
}

// Restore brings the project's scratchpad windows back: captured workspace,
// captured floating state, captured geometry for floating windows. Windows
// whose captured workspace no longer exists land on the focused workspace
// with Fallback set.
func (e *Engine) Restore(ctx context.Context, project string) (*RestoreResult, error) {
	start := time.Now()
	result := &RestoreResult{Project: project, Restored: []RestoredWindow{}}

	tree, err := e.wm.GetTree(ctx)
	if err != nil {
		return nil, fmt.Errorf("restore %q: %w", project, err)
	}
	workspaces, err := e.wm.GetWorkspaces(ctx)
	if err != nil {
		return nil, fmt.Errorf("restore %q: %w", project, err)
	}

	type target struct {
		info      i3.WindowInfo
		record    state.TrackedWindow
		workspace int
		fallback  bool
		cmds      int
	}

	var targets []target
	for _, info := range tree.ScratchpadWindows() {
		owner, _, scope, ok := e.ownership(info)
		if !ok || owner != project || scope == procenv.ScopeGlobal {
			continue
		}
		record, _ := e.store.Get(info.Node.ID)
		ws, fallback := restoreTarget(record.Workspace, workspaces)
		targets = append(targets, target{info: info, record: record, workspace: ws, fallback: fallback})
	}

	if len(targets) == 0 {
		result.DurationMs = time.Since(start).Milliseconds()
		return result, nil
	}

	var cmds []string
	for i := range targets {
		t := &targets[i]
		id := t.info.Node.ID
		before := len(cmds)

		cmds = append(cmds,
			fmt.Sprintf("[con_id=%d] scratchpad show", id),
			fmt.Sprintf("[con_id=%d] move container to workspace number %d", id, t.workspace),
		)
		if t.record.Floating {
			cmds = append(cmds, fmt.Sprintf("[con_id=%d] floating enable", id))
			if g := t.record.Geometry; g != nil {
				cmds = append(cmds,
					fmt.Sprintf("[con_id=%d] resize set %d px %d px", id, g.Width, g.Height),
					fmt.Sprintf("[con_id=%d] move position %d %d", id, g.X, g.Y),
				)
			}
		} else {
			cmds = append(cmds, fmt.Sprintf("[con_id=%d] floating disable", id))
		}
		t.cmds = len(cmds) - before
	}

	replies, err := e.wm.RunCommand(ctx, i3.JoinCommands(cmds))
	if err != nil {
		return nil, fmt.Errorf("restore %q: %w", project, err)
	}

	fallbacks := 0
	offset := 0
	for _, t := range targets {
		failed := ""
		for i := offset; i < offset+t.cmds && i < len(replies); i++ {
			if !replies[i].Success {
				failed = replies[i].Error
				break
			}
		}
		offset += t.cmds

		if failed != "" {
			result.Errors = append(result.Errors, WindowError{
				WindowID: t.info.Node.ID,
				Error:    failed,
			})
			log.Warn().
				Int64("window_id", t.info.Node.ID).
				Str("project", project).
				Str("error", failed).
				Msg("restore failed for window")
			continue
		}

		e.store.MarkRestored(t.info.Node.ID, t.workspace)
		if t.fallback {
			fallbacks++
		}
		result.Restored = append(result.Restored, RestoredWindow{
			WindowID:  t.info.Node.ID,
			Workspace: t.workspace,
			Fallback:  t.fallback,
		})
	}

	result.DurationMs = time.Since(start).Milliseconds()

	if len(result.Restored) > 0 && e.hub != nil {
		ids := make([]int64, len(result.Restored))
		for i, r := range result.Restored {
			ids[i] = r.WindowID
		}
		e.hub.Publish(events.NewWindowRestoredEvent(project, ids, fallbacks))
	}

	log.Info().
		Str("project", project).
		Int("restored", len(result.Restored)).
		Int("fallbacks", fallbacks).
		Int("errors", len(result.Errors)).
		Int64("duration_ms", result.DurationMs).
		Msg("project windows restored")
	return result, nil
}

// Switch hides the outgoing project's windows and restores the incoming
// project's. An empty from skips the hide half. Partial per-window failures
// in either half do not abort the switch.
func (e *Engine) Switch(ctx context.Context, from, to string) (*SwitchResult, error) {
	start := time.Now()
	result := &SwitchResult{From: from, To: to}

	if from != "" && from != to {
		hide, err := e.Hide(ctx, from)
		if err != nil {
			return nil, err
		}
		result.Hide = hide
	}

	restore, err := e.Restore(ctx, to)
	if err != nil {
		return nil, err
	}
	result.Restore = restore

	result.DurationMs = time.Since(start).Milliseconds()
	return result, nil
}
