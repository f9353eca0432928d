// Package state holds the daemon's per-window tracking records and their
// JSON persistence.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"i3pm/internal/i3"
	"i3pm/internal/procenv"
)

// SchemaVersion identifies the on-disk layout. 1.0 captured floating state
// after the scratchpad move and corrupted tiled windows on restore; 1.1
// captures before the move. Older files are reset, not migrated.
const SchemaVersion = "1.1"

// TrackedWindow is the persisted record for one window.
//
// Workspace is the workspace the window occupied before it was hidden, not
// its current location: it is the restore target. Floating and Geometry are
// captured before the first scratchpad move and kept unchanged across
// repeat hides, because the move itself forces windows floating.
type TrackedWindow struct {
	WindowID  int64         `json:"window_id"`
	Project   string        `json:"project,omitempty"`
	App       string        `json:"app,omitempty"`
	Scope     procenv.Scope `json:"scope,omitempty"`
	Workspace int           `json:"workspace"`
	Floating  bool          `json:"floating"`
	Geometry  *i3.Rect      `json:"geometry,omitempty"`
	Hidden    bool          `json:"hidden"`
	LastSeen  time.Time     `json:"last_seen"`
}

type stateFile struct {
	Version string                   `json:"version"`
	Windows map[string]TrackedWindow `json:"windows"`
}

// Store is the in-memory window map with JSON file persistence. All
// mutations happen on the serialized mutation path; reads take snapshots
// so concurrent queries never observe a torn record.
type Store struct {
	path string

	mu      sync.RWMutex
	windows map[int64]TrackedWindow
}

// NewStore creates a store persisting to the given file path.
func NewStore(path string) *Store {
	return &Store{
		path:    path,
		windows: make(map[int64]TrackedWindow),
	}
}

// Get returns the record for a window.
func (s *Store) Get(windowID int64) (TrackedWindow, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.windows[windowID]
	return w, ok
}

// Upsert inserts or replaces a record, refreshing LastSeen.
func (s *Store) Upsert(w TrackedWindow) {
	w.LastSeen = time.Now().UTC()
	s.mu.Lock()
	s.windows[w.WindowID] = w
	s.mu.Unlock()
}

// Remove deletes a window's record.
func (s *Store) Remove(windowID int64) {
	s.mu.Lock()
	delete(s.windows, windowID)
	s.mu.Unlock()
}

// AllForProject returns the records owned by the given project.
func (s *Store) AllForProject(project string) []TrackedWindow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []TrackedWindow
	for _, w := range s.windows {
		if w.Project == project {
			out = append(out, w)
		}
	}
	return out
}

// Snapshot returns a copy of every record, safe to serve concurrently with
// mutations.
func (s *Store) Snapshot() map[int64]TrackedWindow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int64]TrackedWindow, len(s.windows))
	for id, w := range s.windows {
		out[id] = w
	}
	return out
}

// Len returns the number of tracked windows.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.windows)
}

// Capture records pre-hide truth for a window about to be moved to the
// scratchpad. The capture is idempotent: a window already hidden keeps its
// original values, since its live state in the scratchpad is no longer
// authoritative.
func (s *Store) Capture(windowID int64, project, app string, scope procenv.Scope, workspace int, floating bool, geometry *i3.Rect) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.windows[windowID]; ok && existing.Hidden {
		return
	}

	s.windows[windowID] = TrackedWindow{
		WindowID:  windowID,
		Project:   project,
		App:       app,
		Scope:     scope,
		Workspace: workspace,
		Floating:  floating,
		Geometry:  geometry,
		LastSeen:  time.Now().UTC(),
	}
}

// MarkHidden flags a window as scratchpad-resident after a successful move.
func (s *Store) MarkHidden(windowID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.windows[windowID]; ok {
		w.Hidden = true
		w.LastSeen = time.Now().UTC()
		s.windows[windowID] = w
	}
}

// MarkRestored flags a window visible again on the given workspace. The
// record turns live: ordinary move events update it until the next hide
// captures fresh truth.
func (s *Store) MarkRestored(windowID int64, workspace int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.windows[windowID]; ok {
		w.Hidden = false
		w.Workspace = workspace
		w.LastSeen = time.Now().UTC()
		s.windows[windowID] = w
	}
}

// UpdateVisible refreshes workspace and floating state for a visible
// window. Calls for hidden windows are ignored: the scratchpad mechanics
// emit spurious move and floating events that must not overwrite captured
// truth.
func (s *Store) UpdateVisible(windowID int64, workspace int, floating bool, geometry *i3.Rect) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[windowID]
	if !ok || w.Hidden {
		return
	}
	w.Workspace = workspace
	w.Floating = floating
	if floating {
		w.Geometry = geometry
	} else {
		w.Geometry = nil
	}
	w.LastSeen = time.Now().UTC()
	s.windows[windowID] = w
}

// Persist writes the store atomically: temp file in the same directory,
// fsync-free rename over the target. Readers never observe a partial file.
func (s *Store) Persist() error {
	s.mu.RLock()
	file := stateFile{
		Version: SchemaVersion,
		Windows: make(map[string]TrackedWindow, len(s.windows)),
	}
	for id, w := range s.windows {
		file.Windows[fmt.Sprintf("%d", id)] = w
	}
	s.mu.RUnlock()

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".windows-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp state file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

// Load reads the persisted state. A missing file starts empty; a corrupt
// file or unknown schema version logs a warning and starts empty. Load
// never fails startup.
func (s *Store) Load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", s.path).Msg("failed to read state file, starting empty")
		}
		return
	}

	var file stateFile
	if err := json.Unmarshal(data, &file); err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("state file corrupt, starting empty")
		return
	}
	if file.Version != SchemaVersion {
		log.Warn().
			Str("found", file.Version).
			Str("want", SchemaVersion).
			Msg("state schema version mismatch, resetting")
		return
	}

	windows := make(map[int64]TrackedWindow, len(file.Windows))
	for key, w := range file.Windows {
		var id int64
		if _, err := fmt.Sscanf(key, "%d", &id); err != nil {
			log.Warn().Str("key", key).Msg("skipping malformed window key")
			continue
		}
		w.WindowID = id
		windows[id] = w
	}

	s.mu.Lock()
	s.windows = windows
	s.mu.Unlock()

	log.Info().Int("windows", len(windows)).Msg("window state loaded")
}

// Reconcile aligns the store with the live tree: records for windows that
// no longer exist are dropped, untracked live windows get minimal records
// (ownership unknown until an event fills it in), and the hidden flag is
// refreshed from actual scratchpad residency.
func (s *Store) Reconcile(tree *i3.Node) {
	live := make(map[int64]i3.WindowInfo)
	for _, w := range tree.Windows() {
		live[w.Node.ID] = w
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id := range s.windows {
		if _, ok := live[id]; !ok {
			delete(s.windows, id)
			removed++
		}
	}

	added := 0
	for id, info := range live {
		if w, ok := s.windows[id]; ok {
			w.Hidden = info.Scratchpad
			// Visible windows may have moved while the daemon was down;
			// hidden ones keep their captured pre-hide truth.
			if !info.Scratchpad {
				w.Workspace = info.Workspace
				w.Floating = info.Floating
				if info.Floating {
					r := info.Node.Rect
					w.Geometry = &r
				} else {
					w.Geometry = nil
				}
			}
			s.windows[id] = w
			continue
		}
		var geo *i3.Rect
		if info.Floating {
			r := info.Node.Rect
			geo = &r
		}
		s.windows[id] = TrackedWindow{
			WindowID:  id,
			Workspace: info.Workspace,
			Floating:  info.Floating,
			Geometry:  geo,
			Hidden:    info.Scratchpad,
			LastSeen:  time.Now().UTC(),
		}
		added++
	}

	log.Info().
		Int("removed", removed).
		Int("added", added).
		Int("tracked", len(s.windows)).
		Msg("state reconciled against live tree")
}
