// Package launch tracks pending application launches and correlates them
// to the windows they eventually produce.
//
// WM events do not say why a window was created. The launch wrapper
// pre-registers its intent here, and the dispatcher matches new-window
// events against the registry by class, recency, and workspace hint.
package launch

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"i3pm/internal/procenv"
)

// DefaultExpiry is how long a pending launch stays eligible for matching.
// Apps that have not produced a window by then likely crashed or were
// misregistered; the entry is swept to keep memory bounded.
const DefaultExpiry = 5 * time.Second

// Pending is one registered launch whose window has not appeared yet.
type Pending struct {
	AppID       string
	Class       string // expected window class
	Project     string
	App         string
	Scope       procenv.Scope
	Workspace   int // intended workspace, 0 if unknown
	RequestedAt time.Time
}

// Match is the outcome of a successful correlation.
type Match struct {
	Pending    Pending
	Confidence float64
}

// Registry holds pending launches. It is safe for concurrent use; the
// expiry sweep runs on its own ticker and never blocks the caller.
type Registry struct {
	expiry time.Duration

	mu      sync.Mutex
	pending map[string]Pending // keyed by AppID
	now     func() time.Time
}

// NewRegistry creates a registry with the given expiry window; zero means
// DefaultExpiry.
func NewRegistry(expiry time.Duration) *Registry {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &Registry{
		expiry:  expiry,
		pending: make(map[string]Pending),
		now:     time.Now,
	}
}

// Register inserts a pending launch. A missing AppID is generated; the
// returned value is the effective ID.
func (r *Registry) Register(p Pending) string {
	if p.AppID == "" {
		p.AppID = "app-" + uuid.New().String()
	}
	p.RequestedAt = r.now()

	r.mu.Lock()
	r.pending[p.AppID] = p
	r.mu.Unlock()

	log.Debug().
		Str("app_id", p.AppID).
		Str("class", p.Class).
		Str("project", p.Project).
		Int("workspace", p.Workspace).
		Msg("launch registered")
	return p.AppID
}

// Correlate matches a new window against the pending launches and consumes
// the match. Candidates must share the window class and be younger than the
// expiry window.
//
// One candidate matches with full confidence. Among several, a candidate on
// the window's workspace wins; with no workspace agreement the earliest
// RequestedAt wins, deterministically. No candidates is a normal miss: the
// caller falls back to an environment read.
func (r *Registry) Correlate(class string, workspace int) (*Match, bool) {
	if class == "" {
		return nil, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.expiry)
	var candidates []Pending
	for _, p := range r.pending {
		if p.Class == class && p.RequestedAt.After(cutoff) {
			candidates = append(candidates, p)
		}
	}

	if len(candidates) == 0 {
		return nil, false
	}

	var chosen Pending
	confidence := 1.0

	if len(candidates) == 1 {
		chosen = candidates[0]
	} else {
		// Oldest first so the earliest registration wins ties.
		sort.Slice(candidates, func(i, j int) bool {
			return candidates[i].RequestedAt.Before(candidates[j].RequestedAt)
		})

		confidence = 0.5
		chosen = candidates[0]
		for _, c := range candidates {
			if c.Workspace != 0 && c.Workspace == workspace {
				chosen = c
				confidence = 0.8
				break
			}
		}
	}

	delete(r.pending, chosen.AppID)

	log.Debug().
		Str("app_id", chosen.AppID).
		Str("class", class).
		Float64("confidence", confidence).
		Int("candidates", len(candidates)).
		Msg("launch correlated")

	return &Match{Pending: chosen, Confidence: confidence}, true
}

// Sweep removes expired entries and returns how many were dropped.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.expiry)
	dropped := 0
	for id, p := range r.pending {
		if !p.RequestedAt.After(cutoff) {
			delete(r.pending, id)
			dropped++
		}
	}
	if dropped > 0 {
		log.Debug().Int("dropped", dropped).Msg("expired pending launches swept")
	}
	return dropped
}

// Len returns the number of pending launches.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// RunSweeper runs periodic sweeps until stop is closed. It runs off the
// main mutation path and must never block it.
func (r *Registry) RunSweeper(stop <-chan struct{}) {
	ticker := time.NewTicker(r.expiry)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}
