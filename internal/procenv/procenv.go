// Package procenv reads launch-context tags from a process's environment.
//
// Ownership tags are injected by the launch wrapper before exec and read
// exactly once, near window creation: the process may exit or exec away at
// any time, so a failed read means "ownership unknown", never an error to
// propagate.
package procenv

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"i3pm/internal/domain"
)

// Environment keys recognized as launch-context tags.
const (
	KeyProjectName = "PROJECT_NAME"
	KeyProjectDir  = "PROJECT_DIR"
	KeyAppName     = "APP_NAME"
	KeyAppID       = "APP_ID"
	KeyScope       = "SCOPE"
)

// Scope determines whether a window participates in project switching.
type Scope string

const (
	// ScopeScoped windows are hidden and restored with their project.
	ScopeScoped Scope = "scoped"
	// ScopeGlobal windows stay visible regardless of the active project.
	ScopeGlobal Scope = "global"
)

// Ownership is the validated launch context of a window's process.
type Ownership struct {
	Project string
	App     string
	AppID   string
	Scope   Scope
}

// Reader reads a process environment. The default implementation reads
// /proc; tests substitute a map-backed fake.
type Reader interface {
	Read(pid int) (map[string]string, error)
}

// ProcReader reads environments from the proc filesystem.
type ProcReader struct {
	// Root is the proc mount point, "/proc" unless overridden in tests.
	Root string
}

// NewReader returns a Reader backed by /proc.
func NewReader() *ProcReader {
	return &ProcReader{Root: "/proc"}
}

// Read returns the NUL-delimited KEY=VALUE environment of pid.
// Returns domain.ErrEnvNotFound when the process is gone or unreadable.
func (r *ProcReader) Read(pid int) (map[string]string, error) {
	data, err := os.ReadFile(fmt.Sprintf("%s/%d/environ", r.Root, pid))
	if err != nil {
		return nil, fmt.Errorf("%w: pid %d: %v", domain.ErrEnvNotFound, pid, err)
	}

	env := make(map[string]string)
	for _, entry := range strings.Split(string(data), "\x00") {
		if entry == "" {
			continue
		}
		key, value, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		env[key] = value
	}
	return env, nil
}

// OwnershipFromEnv validates the raw environment into a typed Ownership.
// This is the single boundary where loose strings become structured data.
// Returns false when no project tag is present.
func OwnershipFromEnv(env map[string]string) (Ownership, bool) {
	project := env[KeyProjectName]
	if project == "" {
		return Ownership{}, false
	}

	own := Ownership{
		Project: project,
		App:     env[KeyAppName],
		AppID:   env[KeyAppID],
		Scope:   ScopeScoped,
	}

	switch s := env[KeyScope]; s {
	case "", string(ScopeScoped):
	case string(ScopeGlobal):
		own.Scope = ScopeGlobal
	default:
		log.Warn().
			Str("scope", s).
			Str("project", project).
			Msg("unknown SCOPE value, treating as scoped")
	}

	return own, true
}

// OwnershipForPID reads the process environment and validates it in one
// step. The bool result is false for both "process gone" and "no tag".
func OwnershipForPID(r Reader, pid int) (Ownership, bool) {
	if pid <= 0 {
		return Ownership{}, false
	}
	env, err := r.Read(pid)
	if err != nil {
		log.Debug().Int("pid", pid).Err(err).Msg("environment read failed, ownership unknown")
		return Ownership{}, false
	}
	return OwnershipFromEnv(env)
}
