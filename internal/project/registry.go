// Package project manages the named project definitions and the
// active-project pointer, one JSON file per project.
package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"i3pm/internal/domain"
)

// FileVersion identifies the per-project file schema.
const FileVersion = "1.0"

// Project is one user-defined context windows can belong to.
type Project struct {
	Version     string `json:"version"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name,omitempty"`
	Icon        string `json:"icon,omitempty"`
	Directory   string `json:"directory,omitempty"`
	// WorkspaceOutputs optionally pins workspace numbers to outputs.
	WorkspaceOutputs map[int]string `json:"workspace_outputs,omitempty"`
}

// ActivePointer is the persisted active-project value. An empty Name means
// no project is active.
type ActivePointer struct {
	Name        string `json:"name,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Icon        string `json:"icon,omitempty"`
}

// Registry is the project CRUD layer. Each file write is atomic on its
// own; there is no transactionality across files.
type Registry struct {
	dir        string
	activePath string

	mu       sync.RWMutex
	projects map[string]Project
	active   ActivePointer
}

// NewRegistry creates a registry over the given projects directory. The
// active pointer lives next to it.
func NewRegistry(dir string) *Registry {
	return &Registry{
		dir:        dir,
		activePath: filepath.Join(filepath.Dir(dir), "active-project.json"),
		projects:   make(map[string]Project),
	}
}

// Dir returns the projects directory.
func (r *Registry) Dir() string {
	return r.dir
}

// ValidateName rejects names that would escape the projects directory or
// collide with path syntax.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name is required", domain.ErrInvalidProjectName)
	}
	if name != filepath.Base(name) || strings.Contains(name, "..") || name == "." {
		return fmt.Errorf("%w: %q", domain.ErrInvalidProjectName, name)
	}
	return nil
}

func (r *Registry) path(name string) string {
	return filepath.Join(r.dir, name+".json")
}

// Load reads every project file and the active pointer into memory.
// Individual corrupt files are skipped with a warning; Load itself only
// fails on directory-level errors.
func (r *Registry) Load() error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to list projects: %w", err)
	}

	projects := make(map[string]Project)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		p, err := r.readFile(filepath.Join(r.dir, name))
		if err != nil {
			log.Warn().Err(err).Str("file", name).Msg("skipping unreadable project file")
			continue
		}
		key := strings.TrimSuffix(name, ".json")
		if p.Name != key {
			// The storage key is authoritative.
			log.Warn().
				Str("file", name).
				Str("name", p.Name).
				Msg("project name does not match its file, using file name")
			p.Name = key
		}
		projects[key] = p
	}

	active := ActivePointer{}
	if data, err := os.ReadFile(r.activePath); err == nil {
		if err := json.Unmarshal(data, &active); err != nil {
			log.Warn().Err(err).Msg("active-project file corrupt, clearing")
			active = ActivePointer{}
		}
	}

	r.mu.Lock()
	r.projects = projects
	r.active = active
	r.mu.Unlock()

	log.Info().Int("projects", len(projects)).Str("active", active.Name).Msg("projects loaded")
	return nil
}

func (r *Registry) readFile(path string) (Project, error) {
	var p Project
	data, err := os.ReadFile(path)
	if err != nil {
		return p, err
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return p, nil
}

func writeAtomic(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// Create adds a new project. Fails if the name is taken. A directory that
// does not exist is a warning, not an error.
func (r *Registry) Create(p Project) error {
	if err := ValidateName(p.Name); err != nil {
		return err
	}
	p.Version = FileVersion

	if p.Directory != "" {
		if _, err := os.Stat(p.Directory); err != nil {
			log.Warn().Str("project", p.Name).Str("directory", p.Directory).Msg("project directory does not exist")
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.projects[p.Name]; ok {
		return fmt.Errorf("%w: %s", domain.ErrProjectExists, p.Name)
	}
	if err := writeAtomic(r.path(p.Name), p); err != nil {
		return fmt.Errorf("failed to write project %q: %w", p.Name, err)
	}
	r.projects[p.Name] = p
	return nil
}

// Update replaces an existing project definition.
func (r *Registry) Update(p Project) error {
	if err := ValidateName(p.Name); err != nil {
		return err
	}
	p.Version = FileVersion

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.projects[p.Name]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrProjectNotFound, p.Name)
	}
	if err := writeAtomic(r.path(p.Name), p); err != nil {
		return fmt.Errorf("failed to write project %q: %w", p.Name, err)
	}
	r.projects[p.Name] = p
	return nil
}

// Get returns a project by name.
func (r *Registry) Get(name string) (Project, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.projects[name]
	return p, ok
}

// List returns all projects sorted by name.
func (r *Registry) List() []Project {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Project, 0, len(r.projects))
	for _, p := range r.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Delete removes a project file. Windows tagged with the name are not
// touched: orphaned ownership tags are inert.
func (r *Registry) Delete(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.projects[name]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrProjectNotFound, name)
	}
	if err := os.Remove(r.path(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete project %q: %w", name, err)
	}
	delete(r.projects, name)

	if r.active.Name == name {
		r.active = ActivePointer{}
		if err := writeAtomic(r.activePath, r.active); err != nil {
			log.Warn().Err(err).Msg("failed to clear active project pointer")
		}
	}
	return nil
}

// Active returns the current active-project pointer.
func (r *Registry) Active() ActivePointer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// SetActive updates the active-project pointer. An empty name clears it.
// An unknown name is allowed: the daemon tolerates dangling references and
// treats them as "no known project".
func (r *Registry) SetActive(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ptr := ActivePointer{}
	if name != "" {
		if p, ok := r.projects[name]; ok {
			ptr = ActivePointer{Name: p.Name, DisplayName: p.DisplayName, Icon: p.Icon}
		} else {
			ptr = ActivePointer{Name: name}
		}
	}
	if err := writeAtomic(r.activePath, ptr); err != nil {
		return fmt.Errorf("failed to write active project pointer: %w", err)
	}
	r.active = ptr
	return nil
}
