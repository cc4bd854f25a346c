package blueprint

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"evoforge/internal/logging"
)

// ErrNotFound is returned when a blueprint id is not registered.
var ErrNotFound = errors.New("blueprint not found")

// Provider supplies blueprints to the engine.
type Provider interface {
	Get(id string) (*Blueprint, error)
	List() []*Blueprint
}

// Registry is a thread-safe Provider backed by built-in defaults plus an
// optional directory of YAML blueprint files.
type Registry struct {
	mu         sync.RWMutex
	dir        string
	blueprints map[string]*Blueprint
}

// NewRegistry creates a registry seeded with the built-in blueprints. If dir
// is non-empty, *.yaml files in it are loaded on top; a file whose id matches
// a built-in overrides it.
func NewRegistry(dir string) (*Registry, error) {
	r := &Registry{dir: dir, blueprints: make(map[string]*Blueprint)}
	r.registerBuiltins()
	if dir != "" {
		if err := r.Reload(); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) registerBuiltins() {
	def := DefaultAlgorithmOptimization()
	r.blueprints[def.ID] = def
}

// Get returns the blueprint with the given id.
func (r *Registry) Get(id string) (*Blueprint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bp, ok := r.blueprints[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return bp, nil
}

// List returns all registered blueprints sorted by id.
func (r *Registry) List() []*Blueprint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Blueprint, 0, len(r.blueprints))
	for _, bp := range r.blueprints {
		out = append(out, bp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Search returns blueprints whose name, description, or tags match the query.
func (r *Registry) Search(query string) []*Blueprint {
	query = strings.ToLower(query)
	var out []*Blueprint
	for _, bp := range r.List() {
		if strings.Contains(strings.ToLower(bp.Name), query) ||
			strings.Contains(strings.ToLower(bp.Description), query) {
			out = append(out, bp)
			continue
		}
		for _, tag := range bp.Tags {
			if strings.Contains(strings.ToLower(tag), query) {
				out = append(out, bp)
				break
			}
		}
	}
	return out
}

// Reload re-reads the blueprint directory. Built-ins are always re-registered
// first so deleting a file restores the built-in version. Invalid files are
// logged and skipped rather than failing the whole reload.
func (r *Registry) Reload() error {
	if r.dir == "" {
		return nil
	}

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read blueprint dir: %w", err)
	}

	loaded := make(map[string]*Blueprint)
	log := logging.Get(logging.CategoryBlueprint)
	for _, entry := range entries {
		if entry.IsDir() || !isYAML(entry.Name()) {
			continue
		}
		path := filepath.Join(r.dir, entry.Name())
		bp, err := LoadFile(path)
		if err != nil {
			log.Warn("skipping blueprint %s: %v", entry.Name(), err)
			continue
		}
		loaded[bp.ID] = bp
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.blueprints = make(map[string]*Blueprint)
	r.registerBuiltins()
	for id, bp := range loaded {
		r.blueprints[id] = bp
	}
	log.Info("registry loaded %d blueprints (%d from %s)", len(r.blueprints), len(loaded), r.dir)
	return nil
}

func isYAML(name string) bool {
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}

// LoadFile parses and validates a single blueprint YAML file.
func LoadFile(path string) (*Blueprint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read blueprint: %w", err)
	}
	var bp Blueprint
	if err := yaml.Unmarshal(data, &bp); err != nil {
		return nil, fmt.Errorf("failed to parse blueprint: %w", err)
	}
	if err := bp.Validate(); err != nil {
		return nil, err
	}
	return &bp, nil
}
