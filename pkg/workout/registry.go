package workout

import (
	"fmt"
	"slices"
	"sort"
	"sync"
)

// Registry holds the loaded workouts. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	workouts map[string]*Definition

	// IDs last loaded from each directory, and what they replaced
	dirs     map[string][]string
	shadowed map[string]*Definition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		workouts: make(map[string]*Definition),
		dirs:     make(map[string][]string),
		shadowed: make(map[string]*Definition),
	}
}

// LoadBuiltIn registers every embedded workout.
func (r *Registry) LoadBuiltIn() error {
	ids, err := ListEmbedded()
	if err != nil {
		return err
	}
	for _, id := range ids {
		def, err := LoadEmbedded(id)
		if err != nil {
			return fmt.Errorf("load workout %q: %w", id, err)
		}
		r.Register(def)
	}
	return nil
}

// LoadDir makes the registry match dir: every workout in it is registered,
// replacing same-ID entries, and workouts an earlier LoadDir of the same
// dir registered but whose files are gone are removed. A removed workout
// that had replaced another, e.g. a builtin, brings that one back. Nothing
// changes if any file fails.
func (r *Registry) LoadDir(dir string) ([]string, error) {
	defs, err := LoadFromDirectory(dir)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(defs))
	for _, def := range defs {
		ids = append(ids, def.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	previous := r.dirs[dir]
	for _, id := range previous {
		if slices.Contains(ids, id) {
			continue
		}
		if prev, ok := r.shadowed[id]; ok {
			r.workouts[id] = prev
			delete(r.shadowed, id)
		} else {
			delete(r.workouts, id)
		}
	}
	for _, def := range defs {
		if existing, ok := r.workouts[def.ID]; ok && !slices.Contains(previous, def.ID) {
			r.shadowed[def.ID] = existing
		}
		r.workouts[def.ID] = def
	}
	r.dirs[dir] = ids
	return ids, nil
}

// Register adds or replaces a workout.
func (r *Registry) Register(def *Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workouts[def.ID] = def
}

// Get returns a workout by ID.
func (r *Registry) Get(id string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.workouts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return def, nil
}

// List returns the registered IDs, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.workouts))
	for id := range r.workouts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count returns the number of registered workouts.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.workouts)
}
