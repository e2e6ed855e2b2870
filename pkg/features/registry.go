// Package features provides the per-frame memoized feature cache. Every
// consumer in a frame reads through one Registry so each feature is
// computed at most once per frame.
package features

// Registry caches feature values for the current frame only. Reset must be
// called exactly once at each frame boundary, never mid-frame.
type Registry struct {
	values       map[string]any
	computations map[string]int
	frame        uint64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		values:       make(map[string]any),
		computations: make(map[string]int),
	}
}

// Get returns the cached value for key, computing it with compute on the
// first request this frame.
func (r *Registry) Get(key string, compute func() any) any {
	if v, ok := r.values[key]; ok {
		return v
	}
	v := compute()
	r.values[key] = v
	r.computations[key]++
	return v
}

// Has reports whether key has been computed this frame.
func (r *Registry) Has(key string) bool {
	_, ok := r.values[key]
	return ok
}

// Computations returns how many times key was computed since the last Reset.
func (r *Registry) Computations(key string) int {
	return r.computations[key]
}

// Frame returns the number of Resets so far.
func (r *Registry) Frame() uint64 {
	return r.frame
}

// Reset clears every cached value and starts a new frame.
func (r *Registry) Reset() {
	clear(r.values)
	clear(r.computations)
	r.frame++
}

// Get is the typed form of Registry.Get.
func Get[T any](r *Registry, key string, compute func() T) T {
	v := r.Get(key, func() any { return compute() })
	return v.(T)
}
