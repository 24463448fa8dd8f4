package proxy

import "sync"

// Registry owns one Virtualizer per hooked Vulkan instance, replacing
// WsiVirtualizer::instance()'s single process-wide singleton. A
// layer hooking multiple VkInstance handles in the same process (rare
// but legal) gets independent handle spaces and image pools instead
// of silently sharing one.
type Registry struct {
	mu    sync.Mutex
	byKey map[any]*Virtualizer
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byKey: make(map[any]*Virtualizer)}
}

// GetOrCreate returns the Virtualizer registered under key, creating
// one with newFn if none exists yet. key is typically the intercepted
// VkInstance handle.
func (r *Registry) GetOrCreate(key any, newFn func() *Virtualizer) *Virtualizer {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.byKey[key]; ok {
		return v
	}
	v := newFn()
	r.byKey[key] = v
	return v
}

// Get returns the Virtualizer registered under key, if any.
func (r *Registry) Get(key any) (*Virtualizer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.byKey[key]
	return v, ok
}

// Remove discards the Virtualizer registered under key. The caller is
// responsible for destroying its swapchains/surfaces first; Remove
// does not walk them.
func (r *Registry) Remove(key any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byKey, key)
}
