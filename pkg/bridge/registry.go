package bridge

import (
	"sync"
)

// Registry tracks the bridges for all in-flight calls. The server uses it
// for status reporting and to drain calls on shutdown.
type Registry struct {
	mu      sync.RWMutex
	bridges map[string]*Bridge
	wg      sync.WaitGroup
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{bridges: make(map[string]*Bridge)}
}

// Register adds a bridge under its call ID.
func (r *Registry) Register(b *Bridge) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bridges[b.ID()] = b
	r.wg.Add(1)
}

// Unregister removes a bridge. Safe to call for an ID that was already
// removed.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bridges[id]; ok {
		delete(r.bridges, id)
		r.wg.Done()
	}
}

// Get returns the bridge for a call ID, or nil.
func (r *Registry) Get(id string) *Bridge {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.bridges[id]
}

// Count returns the number of active calls.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bridges)
}

// Snapshots returns metrics for every active call, keyed by call ID.
func (r *Registry) Snapshots() map[string]MetricsSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]MetricsSnapshot, len(r.bridges))
	for id, b := range r.bridges {
		out[id] = b.Metrics().Snapshot()
	}
	return out
}

// CloseAll shuts down every active bridge. Each bridge unregisters itself
// as its loop exits.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	bridges := make([]*Bridge, 0, len(r.bridges))
	for _, b := range r.bridges {
		bridges = append(bridges, b)
	}
	r.mu.RUnlock()

	for _, b := range bridges {
		b.Shutdown()
	}
}

// Wait blocks until every registered bridge has unregistered.
func (r *Registry) Wait() {
	r.wg.Wait()
}
