package proxypool

import "sync"

// Registry is the append-only set of proxy identities handed out during a run.
type Registry interface {
	// Register adds identity and reports whether it was not present before.
	Register(identity string) bool
	Contains(identity string) bool
	Len() int
}

// Excluder is the read-only view of a Registry given to fetchers.
type Excluder interface {
	Contains(identity string) bool
}

type MemoryRegistry struct {
	mu   sync.RWMutex
	seen map[string]struct{}
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{seen: make(map[string]struct{})}
}

func (r *MemoryRegistry) Register(identity string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.seen[identity]; ok {
		return false
	}
	r.seen[identity] = struct{}{}
	return true
}

func (r *MemoryRegistry) Contains(identity string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.seen[identity]
	return ok
}

func (r *MemoryRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.seen)
}
