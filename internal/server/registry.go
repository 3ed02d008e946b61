// Package server maintains the shared registry that maps live sessions to
// their chosen display names.
package server

import (
	"sort"
	"sync"

	"github.com/samber/lo"
)

// Registry is the shared mapping of connection identity to display name.
// An entry exists only for sessions that have completed the naming handshake
// and have not yet disconnected. All operations are atomic with respect to
// each other and never touch the network; the lock is held for in-memory
// work only.
type Registry struct {
	mu    sync.Mutex
	names map[string]string
}

// NewRegistry creates an empty Registry ready for concurrent use.
func NewRegistry() *Registry {
	return &Registry{
		names: make(map[string]string),
	}
}

// Insert records the display name for the given connection identity,
// replacing any previous entry for the same identity.
func (r *Registry) Insert(id, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.names[id] = name
}

// Remove deletes the entry for the given connection identity and reports
// whether an entry existed. Removing an unknown identity is a no-op.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.names[id]
	delete(r.names, id)
	return ok
}

// Snapshot returns the display names registered at the instant of the call,
// sorted for stable presentation. The result is a copy and goes stale as soon
// as it is returned; that is acceptable for its only consumer, the /users
// listing.
func (r *Registry) Snapshot() []string {
	r.mu.Lock()
	names := lo.Values(r.names)
	r.mu.Unlock()

	sort.Strings(names)
	return names
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.names)
}
