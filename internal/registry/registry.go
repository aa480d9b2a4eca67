// Package registry implements the window id allocator and the
// surface registry that track every window known to the GUI daemon.
package registry

import (
	"fmt"

	"github.com/QubesOS/qubes-gui-agent-wayland/internal/waylandrole"
)

// SelfWindowID is reserved for the agent's own liveness window.
const SelfWindowID uint32 = 1

// Allocator is a monotonic generator of window ids. Id 1 is
// pre-reserved for the agent's self-window; ids handed out by Next
// start at 2 and never repeat for the process lifetime.
type Allocator struct {
	next uint32
}

// NewAllocator returns an Allocator ready to hand out client ids
// starting at 2.
func NewAllocator() *Allocator {
	return &Allocator{next: SelfWindowID + 1}
}

// Next returns the next window id, or an error if the 32-bit id space
// is exhausted. Callers at the top level should treat a non-nil error
// here as fatal.
func (a *Allocator) Next() (uint32, error) {
	if a.next == 0 {
		return 0, fmt.Errorf("registry: window id space exhausted")
	}
	id := a.next
	a.next++
	return id, nil
}

// BackendEntry is the per-window state tracked for each registered
// surface: the surface role handle, whether the first configure has
// been acknowledged, and the last daemon-advertised placement.
type BackendEntry struct {
	Surface    waylandrole.Role
	Configured bool
	Placement  waylandrole.Point

	// Parent is the window id of the surface this one is a
	// subsurface of, or 0 for a top-level/popup root.
	Parent uint32
}

// Registry is an insertion-ordered map from window id to
// BackendEntry. Ordered iteration is required for deterministic tick
// processing.
type Registry struct {
	order   []uint32
	entries map[uint32]*BackendEntry
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[uint32]*BackendEntry)}
}

// Insert adds a new entry. It is an error to insert over an id
// already present, or to insert id 0.
func (r *Registry) Insert(id uint32, e *BackendEntry) error {
	if id == 0 {
		return fmt.Errorf("registry: refusing to insert window id 0")
	}
	if _, exists := r.entries[id]; exists {
		return fmt.Errorf("registry: double-insert of window id %d", id)
	}
	r.entries[id] = e
	r.order = append(r.order, id)
	return nil
}

// Get returns the entry for id, or (nil, false) if absent. Absence is
// not an error at this layer -- callers handle a daemon race against
// a just-destroyed window by logging and dropping the event.
func (r *Registry) Get(id uint32) (*BackendEntry, bool) {
	e, ok := r.entries[id]
	return e, ok
}

// Remove deletes id from the registry, if present.
func (r *Registry) Remove(id uint32) {
	if _, ok := r.entries[id]; !ok {
		return
	}
	delete(r.entries, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Iter calls fn for every entry in insertion order. fn must not
// insert or remove entries; collect ids to mutate afterwards instead
// (this is how the reactor's tick builds its dead-window list).
func (r *Registry) Iter(fn func(id uint32, e *BackendEntry)) {
	for _, id := range r.order {
		if e, ok := r.entries[id]; ok {
			fn(id, e)
		}
	}
}

// Len reports the number of live entries.
func (r *Registry) Len() int { return len(r.entries) }
