package core

import (
	"sync"

	"pkt.systems/busyline/schema"
)

// Registry tracks the busy flag per connection and the single
// current-connection pointer. It is the only shared mutable state in the
// core; everything else derives from it at render time. Methods never block
// beyond the mutex and never fail. Connections the registry has never heard
// of count as idle.
type Registry struct {
	mu      sync.Mutex
	busy    map[schema.ConnID]bool
	current schema.ConnID
}

// NewRegistry returns an empty registry with every connection idle.
func NewRegistry() *Registry {
	return &Registry{busy: make(map[schema.ConnID]bool)}
}

// SetBusy records the connection as busy and reports whether that changed
// its state. Re-marking a busy connection is a no-op.
func (r *Registry) SetBusy(id schema.ConnID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.busy[id] {
		return false
	}
	r.busy[id] = true
	return true
}

// SetIdle records the connection as idle and reports whether that changed
// its state. Unknown connections are already idle.
func (r *Registry) SetIdle(id schema.ConnID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.busy[id] {
		return false
	}
	delete(r.busy, id)
	return true
}

// IsBusy reports the last recorded state for the connection. The state is a
// flag, not a counter: any number of busy marks is cleared by one idle mark.
func (r *Registry) IsBusy(id schema.ConnID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.busy[id]
}

// SetCurrent records the connection as the current one. An empty id clears
// the pointer so no connection is current.
func (r *Registry) SetCurrent(id schema.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = id
}

// SwapCurrent sets the current pointer and reports whether it actually
// moved. The compare and the set happen under one lock so concurrent context
// switches cannot interleave.
func (r *Registry) SwapCurrent(id schema.ConnID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == id {
		return false
	}
	r.current = id
	return true
}

// Current returns the current connection id, empty when none is current.
func (r *Registry) Current() schema.ConnID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// IsCurrent reports whether the connection is the current one. Identity is
// compared by id; an empty id is never current.
func (r *Registry) IsCurrent(id schema.ConnID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return id != "" && r.current == id
}

// BusyCount returns the number of connections currently marked busy.
func (r *Registry) BusyCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.busy)
}
