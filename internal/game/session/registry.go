package session

import "sync"

// entry is a registry slot; a nil handle marks a creation still in flight.
type entry struct {
	handle *Handle
}

// Registry maps player ids to their live Handle.
//
// All mutations are atomic single-key operations and reads never block on writes.
type Registry struct {
	entries sync.Map // int64 -> *entry
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Find returns the live handle for playerID.
//
// Postcondition: Returns (handle, true) only for a completed registration; an
// in-flight placeholder reports (nil, false).
func (r *Registry) Find(playerID int64) (*Handle, bool) {
	v, ok := r.entries.Load(playerID)
	if !ok {
		return nil, false
	}
	e := v.(*entry)
	if e.handle == nil {
		return nil, false
	}
	return e.handle, true
}

// reserve stores a placeholder for playerID unless an entry already exists.
//
// Postcondition: Returns the stored placeholder, or nil when an entry was present.
func (r *Registry) reserve(playerID int64) *entry {
	placeholder := &entry{}
	if _, loaded := r.entries.LoadOrStore(playerID, placeholder); loaded {
		return nil
	}
	return placeholder
}

// abandon removes placeholder if it is still the entry for playerID.
func (r *Registry) abandon(playerID int64, placeholder *entry) {
	if placeholder == nil {
		return
	}
	r.entries.CompareAndDelete(playerID, placeholder)
}

// register stores h for playerID, last write wins.
//
// Postcondition: Returns the handle that was replaced, if any.
func (r *Registry) register(playerID int64, h *Handle) *Handle {
	prev, loaded := r.entries.Swap(playerID, &entry{handle: h})
	if !loaded {
		return nil
	}
	return prev.(*entry).handle
}

// unregister removes playerID only if h is still its handle.
//
// Postcondition: Returns true iff the entry was removed.
func (r *Registry) unregister(playerID int64, h *Handle) bool {
	v, ok := r.entries.Load(playerID)
	if !ok {
		return false
	}
	e := v.(*entry)
	if e.handle != h {
		return false
	}
	return r.entries.CompareAndDelete(playerID, e)
}

// Count returns the number of live handles.
func (r *Registry) Count() int {
	n := 0
	r.entries.Range(func(_, v any) bool {
		if v.(*entry).handle != nil {
			n++
		}
		return true
	})
	return n
}

// PlayerIDs returns the players with a live handle, in no particular order.
func (r *Registry) PlayerIDs() []int64 {
	var ids []int64
	r.entries.Range(func(k, v any) bool {
		if v.(*entry).handle != nil {
			ids = append(ids, k.(int64))
		}
		return true
	})
	return ids
}
