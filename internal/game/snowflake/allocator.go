package snowflake

import (
	"sync"

	"github.com/cory-johannsen/smuggle/internal/game/gameerr"
)

// Allocator hands out distinct entity ids in [0, MaxEntityID] so that live
// generators never share one. All methods are safe for concurrent use.
type Allocator struct {
	mu     sync.Mutex
	inUse  map[int64]bool
	cursor int64
}

// NewAllocator creates an Allocator with reserved ids already marked in use.
//
// Precondition: every reserved id is in [0, MaxEntityID].
func NewAllocator(reserved ...int64) *Allocator {
	a := &Allocator{inUse: make(map[int64]bool)}
	for _, id := range reserved {
		a.inUse[id&MaxEntityID] = true
	}
	return a
}

// Acquire returns an unused entity id.
//
// Postcondition: The id is marked in use until Release, or an error wrapping
// gameerr.ErrState is returned when every id is taken.
func (a *Allocator) Acquire() (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := 0; i <= MaxEntityID; i++ {
		id := (a.cursor + int64(i)) & MaxEntityID
		if !a.inUse[id] {
			a.inUse[id] = true
			a.cursor = (id + 1) & MaxEntityID
			return id, nil
		}
	}
	return 0, gameerr.Statef("all %d entity ids are in use", MaxEntityID+1)
}

// Release returns id to the pool. Releasing an unused id is a no-op.
func (a *Allocator) Release(id int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.inUse, id)
}

// InUse returns the number of ids currently held.
func (a *Allocator) InUse() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.inUse)
}
