package room

import (
	"context"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/cory-johannsen/smuggle/internal/game/gameerr"
	"github.com/cory-johannsen/smuggle/internal/game/snowflake"
)

// MaxNameLength is the longest room name accepted, in runes.
const MaxNameLength = 32

// NormalizeName trims name and checks its length.
//
// Postcondition: Returns the trimmed name, or an error wrapping gameerr.ErrArgument
// when it is blank or longer than MaxNameLength runes.
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", gameerr.Argumentf("room name must not be blank")
	}
	if n := utf8.RuneCountInString(name); n > MaxNameLength {
		return "", gameerr.Argumentf("room name is %d characters, limit is %d", n, MaxNameLength)
	}
	return name, nil
}

// Manager owns the set of live rooms.
type Manager struct {
	mu        sync.RWMutex
	rooms     map[uint64]*Room
	names     map[string]uint64
	allocator *snowflake.Allocator
	nodeID    int64
	generator *snowflake.Generator
	settings  Settings
	deps      Deps
	logger    *zap.Logger
}

// NewManager creates an empty Manager whose own generator uses nodeID.
//
// Precondition: 0 <= nodeID <= snowflake.MaxEntityID; deps fields must be non-nil.
// Postcondition: nodeID is never handed to a room.
func NewManager(nodeID int64, settings Settings, deps Deps) (*Manager, error) {
	gen, err := deps.Factory(nodeID)
	if err != nil {
		return nil, err
	}
	return &Manager{
		rooms:     make(map[uint64]*Room),
		names:     make(map[string]uint64),
		allocator: snowflake.NewAllocator(nodeID),
		nodeID:    nodeID,
		generator: gen,
		settings:  settings,
		deps:      deps,
		logger:    deps.Logger,
	}, nil
}

// Create validates name, mints a room id, and starts the room.
//
// Postcondition: On success the room is listed and ROOM_CREATED was published.
// Fails with an argument error for an invalid or taken name and a state error when
// every generator entity id is in use.
func (m *Manager) Create(name string, seeded bool) (*Room, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.names[name]; taken {
		return nil, gameerr.Argumentf("room name %q is taken", name)
	}
	id, err := m.nextID()
	if err != nil {
		return nil, err
	}
	entityID, err := m.allocator.Acquire()
	if err != nil {
		return nil, err
	}
	r, err := newRoom(id, name, seeded, entityID, m.settings, m.deps)
	if err != nil {
		m.allocator.Release(entityID)
		return nil, err
	}
	m.rooms[id] = r
	m.names[name] = id
	m.deps.Publisher.RoomCreated(id)
	m.logger.Info("room created",
		zap.Uint64("room_id", id),
		zap.String("room", name),
		zap.Int64("entity_id", entityID),
		zap.Bool("seeded", seeded),
	)
	return r, nil
}

// nextID mints a room id, replacing a failed manager generator.
//
// Precondition: m.mu is held.
func (m *Manager) nextID() (uint64, error) {
	id, err := m.generator.NextID()
	if err == nil {
		return id, nil
	}
	m.logger.Error("room id generator failed, replacing it", zap.Error(err))
	gen, ferr := m.deps.Factory(m.nodeID)
	if ferr != nil {
		return 0, ferr
	}
	m.generator = gen
	return 0, err
}

// CreateSeeds creates one seeded room per seed.
func (m *Manager) CreateSeeds(seeds []Seed) error {
	for _, s := range seeds {
		if _, err := m.Create(s.Name, true); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the room with id.
func (m *Manager) Get(id uint64) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[id]
	return r, ok
}

// Remove stops the room and releases its generator entity id.
//
// Postcondition: ROOM_REMOVED is published; unknown ids fail with an argument error.
func (m *Manager) Remove(id uint64) error {
	m.mu.Lock()
	r, ok := m.rooms[id]
	if ok {
		delete(m.rooms, id)
		delete(m.names, r.Name())
	}
	m.mu.Unlock()

	if !ok {
		return gameerr.Argumentf("room %d does not exist", id)
	}
	r.Stop()
	<-r.Done()
	m.allocator.Release(r.EntityID())
	m.deps.Publisher.RoomRemoved(id)
	m.logger.Info("room removed", zap.Uint64("room_id", id), zap.String("room", r.Name()))
	return nil
}

// Leave removes playerID from the room, removing the room as well when it is
// empty and not seeded. The room decides emptiness on its own goroutine and
// refuses joins from then on, so nobody is seated in a room being removed.
func (m *Manager) Leave(ctx context.Context, roomID uint64, playerID int64) error {
	r, ok := m.Get(roomID)
	if !ok {
		return gameerr.Argumentf("room %d does not exist", roomID)
	}
	remaining, err := r.Leave(ctx, playerID)
	if err != nil {
		return err
	}
	if remaining == 0 && !r.Seeded() {
		if err := m.Remove(roomID); err != nil {
			m.logger.Debug("auto-removing room", zap.Uint64("room_id", roomID), zap.Error(err))
		}
	}
	return nil
}

// List returns a snapshot of every room ordered by id.
func (m *Manager) List(ctx context.Context) []Info {
	m.mu.RLock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.RUnlock()

	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID() < rooms[j].ID() })
	out := make([]Info, 0, len(rooms))
	for _, r := range rooms {
		info, err := r.Snapshot(ctx)
		if err != nil {
			continue
		}
		out = append(out, info)
	}
	return out
}

// Count returns the number of live rooms.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

// Close stops every room.
func (m *Manager) Close() {
	m.mu.Lock()
	rooms := m.rooms
	m.rooms = make(map[uint64]*Room)
	m.names = make(map[string]uint64)
	m.mu.Unlock()

	for id, r := range rooms {
		r.Stop()
		<-r.Done()
		m.allocator.Release(r.EntityID())
		m.deps.Publisher.RoomRemoved(id)
	}
}
