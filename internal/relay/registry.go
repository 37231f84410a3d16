package relay

import (
	"context"
	"sort"
	"sync"
)

// Conn is the send capability for one connected identity. Send must honour the
// context deadline; an error means the peer is unreachable. Implementations
// must be comparable, in practice a pointer type.
type Conn interface {
	Send(ctx context.Context, payload []byte) error
}

// Member is one entry of a room snapshot.
type Member struct {
	Identity string
	Conn     Conn
}

// Stats is a point-in-time readout of the registry. Slices are sorted.
type Stats struct {
	Connections int
	Rooms       []string
	Users       []string
}

// Registry tracks identity → connection and identity → room. Both maps, plus
// the room → identities index derived from them, only change together under mu.
type Registry struct {
	mu      sync.RWMutex
	conns   map[string]Conn                // identity -> handle
	rooms   map[string]string              // identity -> roomID
	members map[string]map[string]struct{} // roomID -> identities
}

func NewRegistry() *Registry {
	return &Registry{
		conns:   make(map[string]Conn),
		rooms:   make(map[string]string),
		members: make(map[string]map[string]struct{}),
	}
}

// Register inserts or replaces identity's handle and room. A previous handle
// for the same identity is dropped without being closed.
func (r *Registry) Register(identity string, conn Conn, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeLocked(identity)
	r.conns[identity] = conn
	r.rooms[identity] = roomID
	set := r.members[roomID]
	if set == nil {
		set = make(map[string]struct{})
		r.members[roomID] = set
	}
	set[identity] = struct{}{}
}

// Unregister removes identity. Absent identities are a no-op.
func (r *Registry) Unregister(identity string) {
	r.mu.Lock()
	r.removeLocked(identity)
	r.mu.Unlock()
}

// Release removes identity only while conn is still its registered handle.
// removed reports whether the entry went away; when identity is registered
// under a newer handle instead, currentRoom names that registration's room.
func (r *Registry) Release(identity string, conn Conn) (removed bool, currentRoom string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.conns[identity]
	if !ok {
		return false, ""
	}
	if current != conn {
		return false, r.rooms[identity]
	}
	r.removeLocked(identity)
	return true, ""
}

func (r *Registry) removeLocked(identity string) {
	roomID, ok := r.rooms[identity]
	if !ok {
		return
	}
	delete(r.conns, identity)
	delete(r.rooms, identity)
	if set := r.members[roomID]; set != nil {
		delete(set, identity)
		if len(set) == 0 {
			delete(r.members, roomID)
		}
	}
}

// Snapshot copies the members of roomID, minus exclude. The copy is safe to
// iterate while doing I/O. An empty exclude excludes nobody.
func (r *Registry) Snapshot(roomID, exclude string) []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.members[roomID]
	out := make([]Member, 0, len(set))
	for identity := range set {
		if identity == exclude {
			continue
		}
		out = append(out, Member{Identity: identity, Conn: r.conns[identity]})
	}
	return out
}

// RoomOf returns the room identity is mapped to.
func (r *Registry) RoomOf(identity string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	roomID, ok := r.rooms[identity]
	return roomID, ok
}

func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st := Stats{
		Connections: len(r.conns),
		Rooms:       make([]string, 0, len(r.members)),
		Users:       make([]string, 0, len(r.conns)),
	}
	for roomID := range r.members {
		st.Rooms = append(st.Rooms, roomID)
	}
	for identity := range r.conns {
		st.Users = append(st.Users, identity)
	}
	sort.Strings(st.Rooms)
	sort.Strings(st.Users)
	return st
}
