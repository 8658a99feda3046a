package core

import "sync"

// identityEntry is the transient per-identity record: its live connections
// and the rooms those connections are subscribed to. Rebuilt from the
// durable store on each authentication, never persisted.
type identityEntry struct {
	clients map[*Client]struct{}
	rooms   map[int64]struct{}
}

// Registry tracks which identity is attached to which live connections and
// which rooms each identity has joined. It is the single source of truth for
// "who is online" and for room fan-out target sets.
//
// A single RWMutex guards all maps: admit/dismiss for one identity can never
// interleave with a fan-out read to produce a torn view.
type Registry struct {
	mu         sync.RWMutex
	identities map[int64]*identityEntry
	owners     map[*Client]int64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		identities: make(map[int64]*identityEntry),
		owners:     make(map[*Client]int64),
	}
}

// Admit records the connection under the identity. The return value is true
// when the identity had no prior connection, i.e. this is the "came online"
// transition. Repeated admits of the same connection are idempotent.
// A connection already owned by another identity is detached from it first,
// so an owners lookup never disagrees with the identity entries.
func (r *Registry) Admit(userID int64, c *Client) (cameOnline bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.owners[c]; ok {
		if prev == userID {
			return false
		}
		if entry, ok := r.identities[prev]; ok {
			delete(entry.clients, c)
			if len(entry.clients) == 0 {
				delete(r.identities, prev)
			}
		}
	}

	entry, ok := r.identities[userID]
	if !ok {
		entry = &identityEntry{
			clients: make(map[*Client]struct{}),
			rooms:   make(map[int64]struct{}),
		}
		r.identities[userID] = entry
		cameOnline = true
	}
	entry.clients[c] = struct{}{}
	r.owners[c] = userID
	return cameOnline
}

// JoinRoom adds the room to the identity's joined-room set. This is pure
// subscription bookkeeping for fan-out; the durable participant list is
// untouched.
func (r *Registry) JoinRoom(userID, roomID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.identities[userID]; ok {
		entry.rooms[roomID] = struct{}{}
	}
}

// LeaveRoom removes the room from the identity's joined-room set.
func (r *Registry) LeaveRoom(userID, roomID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.identities[userID]; ok {
		delete(entry.rooms, roomID)
	}
}

// Dismiss removes the connection. When it was the identity's last connection
// the identity entry is dropped and wentOffline is true. Dismissing an
// unknown connection is a no-op, not an error: connections may already have
// been cleaned up.
func (r *Registry) Dismiss(c *Client) (userID int64, wentOffline bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.owners[c]
	if !ok {
		return 0, false
	}
	delete(r.owners, c)

	entry, ok := r.identities[userID]
	if !ok {
		return userID, false
	}
	delete(entry.clients, c)
	if len(entry.clients) == 0 {
		delete(r.identities, userID)
		return userID, true
	}
	return userID, false
}

// FanoutTargets returns every live connection whose identity has joined the
// room, across all identities.
func (r *Registry) FanoutTargets(roomID int64) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var targets []*Client
	for _, entry := range r.identities {
		if _, ok := entry.rooms[roomID]; !ok {
			continue
		}
		for c := range entry.clients {
			targets = append(targets, c)
		}
	}
	return targets
}

// ConnectionsFor returns the identity's live connections, used for
// identity-scoped delivery such as notifying a user's other devices.
func (r *Registry) ConnectionsFor(userID int64) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.identities[userID]
	if !ok {
		return nil
	}
	clients := make([]*Client, 0, len(entry.clients))
	for c := range entry.clients {
		clients = append(clients, c)
	}
	return clients
}

// Online reports whether the identity has at least one live connection.
func (r *Registry) Online(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.identities[userID]
	return ok
}

// JoinedRooms returns a snapshot of the identity's joined-room set.
func (r *Registry) JoinedRooms(userID int64) []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.identities[userID]
	if !ok {
		return nil
	}
	rooms := make([]int64, 0, len(entry.rooms))
	for id := range entry.rooms {
		rooms = append(rooms, id)
	}
	return rooms
}
