package runtime

import "sync"

type set map[string]struct{}

// RoomIndex is the ephemeral room roster, rebuilt purely from
// join/leave/disconnect events during the process lifetime. It is
// independent of the persisted membership table: it only ever contains
// currently-connected users.
type RoomIndex struct {
	mu      sync.RWMutex
	members map[string]set // room id -> user ids
}

func NewRoomIndex() *RoomIndex {
	return &RoomIndex{members: make(map[string]set)}
}

// Join is idempotent: repeating it produces no duplicate bookkeeping.
func (i *RoomIndex) Join(userID, roomID string) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if _, ok := i.members[roomID]; !ok {
		i.members[roomID] = make(set)
	}
	i.members[roomID][userID] = struct{}{}
}

// Leave is idempotent. The room entry is removed once its member set
// is empty, so abandoned rooms cost no memory.
func (i *RoomIndex) Leave(userID, roomID string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.remove(userID, roomID)
}

// OnDisconnect purges the user from every room it belongs to,
// preserving the invariant that the index only holds connected users.
func (i *RoomIndex) OnDisconnect(userID string) {
	i.mu.Lock()
	defer i.mu.Unlock()

	for roomID := range i.members {
		i.remove(userID, roomID)
	}
}

// remove assumes i.mu is held.
func (i *RoomIndex) remove(userID, roomID string) {
	members, ok := i.members[roomID]
	if !ok {
		return
	}
	delete(members, userID)
	if len(members) == 0 {
		delete(i.members, roomID)
	}
}

// MembersOf returns a snapshot copy so that fan-out iteration is never
// invalidated by a concurrent join or leave. Nil for an unknown room.
func (i *RoomIndex) MembersOf(roomID string) []string {
	i.mu.RLock()
	defer i.mu.RUnlock()

	members, ok := i.members[roomID]
	if !ok {
		return nil
	}
	snapshot := make([]string, 0, len(members))
	for userID := range members {
		snapshot = append(snapshot, userID)
	}
	return snapshot
}
