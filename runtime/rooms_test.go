package runtime

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoomIndex_Join_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	index := NewRoomIndex()

	// When the same user joins twice
	index.Join("alice", "lobby")
	index.Join("alice", "lobby")

	// Then the member set is the same as after one call
	req.Equal([]string{"alice"}, index.MembersOf("lobby"))
}

func TestRoomIndex_Leave_Is_Idempotent_And_Cleans_Empty_Rooms(t *testing.T) {
	req := require.New(t)
	index := NewRoomIndex()
	index.Join("alice", "lobby")

	index.Leave("alice", "lobby")
	// Leaving again, or leaving a room never joined, changes nothing
	index.Leave("alice", "lobby")
	index.Leave("alice", "unknown")

	req.Nil(index.MembersOf("lobby"))
	// The empty room entry must not linger
	req.Empty(index.members)
}

func TestRoomIndex_OnDisconnect_Purges_Every_Room(t *testing.T) {
	req := require.New(t)
	index := NewRoomIndex()
	index.Join("alice", "lobby")
	index.Join("alice", "dev")
	index.Join("bob", "dev")

	// When alice disconnects
	index.OnDisconnect("alice")

	// Then she is absent from every member set
	req.Nil(index.MembersOf("lobby"))
	req.Equal([]string{"bob"}, index.MembersOf("dev"))
}

func TestRoomIndex_MembersOf_Returns_A_Snapshot(t *testing.T) {
	req := require.New(t)
	index := NewRoomIndex()
	index.Join("alice", "lobby")
	index.Join("bob", "lobby")

	snapshot := index.MembersOf("lobby")
	index.Leave("bob", "lobby")

	// The earlier snapshot is unaffected by the leave
	req.Len(snapshot, 2)
	req.Equal([]string{"alice"}, index.MembersOf("lobby"))
}

func TestRoomIndex_MembersOf_Unknown_Room(t *testing.T) {
	require.Nil(t, NewRoomIndex().MembersOf("nowhere"))
}

func TestRoomIndex_Concurrent_Mutations_Leave_No_Ghost_Entries(t *testing.T) {
	req := require.New(t)
	index := NewRoomIndex()
	users := []string{"alice", "bob", "clara"}
	rooms := []string{"lobby", "dev"}

	var wg sync.WaitGroup
	for _, userID := range users {
		for _, roomID := range rooms {
			wg.Add(1)
			go func(userID, roomID string) {
				defer wg.Done()
				for range 100 {
					index.Join(userID, roomID)
					_ = index.MembersOf(roomID)
					index.Leave(userID, roomID)
				}
			}(userID, roomID)
		}
	}
	wg.Wait()

	// Every join was matched by a leave: the empty-set cleanup must
	// have removed every room entry
	req.Empty(index.members)

	// And a disconnect racing nothing is a clean no-op
	for _, userID := range users {
		index.OnDisconnect(userID)
	}
	req.Empty(index.members)
}
