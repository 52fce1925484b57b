package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/kita83/nok/domain"
	"github.com/kita83/nok/domain/event"
	"github.com/kita83/nok/errors"
	"github.com/kita83/nok/mocks"
)

type dispatcherFixture struct {
	store      *mocks.MockStore
	registry   *Registry
	rooms      *RoomIndex
	presence   *Presence
	dispatcher *Dispatcher
}

func newDispatcherFixture(t *testing.T) *dispatcherFixture {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	registry := NewRegistry(slog.Default())
	rooms := NewRoomIndex()
	presence := NewPresence()
	return &dispatcherFixture{
		store:      store,
		registry:   registry,
		rooms:      rooms,
		presence:   presence,
		dispatcher: NewDispatcher(slog.Default(), store, registry, rooms, presence),
	}
}

func (f *dispatcherFixture) connect(userID string) *fakeConn {
	conn := &fakeConn{}
	f.registry.Register(userID, conn)
	return conn
}

func (f *dispatcherFixture) knownUser(id string) {
	f.store.EXPECT().
		GetUser(gomock.Any(), id).
		Return(domain.User{ID: id, Name: id}, nil).
		AnyTimes()
}

func (f *dispatcherFixture) knownRoom(id string) {
	f.store.EXPECT().
		GetRoom(gomock.Any(), id).
		Return(domain.Room{ID: id, Name: id, IsPublic: true}, nil).
		AnyTimes()
}

// expectCreateMessage stamps the record the way the store does, so the
// dispatcher can read back the commit timestamp.
func (f *dispatcherFixture) expectCreateMessage() {
	f.store.EXPECT().
		CreateMessage(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, m domain.Message) (domain.Message, error) {
			m.ID = uuid.New()
			m.CreatedAt = time.Now().UTC()
			return m, nil
		}).
		Times(1)
}

func TestDispatcher_RoomMessage_Reaches_Everyone_But_The_Sender(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newDispatcherFixture(t)

	// Given room lobby = {alice, bob, clara}, all live
	alice := f.connect("alice")
	bob := f.connect("bob")
	clara := f.connect("clara")
	for _, id := range []string{"alice", "bob", "clara"} {
		f.rooms.Join(id, "lobby")
	}
	f.knownUser("alice")
	f.knownRoom("lobby")
	f.expectCreateMessage()

	// When alice posts
	f.dispatcher.Dispatch(ctx, event.RoomMessage{SenderID: "alice", RoomID: "lobby", Content: "hi"})

	// Then exactly bob and clara receive the frame
	req.Empty(alice.Frames())
	for _, recipient := range []*fakeConn{bob, clara} {
		frames := recipient.Frames()
		req.Len(frames, 1)
		req.Equal(event.TypeMessage, frames[0].Type)
		req.Equal("alice", frames[0].SenderID)
		req.Equal("lobby", frames[0].RoomID)
		req.Equal("hi", frames[0].Content)
		req.NotEmpty(frames[0].MessageID)
		req.NotEmpty(frames[0].Timestamp)
	}
}

func TestDispatcher_RoomMessage_Unknown_Room_Aborts_Silently(t *testing.T) {
	req := require.New(t)
	f := newDispatcherFixture(t)
	bob := f.connect("bob")
	f.rooms.Join("bob", "lobby")
	f.knownUser("alice")
	f.store.EXPECT().
		GetRoom(gomock.Any(), "nowhere").
		Return(domain.Room{}, errors.ErrRoomNotFound).
		Times(1)

	// No CreateMessage expectation: validation failure must persist nothing
	f.dispatcher.Dispatch(context.Background(), event.RoomMessage{SenderID: "alice", RoomID: "nowhere", Content: "hi"})

	req.Empty(bob.Frames())
}

func TestDispatcher_Knock_Online_Target_Gets_Exactly_One_Frame(t *testing.T) {
	req := require.New(t)
	f := newDispatcherFixture(t)
	bob := f.connect("bob")
	f.knownUser("alice")
	f.knownUser("bob")
	f.expectCreateMessage()

	f.dispatcher.Dispatch(context.Background(), event.Knock{SenderID: "alice", TargetUserID: "bob"})

	frames := bob.Frames()
	req.Len(frames, 1)
	req.Equal(event.TypeKnock, frames[0].Type)
	req.Equal("alice", frames[0].SenderID)
	req.Equal("bob", frames[0].TargetUserID)
	req.Equal("alice knocked", frames[0].Content)
}

func TestDispatcher_Knock_Offline_Target_Still_Persisted(t *testing.T) {
	f := newDispatcherFixture(t)
	f.knownUser("alice")
	f.knownUser("bob")
	// The knock is committed even though bob is unreachable
	f.expectCreateMessage()

	f.dispatcher.Dispatch(context.Background(), event.Knock{SenderID: "alice", TargetUserID: "bob"})
}

func TestDispatcher_Knock_Unknown_Target_Aborts(t *testing.T) {
	f := newDispatcherFixture(t)
	f.knownUser("alice")
	f.store.EXPECT().
		GetUser(gomock.Any(), "ghost").
		Return(domain.User{}, errors.ErrUserNotFound).
		Times(1)

	// No persistence, no broadcast, no error frame
	f.dispatcher.Dispatch(context.Background(), event.Knock{SenderID: "alice", TargetUserID: "ghost"})
}

func TestDispatcher_StatusChange_Broadcasts_To_All_Others(t *testing.T) {
	req := require.New(t)
	f := newDispatcherFixture(t)
	alice := f.connect("alice")
	bob := f.connect("bob")
	clara := f.connect("clara")
	f.knownUser("alice")
	f.store.EXPECT().
		UpdateUserStatus(gomock.Any(), "alice", domain.StatusAway).
		Return(nil).
		Times(1)

	f.dispatcher.Dispatch(context.Background(), event.StatusChange{UserID: "alice", Status: "away"})

	req.Equal(domain.StatusAway, f.presence.Status("alice"))
	req.Empty(alice.Frames())
	for _, recipient := range []*fakeConn{bob, clara} {
		frames := recipient.Frames()
		req.Len(frames, 1)
		req.Equal(event.TypeUserStatus, frames[0].Type)
		req.Equal("alice", frames[0].UserID)
		req.Equal("away", frames[0].Status)
	}
}

func TestDispatcher_StatusChange_Survives_Persistence_Failure(t *testing.T) {
	req := require.New(t)
	f := newDispatcherFixture(t)
	bob := f.connect("bob")
	f.knownUser("alice")
	f.store.EXPECT().
		UpdateUserStatus(gomock.Any(), "alice", domain.StatusAway).
		Return(fmt.Errorf("disk on fire")).
		Times(1)

	f.dispatcher.Dispatch(context.Background(), event.StatusChange{UserID: "alice", Status: "away"})

	// The live state keeps the already-applied value and the broadcast
	// still goes out
	req.Equal(domain.StatusAway, f.presence.Status("alice"))
	req.Len(bob.Frames(), 1)
}

func TestDispatcher_StatusChange_Rejects_Unknown_Value(t *testing.T) {
	req := require.New(t)
	f := newDispatcherFixture(t)
	bob := f.connect("bob")
	req.NoError(f.presence.Set("alice", domain.StatusOnline))

	// No store expectations: the rejected value must touch nothing
	f.dispatcher.Dispatch(context.Background(), event.StatusChange{UserID: "alice", Status: "invisible"})

	req.Equal(domain.StatusOnline, f.presence.Status("alice"))
	req.Empty(bob.Frames())
}

func TestDispatcher_RoomJoin_Twice_Yields_One_Membership(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newDispatcherFixture(t)
	alice := f.connect("alice")
	bob := f.connect("bob")
	f.rooms.Join("bob", "lobby")
	f.knownUser("alice")
	f.knownRoom("lobby")
	gomock.InOrder(
		f.store.EXPECT().AddRoomMember(gomock.Any(), "lobby", "alice").Return(nil),
		f.store.EXPECT().AddRoomMember(gomock.Any(), "lobby", "alice").Return(errors.ErrAlreadyMember),
	)

	// When alice joins twice
	f.dispatcher.Dispatch(ctx, event.RoomJoin{UserID: "alice", RoomID: "lobby"})
	f.dispatcher.Dispatch(ctx, event.RoomJoin{UserID: "alice", RoomID: "lobby"})

	// Then the member set is the size of one call and the joiner never
	// hears about itself
	req.Len(f.rooms.MembersOf("lobby"), 2)
	req.Empty(alice.Frames())
	for _, frame := range bob.Frames() {
		req.Equal(event.TypeRoomJoin, frame.Type)
		req.Equal("alice", frame.UserID)
		req.Equal("lobby", frame.RoomID)
	}
}

func TestDispatcher_RoomLeave_Excludes_The_Leaver_Implicitly(t *testing.T) {
	req := require.New(t)
	f := newDispatcherFixture(t)
	alice := f.connect("alice")
	bob := f.connect("bob")
	f.rooms.Join("alice", "lobby")
	f.rooms.Join("bob", "lobby")
	f.knownUser("alice")
	f.knownRoom("lobby")
	f.store.EXPECT().RemoveRoomMember(gomock.Any(), "lobby", "alice").Return(nil).Times(1)

	f.dispatcher.Dispatch(context.Background(), event.RoomLeave{UserID: "alice", RoomID: "lobby"})

	// The index was updated before the broadcast set was computed
	req.Equal([]string{"bob"}, f.rooms.MembersOf("lobby"))
	req.Empty(alice.Frames())
	frames := bob.Frames()
	req.Len(frames, 1)
	req.Equal(event.TypeRoomLeave, frames[0].Type)
	req.Equal("alice", frames[0].UserID)
}

func TestDispatcher_RoomMessage_To_Empty_Room_Sends_Nothing(t *testing.T) {
	f := newDispatcherFixture(t)
	f.knownUser("alice")
	f.knownRoom("lobby")
	// Commit still happens; the fan-out simply has zero recipients
	f.expectCreateMessage()

	f.dispatcher.Dispatch(context.Background(), event.RoomMessage{SenderID: "alice", RoomID: "lobby", Content: "echo"})
}

func TestDispatcher_Connect_Marks_Online_And_Notifies_Others(t *testing.T) {
	req := require.New(t)
	f := newDispatcherFixture(t)
	bob := f.connect("bob")
	f.knownUser("alice")
	f.store.EXPECT().UpdateUserStatus(gomock.Any(), "alice", domain.StatusOnline).Return(nil).Times(1)

	f.dispatcher.Connect(context.Background(), "alice", &fakeConn{})

	req.True(f.registry.IsOnline("alice"))
	req.Equal(domain.StatusOnline, f.presence.Status("alice"))
	frames := bob.Frames()
	req.Len(frames, 1)
	req.Equal(event.TypeUserStatus, frames[0].Type)
	req.Equal("online", frames[0].Status)
}

func TestDispatcher_Disconnect_Runs_The_Full_Cleanup_Cascade(t *testing.T) {
	req := require.New(t)
	f := newDispatcherFixture(t)
	aliceConn := f.connect("alice")
	bob := f.connect("bob")
	f.rooms.Join("alice", "lobby")
	f.rooms.Join("bob", "lobby")
	req.NoError(f.presence.Set("alice", domain.StatusOnline))
	f.knownUser("alice")
	f.store.EXPECT().UpdateUserStatus(gomock.Any(), "alice", domain.StatusOffline).Return(nil).Times(1)

	f.dispatcher.Disconnect(context.Background(), "alice", aliceConn)

	req.False(f.registry.IsOnline("alice"))
	req.Equal(domain.StatusOffline, f.presence.Status("alice"))
	req.Equal([]string{"bob"}, f.rooms.MembersOf("lobby"))
	frames := bob.Frames()
	req.Len(frames, 1)
	req.Equal("offline", frames[0].Status)
}

func TestDispatcher_Superseded_Disconnect_Skips_The_Cascade(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newDispatcherFixture(t)
	bob := f.connect("bob")
	f.rooms.Join("alice", "lobby")
	req.NoError(f.presence.Set("alice", domain.StatusOnline))

	// Given alice reconnected: her old transport got evicted and a new
	// session took its place
	oldConn := f.connect("alice")
	newConn := f.connect("alice")
	req.True(oldConn.Closed())

	// When the evicted socket's read loop runs its cleanup
	// (no store expectations: the stale cleanup must touch nothing)
	f.dispatcher.Disconnect(ctx, "alice", oldConn)

	// Then the new session, her memberships, and her presence survive,
	// and nobody heard a spurious offline transition
	req.True(f.registry.IsOnline("alice"))
	req.Equal([]string{"alice"}, f.rooms.MembersOf("lobby"))
	req.Equal(domain.StatusOnline, f.presence.Status("alice"))
	req.Empty(bob.Frames())
	f.registry.Send("alice", event.Outbound{Type: event.TypeMessage})
	req.Len(newConn.Frames(), 1)
}

func TestDispatcher_HandleFrame_Ignores_Unknown_Type(t *testing.T) {
	f := newDispatcherFixture(t)
	bob := f.connect("bob")

	// No store expectations: an unknown tag must be a silent no-op
	f.dispatcher.HandleFrame(context.Background(), "alice", []byte(`{"type":"dance"}`))

	require.Empty(t, bob.Frames())
}

func TestDispatcher_HandleFrame_Ignores_Malformed_JSON(t *testing.T) {
	f := newDispatcherFixture(t)
	f.dispatcher.HandleFrame(context.Background(), "alice", []byte(`{"type":`))
}

func TestDispatcher_HandleFrame_Routes_To_The_Right_Handler(t *testing.T) {
	req := require.New(t)
	f := newDispatcherFixture(t)
	bob := f.connect("bob")
	f.knownUser("alice")
	f.knownUser("bob")
	f.expectCreateMessage()

	f.dispatcher.HandleFrame(context.Background(), "alice",
		[]byte(`{"type":"knock","target_user_id":"bob"}`))

	frames := bob.Frames()
	req.Len(frames, 1)
	req.Equal(event.TypeKnock, frames[0].Type)
}
