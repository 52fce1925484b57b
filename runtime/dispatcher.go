package runtime

import (
	"context"
	"encoding/json"
	goerrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kita83/nok/contract"
	"github.com/kita83/nok/domain"
	"github.com/kita83/nok/domain/event"
	"github.com/kita83/nok/errors"
)

// Dispatcher turns domain events into durable records plus
// correctly-targeted live notifications. Every handler follows the
// same shape: validate referenced entities against the store, commit,
// build the outbound frame, fan out. The commit always completes
// before the first socket write, so a client that queries history
// right after a push observes the event.
type Dispatcher struct {
	log      *slog.Logger
	store    contract.Store
	registry *Registry
	rooms    *RoomIndex
	presence *Presence
}

func NewDispatcher(log *slog.Logger, store contract.Store, registry *Registry,
	rooms *RoomIndex, presence *Presence) *Dispatcher {
	return &Dispatcher{
		log:      log,
		store:    store,
		registry: registry,
		rooms:    rooms,
		presence: presence,
	}
}

// HandleFrame decodes one raw client frame and dispatches it. A frame
// with an unrecognized type is silently ignored; no error frame ever
// goes back to the client.
func (d *Dispatcher) HandleFrame(ctx context.Context, senderID string, raw []byte) {
	var in event.Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		d.log.Warn("Malformed frame", "user_id", senderID, "error", err)
		return
	}
	evt, ok := in.Event(senderID)
	if !ok {
		d.log.Debug("Ignoring unknown frame type", "user_id", senderID, "type", in.Type)
		return
	}
	d.Dispatch(ctx, evt)
}

func (d *Dispatcher) Dispatch(ctx context.Context, evt event.DomainEvent) {
	switch e := evt.(type) {
	case event.Knock:
		d.dispatchKnock(ctx, e)
	case event.RoomMessage:
		d.dispatchRoomMessage(ctx, e)
	case event.StatusChange:
		d.dispatchStatusChange(ctx, e)
	case event.RoomJoin:
		d.dispatchRoomJoin(ctx, e)
	case event.RoomLeave:
		d.dispatchRoomLeave(ctx, e)
	default:
		d.log.Debug("Ignoring unhandled event", "kind", evt.Kind())
	}
}

// Connect accepts a freshly established transport: the user becomes
// reachable, is marked online, and everyone else is told.
func (d *Dispatcher) Connect(ctx context.Context, userID string, conn contract.Conn) {
	d.registry.Register(userID, conn)
	d.log.Info("User connected", "user_id", userID)
	d.dispatchStatusChange(ctx, event.StatusChange{
		UserID: userID,
		Status: string(domain.StatusOnline),
	})
}

// Disconnect runs the full cleanup cascade: registry removal,
// membership purge, offline transition, status broadcast. The cascade
// only runs when conn is still the user's registered transport: the
// read loop of an evicted socket ends up here too, and its cleanup
// must not dismantle the session that replaced it. Failures during
// the broadcast are logged inside the handler, never raised, so the
// per-connection loop can always terminate.
func (d *Dispatcher) Disconnect(ctx context.Context, userID string, conn contract.Conn) {
	if !d.registry.Remove(userID, conn) {
		d.log.Debug("Skipping cleanup for superseded connection", "user_id", userID)
		return
	}
	d.rooms.OnDisconnect(userID)
	d.log.Info("User disconnected", "user_id", userID)
	d.dispatchStatusChange(ctx, event.StatusChange{
		UserID: userID,
		Status: string(domain.StatusOffline),
	})
}

// dispatchKnock persists the knock as a message record and delivers it
// to the target's connection only. An offline target is not an error;
// the knock is durable either way.
func (d *Dispatcher) dispatchKnock(ctx context.Context, e event.Knock) {
	sender, err := d.store.GetUser(ctx, e.SenderID)
	if err != nil {
		d.log.Error("Knock sender not resolved", "sender_id", e.SenderID, "error", err)
		return
	}
	target, err := d.store.GetUser(ctx, e.TargetUserID)
	if err != nil {
		d.log.Error("Knock target not resolved", "target_user_id", e.TargetUserID, "error", err)
		return
	}

	record, err := d.store.CreateMessage(ctx, domain.Message{
		Type:         domain.MessageKnock,
		SenderID:     sender.ID,
		TargetUserID: target.ID,
		Content:      fmt.Sprintf("%s knocked", sender.Name),
	})
	if err != nil {
		d.log.Error("Knock not persisted", "sender_id", sender.ID, "error", err)
		return
	}

	d.registry.Send(target.ID, event.Outbound{
		Type:         event.TypeKnock,
		MessageID:    record.ID.String(),
		SenderID:     sender.ID,
		SenderName:   sender.Name,
		TargetUserID: target.ID,
		Content:      record.Content,
		Timestamp:    event.Timestamp(record.CreatedAt),
	})
	d.log.Info("Knock delivered", "sender_id", sender.ID, "target_user_id", target.ID)
}

// dispatchRoomMessage persists the message and broadcasts it to the
// room's current live members, excluding the sender.
func (d *Dispatcher) dispatchRoomMessage(ctx context.Context, e event.RoomMessage) {
	sender, err := d.store.GetUser(ctx, e.SenderID)
	if err != nil {
		d.log.Error("Message sender not resolved", "sender_id", e.SenderID, "error", err)
		return
	}
	room, err := d.store.GetRoom(ctx, e.RoomID)
	if err != nil {
		d.log.Error("Message room not resolved", "room_id", e.RoomID, "error", err)
		return
	}

	record, err := d.store.CreateMessage(ctx, domain.Message{
		Type:     domain.MessageText,
		SenderID: sender.ID,
		RoomID:   room.ID,
		Content:  e.Content,
	})
	if err != nil {
		d.log.Error("Message not persisted", "sender_id", sender.ID, "room_id", room.ID, "error", err)
		return
	}

	d.fanout(d.rooms.MembersOf(room.ID), sender.ID, event.Outbound{
		Type:       event.TypeMessage,
		MessageID:  record.ID.String(),
		SenderID:   sender.ID,
		SenderName: sender.Name,
		RoomID:     room.ID,
		RoomName:   room.Name,
		Content:    record.Content,
		Timestamp:  event.Timestamp(record.CreatedAt),
	})
}

// dispatchStatusChange applies the live transition first, so the
// presence view reflects the change immediately even under persistence
// latency. The store write is best-effort: a failure is logged, the
// already-applied state stays, and the broadcast still goes out.
func (d *Dispatcher) dispatchStatusChange(ctx context.Context, e event.StatusChange) {
	status := domain.Status(e.Status)
	if err := d.presence.Set(e.UserID, status); err != nil {
		d.log.Warn("Rejected status value", "user_id", e.UserID, "status", e.Status)
		return
	}

	user, err := d.store.GetUser(ctx, e.UserID)
	if err != nil {
		d.log.Error("Status user not resolved", "user_id", e.UserID, "error", err)
		return
	}

	if err := d.store.UpdateUserStatus(ctx, user.ID, status); err != nil {
		d.log.Error("Status not persisted, keeping live state",
			"user_id", user.ID, "status", status, "error", err)
	}

	d.fanout(d.registry.ListOnline(), user.ID, event.Outbound{
		Type:      event.TypeUserStatus,
		UserID:    user.ID,
		UserName:  user.Name,
		Status:    string(status),
		Timestamp: event.Timestamp(time.Now()),
	})
}

// dispatchRoomJoin persists the membership link unless it already
// exists, updates the ephemeral index, and notifies the room's other
// live members.
func (d *Dispatcher) dispatchRoomJoin(ctx context.Context, e event.RoomJoin) {
	user, err := d.store.GetUser(ctx, e.UserID)
	if err != nil {
		d.log.Error("Join user not resolved", "user_id", e.UserID, "error", err)
		return
	}
	room, err := d.store.GetRoom(ctx, e.RoomID)
	if err != nil {
		d.log.Error("Join room not resolved", "room_id", e.RoomID, "error", err)
		return
	}

	if err := d.store.AddRoomMember(ctx, room.ID, user.ID); err != nil &&
		!goerrors.Is(err, errors.ErrAlreadyMember) {
		d.log.Error("Membership not persisted", "user_id", user.ID, "room_id", room.ID, "error", err)
		return
	}

	d.rooms.Join(user.ID, room.ID)

	d.fanout(d.rooms.MembersOf(room.ID), user.ID, event.Outbound{
		Type:      event.TypeRoomJoin,
		UserID:    user.ID,
		UserName:  user.Name,
		RoomID:    room.ID,
		RoomName:  room.Name,
		Timestamp: event.Timestamp(time.Now()),
	})
	d.log.Info("User joined room", "user_id", user.ID, "room_id", room.ID)
}

// dispatchRoomLeave removes the user from the ephemeral index before
// computing the broadcast set, so the leaving user is implicitly
// excluded and no exclusion list is needed.
func (d *Dispatcher) dispatchRoomLeave(ctx context.Context, e event.RoomLeave) {
	user, err := d.store.GetUser(ctx, e.UserID)
	if err != nil {
		d.log.Error("Leave user not resolved", "user_id", e.UserID, "error", err)
		return
	}
	room, err := d.store.GetRoom(ctx, e.RoomID)
	if err != nil {
		d.log.Error("Leave room not resolved", "room_id", e.RoomID, "error", err)
		return
	}

	if err := d.store.RemoveRoomMember(ctx, room.ID, user.ID); err != nil &&
		!goerrors.Is(err, errors.ErrNotMember) {
		d.log.Error("Membership removal not persisted", "user_id", user.ID, "room_id", room.ID, "error", err)
		return
	}

	d.rooms.Leave(user.ID, room.ID)

	frame := event.Outbound{
		Type:      event.TypeRoomLeave,
		UserID:    user.ID,
		UserName:  user.Name,
		RoomID:    room.ID,
		RoomName:  room.Name,
		Timestamp: event.Timestamp(time.Now()),
	}
	for _, memberID := range d.rooms.MembersOf(room.ID) {
		d.registry.Send(memberID, frame)
	}
	d.log.Info("User left room", "user_id", user.ID, "room_id", room.ID)
}

// fanout delivers one frame per live recipient, excluding one user.
// Each send is independent; the registry evicts dead connections
// without aborting the rest.
func (d *Dispatcher) fanout(targets []string, exclude string, frame event.Outbound) {
	for _, userID := range targets {
		if userID == exclude {
			continue
		}
		d.registry.Send(userID, frame)
	}
}
