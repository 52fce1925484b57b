package event

import "time"

// Inbound frame types accepted from clients.
const (
	TypeKnock      = "knock"
	TypeMessage    = "message"
	TypeJoinRoom   = "join_room"
	TypeLeaveRoom  = "leave_room"
	TypeUserStatus = "user_status"
)

// Outbound frame types pushed to clients.
const (
	TypeRoomJoin  = "room_join"
	TypeRoomLeave = "room_leave"
)

// Inbound is one JSON object per client message. The sender identity
// is never taken from the frame; it comes from the connection.
type Inbound struct {
	Type         string `json:"type"`
	TargetUserID string `json:"target_user_id,omitempty"`
	RoomID       string `json:"room_id,omitempty"`
	Content      string `json:"content,omitempty"`
	Status       string `json:"status,omitempty"`
}

// Event maps the frame onto the domain event it requests. The second
// return value is false for an unrecognized type, which callers must
// silently ignore (no error frame goes back to the client).
func (in Inbound) Event(senderID string) (DomainEvent, bool) {
	switch in.Type {
	case TypeKnock:
		return Knock{SenderID: senderID, TargetUserID: in.TargetUserID}, true
	case TypeMessage:
		return RoomMessage{SenderID: senderID, RoomID: in.RoomID, Content: in.Content}, true
	case TypeJoinRoom:
		return RoomJoin{UserID: senderID, RoomID: in.RoomID}, true
	case TypeLeaveRoom:
		return RoomLeave{UserID: senderID, RoomID: in.RoomID}, true
	case TypeUserStatus:
		return StatusChange{UserID: senderID, Status: in.Status}, true
	default:
		return nil, false
	}
}

// Outbound is the frame pushed to live connections.
type Outbound struct {
	Type         string `json:"type"`
	MessageID    string `json:"message_id,omitempty"`
	SenderID     string `json:"sender_id,omitempty"`
	SenderName   string `json:"sender_name,omitempty"`
	RoomID       string `json:"room_id,omitempty"`
	RoomName     string `json:"room_name,omitempty"`
	TargetUserID string `json:"target_user_id,omitempty"`
	Content      string `json:"content,omitempty"`
	Status       string `json:"status,omitempty"`
	UserID       string `json:"user_id,omitempty"`
	UserName     string `json:"user_name,omitempty"`
	Timestamp    string `json:"timestamp"`
}

// Timestamp renders the UTC ISO-8601 instant carried by every
// outbound frame: commit time for persisted events, dispatch time for
// pure presence events.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
