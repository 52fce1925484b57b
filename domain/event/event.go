// Package event defines the domain events flowing through the
// dispatcher and the JSON frames exchanged with clients.
package event

// DomainEvent is the tagged union of everything a client can trigger
// over its live connection. The dispatcher switches exhaustively on
// the concrete type.
type DomainEvent interface {
	Kind() string
}

type Knock struct {
	SenderID     string
	TargetUserID string
}

func (Knock) Kind() string { return TypeKnock }

type RoomMessage struct {
	SenderID string
	RoomID   string
	Content  string
}

func (RoomMessage) Kind() string { return TypeMessage }

// StatusChange carries the raw requested status. Validation against
// the four-value enumeration happens in the presence tracker.
type StatusChange struct {
	UserID string
	Status string
}

func (StatusChange) Kind() string { return TypeUserStatus }

type RoomJoin struct {
	UserID string
	RoomID string
}

func (RoomJoin) Kind() string { return TypeJoinRoom }

type RoomLeave struct {
	UserID string
	RoomID string
}

func (RoomLeave) Kind() string { return TypeLeaveRoom }
