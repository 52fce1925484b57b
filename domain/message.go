// Package domain contains core concepts of the chat system.
// This file defines Message records and related rules.
// Messages are immutable once persisted.
package domain

import (
	"time"

	"github.com/google/uuid"
)

type MessageType string

const (
	MessageText   MessageType = "text"
	MessageKnock  MessageType = "knock"
	MessageSystem MessageType = "system"
)

// Message represents an immutable chat record. RoomID is empty for
// direct records (knocks), in which case TargetUserID carries the
// recipient.
type Message struct {
	ID           uuid.UUID   `json:"id"`
	Type         MessageType `json:"message_type"`
	SenderID     string      `json:"sender_id"`
	RoomID       string      `json:"room_id,omitempty"`
	TargetUserID string      `json:"target_user_id,omitempty"`
	Content      string      `json:"content"`
	CreatedAt    time.Time   `json:"created_at"`
}
