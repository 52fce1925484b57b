// Package domain contains core concepts of the chat system.
// This file defines User entities and the presence status enumeration.
// No runtime, network, or UI logic should be added here.
package domain

import "time"

type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Status is a user's live availability, distinct from any persisted
// profile field (the store keeps a synchronized copy, but the live
// value is owned by the presence tracker).
type Status string

const (
	StatusOnline  Status = "online"
	StatusAway    Status = "away"
	StatusBusy    Status = "busy"
	StatusOffline Status = "offline"
)

func (s Status) Valid() bool {
	switch s {
	case StatusOnline, StatusAway, StatusBusy, StatusOffline:
		return true
	}
	return false
}
