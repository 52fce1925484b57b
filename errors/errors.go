package errors

import "fmt"

var (
	ErrWorkerPanic   = fmt.Errorf("worker panic")
	ErrUserNotFound  = fmt.Errorf("user not found")
	ErrRoomNotFound  = fmt.Errorf("room not found")
	ErrAlreadyMember = fmt.Errorf("user is already a member of the room")
	ErrNotMember     = fmt.Errorf("user is not a member of the room")
	ErrInvalidStatus = fmt.Errorf("unknown presence status")
)
