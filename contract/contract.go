//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"github.com/kita83/nok/domain"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Conn is the transport handle owned by the connection registry.
// *websocket.Conn satisfies it; tests substitute their own.
// Callers must serialize writes (the registry does).
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// Store is the persistence collaborator. The realtime core only
// consumes this contract; the badger implementation lives in
// repositories.
type Store interface {
	GetUser(ctx context.Context, id string) (domain.User, error)
	CreateUser(ctx context.Context, name string) (domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	UpdateUserStatus(ctx context.Context, id string, status domain.Status) error

	GetRoom(ctx context.Context, id string) (domain.Room, error)
	CreateRoom(ctx context.Context, name, description string, isPublic bool) (domain.Room, error)
	ListRooms(ctx context.Context) ([]domain.Room, error)

	CreateMessage(ctx context.Context, message domain.Message) (domain.Message, error)
	ListMessages(ctx context.Context, roomID string, limit int) ([]domain.Message, error)

	AddRoomMember(ctx context.Context, roomID, userID string) error
	RemoveRoomMember(ctx context.Context, roomID, userID string) error
	ListRoomMembers(ctx context.Context, roomID string) ([]string, error)
}

// IDispatcher is the surface the transport layer drives: one Connect
// per accepted socket, one HandleFrame per inbound message, one
// Disconnect before the read loop exits. Disconnect takes the loop's
// own transport so the cleanup of an evicted socket cannot tear down
// the session that superseded it.
type IDispatcher interface {
	Connect(ctx context.Context, userID string, conn Conn)
	Disconnect(ctx context.Context, userID string, conn Conn)
	HandleFrame(ctx context.Context, senderID string, raw []byte)
}
