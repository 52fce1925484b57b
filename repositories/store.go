// Package repositories persists users, rooms, messages, and room
// memberships in BadgerDB. Values are JSON documents; keys are
// prefix-scannable so listings need no secondary index.
package repositories

import (
	"context"
	"encoding/json"
	goerrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/kita83/nok/domain"
	"github.com/kita83/nok/errors"
)

const (
	userPrefix   = "user:"
	roomPrefix   = "room:"
	memberPrefix = "member:"
	msgPrefix    = "msg:"
)

type Store struct {
	db           *badger.DB
	log          *slog.Logger
	historyLimit int
}

func NewStore(db *badger.DB, log *slog.Logger, historyLimit int) *Store {
	return &Store{db: db, log: log, historyLimit: historyLimit}
}

func userKey(id string) []byte { return []byte(userPrefix + id) }
func roomKey(id string) []byte { return []byte(roomPrefix + id) }

func memberKey(roomID, userID string) []byte {
	return []byte(memberPrefix + roomID + ":" + userID)
}

// messageKey orders messages chronologically per scope through a
// 19-digit zero-padded nanosecond timestamp (lexicographic order) and
// disambiguates same-nanosecond arrivals with the message UUID. The
// scope is the room id, or "@{target_user_id}" for roomless records
// such as knocks.
func messageKey(m domain.Message) []byte {
	return []byte(fmt.Sprintf("%s%s:%019d:%s", msgPrefix, messageScope(m), m.CreatedAt.UnixNano(), m.ID))
}

func messageScope(m domain.Message) string {
	if m.RoomID != "" {
		return m.RoomID
	}
	return "@" + m.TargetUserID
}

func (s *Store) GetUser(_ context.Context, id string) (domain.User, error) {
	var user domain.User
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, userKey(id), &user)
	})
	if goerrors.Is(err, badger.ErrKeyNotFound) {
		return domain.User{}, errors.ErrUserNotFound
	}
	return user, err
}

func (s *Store) CreateUser(_ context.Context, name string) (domain.User, error) {
	now := time.Now().UTC()
	user := domain.User{
		ID:        uuid.NewString(),
		Name:      name,
		Status:    domain.StatusOffline,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, userKey(user.ID), user)
	})
	if err != nil {
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.User, error) {
	return scanJSON[domain.User](s.db, userPrefix)
}

// UpdateUserStatus writes the profile copy of the live presence value.
// Read-modify-write inside one transaction keeps the other fields
// intact under concurrent updates.
func (s *Store) UpdateUserStatus(_ context.Context, id string, status domain.Status) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		var user domain.User
		if err := getJSON(txn, userKey(id), &user); err != nil {
			return err
		}
		user.Status = status
		user.UpdatedAt = time.Now().UTC()
		return setJSON(txn, userKey(id), user)
	})
	if goerrors.Is(err, badger.ErrKeyNotFound) {
		return errors.ErrUserNotFound
	}
	return err
}

func (s *Store) GetRoom(_ context.Context, id string) (domain.Room, error) {
	var room domain.Room
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, roomKey(id), &room)
	})
	if goerrors.Is(err, badger.ErrKeyNotFound) {
		return domain.Room{}, errors.ErrRoomNotFound
	}
	return room, err
}

func (s *Store) CreateRoom(_ context.Context, name, description string, isPublic bool) (domain.Room, error) {
	now := time.Now().UTC()
	room := domain.Room{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		IsPublic:    isPublic,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, roomKey(room.ID), room)
	})
	if err != nil {
		return domain.Room{}, fmt.Errorf("create room: %w", err)
	}
	return room, nil
}

func (s *Store) ListRooms(_ context.Context) ([]domain.Room, error) {
	return scanJSON[domain.Room](s.db, roomPrefix)
}

// CreateMessage assigns the id and the commit timestamp; the caller
// reads both back for the outbound frame.
func (s *Store) CreateMessage(_ context.Context, message domain.Message) (domain.Message, error) {
	message.ID = uuid.New()
	message.CreatedAt = time.Now().UTC()
	err := s.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, messageKey(message), message)
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("create message: %w", err)
	}
	return message, nil
}

// ListMessages returns the newest messages of a room in chronological
// order, at most limit of them (the configured history limit when
// limit is zero). The reverse prefix scan starts past the end of the
// room's key range.
func (s *Store) ListMessages(_ context.Context, roomID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = s.historyLimit
	}
	var messages []domain.Message
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(msgPrefix + roomID + ":")
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		seekKey := append(append([]byte{}, prefix...), 0xFF)
		for it.Seek(seekKey); it.ValidForPrefix(prefix) && len(messages) < limit; it.Next() {
			var m domain.Message
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &m)
			}); err != nil {
				return err
			}
			messages = append(messages, m)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return lo.Reverse(messages), nil
}

// AddRoomMember creates the membership link row, refusing duplicates
// so a repeated join never double-books.
func (s *Store) AddRoomMember(_ context.Context, roomID, userID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		key := memberKey(roomID, userID)
		if _, err := txn.Get(key); err == nil {
			return errors.ErrAlreadyMember
		} else if !goerrors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, nil)
	})
}

func (s *Store) RemoveRoomMember(_ context.Context, roomID, userID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		key := memberKey(roomID, userID)
		if _, err := txn.Get(key); goerrors.Is(err, badger.ErrKeyNotFound) {
			return errors.ErrNotMember
		} else if err != nil {
			return err
		}
		return txn.Delete(key)
	})
}

func (s *Store) ListRoomMembers(_ context.Context, roomID string) ([]string, error) {
	prefix := memberPrefix + roomID + ":"
	var members []string
	err := s.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			members = append(members, strings.TrimPrefix(string(it.Item().Key()), prefix))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list room members: %w", err)
	}
	return members, nil
}

func getJSON(txn *badger.Txn, key []byte, out any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, out)
	})
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

func scanJSON[T any](db *badger.DB, prefix string) ([]T, error) {
	var out []T
	err := db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			var v T
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &v)
			}); err != nil {
				return err
			}
			out = append(out, v)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %q: %w", prefix, err)
	}
	return out, nil
}
