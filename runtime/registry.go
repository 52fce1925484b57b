// Package runtime is the realtime core: the connection registry, the
// ephemeral room index, the presence tracker, and the dispatcher that
// ties them to persistence. It holds no business rules beyond event
// routing.
package runtime

import (
	"log/slog"
	"sync"

	"github.com/kita83/nok/contract"
	"github.com/kita83/nok/domain/event"
)

// session wraps a live connection with its write lock. Websocket
// connections do not support concurrent writers, and fan-outs for
// different events may target the same user from different goroutines.
type session struct {
	mu   sync.Mutex
	conn contract.Conn
}

func (s *session) write(frame event.Outbound) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(frame)
}

// Registry is the single point of truth for "is this user reachable
// right now". One live connection per user: a second Register for the
// same user evicts and closes the previous connection.
type Registry struct {
	mu       sync.RWMutex
	log      *slog.Logger
	sessions map[string]*session
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		log:      log,
		sessions: make(map[string]*session),
	}
}

// Register associates a transport with a user. When the user already
// holds a connection, the old one is closed after the swap so the new
// socket is reachable without a gap.
func (r *Registry) Register(userID string, conn contract.Conn) {
	r.mu.Lock()
	prev := r.sessions[userID]
	r.sessions[userID] = &session{conn: conn}
	r.mu.Unlock()

	if prev != nil {
		r.log.Warn("Evicting previous connection", "user_id", userID)
		_ = prev.conn.Close()
	}
}

// Remove forgets the user's connection, but only when conn is still
// the registered transport. The read loop of an evicted socket also
// reaches its cleanup path; its stale handle must not unregister the
// session that replaced it. Reports whether conn was current. The
// transport itself is left to the caller (the read loop owns the
// socket on the disconnect path).
func (r *Registry) Remove(userID string, conn contract.Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[userID]
	if !ok || s.conn != conn {
		return false
	}
	delete(r.sessions, userID)
	return true
}

// Send writes one frame to the user's live connection. Unregistered
// users are a no-op. A transport-level write failure evicts the
// connection here instead of surfacing: a dead recipient must never
// abort the fan-out that reached it.
func (r *Registry) Send(userID string, frame event.Outbound) {
	r.mu.RLock()
	s := r.sessions[userID]
	r.mu.RUnlock()
	if s == nil {
		return
	}

	if err := s.write(frame); err != nil {
		r.log.Error("Dropping dead connection", "user_id", userID, "error", err)
		r.mu.Lock()
		// Only evict the session we failed on; the user may have
		// reconnected in the meantime.
		if current, ok := r.sessions[userID]; ok && current == s {
			delete(r.sessions, userID)
		}
		r.mu.Unlock()
		_ = s.conn.Close()
	}
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[userID]
	return ok
}

// ListOnline returns a snapshot of connected user ids, safe to iterate
// while registrations and evictions happen concurrently.
func (r *Registry) ListOnline() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}
