package runtime

import (
	"sync"

	"github.com/kita83/nok/domain"
	"github.com/kita83/nok/errors"
)

// Presence is the per-user live status state machine. Entries are
// created lazily on first observation; a user never seen is offline.
type Presence struct {
	mu     sync.RWMutex
	status map[string]domain.Status
}

func NewPresence() *Presence {
	return &Presence{status: make(map[string]domain.Status)}
}

// Set applies a status transition. A value outside the four-element
// enumeration is rejected and the current state is left unchanged.
// Same-value transitions are permitted no-ops.
func (p *Presence) Set(userID string, status domain.Status) error {
	if !status.Valid() {
		return errors.ErrInvalidStatus
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status[userID] = status
	return nil
}

func (p *Presence) Status(userID string) domain.Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if s, ok := p.status[userID]; ok {
		return s
	}
	return domain.StatusOffline
}
