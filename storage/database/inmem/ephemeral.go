package inmemdb

import (
	"context"
	"sync"
	"time"

	"github.com/triolingo/backend/core/identity"
	"github.com/triolingo/backend/core/presence"
)

type presenceEntry struct {
	status    presence.Status
	expiresAt time.Time
}

// PresenceStore is an in-memory presence.Store whose entries expire after a TTL.
type PresenceStore struct {
	mutex   sync.RWMutex
	ttl     time.Duration
	entries map[string]presenceEntry
}

var _ presence.Store = (*PresenceStore)(nil)

func NewPresenceStore(ttl time.Duration) *PresenceStore {
	return &PresenceStore{ttl: ttl, entries: make(map[string]presenceEntry)}
}

func (ps *PresenceStore) SetStatus(_ context.Context, uid string, isOnline bool) error {
	now := nowFunc().UTC()

	ps.mutex.Lock()
	defer ps.mutex.Unlock()
	ps.entries[uid] = presenceEntry{
		status:    presence.Status{IsOnline: isOnline, LastChanged: now},
		expiresAt: now.Add(ps.ttl),
	}
	return nil
}

func (ps *PresenceStore) GetStatus(_ context.Context, uid string) (presence.Status, bool, error) {
	ps.mutex.RLock()
	defer ps.mutex.RUnlock()

	entry, ok := ps.entries[uid]
	if !ok || !nowFunc().Before(entry.expiresAt) {
		return presence.Status{}, false, nil
	}
	return entry.status, true, nil
}

// Revoker is an in-memory identity.Revoker. Entries are dropped once the token would have expired anyway.
type Revoker struct {
	mutex   sync.Mutex
	revoked map[string]time.Time // token ID -> until
}

var _ identity.Revoker = (*Revoker)(nil)

func NewRevoker() *Revoker {
	return &Revoker{revoked: make(map[string]time.Time)}
}

func (r *Revoker) Revoke(_ context.Context, tokenID string, until time.Time) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	now := nowFunc()
	for id, exp := range r.revoked {
		if !now.Before(exp) {
			delete(r.revoked, id)
		}
	}
	r.revoked[tokenID] = until
	return nil
}

func (r *Revoker) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	until, ok := r.revoked[tokenID]
	return ok && nowFunc().Before(until), nil
}
