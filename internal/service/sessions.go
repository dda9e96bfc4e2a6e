package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tonbeats/tonbeats/internal/model"
)

const (
	// DefaultSessionTTL is how long a listening session stays live.
	DefaultSessionTTL = 1 * time.Hour

	// DefaultSweepInterval is how often expired sessions are purged.
	DefaultSweepInterval = 5 * time.Minute
)

// SessionAuditSink receives durable mirrors of created sessions. The mirror
// is never consulted for authorization.
type SessionAuditSink interface {
	InsertSessionAudit(ctx context.Context, rec *model.SessionRecord) error
}

// SessionStore is the process-wide registry of active listening sessions,
// indexed by session id and by owner address. At most one live record exists
// per address.
type SessionStore struct {
	mu     sync.RWMutex
	byID   map[string]*model.SessionRecord
	byAddr map[string]*model.SessionRecord

	ttl   time.Duration
	sweep time.Duration
	audit SessionAuditSink
	log   *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSessionStore creates an empty registry. audit may be nil.
func NewSessionStore(ttl, sweep time.Duration, audit SessionAuditSink, logger *slog.Logger) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if sweep <= 0 {
		sweep = DefaultSweepInterval
	}
	return &SessionStore{
		byID:   make(map[string]*model.SessionRecord),
		byAddr: make(map[string]*model.SessionRecord),
		ttl:    ttl,
		sweep:  sweep,
		audit:  audit,
		log:    logger,
	}
}

// Create registers a session for the address. If an unexpired record already
// exists for that address it is returned unchanged instead of inserting, so
// session creation is idempotent per user.
func (s *SessionStore) Create(ctx context.Context, address string) *model.SessionRecord {
	now := time.Now().UTC()

	s.mu.Lock()
	if existing, ok := s.byAddr[address]; ok && !existing.IsExpired(now) {
		s.mu.Unlock()
		return existing
	}

	rec := &model.SessionRecord{
		ID:        uuid.New().String(),
		Address:   address,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
		Verified:  true,
	}
	s.byID[rec.ID] = rec
	s.byAddr[address] = rec
	s.mu.Unlock()

	if s.audit != nil {
		if err := s.audit.InsertSessionAudit(ctx, rec); err != nil {
			s.log.Warn("session audit write failed", "session", rec.ID, "error", err)
		}
	}
	return rec
}

// Get returns the session by id. Expiry is checked synchronously, so an
// expired record is invisible even before the sweep removes it.
func (s *SessionStore) Get(id string) *model.SessionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[id]
	if !ok || rec.IsExpired(time.Now()) {
		return nil
	}
	return rec
}

// GetByAddress returns the live session owned by the address, if any.
func (s *SessionStore) GetByAddress(address string) *model.SessionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byAddr[address]
	if !ok || rec.IsExpired(time.Now()) {
		return nil
	}
	return rec
}

// Remove deletes the session from both indices atomically.
func (s *SessionStore) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.byID[id]; ok {
		delete(s.byID, id)
		if cur, ok := s.byAddr[rec.Address]; ok && cur.ID == id {
			delete(s.byAddr, rec.Address)
		}
	}
}

// Len returns the number of records currently held, expired or not.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// Start launches the background expiry sweep. Non-blocking; stop via Stop.
func (s *SessionStore) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.sweep)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.purgeExpired()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the sweep loop and waits for it to exit.
func (s *SessionStore) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// purgeExpired removes every expired record from both indices.
func (s *SessionStore) purgeExpired() {
	now := time.Now()

	s.mu.Lock()
	removed := 0
	for id, rec := range s.byID {
		if rec.IsExpired(now) {
			delete(s.byID, id)
			if cur, ok := s.byAddr[rec.Address]; ok && cur.ID == id {
				delete(s.byAddr, rec.Address)
			}
			removed++
		}
	}
	s.mu.Unlock()

	if removed > 0 {
		s.log.Debug("session sweep", "removed", removed)
	}
}
