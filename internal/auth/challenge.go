// Package auth implements the wallet-proof protocols: the ton-proof
// challenge/response used at login and the detached sign-data protocol for
// structured application payloads.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// DefaultChallengeTTL is how long an issued challenge stays usable. The timer
// fires regardless of whether the challenge was consumed.
const DefaultChallengeTTL = 10 * time.Minute

// ChallengeStore is the process-wide pending set of proof challenges. Access
// is serialized with a mutex; removal is scheduled per entry so the sweep
// never holds a lock across entries.
type ChallengeStore struct {
	mu      sync.Mutex
	pending map[string]time.Time // value -> issued at
	ttl     time.Duration
}

// NewChallengeStore creates a pending set with the given TTL. A zero ttl
// falls back to DefaultChallengeTTL.
func NewChallengeStore(ttl time.Duration) *ChallengeStore {
	if ttl <= 0 {
		ttl = DefaultChallengeTTL
	}
	return &ChallengeStore{
		pending: make(map[string]time.Time),
		ttl:     ttl,
	}
}

// Issue generates a fresh random challenge, registers it in the pending set
// and schedules its removal after the TTL elapses.
func (s *ChallengeStore) Issue() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate challenge: %w", err)
	}
	payload := hex.EncodeToString(buf)

	s.mu.Lock()
	s.pending[payload] = time.Now()
	s.mu.Unlock()

	time.AfterFunc(s.ttl, func() {
		s.mu.Lock()
		delete(s.pending, payload)
		s.mu.Unlock()
	})

	return payload, nil
}

// Has reports whether the challenge is currently pending. Expiry is also
// checked synchronously so a challenge is unusable the instant its window
// elapses, even before the timer fires.
func (s *ChallengeStore) Has(payload string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	issued, ok := s.pending[payload]
	if !ok {
		return false
	}
	return time.Since(issued) < s.ttl
}

// Len returns the number of pending challenges.
func (s *ChallengeStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
