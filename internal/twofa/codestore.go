package twofa

import (
	"crypto/subtle"
	"sync"
	"time"

	"github.com/osokin-dev/gatehouse/internal/apperr"
)

// CodeStore holds the live one-time codes keyed by destination (phone number
// or email address). It is the only cross-request mutable state in the 2FA
// manager: one lock serializes send and verify so a code can never be
// verified twice or overwritten mid-check. At most one code is live per
// destination; capacity is bounded, evicting the entry closest to expiry.
type CodeStore struct {
	mu       sync.Mutex
	entries  map[string]codeEntry
	capacity int
	now      func() time.Time
}

type codeEntry struct {
	code      string
	expiresAt time.Time
}

// NewCodeStore creates a store holding at most capacity live codes.
func NewCodeStore(capacity int) *CodeStore {
	return &CodeStore{
		entries:  make(map[string]codeEntry, capacity),
		capacity: capacity,
		now:      time.Now,
	}
}

// Put stores code for destination with the given TTL, replacing any
// previous code for that destination.
func (s *CodeStore) Put(destination, code string, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[destination]; !exists && len(s.entries) >= s.capacity {
		s.evictSoonest()
	}
	s.entries[destination] = codeEntry{code: code, expiresAt: s.now().Add(ttl)}
}

// evictSoonest drops the entry closest to (or past) expiry. Caller holds the lock.
func (s *CodeStore) evictSoonest() {
	var victim string
	var soonest time.Time
	for dest, e := range s.entries {
		if victim == "" || e.expiresAt.Before(soonest) {
			victim = dest
			soonest = e.expiresAt
		}
	}
	if victim != "" {
		delete(s.entries, victim)
	}
}

// VerifyAndDelete atomically checks code against the live entry for
// destination and removes the entry on success, so a verified code can
// never be replayed. Missing entry, expiry, and mismatch all yield an
// InvalidCode error; expired entries are dropped on the failed attempt.
func (s *CodeStore) VerifyAndDelete(destination, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[destination]
	if !ok {
		return apperr.New(apperr.KindInvalidCode, "no code pending")
	}
	if s.now().After(entry.expiresAt) {
		delete(s.entries, destination)
		return apperr.New(apperr.KindInvalidCode, "code expired")
	}
	if subtle.ConstantTimeCompare([]byte(entry.code), []byte(code)) != 1 {
		return apperr.New(apperr.KindInvalidCode, "code mismatch")
	}

	delete(s.entries, destination)
	return nil
}

// Len reports the number of live entries.
func (s *CodeStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
