package server

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type session struct {
	id              string
	protocolVersion string
	ownerToken      string
	expiration      time.Time
}

// sessionStore is an in-memory table of MCP sessions that expire after ttl
// of inactivity. Safe for concurrent access.
type sessionStore struct {
	mu    sync.RWMutex
	items map[string]*session
	ttl   time.Duration
	now   func() time.Time
}

func newSessionStore(ttl time.Duration) *sessionStore {
	return &sessionStore{items: make(map[string]*session), ttl: ttl, now: time.Now}
}

func (s *sessionStore) create(protocolVersion, ownerToken string) *session {
	sess := &session{
		id:              uuid.New().String(),
		protocolVersion: protocolVersion,
		ownerToken:      ownerToken,
		expiration:      s.now().Add(s.ttl),
	}
	s.mu.Lock()
	s.items[sess.id] = sess
	s.mu.Unlock()
	return sess
}

// get returns a live session and extends its lifetime. Expired sessions are
// dropped and reported missing.
func (s *sessionStore) get(id string) (*session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.items[id]
	if !ok {
		return nil, false
	}
	now := s.now()
	if now.After(sess.expiration) {
		delete(s.items, id)
		return nil, false
	}
	sess.expiration = now.Add(s.ttl)
	return sess, true
}

func (s *sessionStore) delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.items[id]
	delete(s.items, id)
	return ok
}

// sweep removes every expired session and returns how many were removed.
func (s *sessionStore) sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for id, sess := range s.items {
		if now.After(sess.expiration) {
			delete(s.items, id)
			n++
		}
	}
	return n
}

func (s *sessionStore) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
