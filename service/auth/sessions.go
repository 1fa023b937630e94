package auth

import (
	"sync"
	"time"
)

// Session is what the bridge remembers about an authenticated connection.
type Session struct {
	ConnID     string
	Identity   Identity
	IssuedAt   time.Time
	Credential string
}

// Sessions maps connection ids to sessions. Entries are never shared between
// connections.
type Sessions struct {
	mu   sync.RWMutex
	byID map[string]*Session
}

func NewSessions() *Sessions {
	return &Sessions{byID: make(map[string]*Session)}
}

func (s *Sessions) Put(sess *Session) {
	s.mu.Lock()
	s.byID[sess.ConnID] = sess
	s.mu.Unlock()
}

// Get returns a copy so callers cannot mutate the stored session.
func (s *Sessions) Get(connID string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.byID[connID]
	if !ok {
		return Session{}, false
	}
	return *sess, true
}

func (s *Sessions) Delete(connID string) {
	s.mu.Lock()
	delete(s.byID, connID)
	s.mu.Unlock()
}

func (s *Sessions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
