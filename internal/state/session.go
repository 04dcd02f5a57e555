// internal/state/session.go
package state

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/user/toolchat/internal/session"
	"github.com/user/toolchat/internal/types"
)

// ErrSessionNotFound is returned by Get for an unknown key.
var ErrSessionNotFound = errors.New("session not found")

// Factory builds a new, empty session.
type Factory func() *session.Session

// SessionInfo summarises one live session.
type SessionInfo struct {
	SessionKey types.SessionKey
	SessionID  types.SessionID
	Turns      int
	CreatedAt  time.Time
}

// SessionStore maps session keys (one per chat) to live sessions.
type SessionStore struct {
	factory  Factory
	mu       sync.RWMutex
	sessions map[types.SessionKey]*session.Session
}

// NewSessionStore creates an empty store that builds sessions with factory.
func NewSessionStore(factory Factory) *SessionStore {
	return &SessionStore{
		factory:  factory,
		sessions: make(map[types.SessionKey]*session.Session),
	}
}

// ResolveOrCreate returns the session for key, creating one if needed.
func (s *SessionStore) ResolveOrCreate(_ context.Context, key types.SessionKey) (*session.Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[key]
	s.mu.RUnlock()
	if ok {
		return sess, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[key]; ok {
		return sess, nil
	}
	sess = s.factory()
	if sess == nil {
		return nil, fmt.Errorf("create session for %s: factory returned nil", key)
	}
	s.sessions[key] = sess
	return sess, nil
}

// Get returns the session for key.
func (s *SessionStore) Get(_ context.Context, key types.SessionKey) (*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, key)
	}
	return sess, nil
}

// Reset replaces the session for key with a new one. The previous session's
// transcript is left as it was.
func (s *SessionStore) Reset(_ context.Context, key types.SessionKey) *session.Session {
	sess := s.factory()
	s.mu.Lock()
	s.sessions[key] = sess
	s.mu.Unlock()
	return sess
}

// List returns a summary of every session, oldest first.
func (s *SessionStore) List(_ context.Context) []SessionInfo {
	s.mu.RLock()
	out := make([]SessionInfo, 0, len(s.sessions))
	for key, sess := range s.sessions {
		out = append(out, SessionInfo{
			SessionKey: key,
			SessionID:  sess.ID(),
			Turns:      sess.Len(),
			CreatedAt:  sess.CreatedAt(),
		})
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
