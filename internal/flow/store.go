package flow

import (
	"context"
	"sync"
	"time"
)

// Store persists sessions keyed by (user, flow). A single user's events are
// processed sequentially, so implementations need no per-key merge logic,
// only last-writer-wins on whole sessions.
type Store interface {
	Get(ctx context.Context, userID int64, flow string) (*Session, bool, error)
	Put(ctx context.Context, s *Session) error
	Clear(ctx context.Context, userID int64, flow string) error
}

type memoryStore struct {
	mu       sync.RWMutex
	sessions map[sessionKey]*Session
}

type sessionKey struct {
	userID int64
	flow   string
}

// NewMemoryStore constructs an in-memory Store implementation for tests and
// development.
func NewMemoryStore() Store {
	return &memoryStore{sessions: make(map[sessionKey]*Session)}
}

func (m *memoryStore) Get(ctx context.Context, userID int64, flow string) (*Session, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionKey{userID, flow}]
	if !ok {
		return nil, false, nil
	}
	cp := *s
	cp.Stack = append([]State(nil), s.Stack...)
	cp.Attrs = make(map[string]any, len(s.Attrs))
	for k, v := range s.Attrs {
		cp.Attrs[k] = v
	}
	return &cp, true, nil
}

func (m *memoryStore) Put(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	cp.UpdatedAt = time.Now()
	cp.Stack = append([]State(nil), s.Stack...)
	cp.Attrs = make(map[string]any, len(s.Attrs))
	for k, v := range s.Attrs {
		cp.Attrs[k] = v
	}
	m.sessions[sessionKey{s.UserID, s.Flow}] = &cp
	return nil
}

func (m *memoryStore) Clear(ctx context.Context, userID int64, flow string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionKey{userID, flow})
	return nil
}
