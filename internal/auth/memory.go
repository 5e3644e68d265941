package auth

import (
	"sync"
	"time"
)

// MemoryStore keeps sessions in process memory
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]SessionData
}

// NewMemoryStore returns an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]SessionData)}
}

func (m *MemoryStore) Save(session *SessionData) error {
	if err := validate(session); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *session
	cp.Cookies = append([]Cookie(nil), session.Cookies...)
	m.sessions[session.Key()] = cp
	return nil
}

func (m *MemoryStore) Load(userID, siteID string) (*SessionData, error) {
	m.mu.RLock()
	s, ok := m.sessions[Key(userID, siteID)]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	if s.Expired(time.Now()) {
		return &s, ErrSessionExpired
	}
	return &s, nil
}

func (m *MemoryStore) Delete(userID, siteID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, Key(userID, siteID))
	return nil
}

func (m *MemoryStore) List() ([]*SessionData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*SessionData, 0, len(m.sessions))
	for _, s := range m.sessions {
		s := s
		out = append(out, &s)
	}
	sortSessions(out)
	return out, nil
}
