package session

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"sheet-rag/internal/helper"
)

// Manager hands out one Session per client. Sessions idle for longer than idleTimeout
// are closed the next time a session is created.
type Manager struct {
	deps        Dependencies
	idleTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(deps Dependencies, idleTimeout time.Duration) *Manager {
	return &Manager{
		deps:        deps,
		idleTimeout: idleTimeout,
		sessions:    make(map[string]*Session),
	}
}

// Get returns the session with id, or nil.
func (m *Manager) Get(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}

// Create starts a new session.
func (m *Manager) Create() (*Session, error) {
	id, err := helper.GenerateUUID()
	if err != nil {
		return nil, err
	}
	s := New(id, m.deps)

	m.mu.Lock()
	m.sessions[id] = s
	stale := m.collectIdle(time.Now())
	m.mu.Unlock()

	for _, old := range stale {
		closeSession(old)
	}
	log.Debug().Str("session", id).Int("evicted", len(stale)).Msg("Created session")
	return s, nil
}

// GetOrCreate returns the session with id, creating a new one when it does not exist.
func (m *Manager) GetOrCreate(id string) (*Session, error) {
	if s := m.Get(id); s != nil {
		return s, nil
	}
	return m.Create()
}

// Remove closes and forgets the session with id.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	s := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if s != nil {
		closeSession(s)
	}
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close tears down every session.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		closeSession(s)
	}
}

// collectIdle removes and returns idle sessions. Caller holds m.mu.
func (m *Manager) collectIdle(now time.Time) []*Session {
	if m.idleTimeout <= 0 {
		return nil
	}
	var stale []*Session
	for id, s := range m.sessions {
		if now.Sub(s.LastUsed()) > m.idleTimeout {
			stale = append(stale, s)
			delete(m.sessions, id)
		}
	}
	return stale
}

func closeSession(s *Session) {
	if err := s.Close(); err != nil {
		log.Warn().Err(err).Str("session", s.ID).Msg("Error closing session")
	}
}
