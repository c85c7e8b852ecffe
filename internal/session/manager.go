package session

import (
	"log/slog"
	"sync"
)

// Manager owns all live sessions. Each session proceeds independently; no
// lock is held across sessions while one of them works.
type Manager struct {
	searcher Searcher
	logger   *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a session manager sharing one searcher across sessions.
func NewManager(searcher Searcher, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		searcher: searcher,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Open creates a session for the user in the connecting state and starts its
// dispatch loop.
func (m *Manager) Open(userID string) *Session {
	s := newSession(userID, m.searcher, m.logger)
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	m.logger.Info("session opened", "session", s.ID, "user", userID)
	return s
}

// Get returns a live session by id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Close terminates a session and forgets it. Closing an unknown id is a
// no-op.
func (m *Manager) Close(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		s.Close()
		m.logger.Info("session closed", "session", id)
	}
}

// CloseAll terminates every live session, typically at shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
