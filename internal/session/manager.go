// Package session keeps track of the live terminal sessions of a server.
package session

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/testlooper/wetty/internal/bridge"
	"github.com/testlooper/wetty/internal/model"
)

// Manager tracks live sessions so they can be listed and shut down. It holds
// no per-session logic.
type Manager struct {
	log      *zap.SugaredLogger
	mu       sync.RWMutex
	sessions map[string]*bridge.Session
}

// NewManager creates a new session manager.
func NewManager(log *zap.SugaredLogger) *Manager {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Manager{
		log:      log,
		sessions: make(map[string]*bridge.Session),
	}
}

// Add tracks s until it is closed.
func (m *Manager) Add(s *bridge.Session) {
	m.mu.Lock()
	m.sessions[s.ID] = s
	count := len(m.sessions)
	m.mu.Unlock()

	m.log.Debugw("session added", "session", s.ID, "active", count)

	go func() {
		<-s.Closed()
		m.Remove(s.ID)
	}()
}

// Remove stops tracking the session with the given id.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Get retrieves a session by ID.
func (m *Manager) Get(id string) (*bridge.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, model.ErrSessionNotFound
	}
	return s, nil
}

// List returns a snapshot of every live session, oldest first.
func (m *Manager) List() []model.SessionInfo {
	m.mu.RLock()
	infos := make([]model.SessionInfo, 0, len(m.sessions))
	for _, s := range m.sessions {
		infos = append(infos, s.Info())
	}
	m.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close stops every session and waits up to timeout for them to close.
func (m *Manager) Close(timeout time.Duration) {
	m.mu.RLock()
	sessions := make([]*bridge.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	for _, s := range sessions {
		s.Stop()
	}

	deadline := time.After(timeout)
	for _, s := range sessions {
		select {
		case <-s.Closed():
		case <-deadline:
			m.log.Warnw("sessions still open after shutdown timeout", "remaining", m.Count())
			return
		}
	}
}
