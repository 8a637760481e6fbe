//go:build !windows

package pty

import (
	"fmt"
	"sync"
	"syscall"

	"go.uber.org/zap"
)

// Manager tracks the pty processes of live sessions.
type Manager struct {
	log       *zap.SugaredLogger
	processes map[string]*Process
	mu        sync.RWMutex
}

// NewManager creates a new PTY manager.
func NewManager(log *zap.SugaredLogger) *Manager {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Manager{
		log:       log,
		processes: make(map[string]*Process),
	}
}

// Spawn starts a process for the session id and tracks it until it exits.
func (m *Manager) Spawn(id string, opts StartOptions) (*Process, error) {
	m.mu.RLock()
	_, exists := m.processes[id]
	m.mu.RUnlock()
	if exists {
		return nil, fmt.Errorf("process already exists for session %s", id)
	}

	p, err := Start(opts, m.log.With("session", id))
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.processes[id] = p
	m.mu.Unlock()

	go func() {
		<-p.Done()
		m.Remove(id)
	}()

	return p, nil
}

// Get returns the process for the given session ID.
func (m *Manager) Get(id string) (*Process, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.processes[id]
	return p, ok
}

// Remove stops tracking the process for id. It does not touch the process.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	delete(m.processes, id)
	m.mu.Unlock()
}

// Count returns the number of tracked processes.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.processes)
}

// List returns all tracked processes.
func (m *Manager) List() []*Process {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Process, 0, len(m.processes))
	for _, p := range m.processes {
		result = append(result, p)
	}
	return result
}

// Close sends SIGTERM to every tracked process that has not been sent one
// yet and releases their ptys.
func (m *Manager) Close() error {
	var firstErr error
	for _, p := range m.List() {
		if !p.TermSent() {
			if err := p.Signal(syscall.SIGTERM); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
