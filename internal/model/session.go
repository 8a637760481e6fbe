package model

import (
	"time"
)

// SessionState represents the lifecycle state of a terminal session.
type SessionState string

const (
	SessionStateValidating  SessionState = "validating"
	SessionStateSpawning    SessionState = "spawning"
	SessionStateActive      SessionState = "active"
	SessionStateTerminating SessionState = "terminating"
	SessionStateClosed      SessionState = "closed"
)

// Terminal reports whether no further transitions can happen from s.
func (s SessionState) Terminal() bool {
	return s == SessionStateClosed
}

// SessionInfo is a point-in-time snapshot of a live session.
type SessionInfo struct {
	ID        string       `json:"id"`
	State     SessionState `json:"state"`
	PID       *int         `json:"pid,omitempty"`
	RepoName  string       `json:"repoName,omitempty"`
	Commit    string       `json:"commit,omitempty"`
	Test      string       `json:"test,omitempty"`
	Ports     string       `json:"ports,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
}

// Duration returns the running duration of the session.
func (s *SessionInfo) Duration() time.Duration {
	return time.Since(s.CreatedAt)
}
