package model

import "errors"

var (
	// ErrInvalidRequest is returned when a connection is missing a required parameter
	// or carries a malformed one.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrSpawnFailure is returned when the backing process or its pty cannot be started.
	ErrSpawnFailure = errors.New("spawn failure")

	// ErrUnexpectedChannel is used when a session is torn down because of a transport
	// level failure or a recovered panic.
	ErrUnexpectedChannel = errors.New("unexpected channel error")

	// ErrSessionNotFound is returned when a session is not found.
	ErrSessionNotFound = errors.New("session not found")

	// ErrChannelClosed is returned when emitting on a channel that is already closed.
	ErrChannelClosed = errors.New("channel closed")

	// ErrProcessClosed is returned when writing to or resizing a released process handle.
	ErrProcessClosed = errors.New("process is closed")
)
