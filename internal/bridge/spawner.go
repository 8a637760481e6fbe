package bridge

import (
	"syscall"

	"github.com/testlooper/wetty/internal/config"
	"github.com/testlooper/wetty/internal/pty"
)

// Process is the backing process of a session.
type Process interface {
	PID() int
	Write(data []byte) error
	Resize(rows, cols uint16) error
	Signal(sig syscall.Signal) error

	// Output delivers output chunks in order and is closed when there is no
	// more output.
	Output() <-chan []byte

	// Done is closed once the process has exited.
	Done() <-chan struct{}

	// ExitCode is valid once Done is closed.
	ExitCode() int

	// Close releases the process's descriptors. Safe to call more than once.
	Close() error
}

// Spawner starts the backing process for a session.
type Spawner interface {
	Spawn(id string, inv Invocation) (Process, error)
}

// PTYSpawner starts processes in a pty through a pty.Manager.
type PTYSpawner struct {
	Manager  *pty.Manager
	Terminal *config.Terminal
}

// Spawn implements Spawner.
func (s *PTYSpawner) Spawn(id string, inv Invocation) (Process, error) {
	p, err := s.Manager.Spawn(id, pty.StartOptions{
		Command:     inv.Command,
		Args:        inv.Args,
		TermName:    s.Terminal.TermName,
		InitialRows: s.Terminal.Rows,
		InitialCols: s.Terminal.Cols,
		TailSize:    s.Terminal.OutputTail,
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}
