//go:build !windows

// Package pty runs processes attached to a pseudo-terminal.
package pty

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"

	creackpty "github.com/creack/pty"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/testlooper/wetty/internal/buffer"
	"github.com/testlooper/wetty/internal/model"
)

const (
	// DefaultReadBufferSize is the buffer size for reading PTY output.
	DefaultReadBufferSize = 4096

	// outputQueueSize bounds how many chunks the reader may run ahead of the consumer.
	outputQueueSize = 64
)

// StartOptions contains options for starting a PTY process.
type StartOptions struct {
	// Command is the command to execute.
	Command string

	// Args are the arguments to pass to the command.
	Args []string

	// Env is the environment for the process. If nil, the current process
	// environment is used.
	Env []string

	// Dir is the working directory. If empty, the current directory is used.
	Dir string

	// TermName is exported to the process as TERM.
	TermName string

	InitialRows uint16
	InitialCols uint16

	// TailSize is how many trailing output bytes are retained for Tail.
	TailSize int
}

// Process is a running process attached to a pty. Output is delivered in
// order on Output; Done is closed once the process has been reaped.
type Process struct {
	cmd    *exec.Cmd
	master *os.File
	pid    int
	tail   *buffer.RingBuffer
	log    *zap.SugaredLogger

	output   chan []byte
	done     chan struct{}
	closedCh chan struct{}

	exitCode int
	waitErr  error

	termSent atomic.Bool

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
	closeErr  error
}

// Start starts opts.Command in a new session with a fresh pty as its
// controlling terminal.
func Start(opts StartOptions, log *zap.SugaredLogger) (*Process, error) {
	if opts.Command == "" {
		return nil, fmt.Errorf("%w: command is required", model.ErrSpawnFailure)
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	cmd := exec.Command(opts.Command, opts.Args...)
	cmd.Env = opts.Env
	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}
	if opts.TermName != "" {
		cmd.Env = append(cmd.Env, "TERM="+opts.TermName)
	}
	if opts.Dir != "" {
		cmd.Dir = opts.Dir
	}

	var size *creackpty.Winsize
	if opts.InitialRows > 0 && opts.InitialCols > 0 {
		size = &creackpty.Winsize{Rows: opts.InitialRows, Cols: opts.InitialCols}
	}

	// StartWithSize sets Setsid and Setctty, so the child leads its own
	// process group and Signal can reach everything it spawns.
	master, err := creackpty.StartWithSize(cmd, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", model.ErrSpawnFailure, opts.Command, err)
	}

	tailSize := opts.TailSize
	if tailSize <= 0 {
		tailSize = DefaultReadBufferSize
	}

	p := &Process{
		cmd:      cmd,
		master:   master,
		pid:      cmd.Process.Pid,
		tail:     buffer.NewRingBuffer(tailSize),
		log:      log.With("pid", cmd.Process.Pid),
		output:   make(chan []byte, outputQueueSize),
		done:     make(chan struct{}),
		closedCh: make(chan struct{}),
	}

	go p.readLoop()
	go p.waitLoop()

	return p, nil
}

// readLoop forwards pty output until the master reports EOF (EIO on Linux
// once the last slave descriptor is closed) or the handle is closed.
func (p *Process) readLoop() {
	defer close(p.output)

	buf := make([]byte, DefaultReadBufferSize)
	for {
		n, err := p.master.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			p.tail.Write(chunk)

			select {
			case p.output <- chunk:
			case <-p.closedCh:
				return
			}
		}
		if err != nil {
			p.log.Debugw("pty read ended", "error", err)
			return
		}
	}
}

func (p *Process) waitLoop() {
	err := p.cmd.Wait()

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		p.exitCode = 0
	case errors.As(err, &exitErr):
		p.exitCode = exitErr.ExitCode()
	default:
		p.exitCode = -1
		p.waitErr = err
	}

	close(p.done)
}

// PID returns the process ID of the running process.
func (p *Process) PID() int {
	return p.pid
}

// Output returns the stream of output chunks. It is closed when the pty
// has no more output or the handle is closed.
func (p *Process) Output() <-chan []byte {
	return p.output
}

// Done is closed once the process has exited and been reaped.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// ExitCode returns the exit code, or -1 if the process was killed by a
// signal. Only meaningful after Done is closed.
func (p *Process) ExitCode() int {
	<-p.done
	return p.exitCode
}

// WaitErr returns a non-exit error from waiting on the process, if any.
func (p *Process) WaitErr() error {
	<-p.done
	return p.waitErr
}

// Tail returns the most recent output, bounded by StartOptions.TailSize.
func (p *Process) Tail() []byte {
	return p.tail.ReadAll()
}

// Write writes data to the pty input.
func (p *Process) Write(data []byte) error {
	if p.IsClosed() {
		return model.ErrProcessClosed
	}

	if _, err := p.master.Write(data); err != nil {
		return fmt.Errorf("failed to write to PTY: %w", err)
	}
	return nil
}

// Resize changes the pty window size.
func (p *Process) Resize(rows, cols uint16) error {
	if p.IsClosed() {
		return model.ErrProcessClosed
	}

	return creackpty.Setsize(p.master, &creackpty.Winsize{Rows: rows, Cols: cols})
}

// Size returns the current pty window size.
func (p *Process) Size() (rows, cols int, err error) {
	if p.IsClosed() {
		return 0, 0, model.ErrProcessClosed
	}

	return creackpty.Getsize(p.master)
}

// Signal delivers sig to the process group. A process that has already
// gone away is not an error.
func (p *Process) Signal(sig syscall.Signal) error {
	select {
	case <-p.done:
		return nil
	default:
	}

	err := unix.Kill(-p.pid, sig)
	if errors.Is(err, unix.ESRCH) {
		err = unix.Kill(p.pid, sig)
	}
	if err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("failed to signal process %d: %w", p.pid, err)
	}
	if sig == syscall.SIGTERM {
		p.termSent.Store(true)
	}
	return nil
}

// TermSent reports whether SIGTERM has been sent through Signal.
func (p *Process) TermSent() bool {
	return p.termSent.Load()
}

// Close releases the pty master. It does not signal the process; closing
// the master hangs up the terminal. Safe to call more than once.
func (p *Process) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.closedCh)
		p.mu.Unlock()

		if err := p.master.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			p.closeErr = err
		}
	})
	return p.closeErr
}

// IsClosed returns true if the handle has been closed.
func (p *Process) IsClosed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}
