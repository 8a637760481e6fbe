// Package bridge pairs one terminal channel with one process running in a
// pty for the lifetime of a connection.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"runtime/debug"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/testlooper/wetty/internal/config"
	"github.com/testlooper/wetty/internal/model"
	"github.com/testlooper/wetty/internal/ws"
)

// DefaultDrainTimeout bounds how long output is still forwarded after the
// process has exited.
const DefaultDrainTimeout = 250 * time.Millisecond

// Options configures a Session.
type Options struct {
	Terminal *config.Terminal
	Spawner  Spawner
	Log      *zap.SugaredLogger

	// DrainTimeout defaults to DefaultDrainTimeout.
	DrainTimeout time.Duration

	// OnStateChange is called after every state transition.
	OnStateChange func(s *Session, state model.SessionState)
}

// Session is the bridge between one channel and one process.
//
// The session goroutine (Run) owns the process output and every emit on the
// channel; a second goroutine owns channel events and process input. Once
// the session is closed neither touches the channel or the process again.
type Session struct {
	ID        string
	CreatedAt time.Time

	channel ws.Channel
	query   url.Values
	rawURL  string

	terminal     *config.Terminal
	spawner      Spawner
	log          *zap.SugaredLogger
	drainTimeout time.Duration
	onState      func(s *Session, state model.SessionState)

	mu     sync.RWMutex
	state  model.SessionState
	params *model.Params
	proc   Process

	stop        chan struct{}
	stopOnce    sync.Once
	closing     chan struct{}
	closed      chan struct{}
	cleanupOnce sync.Once
	carry       utf8Carry
}

// New creates a session for a connection whose parameters are query, read
// from rawURL.
func New(id string, channel ws.Channel, query url.Values, rawURL string, opts Options) *Session {
	log := opts.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	drain := opts.DrainTimeout
	if drain <= 0 {
		drain = DefaultDrainTimeout
	}

	return &Session{
		ID:           id,
		CreatedAt:    time.Now(),
		channel:      channel,
		query:        query,
		rawURL:       rawURL,
		terminal:     opts.Terminal,
		spawner:      opts.Spawner,
		log:          log.With("session", id),
		drainTimeout: drain,
		onState:      opts.OnStateChange,
		state:        model.SessionStateValidating,
		stop:         make(chan struct{}),
		closing:      make(chan struct{}),
		closed:       make(chan struct{}),
	}
}

// State returns the current state.
func (s *Session) State() model.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Params returns the validated parameters, or nil before validation succeeds.
func (s *Session) Params() *model.Params {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.params
}

// Closed is closed when the session reaches the closed state.
func (s *Session) Closed() <-chan struct{} {
	return s.closed
}

// Info returns a snapshot of the session.
func (s *Session) Info() model.SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := model.SessionInfo{
		ID:        s.ID,
		State:     s.state,
		CreatedAt: s.CreatedAt,
	}
	if s.params != nil {
		info.RepoName = s.params.RepoName
		info.Commit = s.params.Commit
		info.Test = s.params.Test
		info.Ports = s.params.Ports
	}
	if s.proc != nil {
		pid := s.proc.PID()
		info.PID = &pid
	}
	return info
}

// Stop ends the session as if the client had disconnected. It does not
// wait for the session to close.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
}

func (s *Session) setState(state model.SessionState) {
	s.mu.Lock()
	if s.state.Terminal() || s.state == state {
		s.mu.Unlock()
		return
	}
	s.state = state
	s.mu.Unlock()

	s.log.Debugw("session state changed", "state", state)
	if s.onState != nil {
		s.onState(s, state)
	}
}

// Run drives the session until it is closed. It returns an error wrapping
// model.ErrInvalidRequest, model.ErrSpawnFailure or model.ErrUnexpectedChannel
// when the session ended for one of those reasons; a process exit or a
// client disconnect returns nil.
func (s *Session) Run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorw("session panicked", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("%w: %v", model.ErrUnexpectedChannel, r)
			s.terminate("internal error", true)
		}
	}()

	params, err := s.validate()
	if err != nil {
		return err
	}

	proc, err := s.spawn(params)
	if err != nil {
		return err
	}

	go s.forwardInput(proc)
	s.forwardOutput(ctx, proc)
	return nil
}

func (s *Session) validate() (*model.Params, error) {
	params, err := model.ParseParams(s.query, s.rawURL, s.terminal.RequireRepoName)
	if err != nil {
		s.log.Infow("rejecting connection", "url", s.rawURL, "error", err)

		var invalid *model.InvalidRequestError
		if errors.As(err, &invalid) {
			if emitErr := s.channel.Emit(ws.EventOutput, invalid.Diagnostic()); emitErr != nil {
				s.log.Debugw("failed to send diagnostic", "error", emitErr)
			}
		}
		s.terminate("invalid request", false)
		return nil, err
	}

	s.mu.Lock()
	s.params = params
	s.mu.Unlock()
	s.setState(model.SessionStateSpawning)
	return params, nil
}

func (s *Session) spawn(params *model.Params) (Process, error) {
	inv := BuildInvocation(s.terminal, params)
	s.log.Infow("invoking", "command", inv.Command, "args", inv.Args)

	proc, err := s.spawner.Spawn(s.ID, inv)
	if err != nil {
		if !errors.Is(err, model.ErrSpawnFailure) {
			err = fmt.Errorf("%w: %v", model.ErrSpawnFailure, err)
		}
		s.log.Errorw("failed to start terminal", "command", inv.Command, "error", err)
		s.terminate("spawn failure", false)
		return nil, err
	}

	s.mu.Lock()
	s.proc = proc
	s.mu.Unlock()

	s.log.Infow("terminal started", "pid", proc.PID())
	s.setState(model.SessionStateActive)
	return proc, nil
}

// forwardInput applies client events to the process in arrival order. It
// runs apart from forwardOutput so a process that stops reading its input
// cannot stall its output. Events arriving after the process exited are
// read and dropped so the channel keeps moving while output drains.
func (s *Session) forwardInput(proc Process) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorw("input forwarding panicked", "panic", r, "stack", string(debug.Stack()))
			s.terminate("internal error", true)
		}
	}()

	events := s.channel.Events()
	for {
		select {
		case <-s.closing:
			return
		case ev := <-events:
			select {
			case <-s.closing:
				return
			case <-proc.Done():
				s.log.Debugw("dropping event after exit", "event", ev.Name)
				continue
			default:
			}
			s.handleEvent(proc, ev)
		}
	}
}

func (s *Session) handleEvent(proc Process, ev ws.Event) {
	switch ev.Name {
	case ws.EventInput:
		if ev.Data == "" {
			return
		}
		if err := proc.Write([]byte(ev.Data)); err != nil {
			s.log.Debugw("failed to write to terminal", "error", err)
		}
	case ws.EventResize:
		if ev.Resize == nil || ev.Resize.Row == 0 || ev.Resize.Col == 0 {
			return
		}
		if err := proc.Resize(ev.Resize.Row, ev.Resize.Col); err != nil {
			s.log.Debugw("failed to resize terminal", "rows", ev.Resize.Row, "cols", ev.Resize.Col, "error", err)
		}
	default:
		s.log.Debugw("ignoring event", "event", ev.Name)
	}
}

// forwardOutput emits process output until one side terminates.
func (s *Session) forwardOutput(ctx context.Context, proc Process) {
	output := proc.Output()
	for {
		select {
		case chunk, ok := <-output:
			if !ok {
				output = nil
				continue
			}
			s.emitOutput(chunk)
		case <-proc.Done():
			s.setState(model.SessionStateTerminating)
			s.drain(output)
			s.log.Infow("terminal ended", "pid", proc.PID(), "exitCode", proc.ExitCode())
			if t, ok := proc.(interface{ Tail() []byte }); ok && proc.ExitCode() != 0 {
				s.log.Debugw("terminal output before exit", "tail", string(t.Tail()))
			}
			s.terminate("process exited", false)
			return
		case <-s.channel.Done():
			s.log.Infow("shutting down terminal", "reason", "client disconnected")
			s.terminate("client disconnected", true)
			return
		case <-ctx.Done():
			s.log.Infow("shutting down terminal", "reason", "context done")
			s.terminate("server shutting down", true)
			return
		case <-s.stop:
			s.log.Infow("shutting down terminal", "reason", "session stopped")
			s.terminate("session stopped", true)
			return
		}
	}
}

func (s *Session) emitOutput(chunk []byte) {
	data := s.carry.Next(chunk)
	if len(data) == 0 {
		return
	}
	if err := s.channel.Emit(ws.EventOutput, data); err != nil {
		s.log.Debugw("failed to emit output", "error", err)
	}
}

// drain forwards output the process wrote before exiting.
func (s *Session) drain(output <-chan []byte) {
	defer func() {
		if rest := s.carry.Flush(); len(rest) > 0 {
			if err := s.channel.Emit(ws.EventOutput, rest); err != nil {
				s.log.Debugw("failed to emit output", "error", err)
			}
		}
	}()
	if output == nil {
		return
	}

	timer := time.NewTimer(s.drainTimeout)
	defer timer.Stop()
	for {
		select {
		case chunk, ok := <-output:
			if !ok {
				return
			}
			s.emitOutput(chunk)
		case <-timer.C:
			return
		case <-s.channel.Done():
			return
		}
	}
}

// terminate moves the session to closed. With kill set the process is sent
// a single SIGTERM first; its exit is not waited for.
func (s *Session) terminate(reason string, kill bool) {
	s.cleanupOnce.Do(func() {
		s.setState(model.SessionStateTerminating)

		s.mu.RLock()
		proc := s.proc
		s.mu.RUnlock()

		close(s.closing)

		if proc != nil && kill {
			if err := proc.Signal(syscall.SIGTERM); err != nil {
				s.log.Warnw("failed to signal terminal", "error", err)
			}
		}
		if err := s.channel.Close(reason); err != nil {
			s.log.Debugw("failed to close channel", "error", err)
		}
		if proc != nil {
			if err := proc.Close(); err != nil {
				s.log.Debugw("failed to release terminal", "error", err)
			}
		}

		s.setState(model.SessionStateClosed)
		close(s.closed)
	})
}
