package bridge

import (
	"encoding/json"
	"errors"
	"sync"
	"syscall"

	"github.com/testlooper/wetty/internal/model"
	"github.com/testlooper/wetty/internal/ws"
)

type emitted struct {
	Event string
	Data  string
}

// fakeChannel is an in-memory ws.Channel.
type fakeChannel struct {
	mu         sync.Mutex
	emitted    []emitted
	closed     bool
	closeCalls int
	reason     string

	// failEmits makes every Emit fail as if the peer had gone.
	failEmits bool

	events    chan ws.Event
	done      chan struct{}
	closeOnce sync.Once
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		events: make(chan ws.Event, 16),
		done:   make(chan struct{}),
	}
}

func (c *fakeChannel) Emit(event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.failEmits {
		return model.ErrChannelClosed
	}

	var data string
	switch v := payload.(type) {
	case []byte:
		data = string(v)
	case string:
		data = v
	default:
		b, _ := json.Marshal(v)
		data = string(b)
	}
	c.emitted = append(c.emitted, emitted{Event: event, Data: data})
	return nil
}

func (c *fakeChannel) Events() <-chan ws.Event { return c.events }

func (c *fakeChannel) Done() <-chan struct{} { return c.done }

func (c *fakeChannel) Close(reason string) error {
	c.mu.Lock()
	c.closed = true
	c.closeCalls++
	c.reason = reason
	c.mu.Unlock()
	c.disconnect()
	return nil
}

// disconnect simulates the client going away.
func (c *fakeChannel) disconnect() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *fakeChannel) Emitted() []emitted {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]emitted(nil), c.emitted...)
}

func (c *fakeChannel) Output() string {
	var out string
	for _, e := range c.Emitted() {
		if e.Event == ws.EventOutput {
			out += e.Data
		}
	}
	return out
}

func (c *fakeChannel) CloseCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCalls
}

type resizeCall struct {
	Rows, Cols uint16
}

// fakeProcess is a scripted Process.
type fakeProcess struct {
	pid int

	mu       sync.Mutex
	input    []byte
	resizes  []resizeCall
	signals  []syscall.Signal
	closes   int
	exitCode int

	output     chan []byte
	done       chan struct{}
	doneOnce   sync.Once
	outputOnce sync.Once
	written    chan struct{}

	// exitOnSignal makes the process exit when it receives SIGTERM.
	exitOnSignal bool

	// panicOnWrite makes Write panic.
	panicOnWrite bool
}

func newFakeProcess(pid int) *fakeProcess {
	return &fakeProcess{
		pid:     pid,
		output:  make(chan []byte, 16),
		done:    make(chan struct{}),
		written: make(chan struct{}, 64),
	}
}

func (p *fakeProcess) PID() int { return p.pid }

func (p *fakeProcess) Write(data []byte) error {
	if p.panicOnWrite {
		panic("write on broken terminal")
	}
	p.mu.Lock()
	if p.closes > 0 {
		p.mu.Unlock()
		return model.ErrProcessClosed
	}
	p.input = append(p.input, data...)
	p.mu.Unlock()
	p.written <- struct{}{}
	return nil
}

func (p *fakeProcess) Resize(rows, cols uint16) error {
	p.mu.Lock()
	p.resizes = append(p.resizes, resizeCall{Rows: rows, Cols: cols})
	p.mu.Unlock()
	p.written <- struct{}{}
	return nil
}

func (p *fakeProcess) Signal(sig syscall.Signal) error {
	p.mu.Lock()
	p.signals = append(p.signals, sig)
	exit := p.exitOnSignal
	p.mu.Unlock()
	if exit {
		p.exit(-1)
	}
	return nil
}

func (p *fakeProcess) Output() <-chan []byte { return p.output }

func (p *fakeProcess) Done() <-chan struct{} { return p.done }

func (p *fakeProcess) ExitCode() int {
	<-p.done
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}

func (p *fakeProcess) Close() error {
	p.mu.Lock()
	p.closes++
	p.mu.Unlock()
	return nil
}

// exit ends the process; output already queued is still delivered.
func (p *fakeProcess) exit(code int) {
	p.reap(code)
	p.closeOutput()
}

// reap marks the process exited while leaving its output open, as when a
// child still holds the terminal.
func (p *fakeProcess) reap(code int) {
	p.doneOnce.Do(func() {
		p.mu.Lock()
		p.exitCode = code
		p.mu.Unlock()
		close(p.done)
	})
}

func (p *fakeProcess) closeOutput() {
	p.outputOnce.Do(func() {
		close(p.output)
	})
}

func (p *fakeProcess) Input() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return string(p.input)
}

func (p *fakeProcess) Resizes() []resizeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]resizeCall(nil), p.resizes...)
}

func (p *fakeProcess) Signals() []syscall.Signal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]syscall.Signal(nil), p.signals...)
}

func (p *fakeProcess) Closes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closes
}

// fakeSpawner hands out a prepared process and records invocations.
type fakeSpawner struct {
	mu    sync.Mutex
	proc  *fakeProcess
	err   error
	calls []Invocation
}

func (s *fakeSpawner) Spawn(id string, inv Invocation) (Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, inv)
	if s.err != nil {
		return nil, s.err
	}
	if s.proc == nil {
		return nil, errors.New("no process prepared")
	}
	return s.proc, nil
}

func (s *fakeSpawner) Calls() []Invocation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Invocation(nil), s.calls...)
}
