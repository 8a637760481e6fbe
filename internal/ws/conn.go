package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/testlooper/wetty/internal/model"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Pasted input can be large.
	maxMessageSize = 64 * 1024

	sendQueueSize = 256
)

// Channel is a duplex connection carrying named events.
type Channel interface {
	// Emit sends an event to the peer.
	Emit(event string, payload any) error

	// Events delivers client events in the order they were received.
	Events() <-chan Event

	// Done is closed when the peer disconnects or the channel is closed.
	Done() <-chan struct{}

	// Close closes the channel. Safe to call more than once.
	Close(reason string) error
}

// NewUpgrader returns an upgrader for terminal sockets. A nil checkOrigin
// accepts every origin.
func NewUpgrader(checkOrigin func(r *http.Request) bool) *websocket.Upgrader {
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     checkOrigin,
	}
}

// Conn is a Channel backed by a gorilla WebSocket connection.
type Conn struct {
	conn *websocket.Conn
	log  *zap.SugaredLogger

	send    chan []byte
	events  chan Event
	closing chan struct{}
	done    chan struct{}

	closeReason string
	closeOnce   sync.Once
	doneOnce    sync.Once
}

var _ Channel = (*Conn)(nil)

// NewConn wraps conn and starts its read and write pumps.
func NewConn(conn *websocket.Conn, log *zap.SugaredLogger) *Conn {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	c := &Conn{
		conn:    conn,
		log:     log,
		send:    make(chan []byte, sendQueueSize),
		events:  make(chan Event),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}

	go c.writePump()
	go c.readPump()

	return c
}

// Emit queues an event for the write pump. It blocks while the queue is
// full and fails once the channel is closed or disconnected.
func (c *Conn) Emit(event string, payload any) error {
	frame, err := EncodeMessage(event, payload)
	if err != nil {
		return err
	}
	return c.enqueue(frame)
}

func (c *Conn) enqueue(frame []byte) error {
	// Checked first so a closed channel never accepts a frame, even when
	// the queue has room.
	select {
	case <-c.closing:
		return model.ErrChannelClosed
	case <-c.done:
		return model.ErrChannelClosed
	default:
	}

	select {
	case c.send <- frame:
		return nil
	case <-c.closing:
		return model.ErrChannelClosed
	case <-c.done:
		return model.ErrChannelClosed
	}
}

// Events returns the stream of client events.
func (c *Conn) Events() <-chan Event {
	return c.events
}

// Done is closed once the connection is gone.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Close flushes queued frames, sends a close frame and tears the
// connection down.
func (c *Conn) Close(reason string) error {
	c.closeOnce.Do(func() {
		c.closeReason = reason
		close(c.closing)
	})
	return nil
}

func (c *Conn) markDone() {
	c.doneOnce.Do(func() {
		close(c.done)
	})
}

// readPump decodes client frames into events until the connection fails.
// The write pump owns closing the underlying connection.
func (c *Conn) readPump() {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.log.Infow("websocket closed unexpectedly", "error", err)
			} else {
				c.log.Debugw("websocket read ended", "error", err)
			}
			c.markDone()
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		ev, err := DecodeEvent(frame)
		if err != nil {
			c.log.Debugw("dropping malformed frame", "error", err)
			continue
		}

		if ev.Name == EventPing {
			if frame, err := EncodeMessage(EventPong, nil); err == nil {
				c.enqueue(frame)
			}
			continue
		}

		select {
		case c.events <- ev:
		case <-c.closing:
			return
		}
	}
}

// writePump writes queued frames in order and keeps the connection alive.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.markDone()
	}()

	for {
		select {
		case frame := <-c.send:
			if err := c.write(websocket.TextMessage, frame); err != nil {
				c.log.Debugw("websocket write failed", "error", err)
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		case <-c.closing:
			c.flush()
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, c.closeReason)
			c.write(websocket.CloseMessage, msg)
			return
		}
	}
}

func (c *Conn) flush() {
	for {
		select {
		case frame := <-c.send:
			if err := c.write(websocket.TextMessage, frame); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Conn) write(messageType int, data []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(messageType, data)
}
