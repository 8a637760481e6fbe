package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testlooper/wetty/internal/model"
)

// newTestPair starts a server that wraps each accepted socket in a Conn and
// returns the server side Conn together with a connected client.
func newTestPair(t *testing.T) (*Conn, *websocket.Conn) {
	t.Helper()

	conns := make(chan *Conn, 1)
	upgrader := NewUpgrader(nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- NewConn(c, nil)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	select {
	case c := <-conns:
		return c, client
	case <-time.After(2 * time.Second):
		t.Fatal("server did not accept the connection")
		return nil, nil
	}
}

func readMessage(t *testing.T, client *websocket.Conn) Message {
	t.Helper()
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	require.NoError(t, client.ReadJSON(&msg))
	return msg
}

func nextEvent(t *testing.T, c *Conn) Event {
	t.Helper()
	select {
	case ev := <-c.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
		return Event{}
	}
}

func TestConn_EmitInOrder(t *testing.T) {
	c, client := newTestPair(t)

	for _, s := range []string{"one", "two", "three"} {
		require.NoError(t, c.Emit(EventOutput, []byte(s)))
	}

	for _, want := range []string{`"one"`, `"two"`, `"three"`} {
		msg := readMessage(t, client)
		assert.Equal(t, EventOutput, msg.Event)
		assert.Equal(t, want, string(msg.Data))
	}
}

func TestConn_Events(t *testing.T) {
	c, client := newTestPair(t)

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{"event":"input","data":"a"}`)))
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`garbage`)))
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{"event":"resize","data":{"col":90,"row":20}}`)))
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{"event":"input","data":"b"}`)))

	assert.Equal(t, Event{Name: EventInput, Data: "a"}, nextEvent(t, c))
	assert.Equal(t, Event{Name: EventResize, Resize: &ResizePayload{Col: 90, Row: 20}}, nextEvent(t, c))
	assert.Equal(t, Event{Name: EventInput, Data: "b"}, nextEvent(t, c))
}

func TestConn_PingPong(t *testing.T) {
	_, client := newTestPair(t)

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{"event":"ping"}`)))
	msg := readMessage(t, client)
	assert.Equal(t, EventPong, msg.Event)
}

func TestConn_CloseFlushesQueue(t *testing.T) {
	c, client := newTestPair(t)

	require.NoError(t, c.Emit(EventOutput, "INVALID URL: http://x/wetty"))
	require.NoError(t, c.Close("invalid request"))
	require.NoError(t, c.Close("again"))

	msg := readMessage(t, client)
	assert.Equal(t, `"INVALID URL: http://x/wetty"`, string(msg.Data))

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := client.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("conn not done after close")
	}
	assert.ErrorIs(t, c.Emit(EventOutput, "late"), model.ErrChannelClosed)
}

func TestConn_ClientDisconnect(t *testing.T) {
	c, client := newTestPair(t)

	client.Close()

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect not noticed")
	}
	assert.ErrorIs(t, c.Emit(EventOutput, "x"), model.ErrChannelClosed)
}
