package api

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JAMBAMSF/jagent/internal/agent"
	"github.com/JAMBAMSF/jagent/internal/events"
	"github.com/JAMBAMSF/jagent/internal/router"
)

func dialWS(t *testing.T) (*Server, *websocket.Conn) {
	t.Helper()
	srv := newTestServer(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.Hub().Run(ctx)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws?user=ann"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool { return srv.Hub().ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	return srv, conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWebSocket_Chat(t *testing.T) {
	_, conn := dialWS(t)

	require.NoError(t, conn.WriteJSON(Message{Type: MessageTypeChat, Data: json.RawMessage(`{"message":"price aapl"}`)}))

	msg := readMessage(t, conn)
	require.Equal(t, MessageTypeReply, msg.Type)
	var reply agent.Reply
	require.NoError(t, json.Unmarshal(msg.Data, &reply))
	assert.Equal(t, router.KindPrice, reply.Route)
	assert.Contains(t, reply.Text, "AAPL ≈ 187.50")
}

func TestWebSocket_PingAndErrors(t *testing.T) {
	_, conn := dialWS(t)

	require.NoError(t, conn.WriteJSON(Message{Type: MessageTypePing}))
	assert.Equal(t, MessageTypePong, readMessage(t, conn).Type)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	assert.Equal(t, MessageTypeError, readMessage(t, conn).Type)

	require.NoError(t, conn.WriteJSON(Message{Type: MessageTypeChat, Data: json.RawMessage(`{"message":"  "}`)}))
	msg := readMessage(t, conn)
	assert.Equal(t, MessageTypeError, msg.Type)
	assert.JSONEq(t, `{"error":"empty_message"}`, string(msg.Data))
}

func TestWebSocket_ExitClosesConnection(t *testing.T) {
	srv, conn := dialWS(t)

	require.NoError(t, conn.WriteJSON(Message{Type: MessageTypeChat, Data: json.RawMessage(`{"message":"exit"}`)}))
	msg := readMessage(t, conn)
	var reply agent.Reply
	require.NoError(t, json.Unmarshal(msg.Data, &reply))
	assert.True(t, reply.Exit)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
	require.Eventually(t, func() bool { return srv.Hub().ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocket_RelaysEvents(t *testing.T) {
	srv, conn := dialWS(t)

	evt := &events.Event{
		ID:        uuid.New(),
		Kind:      "webhook",
		Source:    "api",
		Payload:   json.RawMessage(`{"type":"news"}`),
		Timestamp: time.Now().UTC(),
	}
	require.NoError(t, srv.Hub().Relay(evt))

	msg := readMessage(t, conn)
	require.Equal(t, MessageTypeEvent, msg.Type)
	var got events.Event
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, evt.ID, got.ID)
	assert.Equal(t, "webhook", got.Kind)
}

func TestHub_ShutdownClosesClients(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	client := &Client{hub: hub, send: make(chan []byte, 1)}
	hub.register <- client
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	assert.Equal(t, 0, hub.ClientCount())
	_, open := <-client.send
	assert.False(t, open)
}
