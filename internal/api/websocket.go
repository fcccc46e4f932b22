package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/JAMBAMSF/jagent/internal/agent"
	"github.com/JAMBAMSF/jagent/internal/events"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8192
)

// MessageType represents the type of WebSocket message
type MessageType string

const (
	MessageTypeChat  MessageType = "chat"
	MessageTypeReply MessageType = "reply"
	MessageTypeEvent MessageType = "event"
	MessageTypeError MessageType = "error"
	MessageTypePing  MessageType = "ping"
	MessageTypePong  MessageType = "pong"
)

// Message represents a WebSocket message
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// chatData is the payload of a chat message.
type chatData struct {
	Message string `json:"message"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Client represents a WebSocket client connection. Each client owns one
// agent session for the lifetime of the socket.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	session *agent.Session
}

// Hub maintains active WebSocket clients and broadcasts messages
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Outbound messages for every client
	broadcast chan []byte

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Mutex for thread-safe operations
	mu sync.RWMutex
}

// NewHub creates a new WebSocket hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run starts the hub's main loop and closes every client when ctx ends.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			log.Info().
				Int("total_clients", n).
				Msg("WebSocket client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			log.Info().
				Int("total_clients", n).
				Msg("WebSocket client disconnected")

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Client's send channel is full, close it
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast queues a message for all connected clients. It drops the
// message when the hub is backed up.
func (h *Hub) Broadcast(msgType MessageType, data interface{}) error {
	msgBytes, err := encodeMessage(msgType, data)
	if err != nil {
		return err
	}

	select {
	case h.broadcast <- msgBytes:
	default:
		log.Warn().Str("type", string(msgType)).Msg("WebSocket broadcast queue full; message dropped")
	}
	return nil
}

// Relay forwards a bus event to every client; it is an events.Handler.
func (h *Hub) Relay(evt *events.Event) error {
	return h.Broadcast(MessageTypeEvent, evt)
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func encodeMessage(msgType MessageType, data interface{}) ([]byte, error) {
	msg := Message{
		Type:      msgType,
		Timestamp: time.Now(),
	}
	if data != nil {
		dataBytes, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		msg.Data = dataBytes
	}
	return json.Marshal(msg)
}

// handleWebSocket upgrades the connection and opens a "ws" session for the
// user named in the query string.
func (s *Server) handleWebSocket(c *gin.Context) {
	session, err := s.agent.NewSession(c.Request.Context(), strings.TrimSpace(c.Query("user")), "ws")
	if err != nil {
		log.Error().Err(err).Msg("Failed to open websocket session")
		errorResponse(c, http.StatusInternalServerError, "internal_error", "Failed to open session")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		session.Close()
		log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := &Client{
		hub:     s.hub,
		conn:    conn,
		send:    make(chan []byte, 256),
		session: session,
	}
	s.hub.register <- client

	go client.writePump()
	go client.readPump()
}

// readPump pumps messages from the WebSocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.session.Close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Msg("WebSocket read error")
			}
			break
		}

		c.handleMessage(message)
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if message == nil {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage processes one client message.
func (c *Client) handleMessage(message []byte) {
	var msg Message
	if err := json.Unmarshal(message, &msg); err != nil {
		c.reply(MessageTypeError, gin.H{"error": "invalid_message"})
		return
	}

	switch msg.Type {
	case MessageTypePing:
		c.reply(MessageTypePong, nil)
	case MessageTypeChat:
		var data chatData
		if err := json.Unmarshal(msg.Data, &data); err != nil || strings.TrimSpace(data.Message) == "" {
			c.reply(MessageTypeError, gin.H{"error": "empty_message"})
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		reply := c.session.Handle(ctx, data.Message)
		cancel()
		c.reply(MessageTypeReply, reply)
		if reply.Exit {
			c.hangUp()
		}
	default:
		log.Debug().
			Str("type", string(msg.Type)).
			Msg("Received client message")
	}
}

// reply writes directly to the client's queue.
func (c *Client) reply(msgType MessageType, data interface{}) {
	msgBytes, err := encodeMessage(msgType, data)
	if err != nil {
		return
	}

	defer func() {
		// The hub may already have closed the channel.
		_ = recover()
	}()
	select {
	case c.send <- msgBytes:
	default:
		log.Warn().Str("type", string(msgType)).Msg("WebSocket send queue full; reply dropped")
	}
}

// hangUp queues a normal close after any pending replies.
func (c *Client) hangUp() {
	defer func() {
		_ = recover()
	}()
	c.send <- nil
}
