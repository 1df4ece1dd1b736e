package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/terminal-bench/assetdao/internal/audit"
	"github.com/terminal-bench/assetdao/shared/events"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Backlog serves entries committed before a client connected
type Backlog interface {
	Since(seq int64) []audit.Entry
}

// WSClient represents a WebSocket client
type WSClient struct {
	ID   uuid.UUID
	Conn *websocket.Conn
	Send chan []byte
	Done chan struct{}

	mu       sync.RWMutex
	prefixes []string
	once     sync.Once
}

// wants reports whether the client's kind filter admits kind
func (c *WSClient) wants(kind string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.prefixes) == 0 {
		return true
	}
	for _, p := range c.prefixes {
		if strings.HasPrefix(kind, p) {
			return true
		}
	}
	return false
}

func (c *WSClient) setFilter(prefixes []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prefixes = prefixes
}

func (c *WSClient) close() {
	c.once.Do(func() { close(c.Done) })
}

// WSMessage is a client control message
type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type subscribePayload struct {
	Kinds []string `json:"kinds"`
}

// Hub fans audit envelopes out to WebSocket clients. Clients that fall
// behind are disconnected rather than allowed to block the relay.
type Hub struct {
	clients map[uuid.UUID]*WSClient
	mu      sync.RWMutex
	backlog Backlog
	source  string
	logger  zerolog.Logger
	closed  bool
}

// NewHub creates a hub; backlog may be nil
func NewHub(backlog Backlog, logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[uuid.UUID]*WSClient),
		backlog: backlog,
		source:  "assetd",
		logger:  logger.With().Str("component", "ws").Logger(),
	}
}

// Len returns the number of connected clients
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends env to every client whose filter admits it
func (h *Hub) Broadcast(env events.Envelope) {
	msg, err := json.Marshal(env)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to encode envelope")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if !client.wants(env.Type) {
			continue
		}
		select {
		case client.Send <- msg:
		default:
			h.logger.Warn().Str("client", client.ID.String()).Msg("client too slow, disconnecting")
			client.close()
		}
	}
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for _, client := range h.clients {
		client.close()
	}
}

// Serve upgrades the request. Query parameters: kinds (comma separated
// kind prefixes) and since (replay entries after this seq first).
func (h *Hub) Serve(c *gin.Context) {
	var since int64 = -1
	if s := c.Query("since"); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n < 0 {
			badRequest(c, "since must be a non-negative integer")
			return
		}
		since = n
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	client := &WSClient{
		ID:       uuid.New(),
		Conn:     conn,
		Send:     make(chan []byte, sendBuffer),
		Done:     make(chan struct{}),
		prefixes: splitList(c.Query("kinds")),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[client.ID] = client
	h.mu.Unlock()
	h.logger.Debug().Str("client", client.ID.String()).Msg("client connected")

	if since >= 0 && h.backlog != nil {
		h.replay(client, since)
	}

	go h.readPump(client)
	go h.writePump(client)
}

func (h *Hub) replay(client *WSClient, since int64) {
	for _, e := range h.backlog.Since(since) {
		env, err := events.NewEnvelope(e.ID, string(e.Kind), e.Seq, e.At, e.Actor.String(), h.source, e)
		if err != nil || !client.wants(env.Type) {
			continue
		}
		msg, err := json.Marshal(env)
		if err != nil {
			continue
		}
		select {
		case client.Send <- msg:
		default:
			return
		}
	}
}

func (h *Hub) remove(client *WSClient) {
	h.mu.Lock()
	delete(h.clients, client.ID)
	h.mu.Unlock()
	client.close()
}

func (h *Hub) readPump(client *WSClient) {
	defer func() {
		h.remove(client)
		client.Conn.Close()
	}()

	client.Conn.SetReadLimit(maxMessageSize)
	_ = client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	client.Conn.SetPongHandler(func(string) error {
		return client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := client.Conn.ReadMessage()
		if err != nil {
			return
		}
		h.handleMessage(client, message)
	}
}

func (h *Hub) writePump(client *WSClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn.Close()
	}()

	for {
		select {
		case message := <-client.Send:
			_ = client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-client.Done:
			_ = client.Conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}

func (h *Hub) handleMessage(client *WSClient, message []byte) {
	var msg WSMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return
	}

	switch msg.Type {
	case "subscribe":
		var p subscribePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return
		}
		client.setFilter(p.Kinds)
	case "clear":
		client.setFilter(nil)
	}
}
