package services

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"murmur/chat-server/models"
	"murmur/chat-server/utils"
)

// Client wraps a websocket connection with a write lock, since gorilla
// connections allow only one concurrent writer.
type Client struct {
	Username  string
	SessionID string

	conn      *websocket.Conn
	writeWait time.Duration
	mu        sync.Mutex
}

// Send writes an envelope to the connection.
func (c *Client) Send(env models.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
	return c.conn.WriteJSON(env)
}

// Ping writes a ping control frame.
func (c *Client) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeWait))
}

// Hub tracks which websocket connections this process owns for each user.
// It is a process-local index for direct frame delivery, never authoritative:
// the shared store decides presence, the hub only routes. It is discarded
// with the process.
type Hub struct {
	mu        sync.RWMutex
	clients   map[string]map[string]*Client // username → sessionID → client
	writeWait time.Duration
	logger    *utils.Logger
}

func NewHub(writeWait time.Duration, logger *utils.Logger) *Hub {
	return &Hub{
		clients:   make(map[string]map[string]*Client),
		writeWait: writeWait,
		logger:    logger,
	}
}

// Add registers a connection under (username, sessionID) and returns its
// client handle.
func (h *Hub) Add(username, sessionID string, conn *websocket.Conn) *Client {
	client := &Client{
		Username:  username,
		SessionID: sessionID,
		conn:      conn,
		writeWait: h.writeWait,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[username] == nil {
		h.clients[username] = make(map[string]*Client)
	}
	h.clients[username][sessionID] = client
	return client
}

// Remove drops the connection for (username, sessionID).
func (h *Hub) Remove(username, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sessions, ok := h.clients[username]; ok {
		delete(sessions, sessionID)
		if len(sessions) == 0 {
			delete(h.clients, username)
		}
	}
}

// LocalSessionCount returns how many connections this process holds for the
// user.
func (h *Hub) LocalSessionCount(username string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[username])
}

// DeliverLocal pushes an envelope to every locally-held connection of one
// user. Returns how many connections received it; zero simply means the user
// is connected elsewhere (or not at all).
func (h *Hub) DeliverLocal(username string, env models.Envelope) int {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients[username]))
	for _, client := range h.clients[username] {
		targets = append(targets, client)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, client := range targets {
		if err := client.Send(env); err != nil {
			h.logger.Warn("Failed to deliver event",
				"user", username, "session_id", client.SessionID, "error", err)
			continue
		}
		delivered++
	}
	return delivered
}

// BroadcastLocal fans an event out to every client connected to this
// process, regardless of user.
func (h *Hub) BroadcastLocal(event string, payload interface{}) {
	env, err := models.NewEnvelope(event, payload)
	if err != nil {
		h.logger.Error("Failed to build broadcast envelope", "event", event, "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0)
	for _, sessions := range h.clients {
		for _, client := range sessions {
			targets = append(targets, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range targets {
		if err := client.Send(env); err != nil {
			h.logger.Warn("Failed to broadcast event",
				"user", client.Username, "session_id", client.SessionID, "error", err)
		}
	}
}
