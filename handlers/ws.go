package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"murmur/chat-server/middleware"
	"murmur/chat-server/models"
	"murmur/chat-server/services"
	"murmur/chat-server/utils"
)

// Client → server and server → client websocket events.
const (
	EventChatMsg        = "chat msg"
	EventUserDisconnect = "user:disconnect"
	EventGetOnlineUsers = "get:online:users"
	EventOnlineUsers    = "online-users"
	EventPresenceUpdate = "presence-update"
	EventError          = "error"
)

// WSHandler is the transport layer: it accepts client connections, assigns
// session ids, informs the presence core on connect/disconnect and relays
// chat frames between locally-connected clients.
type WSHandler struct {
	hub      *services.Hub
	presence *services.PresenceStateStore
	registry *services.SessionRegistry
	messages *services.MessageService
	pongWait time.Duration
	logger   *utils.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(hub *services.Hub, presence *services.PresenceStateStore, registry *services.SessionRegistry, messages *services.MessageService, pongWait time.Duration, logger *utils.Logger) *WSHandler {
	return &WSHandler{
		hub:      hub,
		presence: presence,
		registry: registry,
		messages: messages,
		pongWait: pongWait,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Serve handles GET /ws. Identity comes from the JWT claim when auth is
// enabled, otherwise from the ?username= handshake query.
func (h *WSHandler) Serve(c *gin.Context) {
	username := c.GetString(middleware.UsernameKey)
	if username == "" {
		username = c.Query("username")
	}
	if username == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "username is required",
		})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade connection", "user", username, "error", err)
		return
	}

	sessionID := uuid.NewString()
	client := h.hub.Add(username, sessionID, conn)
	h.logger.Info("Client connected", "user", username, "session_id", sessionID)

	// A presence failure must not tear down the connection: chat relay
	// still works, queries may just return stale data.
	if err := h.presence.Connect(c.Request.Context(), username, sessionID); err != nil {
		h.logger.Error("Failed to register presence", "user", username, "error", err)
		h.sendError(client, "Failed to update presence")
	}

	done := make(chan struct{})
	go h.pingLoop(client, done)

	conn.SetReadDeadline(time.Now().Add(h.pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(h.pongWait))
		// Heartbeat re-arms the liveness TTL so healthy long-lived
		// connections are never swept as stale.
		if err := h.registry.RefreshSession(context.Background(), sessionID); err != nil {
			h.logger.Warn("Failed to refresh session TTL", "session_id", sessionID, "error", err)
		}
		return nil
	})

	h.readLoop(client, conn)

	close(done)
	h.hub.Remove(username, sessionID)
	conn.Close()

	// Explicit logout, network drop and tab close all land here.
	if err := h.presence.Disconnect(context.Background(), username, sessionID); err != nil {
		h.logger.Error("Failed to remove presence", "user", username, "error", err)
	}
	h.logger.Info("Client disconnected", "user", username, "session_id", sessionID)
}

func (h *WSHandler) readLoop(client *services.Client, conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("Unexpected close", "user", client.Username, "error", err)
			}
			return
		}

		var env models.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			h.logger.Warn("Dropping malformed frame", "user", client.Username, "error", err)
			continue
		}

		switch env.Event {
		case EventChatMsg:
			h.handleChatMsg(client, env)
		case EventGetOnlineUsers:
			h.handleGetOnlineUsers(client)
		case EventUserDisconnect:
			return
		default:
			h.logger.Debug("Ignoring unknown event", "event", env.Event, "user", client.Username)
		}
	}
}

// handleChatMsg relays a message to the receiver's locally-held connections
// and records it. The relay happens first: persistence failure must not
// block delivery.
func (h *WSHandler) handleChatMsg(client *services.Client, env models.Envelope) {
	var msg models.ChatMessage
	if err := json.Unmarshal(env.Data, &msg); err != nil {
		h.logger.Warn("Dropping malformed chat message", "user", client.Username, "error", err)
		h.sendError(client, "Malformed chat message")
		return
	}
	if msg.Receiver == "" || msg.Text == "" {
		h.sendError(client, "receiver and text are required")
		return
	}
	if msg.Sender == "" {
		msg.Sender = client.Username
	}

	delivered := h.hub.DeliverLocal(msg.Receiver, env)
	h.logger.Debug("Relayed chat message",
		"sender", msg.Sender, "receiver", msg.Receiver, "delivered", delivered)

	if _, err := h.messages.Record(context.Background(), msg); err != nil {
		h.logger.Error("Failed to record message",
			"sender", msg.Sender, "receiver", msg.Receiver, "error", err)
	}
}

func (h *WSHandler) handleGetOnlineUsers(client *services.Client) {
	users, err := h.presence.ListOnlineUsers(context.Background())
	if err != nil {
		h.logger.Error("Failed to list online users", "user", client.Username, "error", err)
		h.sendError(client, "Failed to get online users")
		return
	}

	env, err := models.NewEnvelope(EventOnlineUsers, users)
	if err != nil {
		h.logger.Error("Failed to build online-users envelope", "error", err)
		return
	}
	if err := client.Send(env); err != nil {
		h.logger.Warn("Failed to send online users", "user", client.Username, "error", err)
	}
}

func (h *WSHandler) sendError(client *services.Client, message string) {
	env, err := models.NewEnvelope(EventError, models.ErrorPayload{Message: message})
	if err != nil {
		return
	}
	if err := client.Send(env); err != nil {
		h.logger.Warn("Failed to send error event", "user", client.Username, "error", err)
	}
}

// pingLoop keeps the connection's heartbeat going until the read loop exits.
func (h *WSHandler) pingLoop(client *services.Client, done chan struct{}) {
	ticker := time.NewTicker(h.pongWait * 9 / 10)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := client.Ping(); err != nil {
				return
			}
		}
	}
}
