package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"murmur/chat-server/models"
	"murmur/chat-server/services"
	"murmur/chat-server/utils"
)

type PresenceHandler struct {
	presence *services.PresenceStateStore
	reaper   *services.StaleSessionReaper
	logger   *utils.Logger
}

func NewPresenceHandler(presence *services.PresenceStateStore, reaper *services.StaleSessionReaper, logger *utils.Logger) *PresenceHandler {
	return &PresenceHandler{
		presence: presence,
		reaper:   reaper,
		logger:   logger,
	}
}

// GetOnlineUsers handles GET /api/users/online
func (ph *PresenceHandler) GetOnlineUsers(c *gin.Context) {
	users, err := ph.presence.ListOnlineUsers(c.Request.Context())
	if err != nil {
		ph.logger.Error("Failed to list online users", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get online users",
		})
		return
	}

	c.JSON(http.StatusOK, models.OnlineUsersResponse{
		Count: len(users),
		Users: users,
	})
}

// GetStatus handles GET /api/users/:username/online
func (ph *PresenceHandler) GetStatus(c *gin.Context) {
	username := c.Param("username")

	online, err := ph.presence.IsOnline(c.Request.Context(), username)
	if err != nil {
		ph.logger.Error("Failed to check presence", "user", username, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to check presence",
		})
		return
	}

	c.JSON(http.StatusOK, models.StatusResponse{
		Username: username,
		IsOnline: online,
	})
}

// SweepAll handles POST /admin/presence/sweep — an on-demand maintenance
// pass over every online user.
func (ph *PresenceHandler) SweepAll(c *gin.Context) {
	if err := ph.reaper.SweepAll(c.Request.Context()); err != nil {
		ph.logger.Error("On-demand sweep failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Sweep failed",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
	})
}
